package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/dyluth/brock/internal/config"
	"github.com/dyluth/brock/internal/identity"
	"github.com/dyluth/brock/internal/printer"
	"github.com/dyluth/brock/internal/reasoning"
	"github.com/dyluth/brock/internal/resolver"
	"github.com/dyluth/brock/internal/swarm"
	"github.com/dyluth/brock/internal/threat"
	"github.com/dyluth/brock/pkg/ledger"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// app carries the settings shared by every command of one tree.
type app struct {
	v *viper.Viper

	// configOptional lets an explicitly named config file be missing. Set
	// by init --write-config, which is about to create it.
	configOptional bool
}

// settings loads brock.yml when present and layers flags and BROCK_*
// environment variables on top. A missing default config file is not an
// error; an explicitly named one is.
func (a *app) settings() (*config.BrockConfig, error) {
	path := a.v.GetString("config")

	cfg, err := config.Load(path)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist) && (a.configOptional || !a.v.IsSet("config")):
		cfg = &config.BrockConfig{Version: "1.0"}
	default:
		return nil, printer.Error(
			"failed to load configuration",
			err.Error(),
			[]string{fmt.Sprintf("Check the file: %s", path)},
		)
	}

	if a.v.IsSet("instance") {
		cfg.Instance = a.v.GetString("instance")
	}
	if a.v.IsSet("redis_url") {
		cfg.RedisURL = a.v.GetString("redis_url")
	}
	if a.v.IsSet("key") {
		cfg.KeyFile = a.v.GetString("key")
	}

	if err := cfg.Validate(); err != nil {
		return nil, printer.Error(
			"invalid configuration",
			err.Error(),
			[]string{
				"Name the instance with --instance or BROCK_INSTANCE",
				"Or create brock.yml: brock init --instance <name> --write-config",
			},
		)
	}
	return cfg, nil
}

// keyFile returns the signing key path without requiring a complete
// configuration, so keygen works before brock.yml exists.
func (a *app) keyFile() string {
	if a.v.IsSet("key") {
		return a.v.GetString("key")
	}
	if cfg, err := config.Load(a.v.GetString("config")); err == nil {
		return cfg.KeyFile
	}
	return config.DefaultKeyFile
}

func (a *app) logger(cfg *config.BrockConfig) *zap.Logger {
	if !a.v.GetBool("verbose") {
		return zap.NewNop()
	}

	zcfg := zap.NewDevelopmentConfig()
	zcfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel())
	zcfg.OutputPaths = []string{"stderr"}
	logger, err := zcfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// session is an open connection to one ledger instance.
type session struct {
	cfg       *config.BrockConfig
	client    *ledger.Client
	logger    *zap.Logger
	swarm     *swarm.Service
	threats   *threat.Service
	reasoning *reasoning.Service

	signerCache *identity.Signer
}

// open resolves settings, connects to Redis and builds the services.
func (a *app) open(ctx context.Context) (*session, error) {
	cfg, err := a.settings()
	if err != nil {
		return nil, err
	}

	redisOpts, err := cfg.RedisOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client, err := ledger.NewClient(redisOpts, cfg.Instance)
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger client: %w", err)
	}

	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, printer.ErrorWithContext(
			"Redis connection failed",
			fmt.Sprintf("Could not connect to Redis at %s", cfg.RedisURL),
			map[string]string{"Instance": cfg.Instance},
			[]string{
				"Check that Redis is running and reachable",
				"Override the URL with --redis-url or BROCK_REDIS_URL",
			},
		)
	}

	logger := a.logger(cfg)
	runner := swarm.NewRunner(client, identity.NewVerifier(cfg.ProofWindow), logger, nil)

	return &session{
		cfg:       cfg,
		client:    client,
		logger:    logger,
		swarm:     swarm.NewService(runner),
		threats:   threat.NewService(runner),
		reasoning: reasoning.NewService(runner),
	}, nil
}

func (s *session) Close() {
	_ = s.logger.Sync()
	s.client.Close()
}

// signer loads the key file on first use.
func (s *session) signer() (*identity.Signer, error) {
	if s.signerCache != nil {
		return s.signerCache, nil
	}

	signer, err := identity.LoadSigner(s.cfg.KeyFile)
	if err != nil {
		return nil, printer.Error(
			"signing key unavailable",
			err.Error(),
			[]string{
				"Generate a key: brock keygen",
				"Point at an existing key with --key or BROCK_KEY",
			},
		)
	}
	s.signerCache = signer
	return signer, nil
}

// caller signs op with the session key.
func (s *session) caller(op identity.Operation) (identity.Caller, error) {
	signer, err := s.signer()
	if err != nil {
		return identity.Caller{}, err
	}
	return signer.Sign(op), nil
}

// resolveAgent expands a short agent ID. An empty argument means the
// session's own identity.
func (s *session) resolveAgent(ctx context.Context, shortID string) (string, error) {
	if shortID == "" {
		signer, err := s.signer()
		if err != nil {
			return "", err
		}
		return signer.Identity(), nil
	}

	fullID, err := resolver.ResolveAgentID(ctx, s.client, shortID)
	if err == nil {
		return fullID, nil
	}

	if resolver.IsNotFoundError(err) {
		return "", printer.Error(
			fmt.Sprintf("agent '%s' not found", shortID),
			"No registered agent matches that ID.",
			[]string{"List registered agents:\n  brock agent list"},
		)
	}
	var ambiguous *resolver.AmbiguousError
	if errors.As(err, &ambiguous) {
		return "", printer.Error("ambiguous agent ID", resolver.FormatAmbiguousError(ambiguous), nil)
	}
	return "", printer.Error("invalid agent ID", err.Error(), nil)
}

// parseID parses a coordination or threat ID argument.
func parseID(kind, arg string) (uint64, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return 0, printer.Error(
			fmt.Sprintf("invalid %s ID", kind),
			fmt.Sprintf("%q is not a non-negative integer", arg),
			nil,
		)
	}
	return id, nil
}

// parseOutcome accepts success or failure.
func parseOutcome(arg string) (bool, error) {
	switch arg {
	case "success":
		return true, nil
	case "failure":
		return false, nil
	default:
		return false, printer.Error(
			"invalid outcome",
			fmt.Sprintf("Unknown outcome: %s", arg),
			[]string{"Valid outcomes: success, failure"},
		)
	}
}

// parseHashArg parses a 64-character hex fingerprint flag.
func parseHashArg(flag, arg string) (ledger.Hash, error) {
	h, err := ledger.ParseHash(arg)
	if err != nil {
		return h, printer.Error(
			fmt.Sprintf("invalid --%s", flag),
			err.Error(),
			[]string{"Pass 64 hex characters, e.g. the output of sha256sum"},
		)
	}
	return h, nil
}
