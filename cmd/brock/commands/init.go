package commands

import (
	"errors"
	"fmt"

	"github.com/dyluth/brock/internal/config"
	"github.com/dyluth/brock/internal/identity"
	"github.com/dyluth/brock/internal/printer"
	"github.com/dyluth/brock/internal/swarm"
	"github.com/spf13/cobra"
)

func newKeygenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a signing key",
		Long: `Generate a new Ed25519 signing key and print its identity.

The key is written to --key (default brock.key) with owner-only permissions.
An existing key file is never overwritten.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.keyFile()

			signer, err := identity.GenerateSigner()
			if err != nil {
				return fmt.Errorf("failed to generate key: %w", err)
			}
			if err := signer.SaveKey(path); err != nil {
				return printer.Error(
					"failed to save key",
					err.Error(),
					[]string{"Choose another path with --key"},
				)
			}

			printer.Success("Generated key %s\n", path)
			fmt.Fprintln(cmd.OutOrStdout(), signer.Identity())
			return nil
		},
	}
}

func newInitCmd(a *app) *cobra.Command {
	var writeConfig bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the swarm registry and threat counter",
		Long: `Initialize a ledger instance with the caller as its authority.

Creates the swarm registry and the threat counter. Each can be created
only once per instance; an already initialized part is reported and skipped.

Use --write-config to also save the current settings to brock.yml.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a.configOptional = writeConfig

			s, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			if writeConfig {
				path := a.v.GetString("config")
				if err := config.Write(path, s.cfg); err != nil {
					return printer.Error("failed to write configuration", err.Error(), nil)
				}
				printer.Success("Created %s\n", path)
			}

			caller, err := s.caller(identity.OpInitializeSwarm)
			if err != nil {
				return err
			}
			registry, err := s.swarm.Initialize(ctx, caller)
			switch {
			case err == nil:
				printer.Success("Initialized swarm on instance '%s' (authority %s)\n", s.cfg.Instance, registry.Authority)
			case errors.Is(err, swarm.ErrAlreadyInitialized):
				printer.Warning("Swarm on instance '%s' is already initialized\n", s.cfg.Instance)
			default:
				return printer.Rejection("initialize swarm", err)
			}

			caller, err = s.caller(identity.OpInitializeThreatCounter)
			if err != nil {
				return err
			}
			_, err = s.threats.InitializeCounter(ctx, caller)
			switch {
			case err == nil:
				printer.Success("Initialized threat counter\n")
			case errors.Is(err, swarm.ErrAlreadyInitialized):
				printer.Warning("Threat counter is already initialized\n")
			default:
				return printer.Rejection("initialize threat counter", err)
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&writeConfig, "write-config", false, "Save the resolved settings to --config (never overwrites)")
	return cmd
}
