package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dyluth/brock/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	version string
	commit  string
	date    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = NewRootCommand()

// NewRootCommand builds the full command tree. Each tree owns its own viper
// instance so flag and environment state never leaks between trees.
func NewRootCommand() *cobra.Command {
	root, _ := newRootCommand()
	return root
}

func newRootCommand() (*cobra.Command, *app) {
	v := viper.New()
	a := &app{v: v}

	root := &cobra.Command{
		Use:   "brock",
		Short: "Brock - coordination ledger for security agent swarms",
		Long: `Brock records a swarm of autonomous security agents, the joint responses
they vote on, the threats they report and the reasoning they commit to,
on a shared Redis ledger.

Every mutation is signed with the caller's Ed25519 key and applied in a
single transaction, with an event appended to the ledger outbox.`,
		Version: version,
		// Prevent silent success when unknown flags are passed to root command
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		// Enable strict flag parsing - unknown flags will cause an error
		FParseErrWhitelist: cobra.FParseErrWhitelist{},
		SilenceErrors:      true,
		SilenceUsage:       true,
	}

	flags := root.PersistentFlags()
	flags.String("config", config.DefaultFileName, "Path to brock.yml (or set BROCK_CONFIG)")
	flags.StringP("instance", "n", "", "Ledger instance name (or set BROCK_INSTANCE)")
	flags.String("redis-url", "", "Redis URL, overrides brock.yml (or set BROCK_REDIS_URL)")
	flags.String("key", "", "Path to the signing key file (or set BROCK_KEY)")
	flags.BoolP("verbose", "v", false, "Log ledger operations to stderr")

	_ = v.BindPFlag("config", flags.Lookup("config"))
	_ = v.BindPFlag("instance", flags.Lookup("instance"))
	_ = v.BindPFlag("redis_url", flags.Lookup("redis-url"))
	_ = v.BindPFlag("key", flags.Lookup("key"))
	_ = v.BindPFlag("verbose", flags.Lookup("verbose"))

	v.SetEnvPrefix("BROCK")
	v.AutomaticEnv()

	root.AddCommand(
		newKeygenCmd(a),
		newInitCmd(a),
		newStatusCmd(a),
		newAgentCmd(a),
		newCoordCmd(a),
		newThreatCmd(a),
		newReasoningCmd(a),
		newEventsCmd(a),
	)

	return root, a
}

// Execute runs the root command with a context cancelled on SIGINT or SIGTERM.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Errors are printed by the printer package with color formatting
	return rootCmd.ExecuteContext(ctx)
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}
