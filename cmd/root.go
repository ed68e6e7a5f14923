package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/teemow/applytrack/internal/config"
	"github.com/teemow/applytrack/internal/logging"
)

// rootCmd represents the base command for the applytrack application
var rootCmd = &cobra.Command{
	Use:   "applytrack",
	Short: "Sends job applications through Gmail and tracks their replies",
	Long: `applytrack links Gmail accounts to job-application tracker users, sends
applications with the resume attached from the user's own mailbox and syncs
the mailbox to move applications from Applied to Interviewing, Offer or
Rejected.

It can run as:
  - An HTTP API with an optional MCP endpoint (serve)
  - An MCP server on stdio for a single owner (serve --transport stdio)
  - A one-shot sync for cron jobs (sync)`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "applytrack version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to a YAML config file")
	flags.String("env-file", ".env", "Path to a .env file (ignored if missing)")
	flags.Bool("debug", false, "Enable debug logging (same as --log-level debug)")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.String("log-format", "text", "Log format: text or json")
	flags.String("db-driver", config.DriverSQLite, "Database driver: sqlite or pgx")
	flags.String("db-dsn", "applytrack.db", "Database DSN. Can also use DATABASE_URL env var.")
	flags.Int("workers", 1, "Messages processed concurrently by a sync run")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newTokenCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
}

// loadConfig reads the configuration of every layer and builds the process
// logger. Logs go to stderr so stdout stays free for command output and the
// stdio transport.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	file, _ := cmd.Flags().GetString("config")
	dotenv, _ := cmd.Flags().GetString("env-file")

	cfg, err := config.Load(config.Options{
		File:   file,
		DotEnv: dotenv,
		Flags:  cmd.Flags(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}

	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Log.Level = "debug"
	}
	logger := logging.NewLogger(os.Stderr, cfg.Log.Format, cfg.Log.Level)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of applytrack",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "applytrack version %s\n", version)
		},
	}
}
