package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	clientcmd "github.com/webclinic017/pgjobq/internal/cmd/client"
	workerrun "github.com/webclinic017/pgjobq/internal/cmd/worker"
	cfgpkg "github.com/webclinic017/pgjobq/internal/config"
	"github.com/webclinic017/pgjobq/internal/runtime"
	logpkg "github.com/webclinic017/pgjobq/pkg/log"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	// initialize logger for CLI
	// Respect PGJOBQ_LOG_LEVEL for both client commands and worker output
	level := os.Getenv("PGJOBQ_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)

	// Redirect standard library logs to our logger
	logpkg.RedirectStdLog(logger)

	rootCmd := &cobra.Command{
		Use:   "pgjobq",
		Short: "pgjobq runtime CLI",
		Long: `pgjobq keeps durable message queues inside a Postgres database.

Producers, consumers, and the maintenance worker all talk straight to
the database; transactional row locking coordinates them. Use 'worker'
for the maintenance daemon and the queue/send/receive commands for
day-to-day operations.`,
	}

	var cfgPath string
	var dbURL string
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to a JSON or YAML config file")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "Postgres connection URL (overrides config file and env)")

	openRuntime := func(ctx context.Context) (*runtime.Runtime, error) {
		cfg, err := resolveConfig(cfgPath, dbURL)
		if err != nil {
			return nil, err
		}
		return runtime.Open(ctx, runtime.Options{Config: cfg, Logger: logger})
	}

	// worker daemon
	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the maintenance worker (reaper, scheduler, janitor)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			migrate, _ := cmd.Flags().GetBool("migrate")
			cfg, err := resolveConfig(cfgPath, dbURL)
			if err != nil {
				return err
			}
			return workerrun.Run(cmd.Context(), workerrun.Options{Config: cfg, Migrate: migrate})
		},
	}
	workerCmd.Flags().Bool("migrate", false, "Apply pending schema migrations before starting")
	rootCmd.AddCommand(workerCmd)

	// version
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "pgjobq", version)
		},
	}
	rootCmd.AddCommand(versionCmd)

	// client commands operate through the resolved configuration
	rootCmd.AddCommand(clientcmd.NewQueueCommand(openRuntime))
	rootCmd.AddCommand(clientcmd.NewSendCommand(openRuntime))
	rootCmd.AddCommand(clientcmd.NewReceiveCommand(openRuntime))
	rootCmd.AddCommand(clientcmd.NewAckCommand(openRuntime))
	rootCmd.AddCommand(clientcmd.NewReleaseCommand(openRuntime))
	rootCmd.AddCommand(clientcmd.NewExtendCommand(openRuntime))
	rootCmd.AddCommand(clientcmd.NewMigrateCommand(openRuntime))
	rootCmd.AddCommand(clientcmd.NewReapCommand(openRuntime))
	rootCmd.AddCommand(clientcmd.NewPromoteCommand(openRuntime))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfig layers defaults, an optional config file, PGJOBQ_*
// environment variables, and the --db flag, in that order.
func resolveConfig(path, dbURL string) (cfgpkg.Config, error) {
	if path == "" {
		path = cfgpkg.DefaultConfigPath()
	}
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		return cfgpkg.Config{}, fmt.Errorf("load config: %w", err)
	}
	cfgpkg.FromEnv(&cfg)
	if dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if cfg.Database.URL == "" {
		return cfgpkg.Config{}, fmt.Errorf("database url required: set --db, PGJOBQ_DATABASE_URL, or database.url in a config file")
	}
	return cfg, nil
}
