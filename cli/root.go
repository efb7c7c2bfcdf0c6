package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/compozy/ordertx/pkg/config"
	"github.com/compozy/ordertx/pkg/logger"
	"github.com/compozy/ordertx/pkg/version"
)

const (
	defaultEnvFile = ".env"
	defaultTimeout = 30 * time.Second
)

func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ordertx",
		Short:         "Run order workflows as atomic database transactions",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return SetupGlobalConfig(cmd)
		},
	}
	addGlobalFlags(root)

	root.AddCommand(
		PlaceOrderCmd(),
		PlaceOrderThresholdCmd(),
		MonthlyTotalCmd(),
		MigrateCmd(),
	)

	return root
}

func addGlobalFlags(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.String("config", "", "Path to a YAML configuration file")
	pf.String("env-file", defaultEnvFile, "Path to a .env file loaded before configuration")
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	pf.Bool("log-json", false, "Emit logs as JSON")
	pf.Bool("log-source", false, "Include source locations in logs")
	pf.String("format", formatAuto, "Output format (auto, text, json)")
	pf.Duration("timeout", defaultTimeout, "Upper bound for one command")

	pf.String("db-driver", "", "Database driver (sqlite, mysql, postgres)")
	pf.String("db-conn-string", "", "Driver specific connection string")
	pf.String("db-host", "", "Database host")
	pf.String("db-port", "", "Database port")
	pf.String("db-user", "", "Database user")
	pf.String("db-password", "", "Database password")
	pf.String("db-name", "", "Database name")
	pf.String("db-ssl-mode", "", "PostgreSQL SSL mode")
	pf.String("db-path", "", "SQLite database file")
	pf.Duration("db-busy-timeout", 0, "SQLite busy timeout")
	pf.Int("db-connect-attempts", 0, "Connection attempts before giving up")
	pf.Duration("db-connect-backoff", 0, "Initial backoff between connection attempts")
	pf.String("threshold", "", "Monthly total an order must help reach to be kept")
}

// SetupGlobalConfig loads configuration from defaults, the optional YAML file,
// the environment and explicitly set flags, in that order of precedence, and
// stores the result and a configured logger in the command context.
func SetupGlobalConfig(cmd *cobra.Command) error {
	if _, err := loadEnvFile(cmd); err != nil {
		return err
	}
	configFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	sources := []config.Source{config.NewDefaultProvider()}
	if configFile != "" {
		sources = append(sources, config.NewYAMLProvider(configFile))
	}
	sources = append(sources, config.NewEnvProvider())
	cliFlags := make(map[string]any)
	extractCLIFlags(cmd, cliFlags)
	if len(cliFlags) > 0 {
		sources = append(sources, config.NewCLIProvider(cliFlags))
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.NewService().Load(ctx, sources...)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	_, _, logSource, err := logger.GetLoggerConfig(cmd)
	if err != nil {
		return err
	}
	log := logger.SetupLogger(cfg.Runtime.LogLevel, cfg.Runtime.LogJSON, logSource)
	ctx = logger.ContextWithLogger(ctx, log)
	ctx = config.ContextWithConfig(ctx, cfg)
	cmd.SetContext(ctx)
	return nil
}
