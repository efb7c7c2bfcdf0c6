package logger

import (
	"fmt"

	"github.com/spf13/cobra"
)

// SetupLogger initializes the default logger from CLI-friendly values.
func SetupLogger(logLevel string, logJSON, logSource bool) Logger {
	cfg := DefaultConfig()
	cfg.Level = LogLevel(logLevel)
	cfg.JSON = logJSON
	cfg.AddSource = logSource
	Init(cfg)
	return getDefault()
}

func GetLoggerConfig(cmd *cobra.Command) (string, bool, bool, error) {
	logLevel, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return "", false, false, fmt.Errorf("failed to get log-level flag: %w", err)
	}

	logJSON, err := cmd.Flags().GetBool("log-json")
	if err != nil {
		return "", false, false, fmt.Errorf("failed to get log-json flag: %w", err)
	}

	logSource, err := cmd.Flags().GetBool("log-source")
	if err != nil {
		return "", false, false, fmt.Errorf("failed to get log-source flag: %w", err)
	}

	return logLevel, logJSON, logSource, nil
}
