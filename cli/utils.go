package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// extractCLIFlags extracts command line flags from a cobra command into a map
// keyed by dotted config path. It processes only flags that have been
// explicitly changed by the user.
func extractCLIFlags(cmd *cobra.Command, flags map[string]any) {
	addFlag := func(flagName, key string, getter func(string) (any, error)) {
		if cmd.Flags().Changed(flagName) {
			if value, err := getter(flagName); err == nil {
				flags[key] = value
			}
		}
	}

	getString := func(name string) (any, error) { return cmd.Flags().GetString(name) }
	getInt := func(name string) (any, error) { return cmd.Flags().GetInt(name) }
	getBool := func(name string) (any, error) { return cmd.Flags().GetBool(name) }
	getDuration := func(name string) (any, error) { return cmd.Flags().GetDuration(name) }

	flagDefs := []struct {
		flagName string
		key      string
		getter   func(string) (any, error)
	}{
		// Database flags
		{"db-driver", "database.driver", getString},
		{"db-conn-string", "database.conn_string", getString},
		{"db-host", "database.host", getString},
		{"db-port", "database.port", getString},
		{"db-user", "database.user", getString},
		{"db-password", "database.password", getString},
		{"db-name", "database.name", getString},
		{"db-ssl-mode", "database.ssl_mode", getString},
		{"db-path", "database.path", getString},
		{"db-busy-timeout", "database.busy_timeout", getDuration},
		{"db-connect-attempts", "database.connect_attempts", getInt},
		{"db-connect-backoff", "database.connect_backoff", getDuration},

		// Order flags
		{"threshold", "order.threshold", getString},

		// Runtime flags
		{"log-level", "runtime.log_level", getString},
		{"log-json", "runtime.log_json", getBool},
	}

	for _, def := range flagDefs {
		addFlag(def.flagName, def.key, def.getter)
	}
}

// loadEnvFile loads environment variables from a file inside the working
// directory. A missing file is not an error.
func loadEnvFile(cmd *cobra.Command) (string, error) {
	envFile, err := cmd.Flags().GetString("env-file")
	if err != nil {
		return "", fmt.Errorf("failed to get env-file flag: %w", err)
	}
	if envFile != "" {
		pwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get current working directory: %w", err)
		}
		if !filepath.IsAbs(envFile) {
			envFile = filepath.Join(pwd, envFile)
		}
		cleanPath := filepath.Clean(envFile)
		absPath, err := filepath.Abs(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to resolve env file path: %w", err)
		}
		if !isPathWithinDirectory(absPath, pwd) {
			return "", fmt.Errorf("env file path '%s' is outside the project directory", envFile)
		}
		fileInfo, err := os.Stat(absPath)
		if err != nil {
			if os.IsNotExist(err) {
				return absPath, nil
			}
			return "", fmt.Errorf("failed to stat env file: %w", err)
		}
		if !fileInfo.Mode().IsRegular() {
			return "", fmt.Errorf("env file path '%s' is not a regular file", envFile)
		}
		if err := godotenv.Load(absPath); err != nil {
			if !os.IsNotExist(err) {
				return "", fmt.Errorf("failed to load env file %s: %w", absPath, err)
			}
		}
		return absPath, nil
	}
	return envFile, nil
}

// isPathWithinDirectory checks if a given path is within the specified directory
func isPathWithinDirectory(path, dir string) bool {
	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return false
	}
	absDir, err := filepath.Abs(filepath.Clean(dir))
	if err != nil {
		return false
	}
	if !strings.HasSuffix(absDir, string(filepath.Separator)) {
		absDir += string(filepath.Separator)
	}
	return strings.HasPrefix(absPath, absDir) || absPath == strings.TrimSuffix(absDir, string(filepath.Separator))
}
