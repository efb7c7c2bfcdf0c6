package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compozy/ordertx/engine/infra/sqlite"
	"github.com/compozy/ordertx/engine/txexec"
	"github.com/compozy/ordertx/pkg/config"
)

func TestSetupGlobalConfig(t *testing.T) {
	parsed := func(t *testing.T, args ...string) *cobra.Command {
		t.Helper()
		cmd := RootCmd()
		require.NoError(t, cmd.ParseFlags(append([]string{"--env-file="}, args...)))
		return cmd
	}

	t.Run("Should let YAML override defaults and flags override YAML", func(t *testing.T) {
		dir := t.TempDir()
		cfgPath := filepath.Join(dir, "ordertx.yaml")
		yaml := "database:\n  driver: sqlite\n  path: from-yaml.db\norder:\n  threshold: \"2500\"\n"
		require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0o600))

		cmd := parsed(t, "--config", cfgPath, "--db-path", "from-flag.db")
		require.NoError(t, SetupGlobalConfig(cmd))
		cfg := config.FromContext(cmd.Context())
		assert.Equal(t, "from-flag.db", cfg.Database.Path)
		assert.Equal(t, "2500", cfg.Order.Threshold)
	})

	t.Run("Should apply environment variables", func(t *testing.T) {
		t.Setenv("ORDERTX_ORDER_THRESHOLD", "750.50")
		cmd := parsed(t)
		require.NoError(t, SetupGlobalConfig(cmd))
		assert.Equal(t, "750.50", config.FromContext(cmd.Context()).Order.Threshold)
	})

	t.Run("Should reject an invalid threshold", func(t *testing.T) {
		cmd := parsed(t, "--threshold", "lots")
		err := SetupGlobalConfig(cmd)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Threshold")
		assert.Contains(t, err.Error(), "decimal")
	})
}

func TestResolveFormat(t *testing.T) {
	t.Run("Should fall back to JSON when output is not a terminal", func(t *testing.T) {
		got, err := resolveFormat(formatAuto, &bytes.Buffer{})
		require.NoError(t, err)
		assert.Equal(t, formatJSON, got)
	})
	t.Run("Should reject unknown formats", func(t *testing.T) {
		_, err := resolveFormat("xml", &bytes.Buffer{})
		assert.Error(t, err)
	})
}

func runCLI(t *testing.T, args ...string) (*bytes.Buffer, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := RootCmd()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--env-file", "", "--log-level", "error"}, args...))
	return out, cmd.ExecuteContext(t.Context())
}

func TestOrderCommands(t *testing.T) {
	t.Run("Should migrate, place an order and report the new total", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "cli.db")
		_, err := runCLI(t, "migrate", "--db-path", dbPath)
		require.NoError(t, err)

		store, err := sqlite.NewStore(t.Context(), &sqlite.Config{Path: dbPath})
		require.NoError(t, err)
		_, err = store.DB().ExecContext(t.Context(),
			"INSERT INTO products (product_id, product_name, price) VALUES (1, 'iPod', 399)")
		require.NoError(t, err)
		_, err = store.DB().ExecContext(t.Context(),
			"INSERT INTO monthly_sales (product_id, report_month, total_amount) VALUES (1, 7, 9500)")
		require.NoError(t, err)
		require.NoError(t, store.Close(t.Context()))

		out, err := runCLI(t, "place-order", "--db-path", dbPath, "--format", "json", "--date", "2024-07-01")
		require.NoError(t, err)
		var view resultView
		require.NoError(t, json.Unmarshal(out.Bytes(), &view))
		assert.Equal(t, txexec.OutcomeCommitted, view.Outcome)
		assert.Equal(t, "580", view.Details["amount"])

		out, err = runCLI(t, "monthly-total", "--db-path", dbPath, "--format", "json")
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(out.Bytes(), &view))
		assert.Equal(t, "10080", view.Details["total_amount"])
		assert.NotEmpty(t, view.OperationID)
		assert.Equal(t, txexec.OutcomeCommitted, view.Outcome)
	})

	t.Run("Should report the discarded order of the threshold workflow", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "threshold.db")
		_, err := runCLI(t, "migrate", "--db-path", dbPath)
		require.NoError(t, err)
		store, err := sqlite.NewStore(t.Context(), &sqlite.Config{Path: dbPath})
		require.NoError(t, err)
		_, err = store.DB().ExecContext(t.Context(),
			"INSERT INTO products (product_id, product_name, price) VALUES (1, 'iPod', 399)")
		require.NoError(t, err)
		_, err = store.DB().ExecContext(t.Context(),
			"INSERT INTO monthly_sales (product_id, report_month, total_amount) VALUES (1, 7, 0)")
		require.NoError(t, err)
		require.NoError(t, store.Close(t.Context()))

		out, err := runCLI(t, "place-order-threshold", "--db-path", dbPath, "--format", "json", "--metrics=false")
		require.NoError(t, err)
		var view resultView
		require.NoError(t, json.Unmarshal(out.Bytes(), &view))
		assert.True(t, view.PartialRollback)
		assert.Equal(t, "false", view.Details["order_kept"])
		assert.Equal(t, "10000", view.Details["threshold"])
	})

	t.Run("Should fail with a non-zero result when the aggregate row is missing", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "missing.db")
		_, err := runCLI(t, "migrate", "--db-path", dbPath)
		require.NoError(t, err)
		out, err := runCLI(t, "place-order", "--db-path", dbPath, "--format", "json")
		require.Error(t, err)
		var view resultView
		require.NoError(t, json.Unmarshal(out.Bytes(), &view))
		assert.Equal(t, txexec.OutcomeAborted, view.Outcome)
		assert.NotEmpty(t, view.Error)
	})
}
