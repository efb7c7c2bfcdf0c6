package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/compozy/ordertx/engine/infra/repo"
	"github.com/compozy/ordertx/pkg/config"
	"github.com/compozy/ordertx/pkg/logger"
)

// MigrateCmd creates or upgrades the order schema of the configured backend.
func MigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			timeout, err := cmd.Flags().GetDuration("timeout")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			cfg := config.FromContext(ctx)
			provider, err := repo.NewProvider(ctx, &cfg.Database, nil)
			if err != nil {
				return err
			}
			defer provider.Close(context.WithoutCancel(ctx))
			if err := provider.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate %s: %w", cfg.Database.Driver, err)
			}
			logger.FromContext(ctx).Info("Migrations applied", "driver", cfg.Database.Driver)
			return nil
		},
	}
}
