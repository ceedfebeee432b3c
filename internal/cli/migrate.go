package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func migrateCmd(rt *Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations to the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := rt.setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if err := rt.Migrate(cmd.Context(), cfg, logger); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s schema is up to date (%s)\n", okColor.Sprint("OK"), cfg.Store.Driver)
			return nil
		},
	}
}
