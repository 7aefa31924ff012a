package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"propie/api/internal/seed"
)

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// Opening the repository applies pending migrations, so migrate only has to
// connect and report.
func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(commandContext(cmd))
			if err != nil {
				return err
			}
			defer rt.Close()
			rt.logger.Info("migrations applied", zap.String("backend", rt.repo.Backend()))
			return nil
		},
	}
}

func newSeedCommand() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load demonstration users, developments and professionals",
		Long: `Load the embedded demonstration fixture through the service layer.

Seeding is skipped when any development already exists.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			rt, err := loadRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()
			if rt.cfg.Production() {
				return fmt.Errorf("refusing to seed demonstration data in production")
			}
			fixture, err := seed.Load()
			if err != nil {
				return err
			}
			result, err := seed.Run(ctx, rt.service, fixture, password, rt.logger)
			if err != nil {
				return err
			}
			if result.Skipped {
				fmt.Fprintln(cmd.OutOrStdout(), "seed skipped: developments already exist")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d users, %d developments, %d units, %d professionals\n",
				result.Users, result.Developments, result.Units, result.Professionals)
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "propie-demo-2024", "password for every seeded account")
	return cmd
}

func newReindexCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the Meilisearch indexes from the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			rt, err := loadRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()
			counts, err := rt.service.Reindex(ctx)
			if err != nil {
				return fmt.Errorf("reindex (is MEILI_URL set and reachable?): %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reindexed %s\n", counts)
			return nil
		},
	}
}
