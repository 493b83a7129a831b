package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"bitpredict/internal/app"
	"bitpredict/internal/guess"
)

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the guess tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.ConfigFromEnv()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			store, err := app.OpenStore(cfg.DB, true, nil)
			if err != nil {
				return err
			}
			defer store.Close()
			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"status": "migrated", "driver": cfg.DB.Driver})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrated (%s)\n", cfg.DB.Driver)
			return nil
		},
	}
}

// withEngine runs fn against an engine with no price source and no timers.
// Only reads and reconciliation are available through it.
func withEngine(ctx context.Context, fn func(ctx context.Context, e *guess.Engine) error) error {
	cfg, err := app.ConfigFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	store, err := app.OpenStore(cfg.DB, false, nil)
	if err != nil {
		return err
	}
	defer store.Close()
	e := &guess.Engine{
		Repo:   store.Repo,
		Clock:  guess.SystemClock{},
		Config: cfg.Guess,
	}
	return fn(ctx, e)
}
