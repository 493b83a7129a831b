package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"bitpredict/internal/guess"
	"bitpredict/internal/models"
)

type HistoryOptions struct {
	*RootOptions
	UserID string
	Limit  int
}

func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List a user's settled and expired guesses",
		Long: `List a user's settled and expired guesses, newest first.

Examples:
  predictctl history --user alice
  predictctl history --user alice --limit 10 --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.UserID, "user", "", "user id (required)")
	_ = cmd.MarkFlagRequired("user")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "max rows")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	return withEngine(context.Background(), func(ctx context.Context, e *guess.Engine) error {
		rows, err := e.History(ctx, opts.UserID, opts.Limit)
		if err != nil {
			return fmt.Errorf("history %s: %w", opts.UserID, err)
		}
		if opts.Format == "json" {
			if rows == nil {
				rows = []models.GuessSettlement{}
			}
			return writeJSON(cmd.OutOrStdout(), rows)
		}
		w := cmd.OutOrStdout()
		if len(rows) == 0 {
			fmt.Fprintf(w, "No settlements for user: %s\n", opts.UserID)
			return nil
		}
		for _, row := range rows {
			settled := "-"
			if row.SettledValue != nil {
				settled = row.SettledValue.String()
			}
			fmt.Fprintf(w, "%s  %-8s %-4s %s -> %s  %-9s %+d (score %d)\n",
				row.SettledAt.UTC().Format(time.RFC3339),
				row.Kind,
				strings.ToLower(row.Direction),
				row.ReferenceValue.String(),
				settled,
				row.Outcome,
				row.ScoreDelta,
				row.ScoreAfter,
			)
		}
		return nil
	})
}
