package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"bitpredict/internal/guess"
)

type StatusOptions struct {
	*RootOptions
	UserID string
}

type statusResult struct {
	UserID  string         `json:"user_id"`
	Score   int64          `json:"score"`
	Pending *pendingResult `json:"pending_guess"`
}

type pendingResult struct {
	Direction      string    `json:"direction"`
	ReferenceValue string    `json:"reference_value_at_placement"`
	PlacedAt       time.Time `json:"placed_at"`
	SettlesAt      time.Time `json:"settles_at"`
}

func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a user's score and pending guess",
		Long: `Show a user's score and pending guess.

Like a status read over HTTP, this expires a guess that is past its
settlement delay without changing the score.

Examples:
  predictctl status --user alice
  predictctl status --user alice --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.UserID, "user", "", "user id (required)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
	return withEngine(context.Background(), func(ctx context.Context, e *guess.Engine) error {
		s, err := e.Status(ctx, opts.UserID)
		if err != nil {
			return fmt.Errorf("status %s: %w", opts.UserID, err)
		}
		out := statusResult{UserID: opts.UserID, Score: s.Score}
		if s.Pending != nil {
			out.Pending = &pendingResult{
				Direction:      s.Pending.Direction.Wire(),
				ReferenceValue: s.Pending.ReferenceValue.String(),
				PlacedAt:       s.Pending.PlacedAt,
				SettlesAt:      s.Pending.SettlesAt,
			}
		}
		if opts.Format == "json" {
			return writeJSON(cmd.OutOrStdout(), out)
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "user:    %s\n", out.UserID)
		fmt.Fprintf(w, "score:   %d\n", out.Score)
		if out.Pending == nil {
			fmt.Fprintln(w, "pending: none")
			return nil
		}
		fmt.Fprintf(w, "pending: %s at %s, placed %s, settles %s\n",
			out.Pending.Direction,
			out.Pending.ReferenceValue,
			out.Pending.PlacedAt.Format(time.RFC3339),
			out.Pending.SettlesAt.Format(time.RFC3339),
		)
		return nil
	})
}
