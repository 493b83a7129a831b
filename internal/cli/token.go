package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"bitpredict/internal/app"
	"bitpredict/internal/auth"
)

type TokenOptions struct {
	*RootOptions
	UserID string
	TTL    time.Duration
}

type tokenResult struct {
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TokenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a user id",
		Long: `Mint a bearer token signed with auth.jwt_secret.

Intended for development and smoke tests; production tokens come from
the identity provider.

Examples:
  predictctl token --user alice
  predictctl token --user alice --ttl 24h --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToken(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.UserID, "user", "", "user id to put in the subject (required)")
	_ = cmd.MarkFlagRequired("user")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", 0, "token lifetime (default auth.token_ttl)")

	return cmd
}

func runToken(opts *TokenOptions, cmd *cobra.Command) error {
	cfg, err := app.ConfigFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ttl := cfg.Auth.TokenTTL
	if opts.TTL > 0 {
		ttl = opts.TTL
	}
	j := auth.JWT{
		Secret:   []byte(strings.TrimSpace(cfg.Auth.JWTSecret)),
		TokenTTL: ttl,
		Issuer:   cfg.Auth.Issuer,
	}
	tok, exp, err := j.Sign(opts.UserID)
	if err != nil {
		return err
	}
	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), tokenResult{UserID: strings.TrimSpace(opts.UserID), Token: tok, ExpiresAt: exp})
	}
	fmt.Fprintln(cmd.OutOrStdout(), tok)
	return nil
}
