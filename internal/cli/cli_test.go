package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitpredict/internal/app"
	"bitpredict/internal/auth"
	"bitpredict/internal/config"
	"bitpredict/internal/repository"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func sqliteEnv(t *testing.T) string {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "predictctl.db")
	t.Setenv("BP_ENV_ONLY", "true")
	t.Setenv("BP_DB_DRIVER", "sqlite")
	t.Setenv("BP_DB_DSN", dsn)
	t.Setenv("BP_DB_MAX_OPEN_CONNS", "1")
	return dsn
}

func TestToken(t *testing.T) {
	t.Setenv("BP_ENV_ONLY", "true")
	t.Setenv("BP_AUTH_JWT_SECRET", "cli-secret")

	out, err := execute(t, "token", "--user", "alice", "--format", "json")
	require.NoError(t, err)
	var res tokenResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "alice", res.UserID)

	sub, err := auth.JWT{Secret: []byte("cli-secret"), Issuer: "bitpredict"}.Verify(res.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", sub)
}

func TestToken_RequiresSecret(t *testing.T) {
	t.Setenv("BP_ENV_ONLY", "true")
	t.Setenv("BP_AUTH_JWT_SECRET", "")
	_, err := execute(t, "token", "--user", "alice")
	assert.ErrorIs(t, err, auth.ErrMissingSecret)
}

func TestInvalidFormat(t *testing.T) {
	t.Setenv("BP_ENV_ONLY", "true")
	_, err := execute(t, "migrate", "--format", "yaml")
	assert.Error(t, err)
}

func TestStatusExpiresOverdueGuess(t *testing.T) {
	dsn := sqliteEnv(t)

	out, err := execute(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "migrated")

	store, err := app.OpenStore(config.DBConfig{Driver: "sqlite", DSN: dsn, MaxOpenConns: 1}, false, nil)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.Repo.EnsureUserGuessState(ctx, "alice"))
	applied, err := store.Repo.PlacePendingGuess(ctx, repository.PlaceParams{
		UserID:         "alice",
		Direction:      "UP",
		ReferenceValue: decimal.NewFromInt(100),
		PlacedAt:       time.Now().UTC().Add(-10 * time.Minute),
	})
	require.NoError(t, err)
	require.True(t, applied)
	require.NoError(t, store.Close())

	out, err = execute(t, "status", "--user", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "score:   0")
	assert.Contains(t, out, "pending: none")

	out, err = execute(t, "history", "--user", "alice")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "expired")
	assert.Contains(t, lines[0], "up")

	_, err = execute(t, "status", "--user", "nobody")
	assert.Error(t, err)
}
