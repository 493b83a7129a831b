package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitpredict/internal/config"
	"bitpredict/internal/models"
)

func TestOpen_SQLiteAndMigrate(t *testing.T) {
	conn, err := Open(config.DBConfig{
		Driver:       DriverSQLite,
		DSN:          filepath.Join(t.TempDir(), "bp.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	require.NoError(t, err)
	defer Close(conn)

	require.NoError(t, Ping(conn))
	require.NoError(t, SetTimezone(conn, "UTC"))
	require.NoError(t, AutoMigrate(conn))

	assert.True(t, conn.Gorm.Migrator().HasTable(&models.UserGuessState{}))
	assert.True(t, conn.Gorm.Migrator().HasTable(&models.GuessSettlement{}))
	assert.True(t, conn.Gorm.Migrator().HasColumn(&models.UserGuessState{}, "version"))
}

func TestSetTimezone_RejectsUnknownZone(t *testing.T) {
	conn, err := Open(config.DBConfig{
		Driver: DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "bp.db"),
	})
	require.NoError(t, err)
	defer Close(conn)

	require.NoError(t, SetTimezone(conn, "Asia/Shanghai"))
	require.NoError(t, SetTimezone(conn, ""))
	require.Error(t, SetTimezone(conn, "UTC'; DROP TABLE user_guess_states; --"))
	require.Error(t, SetTimezone(conn, "Mars/Olympus"))
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(config.DBConfig{Driver: "oracle"})
	require.Error(t, err)
}

func TestNilSafety(t *testing.T) {
	assert.NoError(t, Close(nil))
	assert.NoError(t, Ping(nil))
	assert.NoError(t, AutoMigrate(nil))
}
