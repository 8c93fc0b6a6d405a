package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "0123456789abcdef0123")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, 45*time.Second, cfg.Database.IdleTimeout)
	assert.Equal(t, 5*time.Second, cfg.Mongo.ConnectTimeout)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, int64(5<<20), cfg.Uploads.MaxBytes)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "@every 5m", cfg.Housekeeping.Schedule)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("JWT_SECRET=from-the-env-file-123\nSTORE_DRIVER=Postgres\nDATABASE_URL=postgres://localhost/messhall\n"), 0o600))
	t.Setenv("SERVER_PORT", "9090")
	// godotenv sets variables process-wide; t.Setenv restores them afterwards.
	t.Setenv("JWT_SECRET", "")
	os.Unsetenv("JWT_SECRET")
	t.Setenv("STORE_DRIVER", "")
	os.Unsetenv("STORE_DRIVER")
	t.Setenv("DATABASE_URL", "")
	os.Unsetenv("DATABASE_URL")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/messhall", cfg.Database.DSN)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoadMissingEnvFileIsFine(t *testing.T) {
	t.Setenv("JWT_SECRET", "0123456789abcdef0123")
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]map[string]string{
		"short secret":      {"JWT_SECRET": "short"},
		"postgres sans dsn": {"STORE_DRIVER": "postgres"},
		"mongo sans uri":    {"STORE_DRIVER": "mongo"},
		"unknown driver":    {"STORE_DRIVER": "sqlite"},
		"gcs sans bucket":   {"UPLOADS_BACKEND": "gcs"},
		"bad timezone":      {"MEALS_TIMEZONE": "Mars/Olympus"},
		"bad port":          {"SERVER_PORT": "70000"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "0123456789abcdef0123")
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			require.Error(t, err)
		})
	}
}
