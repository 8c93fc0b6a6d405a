package runtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusmess/messhall/internal/config"
	"github.com/campusmess/messhall/pkg/logger"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            0,
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    5 * time.Second,
			IdleTimeout:     5 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Store:        config.StoreConfig{Driver: config.DriverMemory},
		Auth:         config.AuthConfig{JWTSecret: "runtime-test-secret-0123456789", TokenTTL: time.Hour},
		Meals:        config.MealsConfig{Timezone: "UTC"},
		Uploads:      config.UploadsConfig{Backend: config.UploadsMemory, MaxBytes: 1 << 20},
		RateLimit:    config.RateLimitConfig{Enabled: true, RequestsPerSecond: 50, Burst: 50, AuthPerMinute: 10},
		Analytics:    config.AnalyticsConfig{CacheTTL: time.Minute},
		Housekeeping: config.HousekeepingConfig{Schedule: "@every 1h"},
	}
}

func TestNewApplicationInMemory(t *testing.T) {
	a, err := NewApplication(context.Background(), memoryConfig(), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	assert.Contains(t, a.App().Services(), "housekeeping")
	assert.NotContains(t, a.App().Services(), "meal-windows-watcher")

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewApplicationRejectsBadSchedule(t *testing.T) {
	cfg := memoryConfig()
	cfg.Housekeeping.Schedule = "every now and then"
	_, err := NewApplication(context.Background(), cfg, logger.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "housekeeping schedule")
}

func TestNewApplicationLoadsWindowsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meals.yaml")
	require.NoError(t, os.WriteFile(path, []byte("windows:\n  dinner:\n    open: \"19:00\"\n    close: \"21:30\"\n"), 0o600))

	cfg := memoryConfig()
	cfg.Meals.WindowsFile = path
	a, err := NewApplication(context.Background(), cfg, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	assert.Contains(t, a.App().Services(), "meal-windows-watcher")
	w := a.App().Windows.Snapshot()
	assert.Equal(t, "19:00", w["dinner"].Open)
	assert.Equal(t, "21:30", w["dinner"].Close)
}

func TestNewApplicationMissingWindowsFile(t *testing.T) {
	cfg := memoryConfig()
	cfg.Meals.WindowsFile = filepath.Join(t.TempDir(), "absent.yaml")
	_, err := NewApplication(context.Background(), cfg, logger.NewNop())
	require.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	a, err := NewApplication(context.Background(), memoryConfig(), logger.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	require.NoError(t, a.Shutdown(context.Background()))
}
