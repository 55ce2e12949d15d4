package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"robustroute/internal/apperr"
	"robustroute/internal/opt"
)

func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv(EnvConfigPath, "")
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 600.0, cfg.Cost.DayHorizon)
	require.Equal(t, 900.0, cfg.Cost.VehicleFixedCost)
	require.Equal(t, opt.Mixed, cfg.Anneal.Neighborhood)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	chdirTemp(t)
	path := filepath.Join(t.TempDir(), "robustroute.yaml")
	yml := `
server:
  port: 9090
  read_header_timeout: 3s
cost:
  day_horizon: 480
  vehicle_fixed_cost: 500
anneal:
  alpha: 0.9
  neighborhood: swap
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))
	t.Setenv("DAY_HORIZON", "420")
	t.Setenv("SA_SEED", "77")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 3*time.Second, cfg.Server.ReadHeaderTimeout)
	require.Equal(t, 420.0, cfg.Cost.DayHorizon)
	require.Equal(t, 500.0, cfg.Cost.VehicleFixedCost)
	require.Equal(t, 1.0, cfg.Cost.CostPerKm, "unset keys keep defaults")
	require.Equal(t, 0.9, cfg.Anneal.Alpha)
	require.Equal(t, opt.Swap, cfg.Anneal.Neighborhood)
	require.Equal(t, int64(77), cfg.Anneal.Seed)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadDotEnv(t *testing.T) {
	chdirTemp(t)
	require.NoError(t, os.WriteFile(".env", []byte("NOTIFY_URL=http://hooks.local/runs\nNOTIFY_SECRET=s3\n"), 0o644))
	t.Setenv("NOTIFY_URL", "")
	t.Setenv("NOTIFY_SECRET", "")
	os.Unsetenv("NOTIFY_URL")
	os.Unsetenv("NOTIFY_SECRET")

	cfg, err := Load("")
	require.NoError(t, err)
	require.True(t, cfg.Notify.Enabled())
	require.Equal(t, "s3", cfg.Notify.Secret)
}

func TestLoadRejectsBadValues(t *testing.T) {
	chdirTemp(t)
	t.Setenv("RATE_RPS", "fast")
	_, err := Load("")
	require.Equal(t, apperr.CodeInvalidInput, apperr.GetCode(err))

	t.Setenv("RATE_RPS", "")
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("anneal:\n  alpha: 1.5\n"), 0o644))
	_, err = Load(path)
	require.Equal(t, apperr.CodeInvalidInput, apperr.GetCode(err))

	t.Setenv("AUTH_MODE", "hmac")
	_, err = Load("")
	require.ErrorContains(t, err, "hmac_secret")
	t.Setenv("AUTH_HMAC_SECRET", "k")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "hmac", cfg.Auth.Mode)
}
