package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tbsa/internal/fault"
	"github.com/roach88/tbsa/internal/interrupt"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.Equal(t, fault.Budget{MaxSpins: fault.DefaultMaxSpins, Timeout: fault.DefaultTimeout}, cfg.Budget())
	assert.Equal(t, interrupt.DeliverAsync, cfg.DeliveryMode())
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{
		EnvTarget:         "targets/sse200.yaml",
		EnvDB:             "runs.db",
		EnvLogLevel:       "DEBUG",
		EnvLogFormat:      "json",
		EnvSpinBudget:     "5000",
		EnvPendingTimeout: "250ms",
		EnvDelivery:       "Sync",
		EnvSigningKey:     "key.pem",
	}))
	require.NoError(t, err)

	assert.Equal(t, Config{
		TargetPath:     "targets/sse200.yaml",
		DBPath:         "runs.db",
		LogLevel:       "debug",
		LogFormat:      "json",
		SpinBudget:     5000,
		PendingTimeout: 250 * time.Millisecond,
		Delivery:       DeliverySync,
		SigningKey:     "key.pem",
	}, cfg)
	assert.Equal(t, interrupt.DeliverSync, cfg.DeliveryMode())
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"spin budget not a number", map[string]string{EnvSpinBudget: "lots"}},
		{"spin budget zero", map[string]string{EnvSpinBudget: "0"}},
		{"timeout not a duration", map[string]string{EnvPendingTimeout: "5"}},
		{"timeout negative", map[string]string{EnvPendingTimeout: "-1s"}},
		{"unknown delivery", map[string]string{EnvDelivery: "interrupt"}},
		{"unknown log format", map[string]string{EnvLogFormat: "xml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromEnv(envMap(tt.env))
			assert.Error(t, err)
		})
	}
}

func TestParseDelivery(t *testing.T) {
	d, err := ParseDelivery("async")
	require.NoError(t, err)
	assert.Equal(t, interrupt.DeliverAsync, d)

	d, err = ParseDelivery("sync")
	require.NoError(t, err)
	assert.Equal(t, interrupt.DeliverSync, d)

	_, err = ParseDelivery("")
	assert.Error(t, err)
}

func TestLoad_MissingFileIsOptional(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}

func TestLoad_EnvFile(t *testing.T) {
	if _, ok := os.LookupEnv(EnvDB); ok {
		t.Skipf("%s is set in the test environment", EnvDB)
	}
	t.Cleanup(func() { os.Unsetenv(EnvDB) })

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("TBSA_DB=from-file.db\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file.db", cfg.DBPath)
}
