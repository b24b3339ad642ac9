package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())

	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 5, cfg.DispatcherCoreWorkers)
	assert.Equal(t, 10, cfg.DispatcherMaxWorkers)
	assert.Equal(t, 100, cfg.DispatcherQueueCapacity)
	assert.Equal(t, 60*time.Second, cfg.DispatcherShutdownGrace)
	assert.Equal(t, 0.95, cfg.AMLPassRate)
	assert.Equal(t, DefaultSanctionsList, cfg.SanctionsList)
	assert.Equal(t, "@every 1m", cfg.PendingMonitorSchedule)
	assert.Empty(t, cfg.DatabaseURL)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	env := "DISPATCHER_CORE_WORKERS=2\nDISPATCHER_MAX_WORKERS=4\nBUREAU_TIMEOUT=3s\nPEP_LIST=ALPHA ONE, BETA TWO\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600))
	t.Setenv("DISPATCHER_MAX_WORKERS", "8")

	cfg, err := LoadConfig(dir)

	require.NoError(t, err)
	assert.Equal(t, 2, cfg.DispatcherCoreWorkers)
	assert.Equal(t, 8, cfg.DispatcherMaxWorkers)
	assert.Equal(t, 3*time.Second, cfg.BureauTimeout)
	assert.Equal(t, []string{"ALPHA ONE", "BETA TWO"}, cfg.PEPList)
}

func TestLoadConfig_RejectsInconsistentPool(t *testing.T) {
	t.Setenv("DISPATCHER_CORE_WORKERS", "6")
	t.Setenv("DISPATCHER_MAX_WORKERS", "3")

	_, err := LoadConfig(t.TempDir())

	assert.ErrorContains(t, err, "DISPATCHER_MAX_WORKERS")
}

func TestValidate_AMLPassRate(t *testing.T) {
	t.Setenv("AML_PASS_RATE", "1.5")

	_, err := LoadConfig(t.TempDir())

	assert.ErrorContains(t, err, "AML_PASS_RATE")
}
