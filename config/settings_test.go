package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "memory", s.StoreDriver)
	assert.Equal(t, 30*time.Second, s.LockTTL)
	assert.False(t, s.EnforceIdempotency)
	assert.Equal(t, "ops-domain-events", s.PubSub.EventTopic)
	assert.Equal(t, "15 0 * * *", s.Schedule.KPIRollup)
	assert.Equal(t, DefaultThresholds(), s.Thresholds)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("OPS_STORE_DRIVER", "mysql")
	t.Setenv("OPS_ENFORCE_IDEMPOTENCY", "true")
	t.Setenv("OPS_THRESHOLDS_DOWNTIME_ALERT_MINUTES", "120")

	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "mysql", s.StoreDriver)
	assert.True(t, s.EnforceIdempotency)
	assert.Equal(t, 120.0, s.Thresholds.DowntimeAlertMinutes)
	assert.Equal(t, 240.0, DefaultThresholds().DowntimeAlertMinutes)
}

func TestLoadFileAndValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ops.yaml")
	require.NoError(t, os.WriteFile(path, []byte("schedule:\n  detectors: \"*/5 * * * *\"\nthresholds:\n  weight_financial: 0.5\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "health weights must sum to 1.0")

	require.NoError(t, os.WriteFile(path, []byte("schedule:\n  detectors: \"*/5 * * * *\"\n"), 0o600))
	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "*/5 * * * *", s.Schedule.Detectors)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	bad := Settings{StoreDriver: "postgres", Thresholds: DefaultThresholds()}
	assert.Error(t, bad.Validate())
}

func TestLogErrorFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("debug")
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})

	LogError(logger, "workflow/orderWorkflow.go", "reserve", "reserve line", "O1", errors.New("boom"))
	out := buf.String()
	assert.Contains(t, out, "module=workflow/orderWorkflow.go")
	assert.Contains(t, out, "funcName=reserve")
	assert.Contains(t, out, "data=O1")
	assert.Contains(t, out, "msg=boom")

	assert.Equal(t, logrus.InfoLevel, NewLogger("nonsense").GetLevel())
}
