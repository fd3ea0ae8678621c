package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, logrus.InfoLevel, cfg.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.ScanTimeout)
	assert.Equal(t, 30*time.Second, cfg.OpTimeout)
	assert.Equal(t, "text", cfg.OutputFormat)
	assert.True(t, cfg.Adapter.CancelConnectOnAbandon)
	assert.Equal(t, 30*time.Second, cfg.Backend.ConnectTimeout)
	assert.Equal(t, 200*time.Millisecond, cfg.Backend.AdvertiseSettle)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel logrus.Level
	}{
		{
			name:     "creates logger with debug level",
			logLevel: logrus.DebugLevel,
		},
		{
			name:     "creates logger with warn level",
			logLevel: logrus.WarnLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				LogLevel: tt.logLevel,
			}

			logger := cfg.NewLogger()

			assert.NotNil(t, logger)
			assert.Equal(t, tt.logLevel, logger.GetLevel())

			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			assert.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}

func TestLoad(t *testing.T) {
	// GOAL: Verify a YAML file overrides only the keys it names
	//
	// TEST SCENARIO: write partial config → Load → overridden keys applied, rest default

	path := filepath.Join(t.TempDir(), "asyncble.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
op_timeout: 5s
output_format: json
adapter:
  notification_buffer: 64
  cancel_connect_on_abandon: false
backend:
  connect_timeout: 12s
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.OpTimeout)
	assert.Equal(t, 10*time.Second, cfg.ScanTimeout)
	assert.Equal(t, "json", cfg.OutputFormat)
	assert.Equal(t, 64, cfg.Adapter.NotificationBuffer)
	assert.False(t, cfg.Adapter.CancelConnectOnAbandon)
	assert.Equal(t, 12*time.Second, cfg.Backend.ConnectTimeout)
	assert.Equal(t, 200*time.Millisecond, cfg.Backend.AdvertiseSettle)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("op_timeout: [1, 2]"), 0o600))
	_, err = Load(bad)
	assert.ErrorContains(t, err, "failed to parse config")

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("output_format: csv"), 0o600))
	_, err = Load(invalid)
	assert.ErrorContains(t, err, `unknown output_format "csv"`)
}

func TestConfig_ZeroValues(t *testing.T) {
	cfg := &Config{}

	// Zero log level should default to PanicLevel (0)
	logger := cfg.NewLogger()
	assert.Equal(t, logrus.PanicLevel, logger.GetLevel())
	assert.Error(t, cfg.Validate())
}
