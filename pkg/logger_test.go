package pkg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		cfg       *Config
		wantLevel zerolog.Level
	}{
		{
			name:      "default config",
			cfg:       nil,
			wantLevel: zerolog.InfoLevel,
		},
		{
			name:      "json to stderr",
			cfg:       &Config{Level: "debug", Format: FormatJSON, Output: OutputStderr},
			wantLevel: zerolog.DebugLevel,
		},
		{
			name:      "discard output",
			cfg:       &Config{Level: "warn", Format: FormatJSON, Output: OutputDiscard},
			wantLevel: zerolog.WarnLevel,
		},
		{
			name:      "invalid level falls back to info",
			cfg:       &Config{Level: "loud", Output: OutputDiscard},
			wantLevel: zerolog.InfoLevel,
		},
		{
			name:      "empty level falls back to info",
			cfg:       &Config{Output: OutputDiscard},
			wantLevel: zerolog.InfoLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			require.NoError(t, err)
			require.NotNil(t, logger)
			assert.Equal(t, tt.wantLevel, logger.GetLevel())
			assert.NoError(t, logger.Close())
		})
	}
}

func TestLogger_FileOutput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "node.log")

	cfg := DefaultConfig()
	cfg.Output = OutputDiscard
	cfg.Format = FormatJSON
	cfg.File.Enable = true
	cfg.File.Path = path
	cfg.File.Compress = false

	logger, err := New(cfg)
	require.NoError(t, err)

	logger.Info().Str("node_id", "100").Msg("file output works")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "file output works")
	assert.Contains(t, string(data), `"node_id":"100"`)
}

func TestLogger_AsyncWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "async.log")

	cfg := DefaultConfig()
	cfg.Output = OutputDiscard
	cfg.Format = FormatJSON
	cfg.AsyncWrite = true
	cfg.BufferSize = 64
	cfg.File.Enable = true
	cfg.File.Path = path
	cfg.File.Compress = false

	logger, err := New(cfg)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		logger.Info().Int("i", i).Msg("async line")
	}
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "async line")
}

func TestLogger_WithFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fields.log")

	cfg := DefaultConfig()
	cfg.Output = OutputDiscard
	cfg.File.Enable = true
	cfg.File.Path = path
	cfg.File.Compress = false

	logger, err := New(cfg)
	require.NoError(t, err)

	child := logger.WithFields(Fields{"component": "udp_transport"})
	child.Warn().Msg("child line")

	logger.WithError(errors.New("boom")).Error().Msg("error line")
	assert.Same(t, logger, logger.WithError(nil))
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"udp_transport"`)
	assert.Contains(t, string(data), `"error":"boom"`)
}

func TestLogger_UpdateLevel(t *testing.T) {
	logger, err := New(&Config{Level: "info", Output: OutputDiscard})
	require.NoError(t, err)

	require.NoError(t, logger.UpdateLevel("error"))
	assert.Equal(t, zerolog.ErrorLevel, logger.GetLevel())

	assert.Error(t, logger.UpdateLevel("nonsense"))
}

func TestGlobalLogger(t *testing.T) {
	assert.NotNil(t, Get())

	logger := NewNop()
	SetGlobal(logger)
	defer SetGlobal(nil)

	assert.Same(t, logger, Get())
}
