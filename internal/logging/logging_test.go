package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Level = "loud"
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestNewWritesFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Format = "console"
	cfg.File = filepath.Join(t.TempDir(), "memorium.log")

	logger, err := New(cfg)
	require.NoError(t, err)
	logger.Info("hello from the test")
	logger.Debug("below the level")
	_ = logger.Sync()

	data, err := os.ReadFile(cfg.File)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from the test")
	assert.NotContains(t, string(data), "below the level")
}
