package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	errs "github.com/DIvanCode/rwlatch/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0666))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
latch:
  name: records
  max_readers: 64
  slow_wait: 250ms
stress:
  readers: 4
  writers: 1
  duration: 2s
http:
  addr: ":8080"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "records", cfg.Latch.Name)
	assert.Equal(t, uint32(64), cfg.Latch.MaxReaders)
	assert.Equal(t, 250*time.Millisecond, cfg.Latch.SlowWait)
	assert.Equal(t, 4, cfg.Stress.Readers)
	assert.Equal(t, 1, cfg.Stress.Writers)
	assert.Equal(t, 2*time.Second, cfg.Stress.Duration)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)

	// untouched fields keep defaults
	assert.Equal(t, Default().Stress.Keys, cfg.Stress.Keys)
	assert.Equal(t, Default().Stress.HoldTime, cfg.Stress.HoldTime)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(writeConfig(t, "stress: [1, 2"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "stress:\n  readers: 0\n  writers: 0\n"))
	require.ErrorIs(t, err, errs.ErrNoWorkers)

	_, err = Load(writeConfig(t, "stress:\n  writers: -2\n"))
	require.ErrorIs(t, err, errs.ErrInvalidWorkers)
}
