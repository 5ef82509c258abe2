package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DIvanCode/rwlatch/internal/stress"
	"github.com/DIvanCode/rwlatch/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_RunStress(t *testing.T) {
	cfg := config.Default()
	cfg.Stress.Duration = 100 * time.Millisecond
	cfg.Stress.HoldTime = 0

	var out bytes.Buffer
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, runStress(context.Background(), log, cfg, &out))

	var report stress.Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.NotEmpty(t, report.ID)
	assert.Zero(t, report.Violations)
	assert.Positive(t, report.Reads)
}

func Test_StressCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
latch:
  name: cmd
  max_readers: 2
stress:
  readers: 3
  writers: 1
  keys: 2
  hold_time: 0s
`), 0666))

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"stress", "--config", path, "--duration", "50ms"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	var report stress.Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, uint32(2), report.Latch.MaxReaders)
	assert.Zero(t, report.Violations)
}
