package monitor

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/DIvanCode/rwlatch/internal/lib/locker"
	"github.com/DIvanCode/rwlatch/pkg/config"
	errs "github.com/DIvanCode/rwlatch/pkg/errors"
	"github.com/DIvanCode/rwlatch/pkg/latch"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNamedLatch(t *testing.T, name string) *latch.RWLatch {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	l, err := latch.NewRWLatchWithConfig(log, config.LatchConfig{Name: name})
	require.NoError(t, err)
	return l
}

func Test_Register(t *testing.T) {
	m := NewMonitor()

	a := newNamedLatch(t, "a")
	require.NoError(t, m.Register(a))
	require.ErrorIs(t, m.Register(newNamedLatch(t, "a")), errs.ErrLatchExists)
	require.NoError(t, m.Register(newNamedLatch(t, "b")))

	assert.Equal(t, []string{"a", "b"}, m.Names())

	g := a.AcquireRead()
	stats, err := m.Lookup("a")
	require.NoError(t, err)
	assert.Equal(t, latch.Reading, stats.State)
	g.Release()

	m.Unregister("b")
	_, err = m.Lookup("b")
	require.ErrorIs(t, err, errs.ErrLatchNotFound)
}

func Test_RegisterTable(t *testing.T) {
	m := NewMonitor()
	lk := locker.NewLocker(slog.New(slog.NewTextHandler(io.Discard, nil)), config.LatchConfig{})
	require.NoError(t, m.RegisterTable("keys", lk))
	require.ErrorIs(t, m.RegisterTable("keys", lk), errs.ErrLatchExists)

	unlock, err := lk.WriteLock(context.Background(), "k1")
	require.NoError(t, err)

	stats, err := m.Lookup("keys/k1")
	require.NoError(t, err)
	assert.Equal(t, latch.Writing, stats.State)

	unlock()
	assert.Empty(t, m.Snapshot())
}

func Test_Collect(t *testing.T) {
	m := NewMonitor()
	l := newNamedLatch(t, "main")
	require.NoError(t, m.Register(l))

	l.AcquireWrite().Release()
	g := l.AcquireRead()
	defer g.Release()

	assert.Equal(t, 10, testutil.CollectAndCount(m))

	expected := `
# HELP rwlatch_readers Readers currently holding the latch.
# TYPE rwlatch_readers gauge
rwlatch_readers{latch="main"} 1
# HELP rwlatch_acquisitions_total Successful acquisitions.
# TYPE rwlatch_acquisitions_total counter
rwlatch_acquisitions_total{latch="main",mode="read"} 1
rwlatch_acquisitions_total{latch="main",mode="write"} 1
`
	require.NoError(t, testutil.CollectAndCompare(m, strings.NewReader(expected),
		"rwlatch_readers", "rwlatch_acquisitions_total"))
}
