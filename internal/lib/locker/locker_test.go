package locker

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DIvanCode/rwlatch/pkg/config"
	"github.com/DIvanCode/rwlatch/pkg/latch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestLocker(t *testing.T) *Locker {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewLocker(log, config.LatchConfig{})
}

func Test_ReadLock_Shared(t *testing.T) {
	l := newTestLocker(t)
	ctx := context.Background()

	unlock1, err := l.ReadLock(ctx, "a")
	require.NoError(t, err)
	unlock2, err := l.ReadLock(ctx, "a")
	require.NoError(t, err)

	assert.Equal(t, 1, l.Len())
	assert.Equal(t, uint32(2), l.Snapshot()["a"].Readers)

	unlock1()
	unlock2()
	assert.Equal(t, 0, l.Len())
}

func Test_WriteLock_Excludes(t *testing.T) {
	l := newTestLocker(t)

	unlock, err := l.WriteLock(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = l.ReadLock(ctx, "a")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	_, err = l.WriteLock(ctx, "a")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := l.WriteLock(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, 2, l.Len())

	stats := l.Snapshot()
	assert.Equal(t, latch.Writing, stats["a"].State)
	assert.Equal(t, latch.Writing, stats["b"].State)

	unlock()
	other()
	assert.Equal(t, 0, l.Len())
}

func Test_Unlock_Twice(t *testing.T) {
	l := newTestLocker(t)
	ctx := context.Background()

	unlock, err := l.ReadLock(ctx, 1)
	require.NoError(t, err)
	held, err := l.ReadLock(ctx, 1)
	require.NoError(t, err)

	unlock()
	unlock()
	assert.Equal(t, uint32(1), l.Snapshot()["1"].Readers)

	held()
	assert.Equal(t, 0, l.Len())
}

func Test_WriteLock_PerKeyExclusion(t *testing.T) {
	l := newTestLocker(t)
	ctx := context.Background()

	const keys = 4
	var inside [keys]atomic.Int32
	var violations atomic.Int32

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 200 {
				key := (i + j) % keys
				unlock, err := l.WriteLock(ctx, key)
				if !assert.NoError(t, err) {
					return
				}
				if inside[key].Add(1) != 1 {
					violations.Add(1)
				}
				inside[key].Add(-1)
				unlock()
			}
		}()
	}
	wg.Wait()

	require.Zero(t, violations.Load())
	assert.Equal(t, 0, l.Len())
}
