package locker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/DIvanCode/rwlatch/pkg/config"
	"github.com/DIvanCode/rwlatch/pkg/latch"
)

// Locker hands out one latch per key. A key's latch lives while anybody holds
// or waits on it.
type Locker struct {
	mu      sync.Mutex
	latches map[any]*entry

	cfg config.LatchConfig

	log *slog.Logger
}

type entry struct {
	latch *latch.RWLatch
	refs  int
}

func NewLocker(log *slog.Logger, cfg config.LatchConfig) *Locker {
	return &Locker{
		latches: make(map[any]*entry),
		cfg:     cfg,
		log:     log,
	}
}

// ReadLock blocks until key is read locked or ctx is done.
// The returned unlock is safe to call more than once.
func (l *Locker) ReadLock(ctx context.Context, key any) (unlock func(), err error) {
	e, err := l.ref(key)
	if err != nil {
		return nil, err
	}

	g, err := e.latch.AcquireReadContext(ctx)
	if err != nil {
		l.unref(key, e)
		return nil, fmt.Errorf("failed to read lock %v: %w", key, err)
	}

	return sync.OnceFunc(func() {
		g.Release()
		l.unref(key, e)
	}), nil
}

// WriteLock blocks until key is write locked or ctx is done.
// The returned unlock is safe to call more than once.
func (l *Locker) WriteLock(ctx context.Context, key any) (unlock func(), err error) {
	e, err := l.ref(key)
	if err != nil {
		return nil, err
	}

	g, err := e.latch.AcquireWriteContext(ctx)
	if err != nil {
		l.unref(key, e)
		return nil, fmt.Errorf("failed to write lock %v: %w", key, err)
	}

	return sync.OnceFunc(func() {
		g.Release()
		l.unref(key, e)
	}), nil
}

// Len returns the number of keys that currently have a latch.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.latches)
}

// Snapshot returns stats of every live key latch, keyed by fmt.Sprint(key).
func (l *Locker) Snapshot() map[string]latch.Stats {
	l.mu.Lock()
	latches := make(map[string]*latch.RWLatch, len(l.latches))
	for key, e := range l.latches {
		latches[fmt.Sprint(key)] = e.latch
	}
	l.mu.Unlock()

	stats := make(map[string]latch.Stats, len(latches))
	for name, lt := range latches {
		stats[name] = lt.Stats()
	}
	return stats
}

func (l *Locker) ref(key any) (*entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.latches[key]
	if !ok {
		cfg := l.cfg
		cfg.Name = fmt.Sprint(key)
		lt, err := latch.NewRWLatchWithConfig(l.log, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create latch for %v: %w", key, err)
		}
		e = &entry{latch: lt}
		l.latches[key] = e
	}
	e.refs++
	return e, nil
}

func (l *Locker) unref(key any, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.refs--
	if e.refs > 0 {
		return
	}
	delete(l.latches, key)
	if err := e.latch.Close(); err != nil {
		l.log.Error(fmt.Sprintf("error closing latch %v: %v", key, err))
	}
}
