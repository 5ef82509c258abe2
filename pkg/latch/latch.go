// Package latch implements a reader-writer latch with writer preference.
//
// The latch is built from one sync.Mutex and two condition variables.
// A writer that starts waiting immediately announces itself, so readers
// arriving after it queue behind it while readers already inside are
// allowed to drain. The latch is neither re-entrant nor upgradeable:
// acquiring it again from a goroutine that already holds it deadlocks.
package latch

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/DIvanCode/rwlatch/pkg/config"
	. "github.com/DIvanCode/rwlatch/pkg/errors"
	"github.com/jonboulle/clockwork"
)

type RWLatch struct {
	mu sync.Mutex
	// noWriter queues readers and writers waiting for the writer flag to
	// clear, and readers waiting for a free reader slot.
	noWriter sync.Cond
	// drained holds the admitted writer while existing readers finish.
	drained sync.Cond

	readers       uint32
	writerEntered bool
	closed        bool

	waitingReaders int
	waitingWriters int
	counters       counters

	name       string
	maxReaders uint32
	slowWait   time.Duration
	clock      clockwork.Clock

	log *slog.Logger
}

// NewRWLatch returns an unnamed latch with no reader cap and no wait logging.
func NewRWLatch() *RWLatch {
	return newRWLatch(discardLog, config.LatchConfig{}, clockwork.NewRealClock())
}

// NewRWLatchWithConfig returns a latch configured by cfg. Waits longer than
// cfg.SlowWait are reported to log.
func NewRWLatchWithConfig(log *slog.Logger, cfg config.LatchConfig) (*RWLatch, error) {
	if cfg.SlowWait < 0 {
		return nil, ErrInvalidSlowWait
	}
	if log == nil {
		log = discardLog
	}
	return newRWLatch(log, cfg, clockwork.NewRealClock()), nil
}

func newRWLatch(log *slog.Logger, cfg config.LatchConfig, clock clockwork.Clock) *RWLatch {
	maxReaders := cfg.MaxReaders
	if maxReaders == 0 {
		maxReaders = math.MaxUint32
	}

	l := &RWLatch{
		name:       cfg.Name,
		maxReaders: maxReaders,
		slowWait:   cfg.SlowWait,
		clock:      clock,

		log: log,
	}
	l.noWriter.L = &l.mu
	l.drained.L = &l.mu
	return l
}

func (l *RWLatch) Name() string {
	return l.name
}

// AcquireRead blocks until no writer is announced and a reader slot is free.
// It panics if the latch is closed.
func (l *RWLatch) AcquireRead() *ReadGuard {
	if err := l.lockRead(context.Background()); err != nil {
		panic(fmt.Errorf("latch %q: %w", l.name, err))
	}
	return &ReadGuard{l: l}
}

// AcquireReadContext is AcquireRead that gives up when ctx is done.
func (l *RWLatch) AcquireReadContext(ctx context.Context) (*ReadGuard, error) {
	if err := l.lockRead(ctx); err != nil {
		return nil, err
	}
	return &ReadGuard{l: l}, nil
}

// TryAcquireRead acquires the latch for reading only if that does not block.
func (l *RWLatch) TryAcquireRead() (*ReadGuard, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || l.readBlocked() {
		return nil, false
	}
	l.readers++
	l.counters.readAcquires++
	return &ReadGuard{l: l}, true
}

// AcquireWrite announces a writer, then blocks until every reader that was
// already inside has left. It panics if the latch is closed.
func (l *RWLatch) AcquireWrite() *WriteGuard {
	if err := l.lockWrite(context.Background()); err != nil {
		panic(fmt.Errorf("latch %q: %w", l.name, err))
	}
	return &WriteGuard{l: l}
}

// AcquireWriteContext is AcquireWrite that gives up when ctx is done. A writer
// that gives up while draining readers withdraws its announcement.
func (l *RWLatch) AcquireWriteContext(ctx context.Context) (*WriteGuard, error) {
	if err := l.lockWrite(ctx); err != nil {
		return nil, err
	}
	return &WriteGuard{l: l}, nil
}

// TryAcquireWrite acquires the latch for writing only if it is idle.
func (l *RWLatch) TryAcquireWrite() (*WriteGuard, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || l.writerEntered || l.readers > 0 {
		return nil, false
	}
	l.writerEntered = true
	l.counters.writeAcquires++
	return &WriteGuard{l: l}, true
}

// WithRead runs fn holding the latch for reading.
func (l *RWLatch) WithRead(fn func()) {
	g := l.AcquireRead()
	defer g.Release()
	fn()
}

// WithWrite runs fn holding the latch for writing.
func (l *RWLatch) WithWrite(fn func()) {
	g := l.AcquireWrite()
	defer g.Release()
	fn()
}

// WithReadContext runs fn holding the latch for reading. fn is not run if
// the latch could not be acquired before ctx was done.
func (l *RWLatch) WithReadContext(ctx context.Context, fn func() error) error {
	g, err := l.AcquireReadContext(ctx)
	if err != nil {
		return err
	}
	defer g.Release()
	return fn()
}

// WithWriteContext runs fn holding the latch for writing. fn is not run if
// the latch could not be acquired before ctx was done.
func (l *RWLatch) WithWriteContext(ctx context.Context, fn func() error) error {
	g, err := l.AcquireWriteContext(ctx)
	if err != nil {
		return err
	}
	defer g.Release()
	return fn()
}

// Close waits for any in-flight bookkeeping to finish and retires the latch.
// It fails with ErrLatchInUse while the latch is held or waited on.
func (l *RWLatch) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	if l.readers > 0 || l.writerEntered || l.waitingReaders > 0 || l.waitingWriters > 0 {
		return ErrLatchInUse
	}
	l.closed = true
	return nil
}

func (l *RWLatch) readBlocked() bool {
	return l.writerEntered || l.readers == l.maxReaders
}

func (l *RWLatch) lockRead(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLatchClosed
	}
	if !l.readBlocked() {
		l.readers++
		l.counters.readAcquires++
		l.mu.Unlock()
		return nil
	}

	stop := l.wakeOnDone(ctx)
	defer stop()

	start := l.clock.Now()
	l.waitingReaders++
	for l.readBlocked() {
		if err := ctx.Err(); err != nil {
			l.waitingReaders--
			// The slot signal may have been delivered to us; hand it on.
			if !l.writerEntered && l.readers < l.maxReaders {
				l.noWriter.Signal()
			}
			l.mu.Unlock()
			return err
		}
		l.noWriter.Wait()
	}
	l.waitingReaders--
	l.readers++
	// Several slots may have opened while we waited; pass the wake along.
	if !l.writerEntered && l.readers < l.maxReaders && l.waitingReaders > 0 {
		l.noWriter.Signal()
	}

	waited := l.clock.Since(start)
	l.counters.readAcquires++
	l.counters.readContended++
	l.counters.readWait += waited
	l.mu.Unlock()

	l.reportWait("read", waited)
	return nil
}

func (l *RWLatch) unlockRead() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.readers--
	if l.writerEntered {
		// Only the draining writer can make progress.
		if l.readers == 0 {
			l.drained.Signal()
		}
	} else if l.readers == l.maxReaders-1 {
		// Exactly one reader slot opened up.
		l.noWriter.Signal()
	}
}

func (l *RWLatch) lockWrite(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLatchClosed
	}
	if !l.writerEntered && l.readers == 0 {
		l.writerEntered = true
		l.counters.writeAcquires++
		l.mu.Unlock()
		return nil
	}

	stop := l.wakeOnDone(ctx)
	defer stop()

	start := l.clock.Now()
	l.waitingWriters++
	for l.writerEntered {
		if err := ctx.Err(); err != nil {
			l.waitingWriters--
			l.mu.Unlock()
			return err
		}
		l.noWriter.Wait()
	}

	l.writerEntered = true
	for l.readers > 0 {
		if err := ctx.Err(); err != nil {
			l.waitingWriters--
			l.writerEntered = false
			l.noWriter.Broadcast()
			l.mu.Unlock()
			return err
		}
		l.drained.Wait()
	}
	l.waitingWriters--

	waited := l.clock.Since(start)
	l.counters.writeAcquires++
	l.counters.writeContended++
	l.counters.writeWait += waited
	l.mu.Unlock()

	l.reportWait("write", waited)
	return nil
}

func (l *RWLatch) unlockWrite() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.writerEntered = false
	l.noWriter.Broadcast()
}

// wakeOnDone wakes every waiter once ctx is done so that waiters can notice
// their own cancellation. It is a no-op for contexts that are never done.
func (l *RWLatch) wakeOnDone(ctx context.Context) (stop func() bool) {
	if ctx.Done() == nil {
		return func() bool { return false }
	}
	return context.AfterFunc(ctx, func() {
		l.mu.Lock()
		defer l.mu.Unlock()

		l.noWriter.Broadcast()
		l.drained.Broadcast()
	})
}

func (l *RWLatch) reportWait(mode string, waited time.Duration) {
	if l.slowWait == 0 || waited < l.slowWait {
		return
	}
	l.log.Warn(fmt.Sprintf("slow %s acquire on latch %q", mode, l.name),
		slog.Duration("waited", waited),
		slog.Duration("threshold", l.slowWait))
}

var discardLog = slog.New(slog.DiscardHandler)
