package stress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DIvanCode/rwlatch/internal/lib/locker"
	"github.com/DIvanCode/rwlatch/pkg/config"
	. "github.com/DIvanCode/rwlatch/pkg/errors"
	"github.com/DIvanCode/rwlatch/pkg/latch"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Runner hammers a latch and a keyed locker with reader and writer workers
// and checks that no critical sections overlap illegally.
type Runner struct {
	cfg config.StressConfig

	latch  *latch.RWLatch
	locker *locker.Locker

	shared exclusion
	keyed  []exclusion

	reads       atomic.Uint64
	writes      atomic.Uint64
	keyedReads  atomic.Uint64
	keyedWrites atomic.Uint64
	violations  atomic.Uint64

	id         string
	started    time.Time
	cancelFunc context.CancelFunc
	group      *errgroup.Group
	stopOnce   sync.Once
	report     Report
	err        error

	log *slog.Logger
}

type Report struct {
	ID          string        `json:"id"`
	Elapsed     time.Duration `json:"elapsed"`
	Reads       uint64        `json:"reads"`
	Writes      uint64        `json:"writes"`
	KeyedReads  uint64        `json:"keyed_reads"`
	KeyedWrites uint64        `json:"keyed_writes"`
	Violations  uint64        `json:"violations"`
	Latch       latch.Stats   `json:"latch"`
}

func NewRunner(log *slog.Logger, cfg config.StressConfig, l *latch.RWLatch, lk *locker.Locker) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Runner{
		cfg: cfg,

		latch:  l,
		locker: lk,

		keyed: make([]exclusion, cfg.Keys),

		id: uuid.NewString(),

		log: log,
	}, nil
}

func (r *Runner) ID() string {
	return r.id
}

// Start launches the workers. They run until Stop is called or ctx is done.
func (r *Runner) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancelFunc = cancel
	r.started = time.Now()

	r.group, ctx = errgroup.WithContext(ctx)
	for range r.cfg.Readers {
		r.startWorker(ctx, r.read)
	}
	for range r.cfg.Writers {
		r.startWorker(ctx, r.write)
	}

	r.log.Info(fmt.Sprintf("stress run %s started", r.id),
		slog.Int("readers", r.cfg.Readers),
		slog.Int("writers", r.cfg.Writers),
		slog.Int("keys", r.cfg.Keys))
}

// Stop cancels the workers and waits for them to exit. Before Start it
// returns an empty report.
func (r *Runner) Stop() (Report, error) {
	if r.group == nil {
		return Report{ID: r.id}, nil
	}

	r.stopOnce.Do(func() {
		r.cancelFunc()
		r.err = r.group.Wait()
		r.report = Report{
			ID:          r.id,
			Elapsed:     time.Since(r.started),
			Reads:       r.reads.Load(),
			Writes:      r.writes.Load(),
			KeyedReads:  r.keyedReads.Load(),
			KeyedWrites: r.keyedWrites.Load(),
			Violations:  r.violations.Load(),
			Latch:       r.latch.Stats(),
		}
		if r.err == nil && r.report.Violations > 0 {
			r.err = fmt.Errorf("%w: %d times", ErrExclusionViolated, r.report.Violations)
		}
		r.log.Info(fmt.Sprintf("stress run %s stopped", r.id),
			slog.Uint64("reads", r.report.Reads),
			slog.Uint64("writes", r.report.Writes),
			slog.Uint64("violations", r.report.Violations))
	})
	return r.report, r.err
}

// Run runs the workers for the configured duration.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	r.Start(ctx)

	timer := time.NewTimer(r.cfg.Duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}

	return r.Stop()
}

func (r *Runner) startWorker(ctx context.Context, op func(ctx context.Context) error) {
	r.group.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			default:
			}

			if err := op(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				r.log.Error(fmt.Sprintf("error in stress worker: %v", err))
				return err
			}
		}
	})
}

func (r *Runner) read(ctx context.Context) error {
	if err := r.latch.WithReadContext(ctx, func() error {
		if !r.shared.enterRead() {
			r.violate("read overlapped a writer")
		}
		r.hold()
		r.shared.leaveRead()
		return nil
	}); err != nil {
		return err
	}
	r.reads.Add(1)

	if len(r.keyed) == 0 {
		return nil
	}

	key := rand.IntN(len(r.keyed))
	unlock, err := r.locker.ReadLock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()

	if !r.keyed[key].enterRead() {
		r.violate(fmt.Sprintf("read of key %d overlapped a writer", key))
	}
	r.hold()
	r.keyed[key].leaveRead()
	r.keyedReads.Add(1)
	return nil
}

func (r *Runner) write(ctx context.Context) error {
	if err := r.latch.WithWriteContext(ctx, func() error {
		if !r.shared.enterWrite() {
			r.violate("write overlapped another holder")
		}
		r.hold()
		r.shared.leaveWrite()
		return nil
	}); err != nil {
		return err
	}
	r.writes.Add(1)

	if len(r.keyed) == 0 {
		return nil
	}

	key := rand.IntN(len(r.keyed))
	unlock, err := r.locker.WriteLock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()

	if !r.keyed[key].enterWrite() {
		r.violate(fmt.Sprintf("write of key %d overlapped another holder", key))
	}
	r.hold()
	r.keyed[key].leaveWrite()
	r.keyedWrites.Add(1)
	return nil
}

func (r *Runner) hold() {
	if r.cfg.HoldTime > 0 {
		time.Sleep(r.cfg.HoldTime)
	}
}

func (r *Runner) violate(msg string) {
	r.violations.Add(1)
	r.log.Error(fmt.Sprintf("exclusion violated in run %s: %s", r.id, msg))
}

// IsViolation reports whether err came from a failed exclusion check.
func IsViolation(err error) bool {
	return errors.Is(err, ErrExclusionViolated)
}
