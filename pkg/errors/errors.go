package errors

import "errors"

var (
	ErrLatchClosed       = errors.New("latch is closed")
	ErrLatchInUse        = errors.New("latch is held or waited on")
	ErrInvalidSlowWait   = errors.New("slow wait threshold must not be negative")
	ErrInvalidWorkers    = errors.New("stress workers must not be negative")
	ErrNoWorkers         = errors.New("stress needs at least one worker")
	ErrExclusionViolated = errors.New("reader and writer overlapped in critical section")
	ErrLatchNotFound     = errors.New("latch not found")
	ErrLatchExists       = errors.New("latch already registered")
)
