package stress

import "sync/atomic"

// exclusion tracks who is inside a critical section.
type exclusion struct {
	readers atomic.Int32
	writers atomic.Int32
}

func (e *exclusion) enterRead() bool {
	e.readers.Add(1)
	return e.writers.Load() == 0
}

func (e *exclusion) leaveRead() {
	e.readers.Add(-1)
}

func (e *exclusion) enterWrite() bool {
	w := e.writers.Add(1)
	return w == 1 && e.readers.Load() == 0
}

func (e *exclusion) leaveWrite() {
	e.writers.Add(-1)
}
