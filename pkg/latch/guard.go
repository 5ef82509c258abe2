package latch

import "sync"

// ReadGuard is a read hold on a latch. Release it exactly where the critical
// section ends, usually with defer. Releasing more than once is a no-op.
type ReadGuard struct {
	l    *RWLatch
	once sync.Once
}

func (g *ReadGuard) Release() {
	g.once.Do(g.l.unlockRead)
}

// WriteGuard is a write hold on a latch. Releasing more than once is a no-op.
type WriteGuard struct {
	l    *RWLatch
	once sync.Once
}

func (g *WriteGuard) Release() {
	g.once.Do(g.l.unlockWrite)
}
