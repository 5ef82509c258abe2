package latch

import (
	"fmt"
	"time"
)

type State int

const (
	Idle State = iota
	Reading
	WriterPending
	Writing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Reading:
		return "reading"
	case WriterPending:
		return "writer_pending"
	case Writing:
		return "writing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*s = Idle
	case "reading":
		*s = Reading
	case "writer_pending":
		*s = WriterPending
	case "writing":
		*s = Writing
	default:
		return fmt.Errorf("unknown latch state %q", string(text))
	}
	return nil
}

type Stats struct {
	State          State         `json:"state"`
	Readers        uint32        `json:"readers"`
	MaxReaders     uint32        `json:"max_readers"`
	WriterActive   bool          `json:"writer_active"`
	WaitingReaders int           `json:"waiting_readers"`
	WaitingWriters int           `json:"waiting_writers"`
	ReadAcquires   uint64        `json:"read_acquires"`
	WriteAcquires  uint64        `json:"write_acquires"`
	ReadContended  uint64        `json:"read_contended"`
	WriteContended uint64        `json:"write_contended"`
	ReadWait       time.Duration `json:"read_wait"`
	WriteWait      time.Duration `json:"write_wait"`
}

type counters struct {
	readAcquires   uint64
	writeAcquires  uint64
	readContended  uint64
	writeContended uint64
	readWait       time.Duration
	writeWait      time.Duration
}

func (l *RWLatch) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.state()
}

func (l *RWLatch) state() State {
	switch {
	case l.writerEntered && l.readers > 0:
		return WriterPending
	case l.writerEntered:
		return Writing
	case l.readers > 0:
		return Reading
	default:
		return Idle
	}
}

func (l *RWLatch) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	return Stats{
		State:          l.state(),
		Readers:        l.readers,
		MaxReaders:     l.maxReaders,
		WriterActive:   l.writerEntered,
		WaitingReaders: l.waitingReaders,
		WaitingWriters: l.waitingWriters,
		ReadAcquires:   l.counters.readAcquires,
		WriteAcquires:  l.counters.writeAcquires,
		ReadContended:  l.counters.readContended,
		WriteContended: l.counters.writeContended,
		ReadWait:       l.counters.readWait,
		WriteWait:      l.counters.writeWait,
	}
}
