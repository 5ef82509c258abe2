package monitor

import (
	"fmt"
	"maps"
	"slices"

	. "github.com/DIvanCode/rwlatch/pkg/errors"
	"github.com/DIvanCode/rwlatch/pkg/latch"
	"github.com/prometheus/client_golang/prometheus"
)

type (
	// Monitor is a named registry of latches that doubles as a prometheus
	// collector.
	Monitor struct {
		// guards latches and tables
		latch *latch.RWLatch

		latches map[string]*latch.RWLatch
		tables  map[string]table

		readers        *prometheus.Desc
		waitingReaders *prometheus.Desc
		waitingWriters *prometheus.Desc
		writerActive   *prometheus.Desc
		acquisitions   *prometheus.Desc
		contended      *prometheus.Desc
		waitSeconds    *prometheus.Desc
	}

	table interface {
		Snapshot() map[string]latch.Stats
	}
)

func NewMonitor() *Monitor {
	labels := []string{"latch"}
	modeLabels := []string{"latch", "mode"}

	return &Monitor{
		latch: latch.NewRWLatch(),

		latches: make(map[string]*latch.RWLatch),
		tables:  make(map[string]table),

		readers: prometheus.NewDesc(
			"rwlatch_readers", "Readers currently holding the latch.", labels, nil),
		waitingReaders: prometheus.NewDesc(
			"rwlatch_waiting_readers", "Readers blocked on the latch.", labels, nil),
		waitingWriters: prometheus.NewDesc(
			"rwlatch_waiting_writers", "Writers blocked on the latch.", labels, nil),
		writerActive: prometheus.NewDesc(
			"rwlatch_writer_active", "1 if a writer is announced or writing.", labels, nil),
		acquisitions: prometheus.NewDesc(
			"rwlatch_acquisitions_total", "Successful acquisitions.", modeLabels, nil),
		contended: prometheus.NewDesc(
			"rwlatch_contended_total", "Acquisitions that had to wait.", modeLabels, nil),
		waitSeconds: prometheus.NewDesc(
			"rwlatch_wait_seconds_total", "Time spent waiting to acquire.", modeLabels, nil),
	}
}

// Register adds l under its name.
func (m *Monitor) Register(l *latch.RWLatch) error {
	var err error
	m.latch.WithWrite(func() {
		if _, ok := m.latches[l.Name()]; ok {
			err = fmt.Errorf("%w: %s", ErrLatchExists, l.Name())
			return
		}
		m.latches[l.Name()] = l
	})
	return err
}

// RegisterTable adds every latch of t under prefix/<key>.
func (m *Monitor) RegisterTable(prefix string, t table) error {
	var err error
	m.latch.WithWrite(func() {
		if _, ok := m.tables[prefix]; ok {
			err = fmt.Errorf("%w: %s", ErrLatchExists, prefix)
			return
		}
		m.tables[prefix] = t
	})
	return err
}

func (m *Monitor) Unregister(name string) {
	m.latch.WithWrite(func() {
		delete(m.latches, name)
	})
}

func (m *Monitor) Snapshot() map[string]latch.Stats {
	g := m.latch.AcquireRead()
	defer g.Release()

	stats := make(map[string]latch.Stats, len(m.latches))
	for name, l := range m.latches {
		stats[name] = l.Stats()
	}
	for prefix, t := range m.tables {
		for key, s := range t.Snapshot() {
			stats[prefix+"/"+key] = s
		}
	}
	return stats
}

func (m *Monitor) Lookup(name string) (latch.Stats, error) {
	stats, ok := m.Snapshot()[name]
	if !ok {
		return latch.Stats{}, fmt.Errorf("%w: %s", ErrLatchNotFound, name)
	}
	return stats, nil
}

func (m *Monitor) Names() []string {
	return slices.Sorted(maps.Keys(m.Snapshot()))
}

func (m *Monitor) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.readers
	ch <- m.waitingReaders
	ch <- m.waitingWriters
	ch <- m.writerActive
	ch <- m.acquisitions
	ch <- m.contended
	ch <- m.waitSeconds
}

func (m *Monitor) Collect(ch chan<- prometheus.Metric) {
	for name, s := range m.Snapshot() {
		writerActive := 0.0
		if s.WriterActive {
			writerActive = 1
		}

		ch <- prometheus.MustNewConstMetric(m.readers, prometheus.GaugeValue, float64(s.Readers), name)
		ch <- prometheus.MustNewConstMetric(m.waitingReaders, prometheus.GaugeValue, float64(s.WaitingReaders), name)
		ch <- prometheus.MustNewConstMetric(m.waitingWriters, prometheus.GaugeValue, float64(s.WaitingWriters), name)
		ch <- prometheus.MustNewConstMetric(m.writerActive, prometheus.GaugeValue, writerActive, name)

		ch <- prometheus.MustNewConstMetric(m.acquisitions, prometheus.CounterValue, float64(s.ReadAcquires), name, "read")
		ch <- prometheus.MustNewConstMetric(m.acquisitions, prometheus.CounterValue, float64(s.WriteAcquires), name, "write")
		ch <- prometheus.MustNewConstMetric(m.contended, prometheus.CounterValue, float64(s.ReadContended), name, "read")
		ch <- prometheus.MustNewConstMetric(m.contended, prometheus.CounterValue, float64(s.WriteContended), name, "write")
		ch <- prometheus.MustNewConstMetric(m.waitSeconds, prometheus.CounterValue, s.ReadWait.Seconds(), name, "read")
		ch <- prometheus.MustNewConstMetric(m.waitSeconds, prometheus.CounterValue, s.WriteWait.Seconds(), name, "write")
	}
}
