package kv

import (
	"io"

	"github.com/VictoriaMetrics/metrics"
)

// storeMetrics are per-handle counters kept in a private set, so several
// stores in one process never collide on metric names.
type storeMetrics struct {
	set       *metrics.Set
	reads     *metrics.Counter
	writes    *metrics.Counter
	deletes   *metrics.Counter
	commits   *metrics.Counter
	rollbacks *metrics.Counter
}

func newStoreMetrics(s *Store) *storeMetrics {
	set := metrics.NewSet()
	m := &storeMetrics{
		set:       set,
		reads:     set.NewCounter("cask_kv_reads_total"),
		writes:    set.NewCounter("cask_kv_writes_total"),
		deletes:   set.NewCounter("cask_kv_deletes_total"),
		commits:   set.NewCounter("cask_txn_commits_total"),
		rollbacks: set.NewCounter("cask_txn_rollbacks_total"),
	}
	set.NewGauge("cask_kv_open_cursors", func() float64 {
		return float64(len(s.cursors))
	})
	set.NewGauge("cask_txn_active", func() float64 {
		if s.txn != nil {
			return 1
		}
		return 0
	})
	return m
}

// WriteMetrics writes the store's counters in Prometheus text format.
func (s *Store) WriteMetrics(w io.Writer) {
	s.metrics.set.WritePrometheus(w)
}
