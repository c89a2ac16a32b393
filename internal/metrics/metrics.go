// Package metrics is a minimal instrumentation facade. The pipeline emits
// counters and histograms through package-level functions; a process wires a
// concrete Backend (or leaves the nop default) at startup via SetBackend.
//
// Metric names used by the loader:
//
//	load_documents_total        kind: parsed | failed
//	load_records_total          kind: extracted | skipped | inserted
//	load_batches_total          (no labels)
//	load_columns_total          kind: created | dropped_empty | dropped_duplicate
//	load_step_duration_seconds  step: extract | resolve | insert | optimize
package metrics

import "sync"

// Labels are free-form metric dimensions.
type Labels map[string]string

// Backend receives metric observations. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
	Close() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }
func (nopBackend) Close() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend replaces the process-wide backend. Pass nil to restore the nop
// backend. Intended to be called once during startup, before the pipeline
// begins emitting.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		backend = nopBackend{}
		return
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter adds delta to a counter.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram records one sample.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush forces the backend to submit buffered observations.
func Flush() error { return current().Flush() }
