// Package syncstatus exposes whether any remote operation is in flight.
package syncstatus

import (
	"sync"

	"go.uber.org/zap"

	"github.com/mamadbah2/stockcount/pkg/metrics"
)

// Tracker reference-counts in-flight remote operations. The syncing flag is true while
// at least one operation runs, so overlapping operations never clear it early.
type Tracker struct {
	mu       sync.Mutex
	inFlight int
	ops      map[string]int
	onChange func(bool)
	metrics  *metrics.Collectors
	logger   *zap.Logger
}

// NewTracker builds a tracker. onChange, when set, is called on every flag transition
// while the tracker lock is held, so it must not call back into the tracker.
func NewTracker(onChange func(bool), m *metrics.Collectors, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{ops: make(map[string]int), onChange: onChange, metrics: m, logger: logger}
}

// Begin marks op as in flight. The returned func ends it; calling it more than once is harmless.
func (t *Tracker) Begin(op string) func() {
	t.mu.Lock()
	t.inFlight++
	t.ops[op]++
	t.metrics.InFlight(1)
	if t.inFlight == 1 {
		t.notifyLocked(true)
	}
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { t.end(op) })
	}
}

func (t *Tracker) end(op string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inFlight--
	t.metrics.InFlight(-1)
	if t.ops[op]--; t.ops[op] <= 0 {
		delete(t.ops, op)
	}
	if t.inFlight == 0 {
		t.notifyLocked(false)
	}
}

func (t *Tracker) notifyLocked(syncing bool) {
	t.logger.Debug("sync status changed", zap.Bool("syncing", syncing))
	if t.onChange != nil {
		t.onChange(syncing)
	}
}

// Syncing reports whether any operation is in flight.
func (t *Tracker) Syncing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inFlight > 0
}

// InFlight returns the number of running operations per operation name.
func (t *Tracker) InFlight() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int, len(t.ops))
	for op, n := range t.ops {
		out[op] = n
	}
	return out
}
