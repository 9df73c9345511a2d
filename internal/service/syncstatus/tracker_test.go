package syncstatus

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestOverlappingOperationsKeepSyncing(t *testing.T) {
	var transitions []bool
	tr := NewTracker(func(syncing bool) { transitions = append(transitions, syncing) }, nil, zaptest.NewLogger(t))

	assert.False(t, tr.Syncing())
	endA := tr.Begin("items.put")
	endB := tr.Begin("catalog.sync")
	assert.True(t, tr.Syncing())
	assert.Equal(t, map[string]int{"items.put": 1, "catalog.sync": 1}, tr.InFlight())

	endA()
	assert.True(t, tr.Syncing())
	endA()
	assert.True(t, tr.Syncing())

	endB()
	assert.False(t, tr.Syncing())
	assert.Empty(t, tr.InFlight())
	assert.Equal(t, []bool{true, false}, transitions)
}

func TestConcurrentOperations(t *testing.T) {
	tr := NewTracker(nil, nil, nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			end := tr.Begin("items.put")
			end()
		}()
	}
	wg.Wait()
	assert.False(t, tr.Syncing())
	assert.Empty(t, tr.InFlight())
}
