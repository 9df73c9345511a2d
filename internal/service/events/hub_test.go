package events

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mamadbah2/stockcount/pkg/metrics"
)

func droppedTotal(t *testing.T, reg *prometheus.Registry, eventType Type) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "stockcount_events_dropped_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "type" && label.GetValue() == string(eventType) {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestPublishReachesEverySubscriber(t *testing.T) {
	h := NewHub(4, nil, zaptest.NewLogger(t))
	a, unsubA := h.Subscribe()
	b, unsubB := h.Subscribe()
	defer unsubB()
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, h.Subscribers())

	h.Publish(Connectivity, true)
	for _, sub := range []*Subscription{a, b} {
		ev := <-sub.C
		assert.Equal(t, Connectivity, ev.Type)
		assert.Equal(t, true, ev.Data)
		assert.False(t, ev.At.IsZero())
	}

	unsubA()
	unsubA()
	_, open := <-a.C
	assert.False(t, open)
	assert.Equal(t, 1, h.Subscribers())
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := NewHub(2, metrics.New(reg), nil)
	sub, unsub := h.Subscribe()
	defer unsub()

	for i := 0; i < 5; i++ {
		h.Publish(CountingListChanged, i)
	}
	assert.Equal(t, 3, sub.Dropped())
	assert.Equal(t, 3.0, droppedTotal(t, reg, CountingListChanged))
	assert.Equal(t, 0, (<-sub.C).Data)
	assert.Equal(t, 1, (<-sub.C).Data)
}

func TestCloseEndsSubscriptions(t *testing.T) {
	h := NewHub(0, nil, nil)
	sub, unsub := h.Subscribe()
	h.Close()
	h.Close()

	_, open := <-sub.C
	assert.False(t, open)
	unsub()

	late, _ := h.Subscribe()
	_, open = <-late.C
	require.False(t, open)
	h.Publish(Conflict, nil)
	assert.Equal(t, 0, h.Subscribers())
}
