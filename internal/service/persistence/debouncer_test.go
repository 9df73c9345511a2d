package persistence

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type sink struct {
	mu     sync.Mutex
	writes map[string][]int
	err    error
}

func newSink() *sink {
	return &sink{writes: make(map[string][]int)}
}

func (s *sink) write(key string, v int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.writes[key] = append(s.writes[key], v)
	return nil
}

func (s *sink) get(key string) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.writes[key]...)
}

func TestBurstIsWrittenOnce(t *testing.T) {
	s := newSink()
	d := NewDebouncer[int](20*time.Millisecond, s.write, zaptest.NewLogger(t))
	defer func() { require.NoError(t, d.Close()) }()

	for i := 1; i <= 10; i++ {
		d.Schedule("u1/A", i)
	}
	assert.Equal(t, 1, d.Pending())

	require.Eventually(t, func() bool { return len(s.get("u1/A")) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int{10}, s.get("u1/A"))
	assert.Equal(t, 0, d.Pending())
}

func TestKeysAreIndependent(t *testing.T) {
	s := newSink()
	d := NewDebouncer[int](time.Hour, s.write, nil)

	d.Schedule("u1/A", 1)
	d.Schedule("u1/B", 2)
	d.Schedule("u1/A", 3)
	require.NoError(t, d.Flush())

	assert.Equal(t, []int{3}, s.get("u1/A"))
	assert.Equal(t, []int{2}, s.get("u1/B"))
	require.NoError(t, d.Close())
}

func TestCloseFlushesAndWritesThrough(t *testing.T) {
	s := newSink()
	d := NewDebouncer[int](time.Hour, s.write, nil)

	d.Schedule("u1/A", 1)
	require.NoError(t, d.Close())
	assert.Equal(t, []int{1}, s.get("u1/A"))

	d.Schedule("u1/A", 2)
	assert.Equal(t, []int{1, 2}, s.get("u1/A"))
	assert.Equal(t, 0, d.Pending())
}

func TestFlushReportsWriteErrors(t *testing.T) {
	s := newSink()
	s.err = errors.New("disk full")
	d := NewDebouncer[int](time.Hour, s.write, zaptest.NewLogger(t))

	d.Schedule("u1/A", 1)
	err := d.Flush()
	assert.ErrorIs(t, err, s.err)
	assert.NoError(t, d.Close())
}

func TestDiscardDropsPendingWrite(t *testing.T) {
	s := newSink()
	d := NewDebouncer[int](time.Hour, s.write, nil)

	d.Schedule("u1/A", 1)
	d.Schedule("u1/B", 2)
	d.Discard("u1/A")
	d.Discard("u1/missing")
	require.NoError(t, d.Close())

	assert.Empty(t, s.get("u1/A"))
	assert.Equal(t, []int{2}, s.get("u1/B"))
}
