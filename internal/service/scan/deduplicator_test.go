package scan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestDeduplicator(window time.Duration) (*Deduplicator, *clock) {
	c := &clock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	d := NewDeduplicator(window)
	d.now = c.now
	return d, c
}

func TestRepeatInsideWindowIsDropped(t *testing.T) {
	d, c := newTestDeduplicator(time.Second)

	assert.True(t, d.ShouldAccept("111"))
	c.advance(300 * time.Millisecond)
	assert.False(t, d.ShouldAccept("111"))
	c.advance(600 * time.Millisecond)
	assert.False(t, d.ShouldAccept(" 111 "))

	// Rejections do not extend the window armed by the accepted scan.
	c.advance(100 * time.Millisecond)
	assert.True(t, d.ShouldAccept("111"))
}

func TestOtherBarcodeIsAlwaysAccepted(t *testing.T) {
	d, c := newTestDeduplicator(time.Second)

	assert.True(t, d.ShouldAccept("111"))
	assert.True(t, d.ShouldAccept("222"))
	c.advance(10 * time.Millisecond)
	assert.True(t, d.ShouldAccept("111"))
	assert.False(t, d.ShouldAccept("111"))
}

func TestEmptyBarcodeIsRejected(t *testing.T) {
	d, _ := newTestDeduplicator(time.Second)
	assert.False(t, d.ShouldAccept(""))
	assert.False(t, d.ShouldAccept("   "))
}

func TestReset(t *testing.T) {
	d, _ := newTestDeduplicator(time.Second)
	assert.True(t, d.ShouldAccept("111"))
	d.Reset()
	assert.True(t, d.ShouldAccept("111"))
}

func TestDefaultWindow(t *testing.T) {
	d := NewDeduplicator(0)
	assert.Equal(t, DefaultWindow, d.window)
}
