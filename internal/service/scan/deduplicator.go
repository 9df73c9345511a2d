// Package scan filters the barcode stream before it reaches the counting list.
package scan

import (
	"strings"
	"sync"
	"time"
)

// DefaultWindow is how long a repeated barcode is ignored after it was accepted.
const DefaultWindow = 800 * time.Millisecond

// Deduplicator drops the repeats a held scanner trigger emits for one physical scan.
type Deduplicator struct {
	mu       sync.Mutex
	window   time.Duration
	last     string
	deadline time.Time
	now      func() time.Time
}

// NewDeduplicator builds a deduplicator. A non-positive window falls back to DefaultWindow.
func NewDeduplicator(window time.Duration) *Deduplicator {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Deduplicator{window: window, now: time.Now}
}

// ShouldAccept reports whether the scan counts. A barcode equal to the last accepted one is
// rejected until the window armed by that acceptance elapses; any accepted scan re-arms it.
// Rejected scans leave the window untouched.
func (d *Deduplicator) ShouldAccept(barcode string) bool {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if barcode == d.last && now.Before(d.deadline) {
		return false
	}
	d.last = barcode
	d.deadline = now.Add(d.window)
	return true
}

// Reset forgets the last accepted barcode, e.g. after switching warehouse.
func (d *Deduplicator) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = ""
	d.deadline = time.Time{}
}
