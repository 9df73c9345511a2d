// Package persistence coalesces durable writes of the local mirrors.
package persistence

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultDelay is the coalescing window used when none is configured.
const DefaultDelay = 500 * time.Millisecond

// WriteFunc performs the durable write of the latest payload for key.
type WriteFunc[T any] func(key string, payload T) error

type entry[T any] struct {
	payload T
	timer   *time.Timer
}

// Debouncer coalesces Schedule calls per key. The first call for a key arms a timer;
// later calls inside the window only replace the payload, so a steady stream of
// updates is still written once per window. Keys are independent.
type Debouncer[T any] struct {
	mu      sync.Mutex
	writeMu sync.Mutex
	firing  sync.WaitGroup
	delay   time.Duration
	write   WriteFunc[T]
	pending map[string]*entry[T]
	closed  bool
	logger  *zap.Logger
}

// NewDebouncer builds a debouncer around write.
func NewDebouncer[T any](delay time.Duration, write WriteFunc[T], logger *zap.Logger) *Debouncer[T] {
	if delay <= 0 {
		delay = DefaultDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Debouncer[T]{
		delay:   delay,
		write:   write,
		pending: make(map[string]*entry[T]),
		logger:  logger,
	}
}

// Schedule records payload as the latest value for key. After Close it writes immediately.
func (d *Debouncer[T]) Schedule(key string, payload T) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		_ = d.run(key, payload)
		return
	}
	if e, ok := d.pending[key]; ok {
		e.payload = payload
		d.mu.Unlock()
		return
	}
	e := &entry[T]{payload: payload}
	e.timer = time.AfterFunc(d.delay, func() { d.fire(key, e) })
	d.pending[key] = e
	d.mu.Unlock()
}

func (d *Debouncer[T]) fire(key string, e *entry[T]) {
	d.mu.Lock()
	if d.pending[key] != e {
		// Flushed or superseded.
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	payload := e.payload
	d.firing.Add(1)
	// Taken before mu is released so Discard cannot slip in between.
	d.writeMu.Lock()
	d.mu.Unlock()

	defer d.firing.Done()
	defer d.writeMu.Unlock()
	_ = d.writeLocked(key, payload)
}

func (d *Debouncer[T]) run(key string, payload T) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	return d.writeLocked(key, payload)
}

func (d *Debouncer[T]) writeLocked(key string, payload T) error {
	if err := d.write(key, payload); err != nil {
		d.logger.Error("debounced write failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// Pending returns the number of keys waiting for their write.
func (d *Debouncer[T]) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Discard drops the pending payload of key and waits for a write already in progress,
// so nothing is written for key afterwards unless it is scheduled again.
func (d *Debouncer[T]) Discard(key string) {
	d.mu.Lock()
	if e, ok := d.pending[key]; ok {
		e.timer.Stop()
		delete(d.pending, key)
	}
	d.mu.Unlock()

	// A write already running holds writeMu.
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
}

// Flush writes every pending payload now.
func (d *Debouncer[T]) Flush() error {
	d.mu.Lock()
	batch := d.pending
	d.pending = make(map[string]*entry[T])
	for _, e := range batch {
		e.timer.Stop()
	}
	d.mu.Unlock()

	var errs []error
	for key, e := range batch {
		if err := d.run(key, e.payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close flushes pending writes; later Schedule calls write synchronously.
func (d *Debouncer[T]) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	err := d.Flush()
	d.firing.Wait()
	return err
}
