// Package lifecycle reports when the host application starts shutting down.
package lifecycle

import (
	"fmt"
	"sync"
)

// Unsubscribe detaches a closing callback. It is safe to call more than once.
type Unsubscribe func()

// Bridge raises a callback at most once, when the host begins its shutdown
type Bridge interface {
	// Name identifies the bridge in logs
	Name() string

	// OnClosing attaches fn. A returned AttachError means the bridge cannot
	// observe the host and fn will never run.
	OnClosing(fn func()) (Unsubscribe, error)
}

// AttachError means a bridge could not attach to the host lifecycle
type AttachError struct {
	Source string
	Err    error
}

func (e *AttachError) Error() string {
	return fmt.Sprintf("failed to attach %s lifecycle bridge: %v", e.Source, e.Err)
}

func (e *AttachError) Unwrap() error {
	return e.Err
}

// Manual is a bridge raised by calling Close, from an API endpoint or a test
type Manual struct {
	mu      sync.Mutex
	closed  bool
	nextID  int
	waiters map[int]func()
}

// NewManual creates a manual bridge
func NewManual() *Manual {
	return &Manual{waiters: make(map[int]func())}
}

func (m *Manual) Name() string {
	return "manual"
}

func (m *Manual) OnClosing(fn func()) (Unsubscribe, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		fn()
		return func() {}, nil
	}
	id := m.nextID
	m.nextID++
	m.waiters[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.waiters, id)
		m.mu.Unlock()
	}, nil
}

// Close raises every attached callback. Only the first call has an effect;
// it reports whether this call raised the signal.
func (m *Manual) Close() bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.closed = true
	waiters := m.waiters
	m.waiters = make(map[int]func())
	m.mu.Unlock()

	for _, fn := range waiters {
		fn()
	}
	return true
}

// Closed reports whether Close was called
func (m *Manual) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// once wraps fn so it runs at most one time, whichever goroutine gets there first
func once(fn func()) func() {
	var o sync.Once
	return func() { o.Do(fn) }
}
