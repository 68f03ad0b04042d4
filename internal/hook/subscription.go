// Package hook owns the pair of global focus hooks that feed the observer.
package hook

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/panicsave/panicsave/internal/focus"
	"github.com/panicsave/panicsave/pkg/window"
)

// ErrNullHandle is reported when the OS accepted a registration but returned no handle
var ErrNullHandle = errors.New("hook registration returned a null handle")

// ErrAlreadyStarted is returned by Start on a running subscription
var ErrAlreadyStarted = errors.New("subscription already started")

// ErrHookNotReleased is returned by Start while a hook from an earlier run is
// still installed because the OS refused to remove it
var ErrHookNotReleased = errors.New("previous focus hook is still registered")

// HookRegistrationError means the OS refused one of the two hooks
type HookRegistrationError struct {
	Hook string // "other" or "host"
	Err  error
}

func (e *HookRegistrationError) Error() string {
	return fmt.Sprintf("failed to register %s focus hook: %v", e.Hook, e.Err)
}

func (e *HookRegistrationError) Unwrap() error {
	return e.Err
}

// Sink receives every typed focus event, synchronously and in delivery order
type Sink func(focus.Event)

type slot struct {
	name   string
	kind   focus.Kind
	handle window.Handle
	cb     window.Callback
}

// Subscription registers one hook for foreground changes to every process but
// the host and one for foreground changes to the host itself.
type Subscription struct {
	hooker  window.Hooker
	hostPID uint32
	sink    Sink
	logger  *zap.Logger

	mu      sync.Mutex
	other   slot
	host    slot
	started bool

	active atomic.Bool
}

// New creates a subscription for the host process hostPID
func New(hooker window.Hooker, hostPID uint32, sink Sink, logger *zap.Logger) *Subscription {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Subscription{
		hooker:  hooker,
		hostPID: hostPID,
		sink:    sink,
		logger:  logger,
		other:   slot{name: "other", kind: focus.OtherFocused},
		host:    slot{name: "host", kind: focus.HostFocused},
	}
}

// Start registers both hooks. If either registration fails the other one is
// released before the HookRegistrationError is returned.
func (s *Subscription) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}

	// A failed rollback can leave a handle behind; never overwrite it.
	s.release(&s.host)
	s.release(&s.other)
	if s.host.handle != 0 || s.other.handle != 0 {
		return ErrHookNotReleased
	}

	s.active.Store(true)

	if err := s.register(&s.other, window.ForegroundExcept(s.hostPID)); err != nil {
		s.active.Store(false)
		return err
	}
	if err := s.register(&s.host, window.ForegroundOf(s.hostPID)); err != nil {
		s.active.Store(false)
		s.release(&s.other)
		return err
	}

	s.started = true
	s.logger.Debug("focus hooks registered",
		zap.Uint32("host_pid", s.hostPID),
		zap.Uintptr("other_hook", uintptr(s.other.handle)),
		zap.Uintptr("host_hook", uintptr(s.host.handle)))
	return nil
}

func (s *Subscription) register(sl *slot, spec window.HookSpec) error {
	kind := sl.kind
	sl.cb = func(ev window.Event) { s.deliver(kind, ev) }

	h, err := s.hooker.Register(spec, sl.cb)
	if err == nil && h == 0 {
		err = ErrNullHandle
	}
	if err != nil {
		sl.cb = nil
		return &HookRegistrationError{Hook: sl.name, Err: err}
	}

	sl.handle = h
	return nil
}

// release unregisters one hook. The callback reference is dropped only when
// the OS confirmed the hook is gone.
func (s *Subscription) release(sl *slot) {
	if sl.handle == 0 {
		return
	}

	if err := s.hooker.Unregister(sl.handle); err != nil {
		s.logger.Error("failed to unregister focus hook",
			zap.String("hook", sl.name),
			zap.Uintptr("handle", uintptr(sl.handle)),
			zap.Error(err))
		return
	}

	sl.handle = 0
	sl.cb = nil
}

// Stop releases both hooks. Repeated calls are no-ops once both hooks are
// gone; a hook the OS refused to remove is retried by the next Stop.
func (s *Subscription) Stop() {
	s.active.Store(false)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.release(&s.host)
	s.release(&s.other)
	if s.host.handle != 0 || s.other.handle != 0 {
		return
	}

	s.started = false
	s.logger.Debug("focus hooks released", zap.Uint32("host_pid", s.hostPID))
}

// Active reports whether both hooks are registered and delivering
func (s *Subscription) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && s.active.Load()
}

func (s *Subscription) deliver(kind focus.Kind, ev window.Event) {
	if !s.active.Load() {
		s.logger.Debug("dropping focus event delivered after stop",
			zap.Stringer("kind", kind),
			zap.Uintptr("window", ev.Window))
		return
	}

	s.sink(focus.Event{
		Kind:      kind,
		Type:      ev.Type,
		Window:    ev.Window,
		ProcessID: ev.ProcessID,
		ThreadID:  ev.ThreadID,
		Time:      ev.Time,
	})
}
