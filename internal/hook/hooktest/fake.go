// Package hooktest provides an in-memory window.Hooker for tests.
package hooktest

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/panicsave/panicsave/pkg/window"
)

// Fake is a window.Hooker that records registrations and lets tests raise events.
type Fake struct {
	registry *window.Registry

	mu            sync.Mutex
	calls         int
	failOn        map[int]error
	nullOn        map[int]bool
	unregisterErr error
	registered    map[window.Handle]window.HookSpec
	unregistered  []window.Handle
	focused       *window.WindowInfo
	closed        bool
}

// New returns an empty fake hooker
func New() *Fake {
	return &Fake{
		registry:   window.NewRegistry(),
		failOn:     make(map[int]error),
		nullOn:     make(map[int]bool),
		registered: make(map[window.Handle]window.HookSpec),
	}
}

// FailRegistration makes the n-th Register call (1-based) fail with err
func (f *Fake) FailRegistration(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOn[n] = err
}

// NullHandleOn makes the n-th Register call return a zero handle without error
func (f *Fake) NullHandleOn(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nullOn[n] = true
}

// FailUnregister makes every Unregister call fail with err
func (f *Fake) FailUnregister(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unregisterErr = err
}

// SetFocused sets the window returned by FocusedWindow
func (f *Fake) SetFocused(info *window.WindowInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.focused = info
}

func (f *Fake) Register(spec window.HookSpec, cb window.Callback) (window.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if err, ok := f.failOn[f.calls]; ok {
		return 0, err
	}
	if f.nullOn[f.calls] {
		return 0, nil
	}

	h, err := f.registry.Register(spec, cb)
	if err != nil {
		return 0, err
	}
	f.registered[h] = spec
	return h, nil
}

func (f *Fake) Unregister(h window.Handle) error {
	f.mu.Lock()
	if f.unregisterErr != nil {
		err := f.unregisterErr
		f.mu.Unlock()
		return err
	}
	if _, ok := f.registered[h]; ok {
		delete(f.registered, h)
		f.unregistered = append(f.unregistered, h)
	}
	f.mu.Unlock()

	return f.registry.Unregister(h)
}

func (f *Fake) FocusedWindow() (*window.WindowInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.focused == nil {
		return nil, errors.New("no focused window")
	}
	info := *f.focused
	return &info, nil
}

func (f *Fake) DisplayServer() string {
	return "fake"
}

func (f *Fake) Close() error {
	f.mu.Lock()
	f.closed = true
	f.registered = make(map[window.Handle]window.HookSpec)
	f.mu.Unlock()

	f.registry.Close()
	return nil
}

// Focus raises a foreground change to a window owned by pid and returns the
// number of hooks it was delivered to.
func (f *Fake) Focus(pid uint32, win uintptr) int {
	return f.registry.Dispatch(window.Event{
		Type:      window.EventSystemForeground,
		Window:    win,
		ProcessID: pid,
		ThreadID:  pid,
		Time:      time.Now(),
	})
}

// Registered returns the specs of the hooks that are still registered
func (f *Fake) Registered() []window.HookSpec {
	f.mu.Lock()
	defer f.mu.Unlock()

	specs := make([]window.HookSpec, 0, len(f.registered))
	for _, s := range f.registered {
		specs = append(specs, s)
	}
	return specs
}

// Unregistered returns every handle released so far, in order
func (f *Fake) Unregistered() []window.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]window.Handle(nil), f.unregistered...)
}

// RegisterCalls returns how many times Register was called
func (f *Fake) RegisterCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Closed reports whether Close was called
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

var _ window.Hooker = (*Fake)(nil)
