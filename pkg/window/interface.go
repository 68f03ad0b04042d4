package window

import (
	"time"

	"github.com/pkg/errors"
)

// EventSystemForeground is raised when the foreground window changes.
// The value matches EVENT_SYSTEM_FOREGROUND so backends can pass it through.
const EventSystemForeground uint32 = 0x0003

// ErrClosed is returned by a Hooker that has already been closed
var ErrClosed = errors.New("hooker is closed")

// ErrNilCallback is returned when a hook is registered without a callback
var ErrNilCallback = errors.New("hook callback is nil")

// Handle identifies one registered hook. The zero Handle is never valid.
type Handle uintptr

// WindowInfo represents information about a top-level window
type WindowInfo struct {
	ID            uintptr
	PID           uint32
	AppName       string
	WindowTitle   string
	ProcessName   string
	DisplayServer string // "x11", "wayland" or "windows"
}

// HookSpec selects which notifications a hook receives
type HookSpec struct {
	EventMin uint32
	EventMax uint32

	// ProcessID restricts delivery to windows owned by this process. Zero means any process.
	ProcessID uint32

	// ExcludeProcessID drops windows owned by this process. Zero disables the filter.
	ExcludeProcessID uint32
}

// ForegroundOf returns a spec matching foreground changes to windows of pid only.
func ForegroundOf(pid uint32) HookSpec {
	return HookSpec{EventMin: EventSystemForeground, EventMax: EventSystemForeground, ProcessID: pid}
}

// ForegroundExcept returns a spec matching foreground changes to every process but pid.
func ForegroundExcept(pid uint32) HookSpec {
	return HookSpec{EventMin: EventSystemForeground, EventMax: EventSystemForeground, ExcludeProcessID: pid}
}

// Matches reports whether an event of the given type raised for a window of pid
// is selected by the spec. A pid of zero means the owner could not be determined;
// such events only match specs without a process filter.
func (s HookSpec) Matches(eventType, pid uint32) bool {
	if eventType < s.EventMin || eventType > s.EventMax {
		return false
	}
	if s.ProcessID != 0 && pid != s.ProcessID {
		return false
	}
	if s.ExcludeProcessID != 0 && pid == s.ExcludeProcessID {
		return false
	}
	return true
}

// Event is a raw notification delivered by a Hooker
type Event struct {
	Hook      Handle
	Type      uint32
	Window    uintptr
	ProcessID uint32
	ThreadID  uint32
	Time      time.Time
}

// Callback receives events for one hook. It runs on a goroutine owned by the
// Hooker and must return quickly.
type Callback func(Event)

// Hooker is the interface that all global focus notification backends must satisfy
type Hooker interface {
	// Register installs a hook and returns its handle
	Register(spec HookSpec, cb Callback) (Handle, error)

	// Unregister removes a hook. It is idempotent, and once it returns the
	// callback of that hook is not invoked again.
	Unregister(h Handle) error

	// FocusedWindow returns information about the current foreground window
	FocusedWindow() (*WindowInfo, error)

	// DisplayServer returns the backend name ("x11", "wayland" or "windows")
	DisplayServer() string

	// Close removes every remaining hook and releases the backend
	Close() error
}
