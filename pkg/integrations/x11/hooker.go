// Package x11 delivers foreground window changes from an X11 session.
package x11

import (
	"sync"
	"time"

	"github.com/jezek/xgb/xproto"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/panicsave/panicsave/pkg/window"
)

// display is the part of the X connection the Hooker needs
type display interface {
	NextActiveWindowChange() error
	ReadActiveWindow() (xproto.Window, error)
	WindowPID(win xproto.Window) uint32
	FocusedWindow() (*window.WindowInfo, error)
	Close()
}

// Hooker implements window.Hooker on top of _NET_ACTIVE_WINDOW property
// notifications. One goroutine reads the X event stream and dispatches to
// the registered hooks.
type Hooker struct {
	display  display
	registry *window.Registry
	logger   *zap.Logger

	last      xproto.Window
	done      chan struct{}
	closeOnce sync.Once
}

// NewHooker connects to the X server and starts listening
func NewHooker(logger *zap.Logger) (*Hooker, error) {
	client, err := NewClient()
	if err != nil {
		return nil, err
	}
	if err := client.WatchActiveWindow(); err != nil {
		client.Close()
		return nil, err
	}

	return newHooker(client, logger), nil
}

func newHooker(d display, logger *zap.Logger) *Hooker {
	if logger == nil {
		logger = zap.NewNop()
	}

	h := &Hooker{
		display:  d,
		registry: window.NewRegistry(),
		logger:   logger,
		done:     make(chan struct{}),
	}
	h.last, _ = d.ReadActiveWindow()

	go h.loop()
	return h
}

func (h *Hooker) loop() {
	defer close(h.done)

	for {
		err := h.display.NextActiveWindowChange()
		if errors.Is(err, ErrConnectionClosed) {
			h.logger.Debug("x11 connection closed")
			return
		}
		if err != nil {
			h.logger.Debug("x11 error", zap.Error(err))
			continue
		}
		h.activeWindowChanged()
	}
}

// activeWindowChanged runs on the event goroutine only. A change to no
// active window is still a focus change: focus left every X client, so it is
// delivered with window and pid zero, which only unfiltered and "every
// process but" hooks match.
func (h *Hooker) activeWindowChanged() {
	win, err := h.display.ReadActiveWindow()
	if err != nil {
		h.logger.Debug("failed to read active window", zap.Error(err))
		return
	}
	if win == h.last {
		return
	}
	h.last = win

	var pid uint32
	if win != 0 {
		pid = h.display.WindowPID(win)
	}

	delivered := h.registry.Dispatch(window.Event{
		Type:      window.EventSystemForeground,
		Window:    uintptr(win),
		ProcessID: pid,
		Time:      time.Now(),
	})

	h.logger.Debug("active window changed",
		zap.Uint32("window", uint32(win)),
		zap.Uint32("pid", pid),
		zap.Int("hooks", delivered))
}

func (h *Hooker) Register(spec window.HookSpec, cb window.Callback) (window.Handle, error) {
	return h.registry.Register(spec, cb)
}

func (h *Hooker) Unregister(handle window.Handle) error {
	return h.registry.Unregister(handle)
}

func (h *Hooker) FocusedWindow() (*window.WindowInfo, error) {
	return h.display.FocusedWindow()
}

func (h *Hooker) DisplayServer() string {
	return "x11"
}

// Close drops every hook, closes the connection and waits for the event goroutine
func (h *Hooker) Close() error {
	h.closeOnce.Do(func() {
		h.registry.Close()
		h.display.Close()
		<-h.done
	})
	return nil
}

var _ window.Hooker = (*Hooker)(nil)
