//go:build windows

package win32

import (
	"os"
	"runtime"
	"sync"
	"time"
	"unsafe"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sys/windows"

	"github.com/panicsave/panicsave/pkg/integrations/process"
	"github.com/panicsave/panicsave/pkg/window"
)

const (
	wmQuit = 0x0012
	wmUser = 0x0400
	wmApp  = 0x8000

	pmNoRemove = 0x0000

	objidWindow = 0
)

var (
	user32 = windows.NewLazySystemDLL("user32.dll")

	procSetWinEventHook          = user32.NewProc("SetWinEventHook")
	procUnhookWinEvent           = user32.NewProc("UnhookWinEvent")
	procGetMessageW              = user32.NewProc("GetMessageW")
	procPeekMessageW             = user32.NewProc("PeekMessageW")
	procTranslateMessage         = user32.NewProc("TranslateMessage")
	procDispatchMessageW         = user32.NewProc("DispatchMessageW")
	procPostThreadMessageW       = user32.NewProc("PostThreadMessageW")
	procGetWindowThreadProcessId = user32.NewProc("GetWindowThreadProcessId")
	procGetForegroundWindow      = user32.NewProc("GetForegroundWindow")
	procGetWindowTextLengthW     = user32.NewProc("GetWindowTextLengthW")
	procGetWindowTextW           = user32.NewProc("GetWindowTextW")
)

type point struct {
	x, y int32
}

type msg struct {
	hwnd    uintptr
	message uint32
	wParam  uintptr
	lParam  uintptr
	time    uint32
	pt      point
}

// One process-wide callback; SetWinEventHook passes the hook handle, which
// routes the event to the Hooker that owns it.
var (
	callbackOnce sync.Once
	callbackPtr  uintptr
	owners       sync.Map // hook handle -> *Hooker
)

func winEventProc(hook, event, hwnd, idObject, idChild, eventThread, eventTime uintptr) uintptr {
	if owner, ok := owners.Load(hook); ok {
		owner.(*Hooker).deliver(hook, uint32(event), hwnd, int32(idObject), uint32(eventThread))
	}
	return 0
}

type registration struct {
	spec window.HookSpec
	cb   window.Callback
}

// Hooker implements window.Hooker with out-of-context WinEvent hooks.
//
// All hooks live on one goroutine locked to an OS thread that runs a message
// loop. Out-of-context callbacks are delivered on that thread while it waits
// in GetMessage, so registration, removal and delivery never overlap.
// Callbacks must not call Register or Unregister.
type Hooker struct {
	logger *zap.Logger
	self   uint32

	threadID uint32
	ready    chan struct{}
	done     chan struct{}

	queue requestQueue

	// owned by the loop thread
	hooks map[uintptr]*registration
}

// NewHooker starts the message loop thread
func NewHooker(logger *zap.Logger) (*Hooker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := procSetWinEventHook.Find(); err != nil {
		return nil, errors.Wrap(err, "SetWinEventHook unavailable")
	}

	callbackOnce.Do(func() {
		callbackPtr = windows.NewCallback(winEventProc)
	})

	h := &Hooker{
		logger: logger,
		self:   uint32(os.Getpid()),
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
		hooks:  make(map[uintptr]*registration),
	}

	go h.run()
	<-h.ready
	return h, nil
}

func (h *Hooker) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(h.done)

	h.threadID = windows.GetCurrentThreadId()

	// A thread only gets a message queue once it calls a message function,
	// and PostThreadMessage fails until then.
	var m msg
	procPeekMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, wmUser, wmUser, pmNoRemove)
	close(h.ready)

	for {
		r, _, err := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		if int32(r) == -1 {
			h.logger.Error("GetMessage failed", zap.Error(err))
			break
		}
		if r == 0 {
			break // WM_QUIT
		}
		if m.hwnd == 0 && m.message == wmApp {
			h.drain()
			continue
		}
		procTranslateMessage.Call(uintptr(unsafe.Pointer(&m)))
		procDispatchMessageW.Call(uintptr(unsafe.Pointer(&m)))
	}

	h.shutdown()
}

// drain serves queued requests on the loop thread
func (h *Hooker) drain() {
	for _, req := range h.queue.take() {
		if req.register {
			handle, err := h.install(req.spec, req.cb)
			req.reply <- reply{handle: handle, err: err}
		} else {
			req.reply <- reply{err: h.remove(uintptr(req.handle))}
		}
	}
}

func (h *Hooker) install(spec window.HookSpec, cb window.Callback) (window.Handle, error) {
	pid, flags := hookParams(spec, h.self)

	hook, _, err := procSetWinEventHook.Call(
		uintptr(spec.EventMin),
		uintptr(spec.EventMax),
		0,
		callbackPtr,
		uintptr(pid),
		0,
		uintptr(flags))
	if hook == 0 {
		return 0, errors.Wrap(err, "SetWinEventHook failed")
	}

	h.hooks[hook] = &registration{spec: spec, cb: cb}
	owners.Store(hook, h)
	return window.Handle(hook), nil
}

// remove keeps the registration when the OS refuses to unhook
func (h *Hooker) remove(hook uintptr) error {
	if _, ok := h.hooks[hook]; !ok {
		return nil
	}

	r, _, err := procUnhookWinEvent.Call(hook)
	if r == 0 {
		return errors.Wrap(err, "UnhookWinEvent failed")
	}

	delete(h.hooks, hook)
	owners.Delete(hook)
	return nil
}

// shutdown runs when the loop ends, whether through Close or a GetMessage
// failure; in both cases no request is accepted afterwards.
func (h *Hooker) shutdown() {
	h.queue.abandon()

	for hook := range h.hooks {
		if err := h.remove(hook); err != nil {
			h.logger.Warn("failed to remove hook on close", zap.Uintptr("hook", hook), zap.Error(err))
			owners.Delete(hook)
		}
	}
}

// deliver runs on the loop thread
func (h *Hooker) deliver(hook uintptr, event uint32, hwnd uintptr, idObject int32, thread uint32) {
	reg, ok := h.hooks[hook]
	if !ok || hwnd == 0 || idObject != objidWindow {
		return
	}

	var pid uint32
	procGetWindowThreadProcessId.Call(hwnd, uintptr(unsafe.Pointer(&pid)))

	if !reg.spec.Matches(event, pid) {
		return
	}

	reg.cb(window.Event{
		Hook:      window.Handle(hook),
		Type:      event,
		Window:    hwnd,
		ProcessID: pid,
		ThreadID:  thread,
		Time:      time.Now(),
	})
}

func (h *Hooker) call(req *request) reply {
	err := h.queue.push(req, func() error {
		return h.post(wmApp)
	})
	if err != nil {
		return reply{err: err}
	}
	return <-req.reply
}

func (h *Hooker) post(message uint32) error {
	r, _, err := procPostThreadMessageW.Call(uintptr(h.threadID), uintptr(message), 0, 0)
	if r == 0 {
		return errors.Wrapf(err, "PostThreadMessage(%#x) failed", message)
	}
	return nil
}

func (h *Hooker) Register(spec window.HookSpec, cb window.Callback) (window.Handle, error) {
	if cb == nil {
		return 0, window.ErrNilCallback
	}
	req := newRequest()
	req.register, req.spec, req.cb = true, spec, cb
	res := h.call(req)
	return res.handle, res.err
}

func (h *Hooker) Unregister(handle window.Handle) error {
	if handle == 0 {
		return nil
	}
	req := newRequest()
	req.handle = handle
	res := h.call(req)
	if errors.Is(res.err, window.ErrClosed) {
		// Close already removed every hook.
		return nil
	}
	return res.err
}

func (h *Hooker) FocusedWindow() (*window.WindowInfo, error) {
	hwnd, _, _ := procGetForegroundWindow.Call()
	if hwnd == 0 {
		return nil, errors.New("no foreground window")
	}

	var pid uint32
	procGetWindowThreadProcessId.Call(hwnd, uintptr(unsafe.Pointer(&pid)))

	info := &window.WindowInfo{
		ID:            hwnd,
		PID:           pid,
		WindowTitle:   windowText(hwnd),
		DisplayServer: "windows",
	}
	if pid != 0 {
		info.ProcessName = process.Name(int32(pid))
		info.AppName = appNameFromExe(info.ProcessName)
	}
	return info, nil
}

func windowText(hwnd uintptr) string {
	n, _, _ := procGetWindowTextLengthW.Call(hwnd)
	if n == 0 {
		return ""
	}
	buf := make([]uint16, n+1)
	procGetWindowTextW.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	return windows.UTF16ToString(buf)
}

func (h *Hooker) DisplayServer() string {
	return "windows"
}

// Close removes every hook and stops the message loop
func (h *Hooker) Close() error {
	_, err := h.queue.close(func() error {
		return h.post(wmQuit)
	})
	if err != nil {
		return err
	}
	<-h.done
	return nil
}

var _ window.Hooker = (*Hooker)(nil)
