package x11

import (
	"sync"
	"testing"

	"github.com/jezek/xgb/xproto"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panicsave/panicsave/pkg/window"
)

// fakeDisplay plays back _NET_ACTIVE_WINDOW changes
type fakeDisplay struct {
	mu      sync.Mutex
	active  xproto.Window
	readErr error
	pids    map[xproto.Window]uint32

	changes   chan xproto.Window
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeDisplay(active xproto.Window, pids map[xproto.Window]uint32) *fakeDisplay {
	return &fakeDisplay{
		active:  active,
		pids:    pids,
		changes: make(chan xproto.Window),
		closed:  make(chan struct{}),
	}
}

func (d *fakeDisplay) NextActiveWindowChange() error {
	select {
	case win := <-d.changes:
		d.mu.Lock()
		d.active = win
		d.mu.Unlock()
		return nil
	case <-d.closed:
		return ErrConnectionClosed
	}
}

func (d *fakeDisplay) ReadActiveWindow() (xproto.Window, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.readErr != nil {
		return 0, d.readErr
	}
	return d.active, nil
}

func (d *fakeDisplay) WindowPID(win xproto.Window) uint32 {
	return d.pids[win]
}

func (d *fakeDisplay) FocusedWindow() (*window.WindowInfo, error) {
	return nil, ErrNoActiveWindow
}

func (d *fakeDisplay) Close() {
	d.closeOnce.Do(func() { close(d.closed) })
}

type received struct {
	mu     sync.Mutex
	events []window.Event
}

func (r *received) add(ev window.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *received) windows() []uintptr {
	r.mu.Lock()
	defer r.mu.Unlock()
	wins := []uintptr{}
	for _, ev := range r.events {
		wins = append(wins, ev.Window)
	}
	return wins
}

const hostPID = 100

const (
	hostWindow  xproto.Window = 0xA
	hostWindow2 xproto.Window = 0xA2
	otherWindow xproto.Window = 0xB
	noPIDWindow xproto.Window = 0xC
	noneWindow  xproto.Window = 0
	startWindow xproto.Window = 0xD
)

func TestHookerDispatchesActiveWindowChanges(t *testing.T) {
	pids := map[xproto.Window]uint32{
		hostWindow:  hostPID,
		hostWindow2: hostPID,
		otherWindow: 200,
		startWindow: 300,
	}

	tests := []struct {
		name      string
		changes   []xproto.Window
		wantHost  []uintptr
		wantOther []uintptr
	}{
		{
			name:      "host to other",
			changes:   []xproto.Window{hostWindow, otherWindow},
			wantHost:  []uintptr{0xA},
			wantOther: []uintptr{0xB},
		},
		{
			name:      "same window twice is one change",
			changes:   []xproto.Window{hostWindow, hostWindow},
			wantHost:  []uintptr{0xA},
			wantOther: []uintptr{},
		},
		{
			name:      "host to none and back",
			changes:   []xproto.Window{hostWindow, noneWindow, hostWindow},
			wantHost:  []uintptr{0xA, 0xA},
			wantOther: []uintptr{0},
		},
		{
			name:      "repeated none is one change",
			changes:   []xproto.Window{hostWindow, noneWindow, noneWindow},
			wantHost:  []uintptr{0xA},
			wantOther: []uintptr{0},
		},
		{
			name:      "window without _NET_WM_PID counts as other",
			changes:   []xproto.Window{hostWindow, noPIDWindow},
			wantHost:  []uintptr{0xA},
			wantOther: []uintptr{0xC},
		},
		{
			name:      "switch between host windows",
			changes:   []xproto.Window{hostWindow, hostWindow2},
			wantHost:  []uintptr{0xA, 0xA2},
			wantOther: []uintptr{},
		},
		{
			name:      "initial window is not reported again",
			changes:   []xproto.Window{startWindow, hostWindow},
			wantHost:  []uintptr{0xA},
			wantOther: []uintptr{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newFakeDisplay(startWindow, pids)
			h := newHooker(d, nil)
			defer h.Close()

			host, other := &received{}, &received{}
			_, err := h.Register(window.ForegroundOf(hostPID), host.add)
			require.NoError(t, err)
			_, err = h.Register(window.ForegroundExcept(hostPID), other.add)
			require.NoError(t, err)

			for _, win := range tt.changes {
				d.changes <- win
			}
			// Every change has been received; closing lets the loop finish
			// the last one and exit.
			d.Close()
			<-h.done

			assert.Equal(t, tt.wantHost, host.windows())
			assert.Equal(t, tt.wantOther, other.windows())
		})
	}
}

func TestHookerNoneEventHasNoOwner(t *testing.T) {
	d := newFakeDisplay(hostWindow, map[xproto.Window]uint32{hostWindow: hostPID})
	h := newHooker(d, nil)
	defer h.Close()

	other := &received{}
	_, err := h.Register(window.ForegroundExcept(hostPID), other.add)
	require.NoError(t, err)

	d.changes <- noneWindow
	d.Close()
	<-h.done

	require.Len(t, other.events, 1)
	ev := other.events[0]
	assert.Equal(t, window.EventSystemForeground, ev.Type)
	assert.Zero(t, ev.Window)
	assert.Zero(t, ev.ProcessID)
}

func TestHookerSkipsUnreadableActiveWindow(t *testing.T) {
	d := newFakeDisplay(hostWindow, map[xproto.Window]uint32{hostWindow: hostPID, otherWindow: 200})
	h := newHooker(d, nil)
	defer h.Close()

	other := &received{}
	_, err := h.Register(window.ForegroundExcept(hostPID), other.add)
	require.NoError(t, err)

	d.mu.Lock()
	d.readErr = errors.New("BadWindow")
	d.mu.Unlock()
	d.changes <- otherWindow

	d.Close()
	<-h.done

	assert.Empty(t, other.windows(), "a failed read is not a focus change")
}

func TestHookerCloseIsIdempotent(t *testing.T) {
	d := newFakeDisplay(0, nil)
	h := newHooker(d, nil)

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())

	_, err := h.Register(window.ForegroundExcept(hostPID), func(window.Event) {})
	assert.ErrorIs(t, err, window.ErrClosed)
	assert.Equal(t, "x11", h.DisplayServer())
}
