package x11

import (
	"encoding/binary"
	"strings"
	"time"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
	"github.com/pkg/errors"

	"github.com/panicsave/panicsave/pkg/integrations/process"
	"github.com/panicsave/panicsave/pkg/window"
)

const (
	atomActiveWindow = "_NET_ACTIVE_WINDOW"
	atomWMName       = "_NET_WM_NAME"
	atomWMPID        = "_NET_WM_PID"
	atomName         = "WM_NAME"
	atomClass        = "WM_CLASS"
	atomUTF8         = "UTF8_STRING"
)

// ErrNoActiveWindow is returned when the window manager reports no focused window
var ErrNoActiveWindow = errors.New("no active window found")

// ErrConnectionClosed is returned by NextActiveWindowChange once the
// connection to the X server is gone
var ErrConnectionClosed = errors.New("x11 connection closed")

// Client is a connection to the X server with the atoms panicsave needs
type Client struct {
	conn  *xgb.Conn
	root  xproto.Window
	atoms map[string]xproto.Atom
}

// NewClient connects to $DISPLAY
func NewClient() (*Client, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to X server")
	}

	setup := xproto.Setup(conn)
	root := setup.DefaultScreen(conn).Root

	client := &Client{
		conn:  conn,
		root:  root,
		atoms: make(map[string]xproto.Atom),
	}

	atomNames := []string{
		atomActiveWindow,
		atomWMName,
		atomWMPID,
		atomName,
		atomClass,
		atomUTF8,
	}

	for _, name := range atomNames {
		reply, err := xproto.InternAtom(conn, false, uint16(len(name)), name).Reply()
		if err != nil {
			conn.Close()
			return nil, errors.Wrapf(err, "failed to intern atom %s", name)
		}
		client.atoms[name] = reply.Atom
	}

	return client, nil
}

// Close closes the connection, which also ends WaitForEvent
func (c *Client) Close() {
	c.conn.Close()
}

// WatchActiveWindow asks the X server for property changes on the root
// window, where the window manager publishes _NET_ACTIVE_WINDOW.
func (c *Client) WatchActiveWindow() error {
	err := xproto.ChangeWindowAttributesChecked(c.conn, c.root,
		xproto.CwEventMask, []uint32{xproto.EventMaskPropertyChange}).Check()
	if err != nil {
		return errors.Wrap(err, "failed to select root window events")
	}
	return nil
}

// IsActiveWindowChange reports whether ev announces a new active window
func (c *Client) IsActiveWindowChange(ev xgb.Event) bool {
	pn, ok := ev.(xproto.PropertyNotifyEvent)
	return ok && pn.Window == c.root && pn.Atom == c.atoms[atomActiveWindow]
}

func (c *Client) getProperty(win xproto.Window, atom xproto.Atom, atomType xproto.Atom, length uint32) ([]byte, error) {
	reply, err := xproto.GetProperty(c.conn, false, win, atom, atomType, 0, length).Reply()
	if err != nil {
		return nil, err
	}
	return reply.Value, nil
}

// NextActiveWindowChange blocks until the window manager updates
// _NET_ACTIVE_WINDOW. X errors are returned as they arrive and do not end the
// stream; ErrConnectionClosed does.
func (c *Client) NextActiveWindowChange() error {
	for {
		ev, err := c.conn.WaitForEvent()
		if ev == nil && err == nil {
			return ErrConnectionClosed
		}
		if err != nil {
			return err
		}
		if c.IsActiveWindowChange(ev) {
			return nil
		}
	}
}

// ReadActiveWindow reads _NET_ACTIVE_WINDOW. Zero means the window manager
// reports no active window, for example when focus went to a Wayland client.
func (c *Client) ReadActiveWindow() (xproto.Window, error) {
	data, err := c.getProperty(c.root, c.atoms[atomActiveWindow], xproto.AtomWindow, 1)
	if err != nil {
		return 0, errors.Wrap(err, "failed to read _NET_ACTIVE_WINDOW")
	}
	return xproto.Window(decodeUint32(data)), nil
}

// ActiveWindowProperty reads _NET_ACTIVE_WINDOW once; zero means none
func (c *Client) ActiveWindowProperty() xproto.Window {
	win, err := c.ReadActiveWindow()
	if err != nil {
		return 0
	}
	return win
}

func (c *Client) activeWindowFromInputFocus() xproto.Window {
	reply, err := xproto.GetInputFocus(c.conn).Reply()
	if err != nil {
		return 0
	}
	return reply.Focus
}

func (c *Client) topLevelParent(win xproto.Window) xproto.Window {
	for {
		reply, err := xproto.QueryTree(c.conn, win).Reply()
		if err != nil || reply.Parent == c.root || reply.Parent == 0 {
			return win
		}
		win = reply.Parent
	}
}

func (c *Client) hasValidName(win xproto.Window) bool {
	data, _ := c.getProperty(win, c.atoms[atomWMName], c.atoms[atomUTF8], 1)
	if len(data) > 0 {
		return true
	}
	data, _ = c.getProperty(win, c.atoms[atomName], xproto.AtomString, 1)
	return len(data) > 0
}

// ActiveWindow returns the focused top-level window. Some window managers
// update _NET_ACTIVE_WINDOW late, so the input focus is used as a fallback
// and the lookup is retried briefly.
func (c *Client) ActiveWindow() (xproto.Window, error) {
	for i := 0; i < 5; i++ {
		win := c.ActiveWindowProperty()
		if win != 0 && c.hasValidName(win) {
			return win, nil
		}

		win = c.activeWindowFromInputFocus()
		if win != 0 && win != c.root {
			topLevel := c.topLevelParent(win)
			if topLevel != 0 && c.hasValidName(topLevel) {
				return topLevel, nil
			}
		}

		time.Sleep(20 * time.Millisecond)
	}

	return 0, ErrNoActiveWindow
}

// WindowName returns the UTF-8 title, falling back to WM_NAME
func (c *Client) WindowName(win xproto.Window) string {
	data, err := c.getProperty(win, c.atoms[atomWMName], c.atoms[atomUTF8], 256)
	if err == nil && len(data) > 0 {
		return trimNull(data)
	}

	data, err = c.getProperty(win, c.atoms[atomName], xproto.AtomString, 256)
	if err == nil && len(data) > 0 {
		return trimNull(data)
	}

	return ""
}

// WindowClass returns both halves of WM_CLASS
func (c *Client) WindowClass(win xproto.Window) (instance, class string) {
	data, err := c.getProperty(win, c.atoms[atomClass], xproto.AtomString, 256)
	if err != nil {
		return "", ""
	}
	return splitClass(data)
}

// WindowPID returns _NET_WM_PID, or zero when the client did not set it
func (c *Client) WindowPID(win xproto.Window) uint32 {
	data, err := c.getProperty(win, c.atoms[atomWMPID], xproto.AtomCardinal, 1)
	if err != nil {
		return 0
	}
	return decodeUint32(data)
}

// FocusedWindow describes the active window
func (c *Client) FocusedWindow() (*window.WindowInfo, error) {
	win, err := c.ActiveWindow()
	if err != nil {
		return nil, err
	}

	instance, class := c.WindowClass(win)
	info := &window.WindowInfo{
		ID:            uintptr(win),
		PID:           c.WindowPID(win),
		AppName:       appName(instance, class),
		WindowTitle:   c.WindowName(win),
		DisplayServer: "x11",
	}
	if info.PID != 0 {
		info.ProcessName = process.Name(int32(info.PID))
	}
	return info, nil
}

// decodeUint32 reads a 32-bit property value; X replies use the client's
// byte order, which xgb sets to little endian.
func decodeUint32(data []byte) uint32 {
	if len(data) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(data)
}

func trimNull(data []byte) string {
	return strings.TrimRight(string(data), "\x00")
}

// splitClass splits WM_CLASS, two NUL-terminated strings: instance then class
func splitClass(data []byte) (instance, class string) {
	if len(data) == 0 {
		return "", ""
	}
	parts := strings.Split(trimNull(data), "\x00")
	if len(parts) >= 1 {
		instance = parts[0]
	}
	if len(parts) >= 2 {
		class = parts[1]
	}
	return instance, class
}

func appName(instance, class string) string {
	if instance != "" {
		return instance
	}
	return class
}
