// Package wayland delivers foreground window changes from the sway compositor.
//
// Wayland has no global focus API; sway publishes focus changes over its IPC
// socket, which swaymsg exposes as a JSON event stream.
package wayland

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/panicsave/panicsave/pkg/integrations/process"
	"github.com/panicsave/panicsave/pkg/window"
)

// ErrSwayUnavailable is returned when swaymsg is missing or sway is not running
var ErrSwayUnavailable = errors.New("sway IPC is not available")

// Hooker implements window.Hooker for sway
type Hooker struct {
	registry *window.Registry
	logger   *zap.Logger
	stream   io.ReadCloser
	cmd      *exec.Cmd

	// getTree is replaced in tests
	getTree func(ctx context.Context) ([]byte, error)

	done      chan struct{}
	closeOnce sync.Once
}

// NewHooker subscribes to sway window events
func NewHooker(logger *zap.Logger) (*Hooker, error) {
	if _, err := exec.LookPath("swaymsg"); err != nil {
		return nil, errors.Wrap(ErrSwayUnavailable, "swaymsg not found in PATH")
	}

	cmd := exec.Command("swaymsg", "-r", "-m", "-t", "subscribe", `["window"]`)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open swaymsg output")
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(ErrSwayUnavailable, err.Error())
	}

	h := newHooker(stdout, logger)
	h.cmd = cmd
	return h, nil
}

func newHooker(stream io.ReadCloser, logger *zap.Logger) *Hooker {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hooker{
		registry: window.NewRegistry(),
		logger:   logger,
		stream:   stream,
		getTree:  swayTree,
		done:     make(chan struct{}),
	}
	go h.loop()
	return h
}

func swayTree(ctx context.Context) ([]byte, error) {
	out, err := exec.CommandContext(ctx, "swaymsg", "-r", "-t", "get_tree").Output()
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute swaymsg")
	}
	return out, nil
}

func (h *Hooker) loop() {
	defer close(h.done)

	dec := json.NewDecoder(h.stream)
	for {
		var ev windowEvent
		if err := dec.Decode(&ev); err != nil {
			if err != io.EOF {
				h.logger.Debug("sway event stream ended", zap.Error(err))
			}
			return
		}
		if ev.Change != "focus" {
			continue
		}

		delivered := h.registry.Dispatch(window.Event{
			Type:      window.EventSystemForeground,
			Window:    uintptr(ev.Container.ID),
			ProcessID: ev.Container.PID,
			Time:      time.Now(),
		})

		h.logger.Debug("focus changed",
			zap.Int64("con_id", ev.Container.ID),
			zap.Uint32("pid", ev.Container.PID),
			zap.String("app", ev.Container.appName()),
			zap.Int("hooks", delivered))
	}
}

func (h *Hooker) Register(spec window.HookSpec, cb window.Callback) (window.Handle, error) {
	return h.registry.Register(spec, cb)
}

func (h *Hooker) Unregister(handle window.Handle) error {
	return h.registry.Unregister(handle)
}

func (h *Hooker) FocusedWindow() (*window.WindowInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out, err := h.getTree(ctx)
	if err != nil {
		return nil, err
	}

	info, err := parseTree(bytes.NewReader(out))
	if err != nil {
		return nil, err
	}
	if info.PID != 0 {
		info.ProcessName = process.Name(int32(info.PID))
	}
	return info, nil
}

func (h *Hooker) DisplayServer() string {
	return "wayland"
}

// Close drops every hook and ends the subscription
func (h *Hooker) Close() error {
	h.closeOnce.Do(func() {
		h.registry.Close()
		if h.cmd != nil && h.cmd.Process != nil {
			_ = h.cmd.Process.Kill()
		}
		_ = h.stream.Close()
		<-h.done
		if h.cmd != nil {
			_ = h.cmd.Wait()
		}
	})
	return nil
}

var _ window.Hooker = (*Hooker)(nil)
