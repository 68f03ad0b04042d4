// Package observer saves the host's open work whenever focus leaves it.
//
// It ties together the focus hooks, the state machine, the host lifecycle
// bridges and the save invoker. Everything it talks to is passed in.
package observer

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/panicsave/panicsave/internal/focus"
	"github.com/panicsave/panicsave/internal/hook"
	"github.com/panicsave/panicsave/internal/lifecycle"
	"github.com/panicsave/panicsave/internal/metrics"
	"github.com/panicsave/panicsave/internal/saver"
	"github.com/panicsave/panicsave/pkg/window"
)

var (
	// ErrStopped is returned by Start on an observer that was already stopped
	ErrStopped = errors.New("observer stopped")
	// ErrRunning is returned by Start on a running observer
	ErrRunning = errors.New("observer already running")
)

// Invoker dispatches save requests without blocking
type Invoker interface {
	Trigger(req saver.Request) bool
}

// Options are the observer's collaborators
type Options struct {
	HostPID uint32
	Hooker  window.Hooker
	Invoker Invoker
	Bridges []lifecycle.Bridge
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Snapshot is a point-in-time view of the observer
type Snapshot struct {
	HostPID       uint32     `json:"host_pid"`
	Running       bool       `json:"running"`
	Armed         bool       `json:"armed"`
	HostClosing   bool       `json:"host_closing"`
	FocusEvents   uint64     `json:"focus_events"`
	Triggers      uint64     `json:"triggers"`
	LastTrigger   *time.Time `json:"last_trigger,omitempty"`
	DisplayServer string     `json:"display_server"`
	Bridges       []string   `json:"bridges"`
}

// Observer watches focus transitions of one host process
type Observer struct {
	opts    Options
	logger  *zap.Logger
	machine *focus.Machine
	sub     *hook.Subscription

	mu           sync.Mutex
	running      bool
	stopped      bool
	unsubscribes []lifecycle.Unsubscribe
	attached     []string

	statsMu     sync.Mutex
	events      uint64
	triggers    uint64
	lastTrigger time.Time
}

// New validates the collaborators and builds an observer in the initial state
func New(opts Options) (*Observer, error) {
	if opts.HostPID == 0 {
		return nil, errors.New("host pid is required")
	}
	if opts.Hooker == nil {
		return nil, errors.New("hooker is required")
	}
	if opts.Invoker == nil {
		return nil, errors.New("save invoker is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	o := &Observer{
		opts:    opts,
		logger:  opts.Logger,
		machine: focus.NewMachine(),
	}
	o.sub = hook.New(opts.Hooker, opts.HostPID, o.handle, opts.Logger.Named("hook"))
	return o, nil
}

// Start attaches the lifecycle bridges and registers the focus hooks.
// Bridge failures are logged and tolerated; hook failures are returned.
func (o *Observer) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stopped {
		return ErrStopped
	}
	if o.running {
		return ErrRunning
	}

	o.attachBridges()

	if err := o.sub.Start(); err != nil {
		o.detachBridges()
		o.logger.Error("failed to start focus observer", zap.Error(err))
		return err
	}

	o.running = true
	o.logger.Info("focus observer started",
		zap.Uint32("host_pid", o.opts.HostPID),
		zap.String("display_server", o.opts.Hooker.DisplayServer()),
		zap.Strings("bridges", o.attached))
	return nil
}

// Stop releases the hooks and detaches the bridges. Once it returns no
// further save is triggered. Repeated calls are no-ops.
func (o *Observer) Stop() {
	o.machine.Stop()

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stopped {
		return
	}
	o.stopped = true

	o.sub.Stop()
	o.detachBridges()

	if o.running {
		o.running = false
		o.logger.Info("focus observer stopped", zap.Uint32("host_pid", o.opts.HostPID))
	}
}

// Snapshot returns the current state and counters
func (o *Observer) Snapshot() Snapshot {
	state := o.machine.State()

	o.mu.Lock()
	running := o.running
	bridges := append([]string(nil), o.attached...)
	o.mu.Unlock()

	o.statsMu.Lock()
	defer o.statsMu.Unlock()

	snap := Snapshot{
		HostPID:       o.opts.HostPID,
		Running:       running,
		Armed:         state.Armed,
		HostClosing:   state.HostClosing,
		FocusEvents:   o.events,
		Triggers:      o.triggers,
		DisplayServer: o.opts.Hooker.DisplayServer(),
		Bridges:       bridges,
	}
	if !o.lastTrigger.IsZero() {
		t := o.lastTrigger
		snap.LastTrigger = &t
	}
	return snap
}

func (o *Observer) attachBridges() {
	for _, b := range o.opts.Bridges {
		name := b.Name()
		unsubscribe, err := b.OnClosing(func() { o.hostClosing(name) })
		if err != nil {
			o.logger.Warn("host lifecycle unavailable, saves will not be suppressed during shutdown",
				zap.String("bridge", name),
				zap.Error(err))
			continue
		}
		o.unsubscribes = append(o.unsubscribes, unsubscribe)
		o.attached = append(o.attached, name)
	}
}

func (o *Observer) detachBridges() {
	for _, unsubscribe := range o.unsubscribes {
		unsubscribe()
	}
	o.unsubscribes = nil
	o.attached = nil
}

func (o *Observer) hostClosing(source string) {
	if !o.machine.MarkClosing() {
		return
	}
	if o.opts.Metrics != nil {
		o.opts.Metrics.ObserveClosing()
	}
	o.logger.Info("host is closing, saves suppressed", zap.String("source", source))
}

// handle runs on the hooker's goroutine for every focus event
func (o *Observer) handle(ev focus.Event) {
	d := o.machine.Handle(ev)

	if o.opts.Metrics != nil {
		o.opts.Metrics.ObserveDecision(ev.Kind, d)
	}

	o.statsMu.Lock()
	o.events++
	if d.Action == focus.TriggerSave {
		o.triggers++
		o.lastTrigger = ev.Time
	}
	o.statsMu.Unlock()

	o.logger.Debug("focus event",
		zap.Stringer("kind", ev.Kind),
		zap.Uintptr("window", ev.Window),
		zap.Uint32("pid", ev.ProcessID),
		zap.Uint32("thread", ev.ThreadID),
		zap.Bool("armed", d.Next.Armed),
		zap.Bool("host_closing", d.Next.HostClosing),
		zap.Stringer("action", d.Action))

	if d.Action != focus.TriggerSave {
		return
	}

	req := saver.Request{HostPID: o.opts.HostPID, Window: ev.Window, Time: ev.Time}
	if !o.opts.Invoker.Trigger(req) {
		o.logger.Debug("save request folded into pending save")
	}
}
