// Package saver asks the host application to save all of its open work.
package saver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const defaultTimeout = 10 * time.Second

// Request describes one focus-out that should save the host's work
type Request struct {
	HostPID uint32
	Window  uintptr // window that received focus
	Time    time.Time
}

// Saver performs the save against the host
type Saver interface {
	SaveAll(ctx context.Context, req Request) error
}

// SaverFunc adapts a function to Saver
type SaverFunc func(ctx context.Context, req Request) error

func (f SaverFunc) SaveAll(ctx context.Context, req Request) error {
	return f(ctx, req)
}

// SaveError wraps any failure of a save attempt
type SaveError struct {
	Err error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("save all failed: %v", e.Err)
}

func (e *SaveError) Unwrap() error {
	return e.Err
}

// Result is the outcome of one save attempt
type Result struct {
	Request  Request
	Started  time.Time
	Finished time.Time
	Err      error
}

// Duration returns how long the attempt took
func (r Result) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// Option configures an Invoker
type Option func(*Invoker)

// WithTimeout bounds every save attempt
func WithTimeout(d time.Duration) Option {
	return func(i *Invoker) {
		if d > 0 {
			i.timeout = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(i *Invoker) {
		if l != nil {
			i.logger = l
		}
	}
}

// WithResultHandler is called on the worker goroutine after every attempt
func WithResultHandler(fn func(Result)) Option {
	return func(i *Invoker) {
		i.onResult = fn
	}
}

// Invoker runs saves on its own worker so Trigger never blocks the caller.
// A trigger that arrives while another save is still waiting to start is
// folded into the waiting one.
type Invoker struct {
	saver    Saver
	timeout  time.Duration
	logger   *zap.Logger
	onResult func(Result)

	mu      sync.RWMutex
	closed  bool
	pending chan Request
	wg      sync.WaitGroup
}

// NewInvoker starts the worker
func NewInvoker(s Saver, opts ...Option) *Invoker {
	i := &Invoker{
		saver:   s,
		timeout: defaultTimeout,
		logger:  zap.NewNop(),
		pending: make(chan Request, 1),
	}
	for _, opt := range opts {
		opt(i)
	}

	i.wg.Add(1)
	go i.work()
	return i
}

// Trigger queues a save. It reports false when the request was coalesced
// into a pending save or the invoker is closed.
func (i *Invoker) Trigger(req Request) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if i.closed {
		i.logger.Debug("save trigger after close ignored")
		return false
	}

	select {
	case i.pending <- req:
		return true
	default:
		i.logger.Debug("save already pending, trigger coalesced")
		return false
	}
}

// Close stops accepting triggers and waits for queued saves to finish
func (i *Invoker) Close() {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return
	}
	i.closed = true
	close(i.pending)
	i.mu.Unlock()

	i.wg.Wait()
}

func (i *Invoker) work() {
	defer i.wg.Done()

	for req := range i.pending {
		res := i.run(req)
		if res.Err != nil {
			i.logger.Error("save all failed",
				zap.Uint32("host_pid", req.HostPID),
				zap.Duration("took", res.Duration()),
				zap.Error(res.Err))
		} else {
			i.logger.Info("saved all open work",
				zap.Uint32("host_pid", req.HostPID),
				zap.Duration("took", res.Duration()))
		}
		if i.onResult != nil {
			i.onResult(res)
		}
	}
}

func (i *Invoker) run(req Request) (res Result) {
	res = Result{Request: req, Started: time.Now()}

	defer func() {
		if r := recover(); r != nil {
			res.Err = &SaveError{Err: errors.Errorf("panic: %v", r)}
		}
		res.Finished = time.Now()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), i.timeout)
	defer cancel()

	if err := i.saver.SaveAll(ctx, req); err != nil {
		res.Err = &SaveError{Err: err}
	}
	return res
}
