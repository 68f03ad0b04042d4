package lifecycle

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/panicsave/panicsave/pkg/integrations/process"
)

// ErrHostGone is returned when the host process is not running at attach time
var ErrHostGone = errors.New("host process is not running")

// Prober reports whether a process is still alive
type Prober func(pid int32) (bool, error)

// ProcessBridge polls the host process and raises closing once it has exited
// or turned into a zombie.
type ProcessBridge struct {
	pid      int32
	interval time.Duration
	alive    Prober
}

// NewProcessBridge watches pid every interval
func NewProcessBridge(pid int32, interval time.Duration) *ProcessBridge {
	return &ProcessBridge{pid: pid, interval: interval, alive: process.Alive}
}

// WithProber replaces the liveness probe
func (b *ProcessBridge) WithProber(p Prober) *ProcessBridge {
	b.alive = p
	return b
}

func (b *ProcessBridge) Name() string {
	return "process"
}

func (b *ProcessBridge) OnClosing(fn func()) (Unsubscribe, error) {
	if b.interval <= 0 {
		return nil, &AttachError{Source: b.Name(), Err: errors.Errorf("invalid poll interval %v", b.interval)}
	}

	alive, err := b.alive(b.pid)
	if err != nil {
		return nil, &AttachError{Source: b.Name(), Err: err}
	}
	if !alive {
		return nil, &AttachError{Source: b.Name(), Err: errors.Wrapf(ErrHostGone, "pid %d", b.pid)}
	}

	done := make(chan struct{})
	fire := once(fn)

	go func() {
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				alive, err := b.alive(b.pid)
				if err != nil {
					// Transient probe failures are not a shutdown.
					continue
				}
				if !alive {
					fire()
					return
				}
			}
		}
	}()

	var stop sync.Once
	return func() { stop.Do(func() { close(done) }) }, nil
}
