package lifecycle

import (
	"os"
	"os/signal"
	"sync"

	"github.com/pkg/errors"
)

// ErrNoSignals is returned when a signal bridge has nothing to listen for
var ErrNoSignals = errors.New("no closing signal available on this platform")

// SignalBridge treats delivery of one of its signals to this process as
// "host closing". The host (or `panicsave closing`) sends it before shutting down.
type SignalBridge struct {
	signals []os.Signal
}

// NewSignalBridge listens for sigs, or for the platform's closing signals when none are given
func NewSignalBridge(sigs ...os.Signal) *SignalBridge {
	if len(sigs) == 0 {
		sigs = CloseSignals()
	}
	return &SignalBridge{signals: sigs}
}

func (b *SignalBridge) Name() string {
	return "signal"
}

func (b *SignalBridge) OnClosing(fn func()) (Unsubscribe, error) {
	if len(b.signals) == 0 {
		return nil, &AttachError{Source: b.Name(), Err: ErrNoSignals}
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, b.signals...)

	done := make(chan struct{})
	fire := once(fn)

	go func() {
		select {
		case <-ch:
			fire()
		case <-done:
		}
	}()

	var stop sync.Once
	return func() {
		stop.Do(func() {
			signal.Stop(ch)
			close(done)
		})
	}, nil
}
