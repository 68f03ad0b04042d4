//go:build !windows

package lifecycle

import (
	"os"
	"syscall"
)

// CloseSignals returns the signals meaning "host closing" on this platform
func CloseSignals() []os.Signal {
	return []os.Signal{syscall.SIGUSR1}
}
