//go:build windows

package lifecycle

import "os"

// CloseSignals returns nil: Windows has no user signal, use the HTTP API instead
func CloseSignals() []os.Signal {
	return nil
}
