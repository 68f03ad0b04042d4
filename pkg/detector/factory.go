// Package detector picks the focus notification backend for the current session.
package detector

import (
	"os"
	"runtime"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/panicsave/panicsave/pkg/window"
)

// ErrUnsupportedDisplay is returned when no backend can serve the session
var ErrUnsupportedDisplay = errors.New("unsupported display server")

// New returns a Hooker for the running session
func New(logger *zap.Logger) (window.Hooker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return newHooker(DetectDisplayServer(), logger)
}

func DetectDisplayServer() string {
	if runtime.GOOS == "windows" {
		return "windows"
	}

	sessionType := os.Getenv("XDG_SESSION_TYPE")
	waylandDisplay := os.Getenv("WAYLAND_DISPLAY")
	x11Display := os.Getenv("DISPLAY")

	if sessionType == "wayland" || waylandDisplay != "" {
		return "wayland"
	}

	if sessionType == "x11" || x11Display != "" {
		return "x11"
	}

	return "unknown"
}
