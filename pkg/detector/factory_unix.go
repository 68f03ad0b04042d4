//go:build !windows

package detector

import (
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/panicsave/panicsave/pkg/integrations/wayland"
	"github.com/panicsave/panicsave/pkg/integrations/x11"
	"github.com/panicsave/panicsave/pkg/window"
)

func newHooker(displayServer string, logger *zap.Logger) (window.Hooker, error) {
	switch displayServer {
	case "x11":
		return newX11(logger)

	case "wayland":
		if os.Getenv("SWAYSOCK") != "" {
			h, err := wayland.NewHooker(logger.Named("sway"))
			if err != nil {
				return nil, err
			}
			return h, nil
		}
		// Only X clients are visible through XWayland, which still covers
		// the usual office suites.
		if os.Getenv("DISPLAY") != "" {
			logger.Warn("wayland compositor without focus IPC, falling back to XWayland")
			return newX11(logger)
		}
		return nil, errors.Wrap(ErrUnsupportedDisplay, "wayland without sway or XWayland")
	}

	return nil, errors.Wrapf(ErrUnsupportedDisplay, "%q", displayServer)
}

func newX11(logger *zap.Logger) (window.Hooker, error) {
	h, err := x11.NewHooker(logger.Named("x11"))
	if err != nil {
		return nil, err
	}
	return h, nil
}
