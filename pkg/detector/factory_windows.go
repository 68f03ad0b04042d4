//go:build windows

package detector

import (
	"go.uber.org/zap"

	"github.com/panicsave/panicsave/pkg/integrations/win32"
	"github.com/panicsave/panicsave/pkg/window"
)

func newHooker(_ string, logger *zap.Logger) (window.Hooker, error) {
	h, err := win32.NewHooker(logger.Named("win32"))
	if err != nil {
		return nil, err
	}
	return h, nil
}
