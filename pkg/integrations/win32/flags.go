// Package win32 delivers foreground window changes on Windows through
// SetWinEventHook.
package win32

import (
	"strings"

	"github.com/panicsave/panicsave/pkg/window"
)

// SetWinEventHook flags
const (
	winEventOutOfContext   = 0x0000
	winEventSkipOwnProcess = 0x0002
)

// hookParams maps a spec onto SetWinEventHook's process filter and flags.
// The OS can only skip the calling process, so any other exclusion is
// applied in the callback.
func hookParams(spec window.HookSpec, self uint32) (pid uint32, flags uint32) {
	flags = winEventOutOfContext
	if spec.ExcludeProcessID != 0 && spec.ExcludeProcessID == self {
		flags |= winEventSkipOwnProcess
	}
	return spec.ProcessID, flags
}

// appNameFromExe turns "WINWORD.EXE" into "winword"
func appNameFromExe(name string) string {
	name = strings.ToLower(name)
	return strings.TrimSuffix(name, ".exe")
}
