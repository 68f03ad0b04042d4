package win32

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/panicsave/panicsave/pkg/window"
)

func TestHookParams(t *testing.T) {
	const self = 100

	tests := []struct {
		name      string
		spec      window.HookSpec
		wantPID   uint32
		wantFlags uint32
	}{
		{"own process only", window.ForegroundOf(self), self, winEventOutOfContext},
		{"other host only", window.ForegroundOf(4242), 4242, winEventOutOfContext},
		{"all but self", window.ForegroundExcept(self), 0, winEventSkipOwnProcess},
		{"all but another process", window.ForegroundExcept(4242), 0, winEventOutOfContext},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pid, flags := hookParams(tt.spec, self)
			assert.Equal(t, tt.wantPID, pid)
			assert.Equal(t, tt.wantFlags, flags)
		})
	}
}

func TestAppNameFromExe(t *testing.T) {
	assert.Equal(t, "winword", appNameFromExe("WINWORD.EXE"))
	assert.Equal(t, "soffice", appNameFromExe("soffice.exe"))
	assert.Equal(t, "code", appNameFromExe("Code"))
}
