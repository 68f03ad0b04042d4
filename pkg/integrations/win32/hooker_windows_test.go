//go:build windows

package win32

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panicsave/panicsave/pkg/window"
)

func TestHookerRegisterUnregister(t *testing.T) {
	h, err := NewHooker(nil)
	require.NoError(t, err)

	other, err := h.Register(window.ForegroundExcept(h.self), func(window.Event) {})
	require.NoError(t, err)
	own, err := h.Register(window.ForegroundOf(h.self), func(window.Event) {})
	require.NoError(t, err)
	assert.NotEqual(t, other, own)

	require.NoError(t, h.Unregister(other))
	require.NoError(t, h.Unregister(other))

	_, err = h.Register(window.ForegroundOf(h.self), nil)
	assert.ErrorIs(t, err, window.ErrNilCallback)

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())

	assert.NoError(t, h.Unregister(own))
	_, err = h.Register(window.ForegroundOf(h.self), func(window.Event) {})
	assert.ErrorIs(t, err, window.ErrClosed)
	assert.Equal(t, "windows", h.DisplayServer())
}
