package daemon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDaemon(t *testing.T) *Daemon {
	return New(filepath.Join(t.TempDir(), "panicsave.pid"))
}

func TestWriteReadRemovePID(t *testing.T) {
	d := newTestDaemon(t)

	pid, err := d.ReadPID()
	require.NoError(t, err)
	assert.Zero(t, pid, "missing file reads as no daemon")

	require.NoError(t, d.WritePID())
	pid, err = d.ReadPID()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, d.RemovePID())
	require.NoError(t, d.RemovePID())
	assert.NoFileExists(t, d.PIDFile())
}

func TestReadPIDToleratesNewline(t *testing.T) {
	d := newTestDaemon(t)
	require.NoError(t, os.WriteFile(d.PIDFile(), []byte("1234\n"), 0644))

	pid, err := d.ReadPID()
	require.NoError(t, err)
	assert.Equal(t, 1234, pid)
}

func TestReadPIDRejectsGarbage(t *testing.T) {
	d := newTestDaemon(t)
	require.NoError(t, os.WriteFile(d.PIDFile(), []byte("panicsave"), 0644))

	_, err := d.ReadPID()
	assert.Error(t, err)
}

func TestIsRunning(t *testing.T) {
	d := newTestDaemon(t)

	running, _, err := d.IsRunning()
	require.NoError(t, err)
	assert.False(t, running)

	require.NoError(t, d.WritePID())
	running, pid, err := d.IsRunning()
	require.NoError(t, err)
	assert.True(t, running)
	assert.Equal(t, os.Getpid(), pid)
}

func TestIsRunningRemovesStalePIDFile(t *testing.T) {
	d := newTestDaemon(t)
	require.NoError(t, os.WriteFile(d.PIDFile(), []byte("1073741824"), 0644))

	running, _, err := d.IsRunning()
	require.NoError(t, err)
	assert.False(t, running)
	assert.NoFileExists(t, d.PIDFile())
}

func TestStopAndSignalWithoutDaemon(t *testing.T) {
	d := newTestDaemon(t)
	assert.ErrorIs(t, d.Stop(), ErrNotRunning)
	assert.ErrorIs(t, d.Signal(os.Interrupt), ErrNotRunning)
}
