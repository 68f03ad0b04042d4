package win32

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panicsave/panicsave/pkg/window"
)

func signalOK() error { return nil }

func TestRequestQueuePushAndTake(t *testing.T) {
	var q requestQueue

	first, second := newRequest(), newRequest()
	require.NoError(t, q.push(first, signalOK))
	require.NoError(t, q.push(second, signalOK))

	assert.Equal(t, []*request{first, second}, q.take())
	assert.Empty(t, q.take())
}

func TestRequestQueueDropsRequestWhenSignalFails(t *testing.T) {
	var q requestQueue

	kept := newRequest()
	require.NoError(t, q.push(kept, signalOK))

	lost := errors.New("thread has no message queue")
	err := q.push(newRequest(), func() error { return lost })
	assert.ErrorIs(t, err, lost)

	assert.Equal(t, []*request{kept}, q.take(), "an unsignalled request is not left behind")
}

func TestRequestQueueAbandonAfterLoopFailure(t *testing.T) {
	var q requestQueue

	waiting := newRequest()
	require.NoError(t, q.push(waiting, signalOK))

	// The loop died without Close being called.
	q.abandon()

	res := <-waiting.reply
	assert.ErrorIs(t, res.err, window.ErrClosed)

	signalled := false
	err := q.push(newRequest(), func() error {
		signalled = true
		return nil
	})
	assert.ErrorIs(t, err, window.ErrClosed)
	assert.False(t, signalled)
	assert.Empty(t, q.take())

	first, err := q.close(func() error {
		t.Fatal("no quit message after the loop is gone")
		return nil
	})
	assert.False(t, first)
	assert.NoError(t, err)
}

func TestRequestQueueCloseSignalsOnce(t *testing.T) {
	var q requestQueue

	calls := 0
	quit := func() error {
		calls++
		return nil
	}

	first, err := q.close(quit)
	require.NoError(t, err)
	assert.True(t, first)

	first, err = q.close(quit)
	require.NoError(t, err)
	assert.False(t, first)
	assert.Equal(t, 1, calls)

	assert.ErrorIs(t, q.push(newRequest(), signalOK), window.ErrClosed)
}
