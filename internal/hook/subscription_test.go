package hook

import (
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/panicsave/panicsave/internal/focus"
	"github.com/panicsave/panicsave/internal/hook/hooktest"
	"github.com/panicsave/panicsave/pkg/window"
)

const hostPID = 4242

type recorder struct {
	mu     sync.Mutex
	events []focus.Event
}

func (r *recorder) sink(ev focus.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) kinds() []focus.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]focus.Kind, 0, len(r.events))
	for _, ev := range r.events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

func TestStartRegistersBothHooks(t *testing.T) {
	fake := hooktest.New()
	rec := &recorder{}
	sub := New(fake, hostPID, rec.sink, zaptest.NewLogger(t))

	require.NoError(t, sub.Start())
	assert.True(t, sub.Active())
	assert.ElementsMatch(t, []window.HookSpec{
		window.ForegroundExcept(hostPID),
		window.ForegroundOf(hostPID),
	}, fake.Registered())

	fake.Focus(hostPID, 0x10)
	fake.Focus(1001, 0x20)
	fake.Focus(hostPID, 0x11)

	assert.Equal(t, []focus.Kind{focus.HostFocused, focus.OtherFocused, focus.HostFocused}, rec.kinds())
	assert.Equal(t, uintptr(0x20), rec.events[1].Window)
	assert.Equal(t, uint32(1001), rec.events[1].ProcessID)
	assert.Equal(t, window.EventSystemForeground, rec.events[1].Type)
}

func TestStartTwiceFails(t *testing.T) {
	fake := hooktest.New()
	sub := New(fake, hostPID, func(focus.Event) {}, nil)

	require.NoError(t, sub.Start())
	assert.ErrorIs(t, sub.Start(), ErrAlreadyStarted)
	assert.Equal(t, 2, fake.RegisterCalls())
}

func TestSecondRegistrationFailureRollsBack(t *testing.T) {
	fake := hooktest.New()
	denied := errors.New("access denied")
	fake.FailRegistration(2, denied)

	sub := New(fake, hostPID, func(focus.Event) {}, zaptest.NewLogger(t))
	err := sub.Start()

	var regErr *HookRegistrationError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, "host", regErr.Hook)
	assert.ErrorIs(t, err, denied)

	assert.Empty(t, fake.Registered(), "first handle must be released")
	assert.Len(t, fake.Unregistered(), 1)
	assert.False(t, sub.Active())
}

func TestFirstRegistrationFailure(t *testing.T) {
	fake := hooktest.New()
	fake.FailRegistration(1, errors.New("no display"))

	sub := New(fake, hostPID, func(focus.Event) {}, nil)
	err := sub.Start()

	var regErr *HookRegistrationError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, "other", regErr.Hook)
	assert.Equal(t, 1, fake.RegisterCalls())
	assert.Empty(t, fake.Registered())
	assert.Empty(t, fake.Unregistered())
}

func TestNullHandleIsRegistrationError(t *testing.T) {
	fake := hooktest.New()
	fake.NullHandleOn(2)

	sub := New(fake, hostPID, func(focus.Event) {}, nil)
	err := sub.Start()

	assert.ErrorIs(t, err, ErrNullHandle)
	assert.Empty(t, fake.Registered())
}

func TestStopIsIdempotent(t *testing.T) {
	fake := hooktest.New()
	rec := &recorder{}
	sub := New(fake, hostPID, rec.sink, nil)

	require.NoError(t, sub.Start())
	sub.Stop()
	sub.Stop()
	sub.Stop()

	assert.Empty(t, fake.Registered())
	assert.Len(t, fake.Unregistered(), 2, "each handle released exactly once")
	assert.False(t, sub.Active())

	assert.Equal(t, 0, fake.Focus(hostPID, 1))
	assert.Empty(t, rec.kinds())
}

func TestStopWithoutStart(t *testing.T) {
	fake := hooktest.New()
	sub := New(fake, hostPID, func(focus.Event) {}, nil)

	sub.Stop()
	assert.Empty(t, fake.Unregistered())
}

func TestUnregisterFailureIsLoggedAndDropsLateEvents(t *testing.T) {
	fake := hooktest.New()
	rec := &recorder{}
	sub := New(fake, hostPID, rec.sink, zaptest.NewLogger(t))

	require.NoError(t, sub.Start())
	fake.FailUnregister(errors.New("unhook failed"))
	sub.Stop()

	// The hooks are still installed in the fake, but deliveries after Stop are ignored.
	assert.Len(t, fake.Registered(), 2)
	assert.Equal(t, 1, fake.Focus(1001, 1))
	assert.Empty(t, rec.kinds())
}

func TestStopRetriesHooksTheOSKept(t *testing.T) {
	fake := hooktest.New()
	rec := &recorder{}
	sub := New(fake, hostPID, rec.sink, zaptest.NewLogger(t))

	require.NoError(t, sub.Start())
	fake.FailUnregister(errors.New("unhook failed"))
	sub.Stop()
	assert.False(t, sub.Active())

	assert.ErrorIs(t, sub.Start(), ErrAlreadyStarted, "start must not overwrite live handles")
	assert.Len(t, fake.Registered(), 2)

	fake.FailUnregister(nil)
	sub.Stop()
	assert.Empty(t, fake.Registered())
	assert.Len(t, fake.Unregistered(), 2)

	require.NoError(t, sub.Start())
	assert.Len(t, fake.Registered(), 2)
	sub.Stop()
	assert.Empty(t, fake.Registered())
}

func TestRollbackLeftoverBlocksStartUntilReleased(t *testing.T) {
	fake := hooktest.New()
	sub := New(fake, hostPID, func(focus.Event) {}, zaptest.NewLogger(t))

	fake.FailRegistration(2, errors.New("access denied"))
	fake.FailUnregister(errors.New("unhook failed"))

	var regErr *HookRegistrationError
	require.ErrorAs(t, sub.Start(), &regErr)
	require.Len(t, fake.Registered(), 1, "rollback could not remove the first hook")

	assert.ErrorIs(t, sub.Start(), ErrHookNotReleased)
	assert.Len(t, fake.Registered(), 1)

	fake.FailUnregister(nil)
	require.NoError(t, sub.Start())
	assert.Len(t, fake.Registered(), 2)
	assert.Len(t, fake.Unregistered(), 1)

	sub.Stop()
	assert.Empty(t, fake.Registered())
}

func TestRegistrationErrorMessage(t *testing.T) {
	err := &HookRegistrationError{Hook: "other", Err: errors.New("boom")}
	assert.Equal(t, "failed to register other focus hook: boom", err.Error())
}
