package focus

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	hostFocused  = Event{Kind: HostFocused}
	otherFocused = Event{Kind: OtherFocused}
)

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		name       string
		state      State
		event      Event
		wantArmed  bool
		wantAction Action
	}{
		{"closing ignores host focus", State{Armed: false, HostClosing: true}, hostFocused, false, None},
		{"closing ignores other focus while armed", State{Armed: true, HostClosing: true}, otherFocused, true, None},
		{"host focus arms", State{}, hostFocused, true, None},
		{"host focus keeps armed", State{Armed: true}, hostFocused, true, None},
		{"other focus while armed triggers", State{Armed: true}, otherFocused, false, TriggerSave},
		{"other focus while disarmed does nothing", State{}, otherFocused, false, None},
		{"unknown kind is ignored", State{Armed: true}, Event{Kind: Kind(42)}, true, None},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, action := Transition(tt.state, tt.event)
			assert.Equal(t, tt.wantArmed, next.Armed)
			assert.Equal(t, tt.state.HostClosing, next.HostClosing)
			assert.Equal(t, tt.wantAction, action)
		})
	}
}

type step struct {
	event   Event
	closing bool
}

func run(steps []step) int {
	m := NewMachine()
	triggers := 0
	for _, s := range steps {
		if s.closing {
			m.MarkClosing()
			continue
		}
		if m.Handle(s.event).Action == TriggerSave {
			triggers++
		}
	}
	return triggers
}

func TestScenarios(t *testing.T) {
	tests := []struct {
		name  string
		steps []step
		want  int
	}{
		{"A focus then leave", []step{{event: hostFocused}, {event: otherFocused}}, 1},
		{"B never focused", []step{{event: otherFocused}}, 0},
		{"C leave twice", []step{{event: hostFocused}, {event: otherFocused}, {event: otherFocused}}, 1},
		{"D closing before leave", []step{{event: hostFocused}, {closing: true}, {event: otherFocused}}, 0},
		{"rearm after trigger", []step{{event: hostFocused}, {event: otherFocused}, {event: hostFocused}, {event: otherFocused}}, 2},
		{"repeated host focus", []step{{event: hostFocused}, {event: hostFocused}, {event: otherFocused}}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, run(tt.steps))
		})
	}
}

// Armed must equal "a HostFocused was seen since the later of start and the last trigger",
// and no trigger may follow closing.
func TestRandomSequencesKeepInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 500; i++ {
		m := NewMachine()
		seenHostSinceTrigger := false
		closing := false
		lastWasTrigger := false

		for j := 0; j < 40; j++ {
			switch rng.Intn(5) {
			case 0:
				m.MarkClosing()
				closing = true
			case 1, 2:
				d := m.Handle(hostFocused)
				require.Equal(t, None, d.Action)
				if !closing {
					seenHostSinceTrigger = true
					lastWasTrigger = false
				}
			default:
				d := m.Handle(otherFocused)
				if d.Action == TriggerSave {
					require.False(t, closing, "trigger after closing")
					require.False(t, lastWasTrigger, "two triggers without host focus in between")
					require.True(t, seenHostSinceTrigger)
					seenHostSinceTrigger = false
					lastWasTrigger = true
				} else if !closing {
					require.False(t, seenHostSinceTrigger)
				}
			}
			if !closing {
				require.Equal(t, seenHostSinceTrigger, m.State().Armed)
			}
		}
	}
}

func TestMarkClosingIsMonotonic(t *testing.T) {
	m := NewMachine()

	assert.True(t, m.MarkClosing())
	assert.False(t, m.MarkClosing())
	assert.True(t, m.State().HostClosing)

	m.Handle(hostFocused)
	assert.Equal(t, None, m.Handle(otherFocused).Action)
	assert.True(t, m.State().HostClosing)
}

func TestStopSuppressesActions(t *testing.T) {
	m := NewMachine()
	m.Handle(hostFocused)
	m.Stop()

	d := m.Handle(otherFocused)
	assert.True(t, d.Stopped)
	assert.Equal(t, None, d.Action)
	assert.True(t, m.State().Armed)
}

func TestConcurrentInputsTriggerAtMostOncePerArm(t *testing.T) {
	m := NewMachine()
	m.Handle(hostFocused)

	var wg sync.WaitGroup
	var mu sync.Mutex
	triggers := 0

	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.Handle(otherFocused).Action == TriggerSave {
				mu.Lock()
				triggers++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, triggers)
	assert.False(t, m.State().Armed)
}

func TestKindAndActionStrings(t *testing.T) {
	assert.Equal(t, "host_focused", HostFocused.String())
	assert.Equal(t, "other_focused", OtherFocused.String())
	assert.Equal(t, "unknown", Kind(0).String())
	assert.Equal(t, "trigger_save", TriggerSave.String())
	assert.Equal(t, "none", None.String())
}
