package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drive feeds call results to the breaker: 'f' for a failure, 's' for a success.
func drive(b *Breaker, outcomes string) {
	for _, o := range outcomes {
		switch o {
		case 'f':
			b.RecordFailure()
		case 's':
			b.RecordSuccess()
		}
	}
}

func TestBreaker_New(t *testing.T) {
	b := New("rabbitmq")
	assert.Equal(t, "rabbitmq", b.Name())
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
}

func TestBreaker_Sequences(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		successes int
		outcomes  string
		want      State
	}{
		{name: "below failure threshold", failures: 3, outcomes: "ff", want: StateClosed},
		{name: "at failure threshold", failures: 3, outcomes: "fff", want: StateOpen},
		{name: "success resets failure streak", failures: 3, outcomes: "ffsff", want: StateClosed},
		{name: "one success closes by default", failures: 1, outcomes: "fs", want: StateClosed},
		{name: "needs consecutive successes", failures: 1, successes: 2, outcomes: "fs", want: StateOpen},
		{name: "closes after success threshold", failures: 1, successes: 2, outcomes: "fss", want: StateClosed},
		{name: "failure while open restarts recovery", failures: 1, successes: 3, outcomes: "fssfss", want: StateOpen},
		{name: "recovers after restarted streak", failures: 1, successes: 3, outcomes: "fssfsss", want: StateClosed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("notifications", WithFailureThreshold(tt.failures), WithSuccessThreshold(tt.successes))
			drive(b, tt.outcomes)
			assert.Equal(t, tt.want, b.State())
		})
	}
}

func TestBreaker_ReportsTransitions(t *testing.T) {
	b := New("notifications", WithFailureThreshold(2), WithSuccessThreshold(2))

	fallback, change := b.RecordFailure()
	assert.False(t, fallback)
	assert.Equal(t, StateChange{}, change)

	fallback, change = b.RecordFailure()
	require.True(t, fallback)
	assert.True(t, change.Opened)

	fallback, change = b.RecordFailure()
	assert.True(t, fallback)
	assert.False(t, change.Opened, "an already open breaker does not re-open")

	primary, change := b.RecordSuccess()
	assert.False(t, primary)
	assert.False(t, change.Closed)

	primary, change = b.RecordSuccess()
	assert.True(t, primary)
	assert.True(t, change.Closed)
}

func TestBreaker_Reset(t *testing.T) {
	b := New("notifications", WithFailureThreshold(1), WithSuccessThreshold(5))
	drive(b, "fss")
	require.True(t, b.IsOpen())

	b.Reset()
	assert.False(t, b.IsOpen())

	drive(b, "f")
	assert.True(t, b.IsOpen())
}

func TestBreaker_CooldownGatesPrimary(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := New("notifications",
		WithFailureThreshold(1),
		WithCooldown(30*time.Second),
		WithClock(func() time.Time { return now }),
	)

	b.RecordFailure()
	assert.False(t, b.Allow())

	now = now.Add(31 * time.Second)
	assert.True(t, b.Allow())

	// a failed probe restarts the cooldown
	b.RecordFailure()
	assert.False(t, b.Allow())
}
