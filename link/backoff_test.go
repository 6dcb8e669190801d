package link

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffExponentialPhase(t *testing.T) {
	b := newBackoff()
	now := time.Now()
	for attempt := 0; attempt < 10; attempt++ {
		want := time.Duration(1000*(1<<attempt)) * time.Millisecond
		if want > 30*time.Second {
			want = 30 * time.Second
		}
		got := b.next(now)
		assert.Equal(t, want, got, "attempt %d", attempt)
		now = now.Add(got)
		b.attempted(now)
	}
	assert.False(t, b.persistentMode)
}

func TestBackoffPersistentPhaseKeepsMinimumGap(t *testing.T) {
	b := newBackoff()
	now := time.Now()
	for i := 0; i < 10; i++ {
		now = now.Add(b.next(now))
		b.attempted(now)
	}

	var attempts []time.Time
	for i := 0; i < 20; i++ {
		d := b.next(now)
		assert.Equal(t, 30*time.Second, d)
		now = now.Add(d)
		b.attempted(now)
		attempts = append(attempts, now)
	}
	assert.True(t, b.persistentMode)
	for i := 1; i < len(attempts); i++ {
		assert.GreaterOrEqual(t, attempts[i].Sub(attempts[i-1]), 10*time.Second)
	}
}

func TestBackoffGapBlocksOverlappingTriggers(t *testing.T) {
	b := newBackoff()
	b.persistentMode = true
	now := time.Now()
	b.attempted(now)

	assert.Equal(t, 10*time.Second, b.gapRemaining(now))
	assert.Equal(t, 7*time.Second, b.gapRemaining(now.Add(3*time.Second)))
	assert.Zero(t, b.gapRemaining(now.Add(10*time.Second)))

	// the exponential phase never imposes a gap
	b.reset()
	assert.Zero(t, b.gapRemaining(now))
}

func TestBackoffResetReturnsToExponentialPhase(t *testing.T) {
	b := newBackoff()
	now := time.Now()
	for i := 0; i < 12; i++ {
		b.next(now)
	}
	assert.True(t, b.persistentMode)
	b.reset()
	assert.Equal(t, time.Second, b.next(now))
}

func TestBackoffCurrentDoesNotAdvance(t *testing.T) {
	b := newBackoff()
	now := time.Now()
	assert.Equal(t, time.Second, b.current(now))
	assert.Equal(t, 0, b.attempt)

	b.next(now)
	b.next(now)
	for i := 0; i < 5; i++ {
		assert.Equal(t, 2*time.Second, b.current(now))
	}
	assert.Equal(t, 2, b.attempt)
	assert.False(t, b.persistentMode)

	for i := 0; i < 10; i++ {
		b.next(now)
	}
	b.attempted(now)
	assert.True(t, b.persistentMode)
	assert.Equal(t, 30*time.Second, b.current(now))
}
