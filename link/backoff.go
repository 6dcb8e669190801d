package link

import "time"

// backoff implements the reconnect policy: capped exponential delays for the
// first maxAttempts tries, then a fixed persistent interval forever, with a
// minimum gap between attempts once persistent mode is active.
type backoff struct {
	base        time.Duration
	max         time.Duration
	maxAttempts int
	persistent  time.Duration
	minGap      time.Duration

	attempt        int
	persistentMode bool
	lastAttempt    time.Time
}

func newBackoff() backoff {
	return backoff{
		base:        time.Second,
		max:         30 * time.Second,
		maxAttempts: 10,
		persistent:  30 * time.Second,
		minGap:      10 * time.Second,
	}
}

// delay returns min(base*2^attempt, max).
func (b *backoff) delay(attempt int) time.Duration {
	if attempt >= 31 {
		return b.max
	}
	d := b.base << uint(attempt)
	if d > b.max || d <= 0 {
		return b.max
	}
	return d
}

// next returns the wait before the next attempt and advances the counter.
func (b *backoff) next(now time.Time) time.Duration {
	var d time.Duration
	if !b.persistentMode && b.attempt < b.maxAttempts {
		d = b.delay(b.attempt)
		b.attempt++
	} else {
		b.persistentMode = true
		d = b.persistent
	}
	if wait := b.gapRemaining(now); wait > d {
		d = wait
	}
	return d
}

// current returns the delay last handed out by next without advancing the
// counter, or the base delay before any failure.
func (b *backoff) current(now time.Time) time.Duration {
	var d time.Duration
	switch {
	case b.persistentMode:
		d = b.persistent
	case b.attempt == 0:
		d = b.delay(0)
	default:
		d = b.delay(b.attempt - 1)
	}
	if wait := b.gapRemaining(now); wait > d {
		d = wait
	}
	return d
}

// gapRemaining is how long to hold off before an attempt is allowed.
func (b *backoff) gapRemaining(now time.Time) time.Duration {
	if !b.persistentMode || b.lastAttempt.IsZero() {
		return 0
	}
	elapsed := now.Sub(b.lastAttempt)
	if elapsed >= b.minGap {
		return 0
	}
	return b.minGap - elapsed
}

func (b *backoff) attempted(now time.Time) {
	b.lastAttempt = now
}

func (b *backoff) reset() {
	b.attempt = 0
	b.persistentMode = false
}
