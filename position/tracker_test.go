package position

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateStampsAndStores(t *testing.T) {
	tr := NewTracker()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tr.now = func() time.Time { return now }

	_, ok := tr.Latest()
	assert.False(t, ok)

	tr.Update(Position{X: 1, Y: 2, Theta: 0.3})
	p, ok := tr.Latest()
	require.True(t, ok)
	assert.Equal(t, now, p.Timestamp)
	assert.Equal(t, 1.0, p.X)

	stamped := now.Add(-time.Minute)
	tr.Update(Position{X: 5, Timestamp: stamped})
	p, _ = tr.Latest()
	assert.Equal(t, stamped, p.Timestamp)
}

func TestHistoryEvictsOldest(t *testing.T) {
	tr := NewTracker()
	for i := 0; i < HistorySize+25; i++ {
		tr.Update(Position{X: float64(i)})
	}
	h := tr.History()
	require.Len(t, h, HistorySize)
	assert.Equal(t, 25.0, h[0].X)
	assert.Equal(t, float64(HistorySize+24), h[len(h)-1].X)
}

func TestHasRecentPosition(t *testing.T) {
	tr := NewTracker()
	now := time.Now()
	tr.now = func() time.Time { return now }
	assert.False(t, tr.HasRecentPosition())

	tr.Update(Position{Timestamp: now.Add(-9 * time.Second)})
	assert.True(t, tr.HasRecentPosition())

	tr.Update(Position{Timestamp: now.Add(-10 * time.Second)})
	assert.False(t, tr.HasRecentPosition())
}

func TestDistanceTo(t *testing.T) {
	tr := NewTracker()
	_, ok := tr.DistanceTo(1, 1)
	assert.False(t, ok)

	tr.Update(Position{X: 0, Y: 0})
	d, ok := tr.DistanceTo(3, 4)
	require.True(t, ok)
	assert.InDelta(t, 5.0, d, 1e-9)
}

func TestOnUpdateDisposer(t *testing.T) {
	tr := NewTracker()
	var got []float64
	stop := tr.OnUpdate(func(p Position) { got = append(got, p.X) })
	tr.Update(Position{X: 1})
	stop()
	tr.Update(Position{X: 2})
	assert.Equal(t, []float64{1}, got)
}
