// Package position tracks the current and recent poses of one robot.
package position

import (
	"math"
	"sync"
	"time"
)

const (
	HistorySize = 100
	// FreshWindow is how old the latest pose may be and still count as recent.
	FreshWindow = 10 * time.Second
)

type Position struct {
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Theta     float64   `json:"theta"`
	Timestamp time.Time `json:"timestamp"`
}

type ListenerID int

// Tracker holds the latest pose and a bounded FIFO history. One tracker
// exists per device; it is only mutated through Update.
type Tracker struct {
	mu        sync.RWMutex
	latest    *Position
	history   []Position // ring buffer
	head      int
	count     int
	listeners map[ListenerID]func(Position)
	nextID    ListenerID
	now       func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		history:   make([]Position, HistorySize),
		listeners: make(map[ListenerID]func(Position)),
		now:       time.Now,
	}
}

// Update stores p as the latest position, stamping it if it carries no
// timestamp, appends it to the history and notifies listeners.
func (t *Tracker) Update(p Position) {
	t.mu.Lock()
	if p.Timestamp.IsZero() {
		p.Timestamp = t.now()
	}
	t.latest = &p
	t.history[(t.head+t.count)%HistorySize] = p
	if t.count < HistorySize {
		t.count++
	} else {
		t.head = (t.head + 1) % HistorySize
	}
	fns := make([]func(Position), 0, len(t.listeners))
	for _, fn := range t.listeners {
		fns = append(fns, fn)
	}
	t.mu.Unlock()

	for _, fn := range fns {
		fn(p)
	}
}

// Latest returns the most recent position.
func (t *Tracker) Latest() (Position, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.latest == nil {
		return Position{}, false
	}
	return *t.latest, true
}

// History returns the retained positions, oldest first.
func (t *Tracker) History() []Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Position, t.count)
	for i := 0; i < t.count; i++ {
		out[i] = t.history[(t.head+i)%HistorySize]
	}
	return out
}

// HasRecentPosition reports whether the latest position is younger than FreshWindow.
func (t *Tracker) HasRecentPosition() bool {
	p, ok := t.Latest()
	if !ok {
		return false
	}
	return t.now().Sub(p.Timestamp) < FreshWindow
}

// DistanceTo returns the Euclidean distance from the latest position. The
// second result is false when no position has been received yet.
func (t *Tracker) DistanceTo(x, y float64) (float64, bool) {
	p, ok := t.Latest()
	if !ok {
		return 0, false
	}
	return math.Hypot(x-p.X, y-p.Y), true
}

// OnUpdate registers fn for every position update. The returned func removes it.
func (t *Tracker) OnUpdate(fn func(Position)) func() {
	t.mu.Lock()
	t.nextID++
	id := t.nextID
	t.listeners[id] = fn
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		delete(t.listeners, id)
		t.mu.Unlock()
	}
}
