package points

import (
	"sort"
	"sync"
)

// Directory resolves point ids to their coordinates on the map.
type Directory interface {
	Lookup(id string) (Point, bool)
}

// Catalog is an in-memory Directory.
type Catalog struct {
	mu     sync.RWMutex
	points map[string]Point
}

func NewCatalog(pts ...Point) *Catalog {
	c := &Catalog{points: make(map[string]Point, len(pts))}
	for _, p := range pts {
		c.Put(p)
	}
	return c
}

// Put adds or replaces a point. The category is always recomputed from the id.
func (c *Catalog) Put(p Point) {
	p.Category = Classify(p.ID)
	c.mu.Lock()
	c.points[p.ID] = p
	c.mu.Unlock()
}

func (c *Catalog) Lookup(id string) (Point, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.points[id]
	return p, ok
}

// IDs returns all known point ids in sorted order.
func (c *Catalog) IDs() []string {
	c.mu.RLock()
	ids := make([]string, 0, len(c.points))
	for id := range c.points {
		ids = append(ids, id)
	}
	c.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// FirstOf returns the first point (by id order) of the given category.
func (c *Catalog) FirstOf(cat Category) (Point, bool) {
	for _, id := range c.IDs() {
		p, _ := c.Lookup(id)
		if p.Category == cat {
			return p, true
		}
	}
	return Point{}, false
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.points)
}

// Delete removes a point and reports whether it was present.
func (c *Catalog) Delete(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.points[id]
	delete(c.points, id)
	return ok
}
