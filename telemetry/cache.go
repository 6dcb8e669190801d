package telemetry

import (
	"sync"
)

// ConnectionState of a device's telemetry link. Transitions are the only
// source of truth for whether cached frames should be trusted.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
)

type deviceState struct {
	state      ConnectionState
	categories map[Category]Frame
	topics     map[string]Frame
}

// Cache holds the latest frame per category (and per topic, so composite
// views can be assembled) for each device. No history is kept.
type Cache struct {
	mu      sync.RWMutex
	devices map[string]*deviceState
}

func NewCache() *Cache {
	return &Cache{devices: make(map[string]*deviceState)}
}

func (c *Cache) device(id string) *deviceState {
	d, ok := c.devices[id]
	if !ok {
		d = &deviceState{
			state:      StateDisconnected,
			categories: make(map[Category]Frame),
			topics:     make(map[string]Frame),
		}
		c.devices[id] = d
	}
	return d
}

// Put stores a frame, overwriting the previous frame of the same category.
func (c *Cache) Put(deviceID string, f Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.device(deviceID)
	d.categories[f.Category] = f
	d.topics[f.Topic] = f
}

// Get returns the last frame received for a category.
func (c *Cache) Get(deviceID string, cat Category) (Frame, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.devices[deviceID]
	if !ok {
		return Frame{}, false
	}
	f, ok := d.categories[cat]
	return f, ok
}

// Topic returns the last frame received on a topic.
func (c *Cache) Topic(deviceID, topic string) (Frame, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.devices[deviceID]
	if !ok {
		return Frame{}, false
	}
	f, ok := d.topics[topic]
	return f, ok
}

// SetConnectionState records a link transition for a device.
func (c *Cache) SetConnectionState(deviceID string, s ConnectionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.device(deviceID).state = s
}

func (c *Cache) ConnectionState(deviceID string) ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.devices[deviceID]
	if !ok {
		return StateDisconnected
	}
	return d.state
}

// Clear drops all cached frames for a device but keeps its connection state.
func (c *Cache) Clear(deviceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.device(deviceID)
	d.categories = make(map[Category]Frame)
	d.topics = make(map[string]Frame)
}
