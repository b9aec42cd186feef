// Package cart holds the images the user picked so far, in selection order.
package cart

import (
	"sync"

	"github.com/cjeanneret/pickcam/internal/logic/capture"
)

// Listener is told about every cart mutation, on the goroutine that made it.
type Listener interface {
	DidAdd(c *Cart, a *capture.Asset, newlyTaken bool)
	DidRemove(c *Cart, a *capture.Asset)
	DidReload(c *Cart)
}

// Cart is an ordered set of assets deduplicated by ID.
type Cart struct {
	mu        sync.RWMutex
	items     []*capture.Asset
	index     map[string]int
	listeners []Listener
}

// New creates an empty cart.
func New() *Cart {
	return &Cart{index: make(map[string]int)}
}

// AddListener registers l for future mutations.
func (c *Cart) AddListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Add appends a to the cart. It returns false, without notifying, when an
// asset with the same ID is already there.
func (c *Cart) Add(a *capture.Asset, newlyTaken bool) bool {
	if a == nil {
		return false
	}
	c.mu.Lock()
	if _, ok := c.index[a.ID]; ok {
		c.mu.Unlock()
		return false
	}
	c.index[a.ID] = len(c.items)
	c.items = append(c.items, a)
	ls := c.snapshotListeners()
	c.mu.Unlock()

	for _, l := range ls {
		l.DidAdd(c, a, newlyTaken)
	}
	return true
}

// Remove drops the asset with the given ID.
func (c *Cart) Remove(id string) bool {
	c.mu.Lock()
	i, ok := c.index[id]
	if !ok {
		c.mu.Unlock()
		return false
	}
	a := c.items[i]
	c.items = append(c.items[:i], c.items[i+1:]...)
	delete(c.index, id)
	for j := i; j < len(c.items); j++ {
		c.index[c.items[j].ID] = j
	}
	ls := c.snapshotListeners()
	c.mu.Unlock()

	for _, l := range ls {
		l.DidRemove(c, a)
	}
	return true
}

// Reload replaces the whole content, keeping the first of any duplicates.
func (c *Cart) Reload(assets []*capture.Asset) {
	c.mu.Lock()
	c.items = c.items[:0]
	c.index = make(map[string]int, len(assets))
	for _, a := range assets {
		if a == nil {
			continue
		}
		if _, dup := c.index[a.ID]; dup {
			continue
		}
		c.index[a.ID] = len(c.items)
		c.items = append(c.items, a)
	}
	ls := c.snapshotListeners()
	c.mu.Unlock()

	for _, l := range ls {
		l.DidReload(c)
	}
}

// Get returns the asset with the given ID.
func (c *Cart) Get(id string) (*capture.Asset, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.index[id]
	if !ok {
		return nil, false
	}
	return c.items[i], true
}

// Images returns the assets in selection order.
func (c *Cart) Images() []*capture.Asset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*capture.Asset, len(c.items))
	copy(out, c.items)
	return out
}

// Recent returns up to n assets, newest first.
func (c *Cart) Recent(n int) []*capture.Asset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if n > len(c.items) {
		n = len(c.items)
	}
	if n <= 0 {
		return nil
	}
	out := make([]*capture.Asset, 0, n)
	for i := len(c.items) - 1; len(out) < n; i-- {
		out = append(out, c.items[i])
	}
	return out
}

// Len returns the number of assets.
func (c *Cart) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Cart) snapshotListeners() []Listener {
	return append([]Listener(nil), c.listeners...)
}
