package transport

import (
	"sync"

	"github.com/terravision/gaze-calibration/internal/driver"
)

// #region hub
// Hub fans raw gaze samples out to every subscriber.
type Hub struct {
	mu   sync.RWMutex
	next int
	subs map[int]func(driver.GazeSample)
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]func(driver.GazeSample))}
}

// Subscribe registers fn until the returned function is called.
func (h *Hub) Subscribe(fn func(driver.GazeSample)) func() {
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// Publish delivers g to every current subscriber.
func (h *Hub) Publish(g driver.GazeSample) {
	h.mu.RLock()
	fns := make([]func(driver.GazeSample), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		fn(g)
	}
}

// Subscribers reports how many subscribers are registered.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// #endregion hub
