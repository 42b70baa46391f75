// internal/browser/console.go
package browser

import "sync"

// DefaultConsoleCapacity bounds how many entries a ConsoleHub keeps for polling.
const DefaultConsoleCapacity = 5000

// ConsoleHub buffers console entries for polling and fans them out to live
// subscribers. When the buffer is full the oldest entries are dropped.
type ConsoleHub struct {
	mu       sync.Mutex
	capacity int
	buffer   []ConsoleEntry
	subs     map[int]func(ConsoleEntry)
	nextID   int
	closed   bool
}

func NewConsoleHub(capacity int) *ConsoleHub {
	if capacity <= 0 {
		capacity = DefaultConsoleCapacity
	}
	return &ConsoleHub{capacity: capacity, subs: map[int]func(ConsoleEntry){}}
}

// Add records an entry. Subscribers are called outside the lock, on the
// caller's goroutine.
func (h *ConsoleHub) Add(entry ConsoleEntry) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.buffer = append(h.buffer, entry)
	if over := len(h.buffer) - h.capacity; over > 0 {
		h.buffer = append(h.buffer[:0], h.buffer[over:]...)
	}
	fns := make([]func(ConsoleEntry), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(entry)
	}
}

// Drain returns and clears the buffered entries.
func (h *ConsoleHub) Drain() []ConsoleEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.buffer
	h.buffer = nil
	return out
}

func (h *ConsoleHub) Subscribe(fn func(ConsoleEntry)) Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	return &hubSubscription{hub: h, id: id}
}

// Close drops every subscriber; later entries are discarded.
func (h *ConsoleHub) Close() {
	h.mu.Lock()
	h.closed = true
	h.subs = map[int]func(ConsoleEntry){}
	h.buffer = nil
	h.mu.Unlock()
}

type hubSubscription struct {
	hub  *ConsoleHub
	id   int
	once sync.Once
}

func (s *hubSubscription) Close() error {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s.id)
		s.hub.mu.Unlock()
	})
	return nil
}
