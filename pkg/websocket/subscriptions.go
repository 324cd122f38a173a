package websocket

import (
	"slices"
	"sync"
)

// subscriptions tracks the stream names a session should be subscribed to.
// The set survives reconnects and is replayed by Resubscribe.
type subscriptions struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// newSubscriptions creates a subscription tracker.
func newSubscriptions() *subscriptions {
	return &subscriptions{
		active: make(map[string]struct{}),
	}
}

// Add registers streams and returns the ones that were not tracked yet.
func (s *subscriptions) Add(streams ...string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := make([]string, 0, len(streams))
	for _, stream := range streams {
		if _, exists := s.active[stream]; exists || stream == "" {
			continue
		}
		s.active[stream] = struct{}{}
		added = append(added, stream)
	}
	return added
}

// Remove deletes streams and returns the ones that were tracked.
func (s *subscriptions) Remove(streams ...string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := make([]string, 0, len(streams))
	for _, stream := range streams {
		if _, ok := s.active[stream]; !ok {
			continue
		}
		delete(s.active, stream)
		removed = append(removed, stream)
	}
	return removed
}

// List returns the tracked streams sorted by name.
func (s *subscriptions) List() []string {
	s.mu.Lock()
	list := make([]string, 0, len(s.active))
	for stream := range s.active {
		list = append(list, stream)
	}
	s.mu.Unlock()

	slices.Sort(list)
	return list
}

// Count returns the number of tracked streams.
func (s *subscriptions) Count() int {
	s.mu.Lock()
	count := len(s.active)
	s.mu.Unlock()
	return count
}
