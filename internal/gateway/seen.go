package gateway

import (
	"sync"
	"time"
)

// seenSet remembers provider message ids so redelivered webhooks are
// dropped. Entries expire after the TTL; pruning happens inline on
// insert once the set grows past a soft cap.
type seenSet struct {
	mu  sync.Mutex
	ttl time.Duration
	ids map[string]time.Time
}

const seenPruneThreshold = 4096

func newSeenSet(ttl time.Duration) *seenSet {
	return &seenSet{
		ttl: ttl,
		ids: make(map[string]time.Time),
	}
}

// Observe records an id and reports whether it was already present and
// unexpired. An empty id is never deduplicated.
func (s *seenSet) Observe(id string) bool {
	if id == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if seen, ok := s.ids[id]; ok && now.Sub(seen) < s.ttl {
		return true
	}

	if len(s.ids) > seenPruneThreshold {
		for k, t := range s.ids {
			if now.Sub(t) >= s.ttl {
				delete(s.ids, k)
			}
		}
	}

	s.ids[id] = now
	return false
}
