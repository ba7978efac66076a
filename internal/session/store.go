// Package session holds per-identity conversation state.
//
// Conversations are in-memory only: they are bounded to the most recent
// window of messages and do not survive a restart. Scheduled jobs are the
// only durable state in the system.
package session

import (
	"sync"

	. "github.com/mentxia/mordomo/internal/logging"
	"github.com/mentxia/mordomo/internal/types"
)

// DefaultWindow is the conversation window used when the store is
// constructed with a non-positive limit.
const DefaultWindow = 20

// Store owns all ConversationContext instances, one per identity,
// created lazily on first append. Operations on one identity are
// serialized; independent identities do not contend.
type Store struct {
	mu     sync.Mutex // guards the conversations map only
	window int
	convos map[string]*conversation
}

type conversation struct {
	mu       sync.Mutex
	messages []types.Message
	scratch  map[string]string
}

// NewStore creates a store with the given per-identity window.
func NewStore(window int) *Store {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Store{
		window: window,
		convos: make(map[string]*conversation),
	}
}

func (s *Store) get(identity string) *conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convos[identity]
	if !ok {
		c = &conversation{scratch: make(map[string]string)}
		s.convos[identity] = c
		L_debug("session: conversation created", "identity", identity)
	}
	return c
}

// Append adds a message to the identity's conversation, evicting the
// oldest entries once the window is exceeded.
func (s *Store) Append(identity string, msg types.Message) {
	c := s.get(identity)
	c.mu.Lock()
	defer c.mu.Unlock()

	c.messages = append(c.messages, msg)
	if over := len(c.messages) - s.window; over > 0 {
		c.messages = append([]types.Message(nil), c.messages[over:]...)
	}
}

// Snapshot returns the identity's messages in receipt order. The slice
// is a copy; callers may not observe later appends through it.
func (s *Store) Snapshot(identity string) []types.Message {
	c := s.get(identity)
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.Message(nil), c.messages...)
}

// Reset clears the identity's conversation history and scratchpad.
func (s *Store) Reset(identity string) {
	c := s.get(identity)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
	c.scratch = make(map[string]string)
	L_debug("session: conversation reset", "identity", identity)
}

// SetScratch records a free-form key/value on the identity's scratchpad
// (e.g. the last entity the user mentioned).
func (s *Store) SetScratch(identity, key, value string) {
	c := s.get(identity)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scratch[key] = value
}

// Scratch reads a scratchpad value. The second return reports presence.
func (s *Store) Scratch(identity, key string) (string, bool) {
	c := s.get(identity)
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.scratch[key]
	return v, ok
}

// Len returns the number of messages currently held for the identity.
func (s *Store) Len(identity string) int {
	c := s.get(identity)
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}
