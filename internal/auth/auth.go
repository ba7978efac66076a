// Package auth implements the sender whitelist check.
//
// This is a hard boundary: it runs before any state mutation or LLM call,
// so an unauthorized sender never creates conversation state or spend.
package auth

import "strings"

// DenialReply is the fixed reply sent to unauthorized senders when the
// guard is configured to reply at all.
const DenialReply = "⛔ Não tens autorização para falar comigo. Contacta o administrador."

// Guard evaluates sender identities against a configured whitelist.
// It is a pure function of configuration state.
type Guard struct {
	allowed map[string]struct{}
}

// NewGuard builds a guard from a list of identities. Entries are
// normalized before storage. An empty list authorizes nobody.
func NewGuard(identities []string) *Guard {
	allowed := make(map[string]struct{}, len(identities))
	for _, id := range identities {
		if n := Normalize(id); n != "" {
			allowed[n] = struct{}{}
		}
	}
	return &Guard{allowed: allowed}
}

// IsAuthorized reports whether the identity is whitelisted.
func (g *Guard) IsAuthorized(identity string) bool {
	_, ok := g.allowed[Normalize(identity)]
	return ok
}

// Len returns the number of whitelisted identities.
func (g *Guard) Len() int {
	return len(g.allowed)
}

// Normalize reduces a phone-number-like handle to its digits-only form
// used as the whitelist and context key. WhatsApp JIDs like
// "3519xxxxxxxx@s.whatsapp.net" lose their server suffix.
func Normalize(identity string) string {
	if i := strings.IndexByte(identity, '@'); i >= 0 {
		identity = identity[:i]
	}
	var b strings.Builder
	b.Grow(len(identity))
	for _, r := range identity {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
