package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	. "github.com/mentxia/mordomo/internal/logging"
)

// MaxMessageLength is the chunk size for outbound delivery; longer
// replies are split across multiple sends.
const MaxMessageLength = 4000

const (
	sendAttempts = 3
	sendBackoff  = 2 * time.Second
	dedupeTTL    = 10 * time.Minute
)

// DeliveryError reports a send that failed after all retry attempts.
type DeliveryError struct {
	Identity string
	Attempts int
	Cause    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to %s failed after %d attempts: %v", e.Identity, e.Attempts, e.Cause)
}

func (e *DeliveryError) Unwrap() error { return e.Cause }

// InboundHandler consumes a deduplicated inbound message.
type InboundHandler func(msg *Inbound)

// Adapter wraps a Provider with redelivery dedupe on the inbound side
// and chunked, retried delivery on the outbound side.
type Adapter struct {
	provider Provider
	seen     *seenSet
	handler  InboundHandler
	backoff  time.Duration
}

func NewAdapter(provider Provider) *Adapter {
	return &Adapter{
		provider: provider,
		seen:     newSeenSet(dedupeTTL),
		backoff:  sendBackoff,
	}
}

// SetHandler wires the inbound consumer. Must be set before the HTTP
// server starts accepting webhooks.
func (a *Adapter) SetHandler(h InboundHandler) {
	a.handler = h
}

// ProviderName reports the active backend name.
func (a *Adapter) ProviderName() string {
	return a.provider.Name()
}

// HandleInbound normalizes and dispatches one webhook body. Own and
// group messages are dropped, as are redeliveries of a seen message id.
func (a *Adapter) HandleInbound(body []byte) error {
	msg, err := a.provider.ParseWebhook(body)
	if err != nil {
		return err
	}
	if msg == nil {
		return nil
	}
	if msg.FromMe || msg.Group {
		L_debug("gateway: ignoring message", "from", msg.From, "fromMe", msg.FromMe, "group", msg.Group)
		return nil
	}
	if a.seen.Observe(msg.ProviderID) {
		L_debug("gateway: duplicate webhook dropped", "id", msg.ProviderID, "from", msg.From)
		return nil
	}

	L_info("gateway: inbound message", "from", msg.From, "length", len(msg.Text))
	if a.handler != nil {
		a.handler(msg)
	}
	return nil
}

// Send delivers text to an identity, splitting long replies and
// retrying each chunk with bounded backoff. Retrying here is safe
// because message delivery is idempotent from the user's perspective;
// control-plane calls never are and never come through this path.
func (a *Adapter) Send(ctx context.Context, identity, text string) error {
	for _, chunk := range SplitMessage(text, MaxMessageLength) {
		if err := a.sendChunk(ctx, identity, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) sendChunk(ctx context.Context, identity, chunk string) error {
	var lastErr error
	for attempt := 1; attempt <= sendAttempts; attempt++ {
		lastErr = a.provider.Send(ctx, identity, chunk)
		if lastErr == nil {
			L_debug("gateway: sent", "to", identity, "length", len(chunk), "attempt", attempt)
			return nil
		}
		L_warn("gateway: send failed", "to", identity, "attempt", attempt, "error", lastErr)

		if attempt < sendAttempts {
			select {
			case <-ctx.Done():
				return &DeliveryError{Identity: identity, Attempts: attempt, Cause: ctx.Err()}
			case <-time.After(time.Duration(attempt) * a.backoff):
			}
		}
	}
	return &DeliveryError{Identity: identity, Attempts: sendAttempts, Cause: lastErr}
}

// SplitMessage splits text into chunks of at most limit runes,
// preferring newline boundaries, then spaces, before cutting hard.
func SplitMessage(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(runes) > limit {
		cut := limit
		window := string(runes[:limit])
		if i := strings.LastIndexByte(window, '\n'); i > limit/2 {
			cut = len([]rune(window[:i]))
		} else if i := strings.LastIndexByte(window, ' '); i > limit/2 {
			cut = len([]rune(window[:i]))
		}
		chunks = append(chunks, strings.TrimSpace(string(runes[:cut])))
		runes = runes[cut:]
	}
	if rest := strings.TrimSpace(string(runes)); rest != "" {
		chunks = append(chunks, rest)
	}
	return chunks
}
