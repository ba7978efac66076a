// Package gateway adapts messaging providers to the canonical
// inbound/outbound message model. One Provider implementation exists
// per supported webhook and send-endpoint shape.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mentxia/mordomo/internal/config"
)

// Inbound is a normalized incoming message.
type Inbound struct {
	From       string // sender identity, digits only
	Text       string
	ProviderID string // provider message id, dedupe key under redelivery
	FromMe     bool
	Group      bool
}

// Provider is the per-backend gateway contract. ParseWebhook returns
// (nil, nil) for events that carry no text message, such as delivery
// receipts or status updates.
type Provider interface {
	Name() string
	ParseWebhook(body []byte) (*Inbound, error)
	Send(ctx context.Context, identity, text string) error
}

// New builds the configured provider.
func New(cfg config.GatewayConfig) (Provider, error) {
	switch cfg.Provider {
	case "bridge":
		return newBridgeProvider(cfg), nil
	case "evolution":
		return newEvolutionProvider(cfg), nil
	case "waha":
		return newWahaProvider(cfg), nil
	case "meta":
		return newMetaProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown gateway provider: %s", cfg.Provider)
	}
}

// sendHTTPClient is shared by all providers: sends are short calls and
// the per-request context already bounds them.
var sendHTTPClient = &http.Client{Timeout: 30 * time.Second}

// postJSON posts a JSON payload and fails on any non-2xx status.
func postJSON(ctx context.Context, url string, headers map[string]string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := sendHTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(detail))
	}
	return nil
}
