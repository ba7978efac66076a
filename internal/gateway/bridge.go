package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mentxia/mordomo/internal/auth"
	"github.com/mentxia/mordomo/internal/config"
)

// bridgeProvider talks to the local Baileys bridge process, which
// exposes a minimal /send endpoint and posts flat webhook payloads.
type bridgeProvider struct {
	url string
}

func newBridgeProvider(cfg config.GatewayConfig) *bridgeProvider {
	return &bridgeProvider{url: strings.TrimRight(cfg.URL, "/")}
}

func (p *bridgeProvider) Name() string { return "bridge" }

type bridgeWebhook struct {
	ID      string `json:"id"`
	From    string `json:"from"`
	Message string `json:"message"`
	Type    string `json:"type"`
	FromMe  bool   `json:"fromMe"`
	IsGroup bool   `json:"isGroup"`
}

func (p *bridgeProvider) ParseWebhook(body []byte) (*Inbound, error) {
	var payload bridgeWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("bridge webhook: %w", err)
	}
	if payload.From == "" || payload.Message == "" {
		return nil, nil
	}
	return &Inbound{
		From:       auth.Normalize(payload.From),
		Text:       payload.Message,
		ProviderID: payload.ID,
		FromMe:     payload.FromMe,
		Group:      payload.IsGroup,
	}, nil
}

func (p *bridgeProvider) Send(ctx context.Context, identity, text string) error {
	return postJSON(ctx, p.url+"/send", nil, map[string]string{
		"to":      identity,
		"message": text,
	})
}
