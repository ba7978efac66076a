package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mentxia/mordomo/internal/auth"
	"github.com/mentxia/mordomo/internal/config"
)

// wahaProvider targets a WAHA (WhatsApp HTTP API) instance.
type wahaProvider struct {
	url     string
	apiKey  string
	session string
}

func newWahaProvider(cfg config.GatewayConfig) *wahaProvider {
	session := cfg.Session
	if session == "" {
		session = "default"
	}
	return &wahaProvider{
		url:     strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		session: session,
	}
}

func (p *wahaProvider) Name() string { return "waha" }

type wahaWebhook struct {
	Event   string `json:"event"`
	Payload struct {
		ID     string `json:"id"`
		From   string `json:"from"`
		Body   string `json:"body"`
		FromMe bool   `json:"fromMe"`
	} `json:"payload"`
}

func (p *wahaProvider) ParseWebhook(body []byte) (*Inbound, error) {
	var payload wahaWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("waha webhook: %w", err)
	}
	if payload.Event != "message" || payload.Payload.Body == "" {
		return nil, nil
	}
	return &Inbound{
		From:       auth.Normalize(payload.Payload.From),
		Text:       payload.Payload.Body,
		ProviderID: payload.Payload.ID,
		FromMe:     payload.Payload.FromMe,
		Group:      strings.HasSuffix(payload.Payload.From, "@g.us"),
	}, nil
}

func (p *wahaProvider) Send(ctx context.Context, identity, text string) error {
	headers := map[string]string{}
	if p.apiKey != "" {
		headers["Authorization"] = "Bearer " + p.apiKey
	}
	return postJSON(ctx, p.url+"/api/sendText", headers, map[string]string{
		"chatId":  identity + "@c.us",
		"text":    text,
		"session": p.session,
	})
}
