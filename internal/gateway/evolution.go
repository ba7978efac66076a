package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mentxia/mordomo/internal/auth"
	"github.com/mentxia/mordomo/internal/config"
)

// evolutionProvider targets a self-hosted Evolution API instance.
// PhoneID is the instance name.
type evolutionProvider struct {
	url      string
	apiKey   string
	instance string
}

func newEvolutionProvider(cfg config.GatewayConfig) *evolutionProvider {
	return &evolutionProvider{
		url:      strings.TrimRight(cfg.URL, "/"),
		apiKey:   cfg.APIKey,
		instance: cfg.PhoneID,
	}
}

func (p *evolutionProvider) Name() string { return "evolution" }

type evolutionWebhook struct {
	Event string `json:"event"`
	Data  struct {
		Key struct {
			ID        string `json:"id"`
			RemoteJid string `json:"remoteJid"`
			FromMe    bool   `json:"fromMe"`
		} `json:"key"`
		Message struct {
			Conversation        string `json:"conversation"`
			ExtendedTextMessage struct {
				Text string `json:"text"`
			} `json:"extendedTextMessage"`
		} `json:"message"`
	} `json:"data"`
}

func (p *evolutionProvider) ParseWebhook(body []byte) (*Inbound, error) {
	var payload evolutionWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("evolution webhook: %w", err)
	}
	if payload.Event != "messages.upsert" && payload.Event != "MESSAGES_UPSERT" {
		return nil, nil
	}

	text := payload.Data.Message.Conversation
	if text == "" {
		text = payload.Data.Message.ExtendedTextMessage.Text
	}
	if text == "" {
		return nil, nil
	}

	jid := payload.Data.Key.RemoteJid
	return &Inbound{
		From:       auth.Normalize(jid),
		Text:       text,
		ProviderID: payload.Data.Key.ID,
		FromMe:     payload.Data.Key.FromMe,
		Group:      strings.HasSuffix(jid, "@g.us"),
	}, nil
}

func (p *evolutionProvider) Send(ctx context.Context, identity, text string) error {
	headers := map[string]string{"apikey": p.apiKey}
	return postJSON(ctx, fmt.Sprintf("%s/message/sendText/%s", p.url, p.instance), headers, map[string]string{
		"number": identity,
		"text":   text,
	})
}
