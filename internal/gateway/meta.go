package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mentxia/mordomo/internal/auth"
	"github.com/mentxia/mordomo/internal/config"
)

// metaProvider targets the official Meta Cloud API. PhoneID is the
// business phone number id.
type metaProvider struct {
	url     string
	apiKey  string
	phoneID string
}

func newMetaProvider(cfg config.GatewayConfig) *metaProvider {
	return &metaProvider{
		url:     strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		phoneID: cfg.PhoneID,
	}
}

func (p *metaProvider) Name() string { return "meta" }

type metaWebhook struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []struct {
					ID   string `json:"id"`
					From string `json:"from"`
					Type string `json:"type"`
					Text struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

func (p *metaProvider) ParseWebhook(body []byte) (*Inbound, error) {
	var payload metaWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("meta webhook: %w", err)
	}
	if len(payload.Entry) == 0 || len(payload.Entry[0].Changes) == 0 {
		return nil, nil
	}
	msgs := payload.Entry[0].Changes[0].Value.Messages
	if len(msgs) == 0 || msgs[0].Text.Body == "" {
		return nil, nil
	}
	m := msgs[0]
	return &Inbound{
		From:       auth.Normalize(m.From),
		Text:       m.Text.Body,
		ProviderID: m.ID,
	}, nil
}

func (p *metaProvider) Send(ctx context.Context, identity, text string) error {
	headers := map[string]string{"Authorization": "Bearer " + p.apiKey}
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                identity,
		"type":              "text",
		"text":              map[string]string{"body": text},
	}
	return postJSON(ctx, fmt.Sprintf("%s/%s/messages", p.url, p.phoneID), headers, payload)
}
