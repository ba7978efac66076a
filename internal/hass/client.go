// Package hass wraps the Home Assistant control plane: the REST API for
// service calls, state queries and automation config, plus a WebSocket
// watcher for proactive state-change alerts.
package hass

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/mentxia/mordomo/internal/config"
	. "github.com/mentxia/mordomo/internal/logging"
)

// Client wraps the Home Assistant REST API. It handles authentication
// and TLS configuration and exposes the narrow contract the executor
// depends on: service calls, state reads and automation config.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient creates a new Home Assistant API client.
func NewClient(cfg config.HomeAssistantConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("home assistant URL not configured")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("home assistant token not configured")
	}

	timeout := 10 * time.Second
	if cfg.Timeout != "" {
		var err error
		timeout, err = time.ParseDuration(cfg.Timeout)
		if err != nil {
			L_warn("hass: invalid timeout, using default", "timeout", cfg.Timeout, "error", err)
			timeout = 10 * time.Second
		}
	}

	transport := &http.Transport{}
	if cfg.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // HASS instances may use private SSL certs
		L_debug("hass: TLS verification disabled (insecure mode)")
	}

	baseURL := strings.TrimSuffix(cfg.URL, "/")
	L_debug("hass: client created", "url", baseURL, "timeout", timeout)

	return &Client{
		baseURL: baseURL,
		token:   cfg.Token,
		client:  &http.Client{Timeout: timeout, Transport: transport},
	}, nil
}

// Get performs a GET request and returns the raw JSON response.
func (c *Client) Get(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, "GET", path, nil)
}

// Post performs a POST request and returns the raw JSON response.
func (c *Client) Post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.do(ctx, "POST", path, body)
}

func (c *Client) do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = strings.NewReader(string(jsonBody))
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseError(resp.StatusCode, respBody)
	}

	L_debug("hass: request completed", "method", method, "path", path, "status", resp.StatusCode, "bytes", len(respBody))
	return json.RawMessage(respBody), nil
}

// Error represents an error from the Home Assistant API.
type Error struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Status, e.Message)
	}
	return e.Status
}

func parseError(statusCode int, body []byte) error {
	status := http.StatusText(statusCode)
	if status == "" {
		status = fmt.Sprintf("%d", statusCode)
	} else {
		status = fmt.Sprintf("%d %s", statusCode, status)
	}

	var errResp struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
		return &Error{StatusCode: statusCode, Status: status, Message: errResp.Message}
	}
	if len(body) > 0 && len(body) < 200 {
		return &Error{StatusCode: statusCode, Status: status, Message: string(body)}
	}
	return &Error{StatusCode: statusCode, Status: status}
}

// CallService invokes domain.service with the given data. The data map
// carries both target (entity_id) and service fields, mirroring the HA
// REST contract. Not idempotent; the caller decides retry policy.
func (c *Client) CallService(ctx context.Context, domain, service string, data map[string]any) error {
	path := fmt.Sprintf("/api/services/%s/%s", domain, service)
	_, err := c.Post(ctx, path, data)
	return err
}

// GetState reads a single entity state.
func (c *Client) GetState(ctx context.Context, entityID string) (*State, error) {
	raw, err := c.Get(ctx, "/api/states/"+entityID)
	if err != nil {
		return nil, err
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("failed to parse state: %w", err)
	}
	return &st, nil
}

// GetStates reads all entity states.
func (c *Client) GetStates(ctx context.Context) ([]State, error) {
	raw, err := c.Get(ctx, "/api/states")
	if err != nil {
		return nil, err
	}
	var states []State
	if err := json.Unmarshal(raw, &states); err != nil {
		return nil, fmt.Errorf("failed to parse states: %w", err)
	}
	return states, nil
}

// CreateAutomation writes an automation config under the given id and
// reloads automations. On rejection nothing is persisted on our side;
// the HA error is surfaced verbatim.
func (c *Client) CreateAutomation(ctx context.Context, id string, spec map[string]any) error {
	if _, err := c.Post(ctx, "/api/config/automation/config/"+id, spec); err != nil {
		return err
	}
	if err := c.CallService(ctx, "automation", "reload", nil); err != nil {
		L_warn("hass: automation reload failed", "id", id, "error", err)
		return fmt.Errorf("automation %s created but reload failed: %w", id, err)
	}
	return nil
}

// IsAvailable checks if the Home Assistant API is reachable.
func (c *Client) IsAvailable(ctx context.Context) bool {
	_, err := c.Get(ctx, "/api/")
	return err == nil
}

// Summary builds a compact house-state overview grouped by domain, used
// to prime the reasoning backend with current context. Best effort: the
// caller degrades gracefully when this fails.
func (c *Client) Summary(ctx context.Context, maxPerDomain int) (string, error) {
	states, err := c.GetStates(ctx)
	if err != nil {
		return "", err
	}
	if maxPerDomain <= 0 {
		maxPerDomain = 10
	}

	byDomain := make(map[string][]State)
	for _, st := range states {
		domain, _, ok := strings.Cut(st.EntityID, ".")
		if !ok {
			continue
		}
		switch domain {
		case "light", "switch", "climate", "cover", "lock", "sensor", "binary_sensor", "alarm_control_panel", "media_player":
			byDomain[domain] = append(byDomain[domain], st)
		}
	}

	domains := make([]string, 0, len(byDomain))
	for d := range byDomain {
		domains = append(domains, d)
	}
	sort.Strings(domains)

	var b strings.Builder
	for _, d := range domains {
		entities := byDomain[d]
		fmt.Fprintf(&b, "%s (%d):\n", d, len(entities))
		if len(entities) > maxPerDomain {
			entities = entities[:maxPerDomain]
		}
		for _, st := range entities {
			line := fmt.Sprintf("  - %s: %s", st.FriendlyName(), st.State)
			if unit := st.Unit(); unit != "" {
				line += " " + unit
			}
			b.WriteString(line + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
