// Package config loads and validates the mordomo configuration file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSystemPrompt is the butler persona used when the config does not
// override it. The house-state context and tool instructions are appended
// at request time by the orchestrator.
const DefaultSystemPrompt = `Tu és o Mordomo, um assistente doméstico inteligente ligado ao Home Assistant.

As tuas capacidades: controlar dispositivos, consultar estados, criar automações,
agendar tarefas recorrentes e dar informações sobre a casa.

Regras:
- Responde sempre em português de Portugal.
- Sê conciso mas simpático.
- Quando executas uma ação, confirma o que fizeste e a entidade afetada.
- Se não tens certeza, pergunta antes de agir.
- Para ações destrutivas ou que afetem segurança, pede sempre confirmação.`

// Config is the merged mordomo configuration.
type Config struct {
	Listen         string `yaml:"listen"`         // HTTP listen address for webhook + API
	DataDir        string `yaml:"dataDir"`        // persisted state (jobs.json)
	APIToken       string `yaml:"apiToken"`       // bearer token for the /api endpoints
	AllowedNumbers string `yaml:"allowedNumbers"` // comma-separated international numbers
	DenyReply      bool   `yaml:"denyReply"`      // send a fixed denial to unauthorized senders
	SystemPrompt   string `yaml:"systemPrompt"`

	ContextWindow  int `yaml:"contextWindow"`  // messages kept per conversation
	TimeoutSeconds int `yaml:"timeoutSeconds"` // per-message processing budget
	MaxToolRounds  int `yaml:"maxToolRounds"`  // tool-call loop bound

	Log           LogConfig           `yaml:"log"`
	Gateway       GatewayConfig       `yaml:"gateway"`
	LLM           LLMConfig           `yaml:"llm"`
	HomeAssistant HomeAssistantConfig `yaml:"homeAssistant"`
	Alerts        []AlertConfig       `yaml:"alerts"`
}

// LogConfig controls the global logger.
type LogConfig struct {
	Level      string `yaml:"level"`
	ShowCaller bool   `yaml:"showCaller"`
}

// GatewayConfig selects and configures the messaging gateway backend.
type GatewayConfig struct {
	Provider string `yaml:"provider"` // "bridge", "evolution", "waha", "meta"
	URL      string `yaml:"url"`      // gateway base URL
	APIKey   string `yaml:"apiKey"`
	PhoneID  string `yaml:"phoneId"` // instance name (evolution), phone id (meta)
	Session  string `yaml:"session"` // session name (waha)
}

// LLMConfig selects the active reasoning backend from a provider table.
type LLMConfig struct {
	Active    string                       `yaml:"active"`
	Providers map[string]LLMProviderConfig `yaml:"providers"`
}

// LLMProviderConfig configures a single reasoning backend instance.
type LLMProviderConfig struct {
	Type           string `yaml:"type"` // "anthropic", "openai", "ollama"
	APIKey         string `yaml:"apiKey"`
	Model          string `yaml:"model"`
	BaseURL        string `yaml:"baseURL"` // OpenAI-compatible endpoints (DeepSeek, custom)
	URL            string `yaml:"url"`     // Ollama endpoint
	MaxTokens      int    `yaml:"maxTokens"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
}

// HomeAssistantConfig configures the control-plane client.
type HomeAssistantConfig struct {
	URL      string `yaml:"url"`
	Token    string `yaml:"token"`
	Timeout  string `yaml:"timeout"` // e.g. "10s"
	Insecure bool   `yaml:"insecure"`
}

// AlertConfig is a proactive entity alert: when an entity matching Pattern
// changes state, a notification is pushed to Notify through the gateway.
type AlertConfig struct {
	Pattern string `yaml:"pattern"` // glob on entity_id, e.g. "binary_sensor.porta_*"
	Notify  string `yaml:"notify"`  // identity to notify
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() *Config {
	return &Config{
		Listen:         ":3781",
		DataDir:        defaultDataDir(),
		SystemPrompt:   DefaultSystemPrompt,
		ContextWindow:  20,
		TimeoutSeconds: 60,
		MaxToolRounds:  5,
		Log:            LogConfig{Level: "info"},
	}
}

func defaultDataDir() string {
	home, _ := os.UserHomeDir()
	return home + "/.mordomo"
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and cross-field consistency.
func (c *Config) Validate() error {
	if c.Gateway.Provider == "" {
		return fmt.Errorf("gateway.provider is required")
	}
	switch c.Gateway.Provider {
	case "bridge", "evolution", "waha", "meta":
	default:
		return fmt.Errorf("unknown gateway provider: %s", c.Gateway.Provider)
	}
	if c.Gateway.URL == "" {
		return fmt.Errorf("gateway.url is required")
	}

	if c.LLM.Active == "" {
		return fmt.Errorf("llm.active is required")
	}
	p, ok := c.LLM.Providers[c.LLM.Active]
	if !ok {
		return fmt.Errorf("llm.active %q has no entry in llm.providers", c.LLM.Active)
	}
	switch p.Type {
	case "anthropic", "openai", "ollama":
	default:
		return fmt.Errorf("llm provider %q: unknown type %q", c.LLM.Active, p.Type)
	}

	if c.ContextWindow <= 0 {
		return fmt.Errorf("contextWindow must be positive")
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeoutSeconds must be positive")
	}
	if c.MaxToolRounds <= 0 {
		return fmt.Errorf("maxToolRounds must be positive")
	}
	if c.HomeAssistant.Timeout != "" {
		if _, err := time.ParseDuration(c.HomeAssistant.Timeout); err != nil {
			return fmt.Errorf("homeAssistant.timeout: %w", err)
		}
	}
	return nil
}

// AllowedList returns the whitelist as normalized digits-only identities.
func (c *Config) AllowedList() []string {
	var out []string
	for _, n := range strings.Split(c.AllowedNumbers, ",") {
		n = strings.TrimSpace(strings.ReplaceAll(n, "+", ""))
		if n != "" {
			out = append(out, n)
		}
	}
	return out
}

// MessageTimeout returns the per-message budget as a duration.
func (c *Config) MessageTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
