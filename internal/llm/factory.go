package llm

import (
	"fmt"

	"github.com/mentxia/mordomo/internal/config"
)

// New constructs a provider from its configuration block. Selection is
// configuration-driven: swapping providers never changes orchestration
// logic.
func New(name string, cfg config.LLMProviderConfig) (Provider, error) {
	switch cfg.Type {
	case "anthropic":
		return NewAnthropicProvider(name, cfg)
	case "openai":
		return NewOpenAIProvider(name, cfg)
	case "ollama":
		return NewOllamaProvider(name, cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider type %q for %q", cfg.Type, name)
	}
}

// FromConfig builds the active provider named by cfg.Active.
func FromConfig(cfg config.LLMConfig) (Provider, error) {
	providerCfg, ok := cfg.Providers[cfg.Active]
	if !ok {
		return nil, fmt.Errorf("active llm provider %q not defined", cfg.Active)
	}
	return New(cfg.Active, providerCfg)
}
