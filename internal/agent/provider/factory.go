package provider

import (
	"context"
	"fmt"

	"github.com/moolen/sre-assistant/internal/config"
)

// New builds the oracle selected by cfg.Provider.
func New(ctx context.Context, cfg config.LLMConfig) (Provider, error) {
	common := Config{
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		APIKey:      cfg.APIKey,
	}

	switch cfg.Provider {
	case config.ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic provider requires an API key")
		}
		return NewAnthropicProvider(common), nil
	case config.ProviderGemini:
		return NewGeminiProvider(ctx, common)
	case config.ProviderHeuristic:
		return NewHeuristicProvider(0), nil
	case config.ProviderScripted:
		scenario, err := LoadScenario(cfg.ScenarioFile)
		if err != nil {
			return nil, err
		}
		return NewScriptedProvider(scenario), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
