package llm

import (
	"fmt"

	"go.uber.org/zap"
)

// NewClient creates a provider client based on cfg.Provider. The result
// is wrapped in a circuit breaker so repeated provider failures fail fast
// instead of stacking up timeouts.
func NewClient(cfg *Config, logger *zap.Logger) (Client, error) {
	var (
		client Client
		err    error
	)

	switch cfg.Provider {
	case "", "openai":
		client, err = NewOpenAIClient(cfg, logger)
	case "anthropic":
		client, err = NewAnthropicClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	return NewBreakerClient(client, DefaultBreakerConfig(), logger), nil
}
