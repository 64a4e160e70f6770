package llm

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrCircuitOpen is returned when the circuit breaker rejects a call to
// prevent cascading failures against a struggling provider.
var ErrCircuitOpen = errors.New("llm circuit breaker is open")

// BreakerConfig tunes the circuit breaker wrapping provider calls.
type BreakerConfig struct {
	// MaxFailures is the consecutive failure count that trips the circuit.
	MaxFailures uint32
	// OpenTimeout is how long the circuit stays open before allowing a
	// probe request.
	OpenTimeout time.Duration
}

// DefaultBreakerConfig trips after 5 consecutive failures and probes
// again after 30 seconds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures: 5,
		OpenTimeout: 30 * time.Second,
	}
}

// BreakerClient wraps a Client with a circuit breaker. Generation and
// embedding calls share one breaker: they hit the same provider.
type BreakerClient struct {
	inner   Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewBreakerClient wraps client with circuit breaking.
func NewBreakerClient(client Client, cfg BreakerConfig, logger *zap.Logger) *BreakerClient {
	log := logger.Named("llm.breaker")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "llm",
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &BreakerClient{inner: client, breaker: breaker, logger: log}
}

func (c *BreakerClient) execute(fn func() (any, error)) (any, error) {
	result, err := c.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		// Transient: retry backoff can outlast the open window and land
		// on a half-open probe.
		return nil, NewError(ErrorTypeEndpoint, ErrCircuitOpen.Error(), true, ErrCircuitOpen)
	}
	return result, err
}

// GenerateResponse implements Client.
func (c *BreakerClient) GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64) (string, error) {
	result, err := c.execute(func() (any, error) {
		return c.inner.GenerateResponse(ctx, prompt, systemMessage, temperature)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// CreateEmbedding implements Client.
func (c *BreakerClient) CreateEmbedding(ctx context.Context, input string, model string) ([]float32, error) {
	result, err := c.execute(func() (any, error) {
		return c.inner.CreateEmbedding(ctx, input, model)
	})
	if err != nil {
		return nil, err
	}
	return result.([]float32), nil
}

// CreateEmbeddings implements Client.
func (c *BreakerClient) CreateEmbeddings(ctx context.Context, inputs []string, model string) ([][]float32, error) {
	result, err := c.execute(func() (any, error) {
		return c.inner.CreateEmbeddings(ctx, inputs, model)
	})
	if err != nil {
		return nil, err
	}
	return result.([][]float32), nil
}

// GetModel implements Client.
func (c *BreakerClient) GetModel() string {
	return c.inner.GetModel()
}

// GetEndpoint implements Client.
func (c *BreakerClient) GetEndpoint() string {
	return c.inner.GetEndpoint()
}
