package claudecli

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nomadictuba2005/claude-code-api/domain/chat"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// CircuitBreakerConfig holds configuration for circuit breaker behavior
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	FailureThreshold uint32        `yaml:"failure_threshold" json:"failure_threshold"`
	Timeout          time.Duration `yaml:"timeout" json:"timeout"`
	MaxRequests      uint32        `yaml:"max_requests" json:"max_requests"`
}

// DefaultCircuitBreakerConfig returns the defaults used when nothing is configured
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 5,                // Open after 5 consecutive upstream failures
		Timeout:          60 * time.Second, // Stay open for 60 seconds
		MaxRequests:      1,                // One trial run while half-open
	}
}

// CircuitBreakerProvider wraps a provider with one breaker per CLI model, so a
// model the CLI keeps failing on does not block the others
type CircuitBreakerProvider struct {
	provider chat.ProviderPort
	config   CircuitBreakerConfig
	breakers map[string]*gobreaker.CircuitBreaker
	mutex    sync.RWMutex
}

// NewCircuitBreakerProvider creates a new circuit breaker wrapper around a provider
func NewCircuitBreakerProvider(provider chat.ProviderPort, config CircuitBreakerConfig) *CircuitBreakerProvider {
	return &CircuitBreakerProvider{
		provider: provider,
		config:   config,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Run implements chat.ProviderPort
func (c *CircuitBreakerProvider) Run(ctx context.Context, inv *chat.Invocation) (*chat.RunResult, error) {
	if !c.config.Enabled {
		return c.provider.Run(ctx, inv)
	}

	breaker := c.getOrCreateBreaker(inv.CLIModel)
	result, err := breaker.Execute(func() (interface{}, error) {
		return c.provider.Run(ctx, inv)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			logrus.WithFields(logrus.Fields{
				"cli_model": inv.CLIModel,
				"state":     breaker.State().String(),
			}).Warn("Circuit breaker is open, failing fast")
			return nil, fmt.Errorf("%w: circuit open for model %s", chat.ErrUpstreamUnavailable, inv.CLIModel)
		}
		return nil, err
	}

	return result.(*chat.RunResult), nil
}

// GetCircuitStates returns the current state of every breaker keyed by CLI model
func (c *CircuitBreakerProvider) GetCircuitStates() map[string]string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	states := make(map[string]string, len(c.breakers))
	for model, breaker := range c.breakers {
		states[model] = breaker.State().String()
	}
	return states
}

func (c *CircuitBreakerProvider) getOrCreateBreaker(model string) *gobreaker.CircuitBreaker {
	c.mutex.RLock()
	if breaker, exists := c.breakers[model]; exists {
		c.mutex.RUnlock()
		return breaker
	}
	c.mutex.RUnlock()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	// Another goroutine might have created it while we waited
	if breaker, exists := c.breakers[model]; exists {
		return breaker
	}

	settings := gobreaker.Settings{
		Name:        fmt.Sprintf("cli-model-%s", model),
		MaxRequests: c.config.MaxRequests,
		Timeout:     c.config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= c.config.FailureThreshold
		},
		// Caller mistakes and cancellations say nothing about the CLI's health
		IsSuccessful: func(err error) bool {
			return err == nil || !chat.IsUpstreamError(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logrus.WithFields(logrus.Fields{
				"cli_model":  model,
				"from_state": from.String(),
				"to_state":   to.String(),
			}).Info("Circuit breaker state changed")
		},
	}

	breaker := gobreaker.NewCircuitBreaker(settings)
	c.breakers[model] = breaker

	logrus.WithField("cli_model", model).Debug("Created circuit breaker for model")
	return breaker
}
