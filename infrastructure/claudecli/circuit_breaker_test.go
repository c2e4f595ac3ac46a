package claudecli

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/nomadictuba2005/claude-code-api/domain/chat"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockProvider is a mock implementation of chat.ProviderPort
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Run(ctx context.Context, inv *chat.Invocation) (*chat.RunResult, error) {
	args := m.Called(ctx, inv)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chat.RunResult), args.Error(1)
}

func testInvocation(prompt string) *chat.Invocation {
	return &chat.Invocation{
		Alias:    "claude-sonnet-4",
		CLIModel: "claude-sonnet-4-20250514",
		Prompt:   prompt,
	}
}

func breakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 2,
		Timeout:          time.Minute,
		MaxRequests:      1,
	}
}

func TestDefaultCircuitBreakerConfig(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, uint32(5), cfg.FailureThreshold)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
}

func TestCircuitBreakerProvider_Run_Success(t *testing.T) {
	provider := &MockProvider{}
	cb := NewCircuitBreakerProvider(provider, breakerConfig())

	inv := testInvocation("hi")
	expected := &chat.RunResult{Stdout: "hello"}
	provider.On("Run", mock.Anything, inv).Return(expected, nil)

	result, err := cb.Run(context.Background(), inv)
	require.NoError(t, err)
	assert.Equal(t, expected, result)
	assert.Equal(t, map[string]string{inv.CLIModel: "closed"}, cb.GetCircuitStates())
	provider.AssertExpectations(t)
}

func TestCircuitBreakerProvider_OpensOnUpstreamFailures(t *testing.T) {
	provider := &MockProvider{}
	cb := NewCircuitBreakerProvider(provider, breakerConfig())

	inv := testInvocation("hi")
	provider.On("Run", mock.Anything, inv).
		Return(nil, fmt.Errorf("%w: exit code 1", chat.ErrUpstreamFailure)).Times(2)

	for i := 0; i < 2; i++ {
		_, err := cb.Run(context.Background(), inv)
		assert.ErrorIs(t, err, chat.ErrUpstreamFailure)
	}

	_, err := cb.Run(context.Background(), inv)
	require.Error(t, err)
	assert.ErrorIs(t, err, chat.ErrUpstreamUnavailable)
	assert.Equal(t, "open", cb.GetCircuitStates()[inv.CLIModel])

	// The open breaker must not reach the provider
	provider.AssertNumberOfCalls(t, "Run", 2)
}

func TestCircuitBreakerProvider_IgnoresNonUpstreamErrors(t *testing.T) {
	provider := &MockProvider{}
	cb := NewCircuitBreakerProvider(provider, breakerConfig())

	inv := testInvocation("hi")
	provider.On("Run", mock.Anything, inv).Return(nil, context.Canceled)

	for i := 0; i < 4; i++ {
		_, err := cb.Run(context.Background(), inv)
		assert.ErrorIs(t, err, context.Canceled)
	}

	assert.Equal(t, "closed", cb.GetCircuitStates()[inv.CLIModel])
	provider.AssertNumberOfCalls(t, "Run", 4)
}

func TestCircuitBreakerProvider_IsolatesModels(t *testing.T) {
	provider := &MockProvider{}
	cb := NewCircuitBreakerProvider(provider, breakerConfig())

	failing := &chat.Invocation{Alias: "claude-opus-4", CLIModel: "claude-opus-4-20250514", Prompt: "hi"}
	healthy := testInvocation("hi")

	provider.On("Run", mock.Anything, failing).Return(nil, fmt.Errorf("%w: timed out", chat.ErrUpstreamTimeout))
	provider.On("Run", mock.Anything, healthy).Return(&chat.RunResult{Stdout: "ok"}, nil)

	for i := 0; i < 3; i++ {
		_, _ = cb.Run(context.Background(), failing)
	}

	_, err := cb.Run(context.Background(), healthy)
	assert.NoError(t, err)

	states := cb.GetCircuitStates()
	assert.Equal(t, "open", states[failing.CLIModel])
	assert.Equal(t, "closed", states[healthy.CLIModel])
}

func TestCircuitBreakerProvider_Disabled(t *testing.T) {
	provider := &MockProvider{}
	cb := NewCircuitBreakerProvider(provider, CircuitBreakerConfig{Enabled: false})

	inv := testInvocation("hi")
	provider.On("Run", mock.Anything, inv).Return(nil, fmt.Errorf("%w: boom", chat.ErrUpstreamFailure))

	for i := 0; i < 10; i++ {
		_, err := cb.Run(context.Background(), inv)
		assert.ErrorIs(t, err, chat.ErrUpstreamFailure)
	}

	assert.Empty(t, cb.GetCircuitStates())
	provider.AssertNumberOfCalls(t, "Run", 10)
}
