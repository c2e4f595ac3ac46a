package claudecli

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockVersionChecker struct {
	mock.Mock
}

func (m *MockVersionChecker) Version(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func TestHealthProbe_CachesResult(t *testing.T) {
	checker := &MockVersionChecker{}
	checker.On("Version", mock.Anything).Return("1.0.71 (Claude Code)", nil).Once()

	probe := NewHealthProbe(checker, time.Minute)

	first := probe.Check(context.Background())
	second := probe.Check(context.Background())

	assert.True(t, first.OK)
	assert.Equal(t, "1.0.71 (Claude Code)", first.Version)
	assert.Empty(t, first.Error)
	assert.Equal(t, first, second)
	checker.AssertNumberOfCalls(t, "Version", 1)
}

func TestHealthProbe_ReportsFailure(t *testing.T) {
	checker := &MockVersionChecker{}
	checker.On("Version", mock.Anything).Return("", errors.New("executable not found: claude"))

	probe := NewHealthProbe(checker, time.Minute)
	result := probe.Check(context.Background())

	assert.False(t, result.OK)
	assert.Contains(t, result.Error, "executable not found")
	assert.False(t, result.CheckedAt.IsZero())
}

func TestHealthProbe_ExpiresAfterTTL(t *testing.T) {
	var calls atomic.Int32
	checker := &MockVersionChecker{}
	checker.On("Version", mock.Anything).
		Run(func(mock.Arguments) { calls.Add(1) }).
		Return("1.0.0", nil)

	probe := NewHealthProbe(checker, 50*time.Millisecond)
	probe.Check(context.Background())

	assert.Eventually(t, func() bool {
		probe.Check(context.Background())
		return calls.Load() >= 2
	}, time.Second, 20*time.Millisecond)
}

func TestHealthProbe_ConcurrentCallersProbeOnce(t *testing.T) {
	checker := &MockVersionChecker{}
	checker.On("Version", mock.Anything).
		After(50*time.Millisecond).
		Return("1.0.0", nil)

	probe := NewHealthProbe(checker, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, probe.Check(context.Background()).OK)
		}()
	}
	wg.Wait()

	checker.AssertNumberOfCalls(t, "Version", 1)
}

func TestHealthProbe_CanceledContextNotCached(t *testing.T) {
	checker := &MockVersionChecker{}
	checker.On("Version", mock.Anything).Return("", context.Canceled)

	probe := NewHealthProbe(checker, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	probe.Check(ctx)
	probe.Check(context.Background())

	checker.AssertNumberOfCalls(t, "Version", 2)
}
