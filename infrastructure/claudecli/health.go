package claudecli

import (
	"context"
	"sync"
	"time"

	"github.com/nomadictuba2005/claude-code-api/domain/chat"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
)

// DefaultProbeTTL is how long a probe result is reused
const DefaultProbeTTL = 30 * time.Second

const probeKey = "cli"

// VersionChecker reports the version of the external CLI
type VersionChecker interface {
	Version(ctx context.Context) (string, error)
}

// HealthProbe checks that the CLI can be executed. Results are cached so
// health traffic spawns at most one process per TTL.
type HealthProbe struct {
	checker VersionChecker
	cache   *expirable.LRU[string, chat.ExecutableStatus]
	mu      sync.Mutex
}

// NewHealthProbe creates a probe; a non-positive ttl uses DefaultProbeTTL
func NewHealthProbe(checker VersionChecker, ttl time.Duration) *HealthProbe {
	if ttl <= 0 {
		ttl = DefaultProbeTTL
	}
	return &HealthProbe{
		checker: checker,
		cache:   expirable.NewLRU[string, chat.ExecutableStatus](1, nil, ttl),
	}
}

// Check returns the cached result or runs a fresh probe
func (p *HealthProbe) Check(ctx context.Context) chat.ExecutableStatus {
	if result, ok := p.cache.Get(probeKey); ok {
		return result
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// A concurrent caller may have refreshed it while we waited
	if result, ok := p.cache.Get(probeKey); ok {
		return result
	}

	result := chat.ExecutableStatus{CheckedAt: time.Now().UTC()}
	version, err := p.checker.Version(ctx)
	if err != nil {
		result.Error = err.Error()
		logrus.WithError(err).Warn("CLI health probe failed")
	} else {
		result.OK = true
		result.Version = version
	}

	// Do not pin a result caused by the caller going away
	if ctx.Err() == nil {
		p.cache.Add(probeKey, result)
	}
	return result
}
