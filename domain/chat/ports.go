package chat

import (
	"context"
	"time"
)

// Invocation is one request to the external CLI
type Invocation struct {
	Alias    string
	CLIModel string
	Prompt   string
}

// RunResult is the captured outcome of a successful CLI run
type RunResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// ProviderPort abstracts the process that produces a completion
type ProviderPort interface {
	Run(ctx context.Context, inv *Invocation) (*RunResult, error)
}

// OutputNormalizer recovers the assistant reply from raw CLI output
type OutputNormalizer interface {
	Normalize(raw string) string
}

// ExecutableStatus reports whether the external CLI can be run
type ExecutableStatus struct {
	OK        bool      `json:"ok"`
	Version   string    `json:"version,omitempty"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}
