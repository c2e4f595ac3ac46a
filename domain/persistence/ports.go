package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned by repositories when no row matches
var ErrNotFound = errors.New("record not found")

// RequestRepository stores request records. Metrics rows are written and
// read through the record's association.
type RequestRepository interface {
	Create(ctx context.Context, entity *RequestRecord) error
	FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*RequestRecord, error)
	FindRecent(ctx context.Context, limit int) ([]*RequestRecord, error)
}

// MetricsRepository reports over stored request metrics
type MetricsRepository interface {
	GetAggregatedMetrics(ctx context.Context, limit int) (*AggregatedMetrics, error)
}

// EventProcessor defines the interface for processing persistence events asynchronously
type EventProcessor interface {
	// Start begins processing events from the channel
	Start(ctx context.Context) error

	// Stop gracefully shuts down the event processor
	Stop() error

	// ProcessEvent sends an event to be processed asynchronously
	ProcessEvent(event interface{}) error

	// Health returns the health status of the processor
	Health() ProcessorHealth
}

// ProcessorHealth represents the health status of the event processor
type ProcessorHealth struct {
	IsRunning      bool  `json:"is_running"`
	QueueSize      int   `json:"queue_size"`
	ProcessedCount int64 `json:"processed_count"`
	ErrorCount     int64 `json:"error_count"`
}

// AggregatedMetrics represents aggregated request metrics
type AggregatedMetrics struct {
	TotalRequests    int64   `json:"total_requests"`
	FailedRequests   int64   `json:"failed_requests"`
	AverageTokens    float64 `json:"average_tokens"`
	AverageLatencyMs float64 `json:"average_latency_ms"`
	TotalTokens      int64   `json:"total_tokens"`
	TokensEstimated  bool    `json:"tokens_estimated"`
}

// DatabaseManager defines the interface for database management operations
type DatabaseManager interface {
	// Connect establishes database connection
	Connect(ctx context.Context, driver, dsn string) error

	// Close closes the database connection
	Close() error

	// Migrate runs database migrations
	Migrate() error

	// Health checks database connectivity
	Health(ctx context.Context) error

	// GetRepositories returns initialized repositories
	GetRepositories() (RequestRepository, MetricsRepository)
}

// TrackingInfo identifies the request being tracked
type TrackingInfo struct {
	ClientRequestID string
	Model           string
	CLIModel        string
	RequestData     []byte
}

// RequestTracker records finished requests
type RequestTracker interface {
	// CompleteTracking records a successful request with its response
	CompleteTracking(ctx context.Context, requestID uuid.UUID, info TrackingInfo, responseData []byte, metrics RequestMetrics) error

	// FailTracking records a failed request
	FailTracking(ctx context.Context, requestID uuid.UUID, info TrackingInfo, errorKind, errorMsg string, metrics RequestMetrics) error
}
