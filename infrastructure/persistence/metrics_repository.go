package persistence

import (
	"context"
	"fmt"

	"github.com/nomadictuba2005/claude-code-api/domain/persistence"

	"gorm.io/gorm"
)

// MetricsRepository implements persistence.MetricsRepository
type MetricsRepository struct {
	db *gorm.DB
}

// NewMetricsRepository creates a new metrics repository
func NewMetricsRepository(db *gorm.DB) persistence.MetricsRepository {
	return &MetricsRepository{db: db}
}

// GetAggregatedMetrics summarizes the most recent limit requests, or all of
// them when limit <= 0
func (r *MetricsRepository) GetAggregatedMetrics(ctx context.Context, limit int) (*persistence.AggregatedMetrics, error) {
	db := r.db.WithContext(ctx)

	var result struct {
		TotalRequests    int64
		FailedRequests   int64
		AverageTokens    float64
		AverageLatencyMs float64
		TotalTokens      int64
	}

	query := db.Model(&persistence.RequestMetrics{}).
		Joins("JOIN requests ON requests.id = request_metrics.request_id").
		Select(`
			COUNT(*) as total_requests,
			COALESCE(SUM(CASE WHEN requests.status = ? THEN 1 ELSE 0 END), 0) as failed_requests,
			COALESCE(AVG(request_metrics.total_tokens), 0) as average_tokens,
			COALESCE(AVG(request_metrics.latency_ms), 0) as average_latency_ms,
			COALESCE(SUM(request_metrics.total_tokens), 0) as total_tokens
		`, persistence.RequestStatusFailed)

	if limit > 0 {
		subQuery := db.Model(&persistence.RequestMetrics{}).
			Select("request_id").
			Order("created_at DESC").
			Limit(limit)
		query = query.Where("request_metrics.request_id IN (?)", subQuery)
	}

	if err := query.Scan(&result).Error; err != nil {
		return nil, fmt.Errorf("failed to get aggregated metrics: %w", err)
	}

	return &persistence.AggregatedMetrics{
		TotalRequests:    result.TotalRequests,
		FailedRequests:   result.FailedRequests,
		AverageTokens:    result.AverageTokens,
		AverageLatencyMs: result.AverageLatencyMs,
		TotalTokens:      result.TotalTokens,
		TokensEstimated:  true,
	}, nil
}
