package chat

import (
	"context"

	"github.com/google/uuid"
)

type requestIDKey struct{}

// RequestIDs carries the identifiers the HTTP layer assigned to a request
type RequestIDs struct {
	ID       uuid.UUID
	ClientID string
}

// WithRequestIDs returns a context carrying ids
func WithRequestIDs(ctx context.Context, ids RequestIDs) context.Context {
	return context.WithValue(ctx, requestIDKey{}, ids)
}

// RequestIDsFromContext returns the ids stored by WithRequestIDs
func RequestIDsFromContext(ctx context.Context) (RequestIDs, bool) {
	ids, ok := ctx.Value(requestIDKey{}).(RequestIDs)
	return ids, ok
}
