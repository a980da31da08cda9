package common

import (
	"context"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRequestID contextKey = "request_id"
	ContextKeyItemID    contextKey = "item_id"
)

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// RequestIDFromContext extracts the request ID from context
func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

// WithItemID tags the context with the work item being processed
func WithItemID(ctx context.Context, itemID string) context.Context {
	return context.WithValue(ctx, ContextKeyItemID, itemID)
}

// ItemIDFromContext extracts the work item identifier from context
func ItemIDFromContext(ctx context.Context) string {
	if itemID, ok := ctx.Value(ContextKeyItemID).(string); ok {
		return itemID
	}
	return ""
}
