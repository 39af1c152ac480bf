package tracing

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// InvocationIDKey is the context key for the agent invocation ID
	InvocationIDKey ContextKey = "invocation_id"
	// ToolKey is the context key for the invoked tool name
	ToolKey ContextKey = "tool"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID      string
	InvocationID string
	Tool         string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithInvocationID adds an invocation ID to the context
func WithInvocationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, InvocationIDKey, id)
}

// WithTool adds a tool name to the context
func WithTool(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ToolKey, name)
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// GetInvocationID retrieves the invocation ID from the context
func GetInvocationID(ctx context.Context) string {
	if id, ok := ctx.Value(InvocationIDKey).(string); ok {
		return id
	}
	return ""
}

// GetTool retrieves the tool name from the context
func GetTool(ctx context.Context) string {
	if name, ok := ctx.Value(ToolKey).(string); ok {
		return name
	}
	return ""
}

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:      GetTraceID(ctx),
		InvocationID: GetInvocationID(ctx),
		Tool:         GetTool(ctx),
	}
}

// NewRequestContext creates a new context for a request with a new trace ID
func NewRequestContext(ctx context.Context) context.Context {
	return WithTraceID(ctx, NewTraceID())
}

// LoggerFromContext adds the context's tracing fields to logger
func LoggerFromContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)

	if tc.TraceID == "" && tc.InvocationID == "" && tc.Tool == "" {
		return logger
	}

	lc := logger.With()
	if tc.TraceID != "" {
		lc = lc.Str("trace_id", tc.TraceID)
	}
	if tc.InvocationID != "" {
		lc = lc.Str("invocation_id", tc.InvocationID)
	}
	if tc.Tool != "" {
		lc = lc.Str("tool", tc.Tool)
	}
	return lc.Logger()
}
