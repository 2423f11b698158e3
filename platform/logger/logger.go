// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Context key types for storing values in context
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// OperatorIDKey is the context key for the authenticated operator ID
	OperatorIDKey contextKey = "operator_id"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithContext returns a logger with request_id and operator_id extracted
// from context, when present.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	out := l

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		out = &Logger{Logger: out.With(slog.String("request_id", requestID))}
	}
	if operatorID, ok := ctx.Value(OperatorIDKey).(string); ok && operatorID != "" {
		out = &Logger{Logger: out.With(slog.String("operator_id", operatorID))}
	}

	return out
}

// WithNegotiation returns a logger scoped to one negotiation.
func (l *Logger) WithNegotiation(negotiationID string) *Logger {
	return &Logger{Logger: l.With(slog.String("negotiation_id", negotiationID))}
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// StageTransition logs a lifecycle stage change on a negotiation.
func (l *Logger) StageTransition(negotiationID, oldStage, newStage, trigger string) {
	l.Info("stage_transition",
		slog.String("negotiation_id", negotiationID),
		slog.String("old_stage", oldStage),
		slog.String("new_stage", newStage),
		slog.String("trigger", trigger),
	)
}

// ToolFailure logs a downstream failure recorded against a negotiation.
func (l *Logger) ToolFailure(negotiationID, tool string, err error) {
	l.Error("tool_failure",
		slog.String("negotiation_id", negotiationID),
		slog.String("tool", tool),
		slog.String("error", err.Error()),
	)
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// RateLimitExceeded logs rate limit events
func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("client_ip", clientIP),
		slog.String("path", path),
	)
}
