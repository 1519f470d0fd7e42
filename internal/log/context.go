package log

import (
	"context"
	"log/slog"
)

type contextKey string

const loggerContextKey contextKey = "logger"

// IntoContext stores logger in ctx.
func IntoContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, logger)
}

// FromContext extracts a logger from ctx, falling back to the default logger.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(loggerContextKey).(*Logger); ok {
		return logger
	}
	return &Logger{
		Logger:    slog.Default(),
		component: "unknown",
	}
}

// StructuredLogger logs the lifecycle of optimistic mutations.
type StructuredLogger struct {
	logger *Logger
}

func NewStructuredLogger(logger *Logger) *StructuredLogger {
	if logger == nil {
		logger = FromContext(context.Background())
	}
	return &StructuredLogger{logger: logger.WithComponent(ComponentMutation)}
}

// LogMutationStart logs the speculative write of a mutation.
func (sl *StructuredLogger) LogMutationStart(ctx context.Context, resource, op string, namespaces []string, entries int) {
	fields := NewFields().
		WithMutation(resource, namespaces).
		WithOperation(op).
		With(FieldEntries, entries)
	sl.logger.DebugContext(ctx, "Optimistic write applied", fields.ToSlice()...)
}

// LogRollback logs a failed mutation whose snapshot was restored.
func (sl *StructuredLogger) LogRollback(ctx context.Context, resource, op string, entries int, err error) {
	fields := NewFields().
		WithOperation(op).
		With(FieldResource, resource).
		With(FieldEntries, entries).
		WithError(err)
	sl.logger.WarnContext(ctx, "Mutation failed, cache rolled back", fields.ToSlice()...)
}

// LogSettled logs the invalidation that closes every mutation.
func (sl *StructuredLogger) LogSettled(ctx context.Context, resource, op string, namespaces []string) {
	fields := NewFields().
		WithMutation(resource, namespaces).
		WithOperation(op)
	sl.logger.DebugContext(ctx, "Mutation settled", fields.ToSlice()...)
}

// LogError logs an error with structured context
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, component, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	allFields := fields.
		WithError(err).
		WithOperation(operation)
	sl.logger.WithComponent(component).ErrorContext(ctx, msg, allFields.ToSlice()...)
}
