package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldTransactionID is the standardized structured logging key for transaction identifiers.
	FieldTransactionID = "transaction_id"
	// FieldStepOrder is the standardized structured logging key for a step's position within a transaction.
	FieldStepOrder = "step_order"
	// FieldStepType is the standardized structured logging key for a step's kind (apt_package, file_copy, ...).
	FieldStepType = "step_type"
	// FieldPackageName is the standardized structured logging key for the manifest package name.
	FieldPackageName = "package_name"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
	// FieldEventType categorizes lifecycle events (tx_begin, step_start, tx_commit, rollback_step, etc.).
	FieldEventType = "event_type"
	// FieldErrorKind captures the error taxonomy (validation/journal/step_execution/etc.).
	FieldErrorKind = "error_kind"
	// FieldErrorHint provides a short hint for recovery.
	FieldErrorHint = "error_hint"
)

type transactionIDKey struct{}
type stepOrderKey struct{}

// WithTransactionID returns a context carrying the transaction identifier for log enrichment.
func WithTransactionID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, transactionIDKey{}, id)
}

// WithStepOrder returns a context carrying the current step order for log enrichment.
func WithStepOrder(ctx context.Context, order int) context.Context {
	return context.WithValue(ctx, stepOrderKey{}, order)
}

func transactionIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(transactionIDKey{}).(int64)
	return id, ok
}

func stepOrderFromContext(ctx context.Context) (int, bool) {
	order, ok := ctx.Value(stepOrderKey{}).(int)
	return order, ok
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 2)
	if id, ok := transactionIDFromContext(ctx); ok {
		fields = append(fields, slog.Int64(FieldTransactionID, id))
	}
	if order, ok := stepOrderFromContext(ctx); ok {
		fields = append(fields, slog.Int(FieldStepOrder, order))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
