// Package logging assembles structured slog loggers and formatting helpers
// used across the transaction engine, CLI, and step handlers.
//
// It owns the configurable console/JSON handlers, centralizes level and
// output plumbing, and exposes context-aware helpers so engine code
// automatically tags log lines with transaction IDs and step order. The
// package also provides a no-op logger for tests and wiring code that
// cannot fail.
//
// # Logging Contract
//
// Level semantics:
//   - INFO: narrative milestones (transaction begin/commit, step started,
//     step completed).
//   - WARN: degraded behavior or user action needed (snapshot capture
//     failures, rollback steps that returned unrecoverable).
//   - ERROR: operation failed; the engine will stop or trigger rollback.
//   - DEBUG: raw diagnostics (handler stdout/stderr, snapshot payloads).
//
// # Required Fields by Level
//
// INFO logs must include:
//   - event_type: lifecycle event (e.g., "tx_begin", "step_start", "tx_commit")
//
// WARN logs must include all three fields (the "WARN triad"):
//   - event_type: what happened (e.g., "snapshot_capture_failed")
//   - error_hint: actionable next step
//   - impact: user-facing consequence (e.g., "rollback for this step will be unrecoverable")
//
// Use WarnWithContext() to enforce the WARN triad automatically.
//
// ERROR logs must include:
//   - event_type: what failed
//   - error_hint: actionable next step
//   - error (via logging.Error()): the underlying error
//
// Use ErrorWithContext() to enforce error fields automatically.
//
// Prefer these constructors over hand-rolled slog setup to ensure new
// components emit data with the same shape and routing guarantees as the
// rest of the system.
package logging
