package domain

import (
	"errors"
	"fmt"
)

// ErrUpstreamUnavailable marks failures to reach the pool or reference price
// source. The health aggregator treats it as a false probe, not a crash.
var ErrUpstreamUnavailable = errors.New("upstream price source unavailable")

// ErrTradeNotFound is returned by trade stores for unknown trade ids.
var ErrTradeNotFound = errors.New("trade not found")

// ValidationError rejects a malformed trade request before any side effect.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid trade request: %s", e.Reason)
}

// SafetyViolation rejects a request the risk gate refused. No trade record
// is created for these rejections.
type SafetyViolation struct {
	Reason string
}

func (e *SafetyViolation) Error() string {
	return fmt.Sprintf("safety violation: %s", e.Reason)
}

// ExecutionFailure wraps a chain executor error raised after a trade record
// was opened. It is always reflected in the record's FAILED status and never
// propagated past the orchestrator as a bare error.
type ExecutionFailure struct {
	TradeID string
	Reason  string
}

func (e *ExecutionFailure) Error() string {
	return fmt.Sprintf("execution failed for trade %s: %s", e.TradeID, e.Reason)
}

// PersistenceError wraps a trade/config store failure. Before execution it
// aborts the submission fail-closed; after execution it is retried so that a
// terminal status update is never silently dropped.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
