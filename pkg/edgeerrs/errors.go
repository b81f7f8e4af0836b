// Package edgeerrs defines the error-kind taxonomy shared across the
// worker runtime: Io, ResourceExhausted, ProtocolViolation, ConfigInvalid,
// StateInvariant and Cancelled.
package edgeerrs

import "github.com/zeebo/errs"

// Class is the runtime's top-level error class, used directly for
// failures that don't fit one of the specific kinds below.
var Class = errs.Class("edgeflow")

// Kind classes, one per error-kind distinguished elsewhere in the
// runtime (retry logic, logging, reconfiguration handling).
var (
	// Io covers socket/file errors: TCP read, MQTT/Kafka driver errors,
	// file sink writes.
	Io = errs.Class("io")

	// ResourceExhausted is returned by a bounded pool drained under
	// non-blocking acquisition.
	ResourceExhausted = errs.Class("resource exhausted")

	// ProtocolViolation covers malformed network frames and unknown
	// reconfiguration kinds.
	ProtocolViolation = errs.Class("protocol violation")

	// ConfigInvalid covers a missing required source/sink option.
	ConfigInvalid = errs.Class("config invalid")

	// StateInvariant covers a detected impossibility (hash-window already
	// deleted, negative reference count). Unrecoverable.
	StateInvariant = errs.Class("state invariant")

	// Cancelled covers an operation that observed a stop signal.
	Cancelled = errs.Class("cancelled")
)

// Is reports whether err belongs to the given Kind, looking through
// wrapping performed by Class.New / Kind.Wrap.
func Is(err error, kind *errs.Class) bool {
	return kind.Has(err)
}
