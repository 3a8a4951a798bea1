package errors

// Kind is a machine-readable error classification. Every error surfaced
// by the orchestration core carries exactly one Kind; adapter failures
// are normalized to KindAdapter at the boundary and never inspected for
// provider-specific meaning.
type Kind string

const (
	// KindNotFound indicates an unknown provider or capability.
	KindNotFound Kind = "NOT_FOUND"
	// KindUnhealthy indicates the target provider is not eligible for
	// activation.
	KindUnhealthy Kind = "UNHEALTHY"
	// KindMigrationInProgress indicates another migration is already
	// running for the capability.
	KindMigrationInProgress Kind = "MIGRATION_IN_PROGRESS"
	// KindTargetUnavailable indicates the migration target cannot accept
	// the job (unhealthy, unprobed, or already active).
	KindTargetUnavailable Kind = "TARGET_UNAVAILABLE"
	// KindVerificationFailed indicates the migration integrity check fell
	// outside the configured tolerance.
	KindVerificationFailed Kind = "VERIFICATION_FAILED"
	// KindCancelled indicates the operation was cancelled before it could
	// complete.
	KindCancelled Kind = "CANCELLED"
	// KindCircuitOpen indicates the provider's circuit breaker is open
	// and the call was short-circuited.
	KindCircuitOpen Kind = "CIRCUIT_OPEN"
	// KindTimeout indicates the operation exceeded its deadline.
	KindTimeout Kind = "TIMEOUT"
	// KindAdapter wraps an opaque underlying adapter failure.
	KindAdapter Kind = "ADAPTER_ERROR"
)

// retryableKinds are the kinds a caller (or the facade retry policy) may
// reasonably retry. Everything else is a definitive answer.
var retryableKinds = map[Kind]bool{
	KindTimeout: true,
	KindAdapter: true,
}

// IsRetryableKind reports whether errors of the given kind may be retried.
func IsRetryableKind(k Kind) bool {
	return retryableKinds[k]
}
