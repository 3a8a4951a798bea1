// Package facade is the provider-agnostic operation surface. Callers
// use typed sub-facades (Database, Auth, Storage, RealTime,
// EdgeFunction) and never name a provider; each call routes to the
// capability's active handle at attempt time.
//
// Per attempt the call passes through the target handle's circuit
// breaker and a per-attempt timeout. Idempotent operations retry with
// jittered exponential backoff on retryable failures; the active handle
// is re-resolved on every attempt, so calls in flight during a cutover
// finish against whichever provider holds the binding. Every call,
// successful or not, publishes an OperationEvent.
package facade
