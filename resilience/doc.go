// Package resilience provides the cross-cutting fault-tolerance policies
// applied around provider calls: a per-provider circuit breaker, bounded
// retry with exponential backoff, and a bulkhead for limiting migration
// copy concurrency. The policies carry no provider semantics; they wrap
// arbitrary functions.
package resilience
