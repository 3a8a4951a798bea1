// Package registry tracks provider adapters per capability and owns the
// active binding the facade routes to. Reads of the active binding are a
// single atomic load; activation changes are serialized through a
// per-capability lock so automated failover, migration cutover, and
// manual overrides never interleave into a state with zero or more than
// one active provider.
package registry
