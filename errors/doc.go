// Package errors provides the fixed error taxonomy for the orchestration
// core. Adapter-level failures are normalized to one of these kinds at
// the registry/facade boundary; the core never branches on
// provider-specific error content.
package errors
