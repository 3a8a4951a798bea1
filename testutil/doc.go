// Package testutil provides in-memory mock adapters for every capability
// plus event-collection helpers. It is the toolkit the external
// validation harness and this module's own tests drive conformance and
// failure scenarios with: probes can be scripted to fail, delayed past
// timeouts, and the adapters implement the full bulk export/import and
// checksum contract so migrations run end to end in memory.
package testutil
