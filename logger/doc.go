// Package logger provides structured logging for the orchestration core,
// built on rs/zerolog. Components obtain a tagged logger via WithComponent
// and attach standard fields (capability, provider, job_id) so log lines
// from the registry, health monitor, and migration manager correlate.
package logger
