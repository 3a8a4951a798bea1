// Package observability exports the orchestrator's telemetry over OTLP:
// a metric bundle for facade operations, health transitions, and
// migration progress, plus a tracer provider for manual spans.
//
// Core packages never import this one. The Recorder subscribes to the
// event bus and translates events into instrument updates, so telemetry
// stays a pure consumer of the same stream tests and operators see.
package observability
