// Package event implements the notification stream for the orchestration
// core: health transitions, migration state changes, and facade operation
// completions, delivered through an explicit subscription list plus an
// append-only per-capability log. Modeling notifications as message
// passing rather than callback webs keeps ordering and at-least-once
// delivery guarantees explicit and testable.
package event
