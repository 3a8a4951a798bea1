// Package admin exposes the orchestrator's control operations over
// HTTP: capability status, migration request/cancel, forced activation,
// and health-status overrides. The data path never goes through here;
// this server exists for operators and test harnesses.
package admin
