// Package capability defines the contracts between the orchestration core
// and provider adapters.
//
// A Capability is a category of backend function (Database, Auth, Storage,
// RealTime, EdgeFunction). Each capability has a narrow adapter interface
// combining the base Adapter contract (probe, bulk export/import, checksum)
// with capability-specific operations. Providers are selected at runtime by
// identifier, never by concrete type, so new backends can be added without
// touching core logic.
//
// Adapters are supplied externally. The core never sees wire protocols,
// SDK types, or credentials — only these interfaces and the opaque Unit
// payloads moved during migration.
package capability
