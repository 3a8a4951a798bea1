// Package migration moves a capability's data from the active provider
// to a standby and cuts traffic over without downtime.
//
// A job walks Planned -> Copying -> Verifying -> CuttingOver ->
// Completed. Any failure before cutover leaves the active binding
// untouched: activation happens only in the CuttingOver phase, as an
// atomic swap under the capability lock. At most one job per capability
// is in flight at a time.
//
// Copying streams export units from the source with bounded concurrency
// and bounded per-unit retries. Verification compares exact record
// counts and a seeded sampled checksum. Failed jobs may purge their
// partially copied target data, either per-job (Options.RollbackOnFailure,
// yielding RolledBack) or globally (Config.PurgeOnFailure).
package migration
