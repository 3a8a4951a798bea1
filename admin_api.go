package backplane

import (
	"github.com/kbukum/backplane/capability"
	"github.com/kbukum/backplane/errors"
	"github.com/kbukum/backplane/migration"
	"github.com/kbukum/backplane/registry"
)

// CapabilityStatus is the operator view of one capability: every
// registered provider plus the most recent migration job, if any.
type CapabilityStatus struct {
	Capability string                  `json:"capability"`
	Providers  []registry.HandleStatus `json:"providers"`
	Migration  *migration.Snapshot     `json:"migration,omitempty"`
}

// Status reports one capability.
func (o *Orchestrator) Status(cap capability.Capability) (CapabilityStatus, error) {
	providers, err := o.reg.Status(cap)
	if err != nil {
		return CapabilityStatus{}, err
	}
	out := CapabilityStatus{
		Capability: cap.String(),
		Providers:  providers,
	}
	if job, ok := o.manager.Current(cap); ok {
		snap := job.Snapshot()
		out.Migration = &snap
	}
	return out, nil
}

// StatusAll reports every capability with at least one provider.
func (o *Orchestrator) StatusAll() []CapabilityStatus {
	caps := o.reg.Capabilities()
	out := make([]CapabilityStatus, 0, len(caps))
	for _, cap := range caps {
		st, err := o.Status(cap)
		if err != nil {
			continue
		}
		out = append(out, st)
	}
	return out
}

// RequestMigration starts moving a capability to the target provider
// and returns the planned job's snapshot. The job runs in the
// background; progress is visible through Status and the event stream.
func (o *Orchestrator) RequestMigration(cap capability.Capability, targetID string, opts migration.Options) (migration.Snapshot, error) {
	job, err := o.manager.Request(cap, targetID, opts)
	if err != nil {
		return migration.Snapshot{}, err
	}
	return job.Snapshot(), nil
}

// CancelMigration cancels the capability's in-flight migration.
func (o *Orchestrator) CancelMigration(cap capability.Capability) error {
	return o.manager.Cancel(cap)
}

// ForceActivate moves the active binding by operator decree, bypassing
// health eligibility. Refused while a migration for the capability is
// in flight; cancel it first.
func (o *Orchestrator) ForceActivate(cap capability.Capability, providerID string) error {
	if job, ok := o.manager.Current(cap); ok && !job.State().Terminal() {
		return errors.MigrationInProgress(cap.String())
	}
	return o.reg.SetActive(cap, providerID, true)
}

// SetHealthOverride pins a provider's reported status, masking probes.
func (o *Orchestrator) SetHealthOverride(cap capability.Capability, providerID string, status registry.Status) error {
	return o.monitor.SetOverride(cap, providerID, status)
}

// ClearHealthOverride removes a pinned status.
func (o *Orchestrator) ClearHealthOverride(cap capability.Capability, providerID string) error {
	return o.monitor.ClearOverride(cap, providerID)
}
