// Package health probes registered providers on a fixed interval and
// tracks their liveness. Transitions follow "fast recovery, slow
// condemnation": one failed probe degrades a provider, a configurable
// streak condemns it, and any success restores it immediately. The
// monitor only observes and reports; moving the active binding is left
// to the opt-in Failover policy or to operators.
package health
