package capability

import (
	"context"
	"io"
)

// Adapter is the base contract every provider adapter implements,
// regardless of the capability it serves. The orchestration core depends
// only on this interface plus the capability-specific extension below;
// wire protocols, SDK calls, and credentials stay inside the adapter.
type Adapter interface {
	// Name returns the provider's unique identifier.
	Name() string
	// Capability returns the capability this adapter serves.
	Capability() Capability
	// Probe performs a cheap connectivity check. It must be safe to call
	// concurrently with regular operations and must honor ctx deadlines.
	Probe(ctx context.Context) error

	// Export opens a cursor over the adapter's full state as opaque
	// transfer units, used for migration bulk copy.
	Export(ctx context.Context) (UnitCursor, error)
	// Import writes one transfer unit previously produced by Export on a
	// compatible adapter. Import must be idempotent per unit key.
	Import(ctx context.Context, unit Unit) error
	// Count returns the total number of transfer units the adapter holds.
	Count(ctx context.Context) (int64, error)
	// Checksum returns a digest over the units selected by spec.
	// Two adapters holding identical state must return equal digests for
	// the same spec (see SampleSpec for the selection rule).
	Checksum(ctx context.Context, spec SampleSpec) (string, error)
	// Purge removes all units from the adapter. Used to clean up a
	// partially copied migration target when rollback is requested.
	Purge(ctx context.Context) error
}

// Unit is one opaque item of provider state moved during migration.
// The payload format is private to the capability; the core never
// inspects it.
type Unit struct {
	Key     string
	Payload []byte
}

// UnitCursor iterates transfer units. Next returns io.EOF after the last
// unit. Cursors are single-use and not safe for concurrent Next calls.
type UnitCursor interface {
	Next(ctx context.Context) (Unit, error)
	Close() error
}

// SampleSpec selects which units participate in a checksum.
//
// Selection must be deterministic so source and target agree on the
// sampled set: a unit is included when fnv32(key, Seed) scaled to [0,1)
// is below Rate. Rate 1.0 covers everything; 0 selects nothing.
type SampleSpec struct {
	// Rate is the fraction of units to sample, in [0,1].
	Rate float64
	// Seed perturbs the selection hash so repeated verifications can
	// sample different subsets.
	Seed int64
}

// DatabaseAdapter is implemented by providers serving the Database
// capability.
type DatabaseAdapter interface {
	Adapter
	Create(ctx context.Context, collection string, record Record) (string, error)
	Read(ctx context.Context, collection, id string) (Record, error)
	Update(ctx context.Context, collection, id string, record Record) error
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, collection string, q Query) ([]Record, error)
}

// AuthAdapter is implemented by providers serving the Auth capability.
type AuthAdapter interface {
	Adapter
	SignUp(ctx context.Context, creds Credentials) (Session, error)
	SignIn(ctx context.Context, creds Credentials) (Session, error)
	SignOut(ctx context.Context, token string) error
	Verify(ctx context.Context, token string) (Identity, error)
}

// StorageAdapter is implemented by providers serving the Storage
// capability.
type StorageAdapter interface {
	Adapter
	Upload(ctx context.Context, obj Object) error
	Download(ctx context.Context, bucket, key string) (Object, error)
	Remove(ctx context.Context, bucket, key string) error
	List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
}

// RealTimeAdapter is implemented by providers serving the RealTime
// capability.
type RealTimeAdapter interface {
	Adapter
	Publish(ctx context.Context, channel string, msg Message) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

// EdgeFunctionAdapter is implemented by providers serving the
// EdgeFunction capability.
type EdgeFunctionAdapter interface {
	Adapter
	Invoke(ctx context.Context, name string, payload []byte) ([]byte, error)
}

// Implements reports whether adapter satisfies the operation interface
// required for its declared capability. The registry rejects adapters
// that declare a capability they cannot serve.
func Implements(adapter Adapter) bool {
	switch adapter.Capability() {
	case Database:
		_, ok := adapter.(DatabaseAdapter)
		return ok
	case Auth:
		_, ok := adapter.(AuthAdapter)
		return ok
	case Storage:
		_, ok := adapter.(StorageAdapter)
		return ok
	case RealTime:
		_, ok := adapter.(RealTimeAdapter)
		return ok
	case EdgeFunction:
		_, ok := adapter.(EdgeFunctionAdapter)
		return ok
	default:
		return false
	}
}

// DrainCursor reads a cursor to exhaustion, invoking fn per unit, and
// closes it. Iteration stops on the first fn error.
func DrainCursor(ctx context.Context, cur UnitCursor, fn func(Unit) error) error {
	defer cur.Close()
	for {
		unit, err := cur.Next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(unit); err != nil {
			return err
		}
	}
}
