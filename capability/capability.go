package capability

import "fmt"

// Capability is an enumerated kind of backend function a provider can serve.
// The set is fixed; new kinds are added as new constants.
type Capability int

const (
	// Database covers record create/read/update/delete/query operations.
	Database Capability = iota
	// Auth covers identity sign-up/sign-in/verification operations.
	Auth
	// Storage covers object upload/download/listing operations.
	Storage
	// RealTime covers channel publish/subscribe operations.
	RealTime
	// EdgeFunction covers serverless function invocation.
	EdgeFunction
)

// All returns every defined capability, in declaration order.
func All() []Capability {
	return []Capability{Database, Auth, Storage, RealTime, EdgeFunction}
}

// String returns the capability name.
func (c Capability) String() string {
	switch c {
	case Database:
		return "database"
	case Auth:
		return "auth"
	case Storage:
		return "storage"
	case RealTime:
		return "realtime"
	case EdgeFunction:
		return "edgefunction"
	default:
		return "unknown"
	}
}

// Parse converts a capability name to its Capability value.
func Parse(name string) (Capability, error) {
	switch name {
	case "database":
		return Database, nil
	case "auth":
		return Auth, nil
	case "storage":
		return Storage, nil
	case "realtime":
		return RealTime, nil
	case "edgefunction":
		return EdgeFunction, nil
	default:
		return 0, fmt.Errorf("unknown capability %q", name)
	}
}
