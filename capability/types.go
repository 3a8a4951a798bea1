package capability

import "time"

// Record is a schemaless document handled by Database adapters.
type Record map[string]any

// Query is a minimal filter description for Database adapters.
// It is deliberately not a query language: equality filters, an optional
// sort key, and a limit. Anything richer belongs to the adapter.
type Query struct {
	// Filter matches records whose fields equal the given values.
	Filter map[string]any
	// OrderBy is the field to sort by, empty for unspecified order.
	OrderBy string
	// Descending reverses the sort order.
	Descending bool
	// Limit caps the result size, 0 for no limit.
	Limit int
}

// Credentials carry what an Auth adapter needs to establish identity.
type Credentials struct {
	Email    string
	Password string
	// Metadata holds provider-opaque attributes attached at sign-up.
	Metadata map[string]any
}

// Session is an authenticated session issued by an Auth adapter.
type Session struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

// Identity is the resolved subject of a verified token.
type Identity struct {
	UserID string
	Email  string
	Claims map[string]any
}

// Object is a stored blob with its location and content.
type Object struct {
	Bucket      string
	Key         string
	ContentType string
	Data        []byte
}

// ObjectInfo describes a stored object without its content.
type ObjectInfo struct {
	Bucket      string
	Key         string
	ContentType string
	Size        int64
}

// Message is a payload published on a real-time channel.
type Message struct {
	ID      string
	Channel string
	Data    []byte
	SentAt  time.Time
}

// Subscription is a live feed of messages on one channel.
// Close releases the subscription; after Close the channel returned by
// C is closed.
type Subscription interface {
	C() <-chan Message
	Close() error
}
