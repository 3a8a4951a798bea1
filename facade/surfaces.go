package facade

import (
	"context"

	"github.com/kbukum/backplane/capability"
)

// Database is the facade over the active Database provider.
//
// Read, Update, Delete, and Query retry on retryable failures; Create is
// not retried because a timed-out first attempt may have committed.
type Database struct{ f *Facade }

// Create inserts a record and returns its ID.
func (d *Database) Create(ctx context.Context, collection string, record capability.Record) (string, error) {
	var id string
	err := d.f.do(ctx, capability.Database, "database.create", false, func(ctx context.Context, a capability.Adapter) error {
		var err error
		id, err = a.(capability.DatabaseAdapter).Create(ctx, collection, record)
		return err
	})
	return id, err
}

// Read fetches one record by ID.
func (d *Database) Read(ctx context.Context, collection, id string) (capability.Record, error) {
	var rec capability.Record
	err := d.f.do(ctx, capability.Database, "database.read", true, func(ctx context.Context, a capability.Adapter) error {
		var err error
		rec, err = a.(capability.DatabaseAdapter).Read(ctx, collection, id)
		return err
	})
	return rec, err
}

// Update replaces a record by ID.
func (d *Database) Update(ctx context.Context, collection, id string, record capability.Record) error {
	return d.f.do(ctx, capability.Database, "database.update", true, func(ctx context.Context, a capability.Adapter) error {
		return a.(capability.DatabaseAdapter).Update(ctx, collection, id, record)
	})
}

// Delete removes a record by ID.
func (d *Database) Delete(ctx context.Context, collection, id string) error {
	return d.f.do(ctx, capability.Database, "database.delete", true, func(ctx context.Context, a capability.Adapter) error {
		return a.(capability.DatabaseAdapter).Delete(ctx, collection, id)
	})
}

// Query returns the records matching q.
func (d *Database) Query(ctx context.Context, collection string, q capability.Query) ([]capability.Record, error) {
	var recs []capability.Record
	err := d.f.do(ctx, capability.Database, "database.query", true, func(ctx context.Context, a capability.Adapter) error {
		var err error
		recs, err = a.(capability.DatabaseAdapter).Query(ctx, collection, q)
		return err
	})
	return recs, err
}

// Auth is the facade over the active Auth provider. Only the read-only
// Verify retries; sign-up/in/out each take effect at most once.
type Auth struct{ f *Facade }

// SignUp registers a new identity and returns its first session.
func (a *Auth) SignUp(ctx context.Context, creds capability.Credentials) (capability.Session, error) {
	var sess capability.Session
	err := a.f.do(ctx, capability.Auth, "auth.signup", false, func(ctx context.Context, ad capability.Adapter) error {
		var err error
		sess, err = ad.(capability.AuthAdapter).SignUp(ctx, creds)
		return err
	})
	return sess, err
}

// SignIn authenticates and returns a session.
func (a *Auth) SignIn(ctx context.Context, creds capability.Credentials) (capability.Session, error) {
	var sess capability.Session
	err := a.f.do(ctx, capability.Auth, "auth.signin", false, func(ctx context.Context, ad capability.Adapter) error {
		var err error
		sess, err = ad.(capability.AuthAdapter).SignIn(ctx, creds)
		return err
	})
	return sess, err
}

// SignOut revokes a session token.
func (a *Auth) SignOut(ctx context.Context, token string) error {
	return a.f.do(ctx, capability.Auth, "auth.signout", false, func(ctx context.Context, ad capability.Adapter) error {
		return ad.(capability.AuthAdapter).SignOut(ctx, token)
	})
}

// Verify resolves the identity behind a token.
func (a *Auth) Verify(ctx context.Context, token string) (capability.Identity, error) {
	var id capability.Identity
	err := a.f.do(ctx, capability.Auth, "auth.verify", true, func(ctx context.Context, ad capability.Adapter) error {
		var err error
		id, err = ad.(capability.AuthAdapter).Verify(ctx, token)
		return err
	})
	return id, err
}

// Storage is the facade over the active Storage provider. Upload is
// keyed and overwrite-idempotent, so every operation retries.
type Storage struct{ f *Facade }

// Upload stores an object at its bucket/key.
func (s *Storage) Upload(ctx context.Context, obj capability.Object) error {
	return s.f.do(ctx, capability.Storage, "storage.upload", true, func(ctx context.Context, a capability.Adapter) error {
		return a.(capability.StorageAdapter).Upload(ctx, obj)
	})
}

// Download fetches an object.
func (s *Storage) Download(ctx context.Context, bucket, key string) (capability.Object, error) {
	var obj capability.Object
	err := s.f.do(ctx, capability.Storage, "storage.download", true, func(ctx context.Context, a capability.Adapter) error {
		var err error
		obj, err = a.(capability.StorageAdapter).Download(ctx, bucket, key)
		return err
	})
	return obj, err
}

// Remove deletes an object.
func (s *Storage) Remove(ctx context.Context, bucket, key string) error {
	return s.f.do(ctx, capability.Storage, "storage.remove", true, func(ctx context.Context, a capability.Adapter) error {
		return a.(capability.StorageAdapter).Remove(ctx, bucket, key)
	})
}

// List returns object metadata under a bucket/prefix.
func (s *Storage) List(ctx context.Context, bucket, prefix string) ([]capability.ObjectInfo, error) {
	var infos []capability.ObjectInfo
	err := s.f.do(ctx, capability.Storage, "storage.list", true, func(ctx context.Context, a capability.Adapter) error {
		var err error
		infos, err = a.(capability.StorageAdapter).List(ctx, bucket, prefix)
		return err
	})
	return infos, err
}

// RealTime is the facade over the active RealTime provider. Publish is
// at-most-once from the facade's view (no retry: a duplicate publish is
// a visible duplicate message).
type RealTime struct{ f *Facade }

// Publish sends a message to a channel.
func (r *RealTime) Publish(ctx context.Context, channel string, msg capability.Message) error {
	return r.f.do(ctx, capability.RealTime, "realtime.publish", false, func(ctx context.Context, a capability.Adapter) error {
		return a.(capability.RealTimeAdapter).Publish(ctx, channel, msg)
	})
}

// Subscribe opens a live feed on a channel. The subscription is bound to
// the provider that was active at call time; it does not follow
// cutovers. Callers resubscribe after a migration completes.
func (r *RealTime) Subscribe(ctx context.Context, channel string) (capability.Subscription, error) {
	var sub capability.Subscription
	err := r.f.do(ctx, capability.RealTime, "realtime.subscribe", false, func(ctx context.Context, a capability.Adapter) error {
		var err error
		sub, err = a.(capability.RealTimeAdapter).Subscribe(ctx, channel)
		return err
	})
	return sub, err
}

// Unsubscribe closes a subscription previously returned by Subscribe.
func (r *RealTime) Unsubscribe(sub capability.Subscription) error {
	if sub == nil {
		return nil
	}
	return sub.Close()
}

// EdgeFunction is the facade over the active EdgeFunction provider.
type EdgeFunction struct{ f *Facade }

// Invoke calls a deployed function by name. Not retried: function
// bodies are arbitrary and may not be idempotent.
func (e *EdgeFunction) Invoke(ctx context.Context, name string, payload []byte) ([]byte, error) {
	var out []byte
	err := e.f.do(ctx, capability.EdgeFunction, "edgefunction.invoke", false, func(ctx context.Context, a capability.Adapter) error {
		var err error
		out, err = a.(capability.EdgeFunctionAdapter).Invoke(ctx, name, payload)
		return err
	})
	return out, err
}
