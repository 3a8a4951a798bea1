package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/kbukum/backplane/capability"
)

// MemoryDatabase is an in-memory DatabaseAdapter for tests and
// conformance scenarios.
type MemoryDatabase struct {
	AdapterCore

	mu          sync.RWMutex
	collections map[string]map[string]capability.Record
	opErr       error
}

// NewMemoryDatabase creates an empty database adapter named name.
func NewMemoryDatabase(name string) *MemoryDatabase {
	db := &MemoryDatabase{
		AdapterCore: newCore(name, capability.Database),
		collections: make(map[string]map[string]capability.Record),
	}
	db.snapshot = db.items
	db.restore = db.restoreUnit
	db.purge = db.clear
	return db
}

// SetOpErr makes every data operation fail with err until cleared.
func (db *MemoryDatabase) SetOpErr(err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.opErr = err
}

// Create implements capability.DatabaseAdapter.
func (db *MemoryDatabase) Create(ctx context.Context, collection string, record capability.Record) (string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.opErr != nil {
		return "", db.opErr
	}

	id, _ := record["id"].(string)
	if id == "" {
		id = uuid.NewString()
	}
	stored := cloneRecord(record)
	stored["id"] = id

	coll, ok := db.collections[collection]
	if !ok {
		coll = make(map[string]capability.Record)
		db.collections[collection] = coll
	}
	coll[id] = stored
	return id, nil
}

// Read implements capability.DatabaseAdapter.
func (db *MemoryDatabase) Read(ctx context.Context, collection, id string) (capability.Record, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.opErr != nil {
		return nil, db.opErr
	}
	rec, ok := db.collections[collection][id]
	if !ok {
		return nil, fmt.Errorf("record %s/%s does not exist", collection, id)
	}
	return cloneRecord(rec), nil
}

// Update implements capability.DatabaseAdapter. The full record replaces
// the stored one, making updates idempotent.
func (db *MemoryDatabase) Update(ctx context.Context, collection, id string, record capability.Record) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.opErr != nil {
		return db.opErr
	}
	if _, ok := db.collections[collection][id]; !ok {
		return fmt.Errorf("record %s/%s does not exist", collection, id)
	}
	stored := cloneRecord(record)
	stored["id"] = id
	db.collections[collection][id] = stored
	return nil
}

// Delete implements capability.DatabaseAdapter.
func (db *MemoryDatabase) Delete(ctx context.Context, collection, id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.opErr != nil {
		return db.opErr
	}
	delete(db.collections[collection], id)
	return nil
}

// Query implements capability.DatabaseAdapter with equality filters,
// optional single-key ordering, and a limit.
func (db *MemoryDatabase) Query(ctx context.Context, collection string, q capability.Query) ([]capability.Record, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.opErr != nil {
		return nil, db.opErr
	}

	var out []capability.Record
	for _, rec := range db.collections[collection] {
		if matchesFilter(rec, q.Filter) {
			out = append(out, cloneRecord(rec))
		}
	}

	if q.OrderBy != "" {
		sort.Slice(out, func(i, j int) bool {
			less := fmt.Sprint(out[i][q.OrderBy]) < fmt.Sprint(out[j][q.OrderBy])
			if q.Descending {
				return !less
			}
			return less
		})
	} else {
		sort.Slice(out, func(i, j int) bool {
			return fmt.Sprint(out[i]["id"]) < fmt.Sprint(out[j]["id"])
		})
	}

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Len returns the total number of stored records.
func (db *MemoryDatabase) Len() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	n := 0
	for _, coll := range db.collections {
		n += len(coll)
	}
	return n
}

// DropOne removes an arbitrary record, used to force verification
// mismatches in tests.
func (db *MemoryDatabase) DropOne() {
	db.mu.Lock()
	defer db.mu.Unlock()
	for name, coll := range db.collections {
		for id := range coll {
			delete(coll, id)
			if len(coll) == 0 {
				delete(db.collections, name)
			}
			return
		}
	}
}

func (db *MemoryDatabase) items() map[string][]byte {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make(map[string][]byte)
	for name, coll := range db.collections {
		for id, rec := range coll {
			payload, _ := json.Marshal(rec)
			out[name+"/"+id] = payload
		}
	}
	return out
}

func (db *MemoryDatabase) restoreUnit(unit capability.Unit) error {
	collection, id, ok := strings.Cut(unit.Key, "/")
	if !ok {
		return fmt.Errorf("malformed unit key %q", unit.Key)
	}
	var rec capability.Record
	if err := json.Unmarshal(unit.Payload, &rec); err != nil {
		return fmt.Errorf("decode unit %q: %w", unit.Key, err)
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	coll, okc := db.collections[collection]
	if !okc {
		coll = make(map[string]capability.Record)
		db.collections[collection] = coll
	}
	coll[id] = rec
	return nil
}

func (db *MemoryDatabase) clear() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.collections = make(map[string]map[string]capability.Record)
}

func cloneRecord(rec capability.Record) capability.Record {
	out := make(capability.Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}

func matchesFilter(rec capability.Record, filter map[string]any) bool {
	for k, want := range filter {
		if fmt.Sprint(rec[k]) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}
