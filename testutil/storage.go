package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kbukum/backplane/capability"
)

// MemoryStorage is an in-memory StorageAdapter.
type MemoryStorage struct {
	AdapterCore

	mu      sync.RWMutex
	buckets map[string]map[string]capability.Object
}

// NewMemoryStorage creates an empty storage adapter named name.
func NewMemoryStorage(name string) *MemoryStorage {
	s := &MemoryStorage{
		AdapterCore: newCore(name, capability.Storage),
		buckets:     make(map[string]map[string]capability.Object),
	}
	s.snapshot = s.items
	s.restore = s.restoreUnit
	s.purge = s.clear
	return s
}

// Upload implements capability.StorageAdapter. Re-uploading the same
// bucket/key replaces the object, so uploads are idempotent.
func (s *MemoryStorage) Upload(ctx context.Context, obj capability.Object) error {
	if obj.Bucket == "" || obj.Key == "" {
		return fmt.Errorf("bucket and key are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.buckets[obj.Bucket]
	if !ok {
		bucket = make(map[string]capability.Object)
		s.buckets[obj.Bucket] = bucket
	}
	bucket[obj.Key] = obj
	return nil
}

// Download implements capability.StorageAdapter.
func (s *MemoryStorage) Download(ctx context.Context, bucket, key string) (capability.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.buckets[bucket][key]
	if !ok {
		return capability.Object{}, fmt.Errorf("object %s/%s does not exist", bucket, key)
	}
	return obj, nil
}

// Remove implements capability.StorageAdapter.
func (s *MemoryStorage) Remove(ctx context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets[bucket], key)
	return nil
}

// List implements capability.StorageAdapter.
func (s *MemoryStorage) List(ctx context.Context, bucket, prefix string) ([]capability.ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []capability.ObjectInfo
	for key, obj := range s.buckets[bucket] {
		if strings.HasPrefix(key, prefix) {
			out = append(out, capability.ObjectInfo{
				Bucket:      bucket,
				Key:         key,
				ContentType: obj.ContentType,
				Size:        int64(len(obj.Data)),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *MemoryStorage) items() map[string][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]byte)
	for bucket, objs := range s.buckets {
		for key, obj := range objs {
			payload, _ := json.Marshal(obj)
			out[bucket+"/"+key] = payload
		}
	}
	return out
}

func (s *MemoryStorage) restoreUnit(unit capability.Unit) error {
	var obj capability.Object
	if err := json.Unmarshal(unit.Payload, &obj); err != nil {
		return fmt.Errorf("decode unit %q: %w", unit.Key, err)
	}
	return s.Upload(context.Background(), obj)
}

func (s *MemoryStorage) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets = make(map[string]map[string]capability.Object)
}
