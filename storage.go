// Storage adapters.
//
// The room sync core never touches a backend directly; it goes through
// the storage interface below, so deployments can pick a local file, plain
// process memory, or a remote key-value store without touching merge
// logic. Each adapter stores exactly one value: the serialized room
// document. Writes must appear atomic to concurrent readers, which the
// file adapter gets from write-temp-then-rename and the other two from a
// single set operation.

package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/go-redis/redis/v8"
)

type storage interface {
	// Get returns the stored document, or ok=false when none exists.
	Get(ctx context.Context) (data []byte, ok bool, err error)
	// Set replaces the stored document atomically.
	Set(ctx context.Context, data []byte) error
	// Delete removes the stored document; deleting an absent document
	// is not an error.
	Delete(ctx context.Context) error
	Name() string
}

func newStorage(cfg *Config) (storage, error) {
	switch cfg.storage {
	case "file":
		return newFileStorage(cfg.dataDir)
	case "memory":
		return &memoryStorage{}, nil
	case "redis":
		return newRedisStorage(cfg.redisAddress, cfg.redisPassword), nil
	}

	return nil, errors.New("unknown storage backend: " + cfg.storage)
}

var roomIDStrip = regexp.MustCompile(`[^A-Z0-9]`)

// storageKey normalizes the room identifier to upper-case alphanumerics
// before it is used as a file name or key-value key.
func storageKey(id string) string {
	return roomIDStrip.ReplaceAllString(strings.ToUpper(id), "")
}

// fileStorage keeps the room as a single JSON file under the data
// directory. Writes go to a temp file first and are renamed into place so
// a polling reader never observes a half-written document.
type fileStorage struct {
	path string
}

func newFileStorage(dataDir string) (*fileStorage, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}

	return &fileStorage{
		path: filepath.Join(dataDir, "room_"+storageKey(roomID)+".json"),
	}, nil
}

func (f *fileStorage) Get(_ context.Context) ([]byte, bool, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return data, true, nil
}

func (f *fileStorage) Set(_ context.Context, data []byte) error {
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}

	return os.Rename(tmp, f.path)
}

func (f *fileStorage) Delete(_ context.Context) error {
	err := os.Remove(f.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}

func (f *fileStorage) Name() string {
	return "file"
}

// memoryStorage holds the room in process memory, for single-instance
// deployments with no persistence requirement.
type memoryStorage struct {
	mu   sync.RWMutex
	data []byte
}

func (m *memoryStorage) Get(_ context.Context) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.data == nil {
		return nil, false, nil
	}

	out := make([]byte, len(m.data))
	copy(out, m.data)

	return out, true, nil
}

func (m *memoryStorage) Set(_ context.Context, data []byte) error {
	stored := make([]byte, len(data))
	copy(stored, data)

	m.mu.Lock()
	m.data = stored
	m.mu.Unlock()

	return nil
}

func (m *memoryStorage) Delete(_ context.Context) error {
	m.mu.Lock()
	m.data = nil
	m.mu.Unlock()

	return nil
}

func (m *memoryStorage) Name() string {
	return "memory"
}

// redisStorage keeps the room under a single redis key, for deployments
// that want the document to survive instance restarts or be shared
// best-effort between instances.
type redisStorage struct {
	client *redis.Client
	key    string
}

func newRedisStorage(address, password string) *redisStorage {
	return &redisStorage{
		client: redis.NewClient(&redis.Options{
			Addr:     address,
			Password: password,
		}),
		key: "wildtrivia:room:" + storageKey(roomID),
	}
}

func (r *redisStorage) Get(ctx context.Context) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return data, true, nil
}

func (r *redisStorage) Set(ctx context.Context, data []byte) error {
	return r.client.Set(ctx, r.key, data, 0).Err()
}

func (r *redisStorage) Delete(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}

func (r *redisStorage) Name() string {
	return "redis"
}
