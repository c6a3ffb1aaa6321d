package credential

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	bolt "go.etcd.io/bbolt"
)

// Backend is a small key/value persistence layer for credential records.
// Get returns nil, nil when the key does not exist.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Compile-time interface checks.
var (
	_ Backend = (*BoltBackend)(nil)
	_ Backend = (*MemoryBackend)(nil)
)

var bucketName = []byte("kv")

// BoltBackend stores records in a bbolt database file.
type BoltBackend struct {
	db *bolt.DB

	Path string
}

// NewBoltBackend returns a backend for the database at path. Call Open before use.
func NewBoltBackend(path string) *BoltBackend {
	return &BoltBackend{Path: path}
}

// Open creates the parent directory if necessary and opens the database.
func (b *BoltBackend) Open() error {
	if err := os.MkdirAll(filepath.Dir(b.Path), 0700); err != nil {
		return err
	}

	db, err := bolt.Open(b.Path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return err
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		_ = db.Close()
		return err
	}

	b.db = db
	log.Debug().Str("path", b.Path).Msg("Opened credential database")
	return nil
}

// Close closes the database.
func (b *BoltBackend) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func (b *BoltBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketName).Get([]byte(key)); v != nil {
			// Bolt values are only valid for the life of the transaction.
			value = append([]byte(nil), v...)
		}
		return nil
	})
	return value, err
}

func (b *BoltBackend) Put(ctx context.Context, key string, value []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), value)
	})
}

func (b *BoltBackend) Delete(ctx context.Context, key string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(key))
	})
}

// MemoryBackend is an in-memory backend. Safe for concurrent access.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

func (m *MemoryBackend) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryBackend) Put(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryBackend) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}
