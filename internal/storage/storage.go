package storage

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Package storage provides the local persistence behind the query cache.

// Store persists successful query bodies and the digests the watcher has already published.
type Store interface {
	Close() error
	Load(key string) ([]byte, bool, error)
	Save(key string, body []byte) error
	SeenDigest(id string) (bool, error)
	MarkDigest(id string) error
}

// Options controls retention characteristics for concrete store implementations.
type Options struct {
	EntryTTL        time.Duration
	CleanupInterval time.Duration
}

const (
	defaultEntryTTL        = 24 * time.Hour
	defaultCleanupInterval = time.Hour
)

// NewStore creates the configured storage backend.
func NewStore(typ, path string, opts Options) (Store, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))
	opts = normalizeOptions(opts)

	switch typ {
	case "", "none", "disabled", "memory":
		return newMemoryStore(), nil
	case "bbolt":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		return openBolt(path, opts)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}

func normalizeOptions(opts Options) Options {
	if opts.EntryTTL <= 0 {
		opts.EntryTTL = defaultEntryTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}
	return opts
}

// memoryStore keeps no bodies and remembers published digests for the process lifetime.
type memoryStore struct {
	mu      sync.Mutex
	digests map[string]struct{}
}

func newMemoryStore() *memoryStore {
	return &memoryStore{digests: make(map[string]struct{})}
}

func (*memoryStore) Close() error                      { return nil }
func (*memoryStore) Load(string) ([]byte, bool, error) { return nil, false, nil }
func (*memoryStore) Save(string, []byte) error         { return nil }

func (m *memoryStore) SeenDigest(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.digests[id]
	return ok, nil
}

func (m *memoryStore) MarkDigest(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.digests[id] = struct{}{}
	return nil
}
