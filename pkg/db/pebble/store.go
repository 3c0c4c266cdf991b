// Package pebble implements db.KVStore on top of cockroachdb/pebble.
package pebble

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/eigerco/katedas/pkg/db"
	"github.com/eigerco/katedas/pkg/log"
)

var _ db.KVStore = (*KVStore)(nil)

type KVStore struct {
	db     *pebble.DB
	noSync bool
	closed bool
	mu     sync.RWMutex
}

type options struct {
	path      string
	cacheSize int64
	noSync    bool
}

type Option func(*options)

// WithPath stores data on disk under path instead of in memory.
func WithPath(path string) Option {
	return func(o *options) { o.path = path }
}

// WithCacheSize sets the block cache size in bytes.
func WithCacheSize(size int64) Option {
	return func(o *options) { o.cacheSize = size }
}

// WithoutSync skips fsync on writes.
func WithoutSync() Option {
	return func(o *options) { o.noSync = true }
}

// NewKVStore opens a store. Without WithPath the store lives in memory and is
// lost on Close.
func NewKVStore(opts ...Option) (*KVStore, error) {
	o := options{cacheSize: 64 << 20}
	for _, opt := range opts {
		opt(&o)
	}

	cache := pebble.NewCache(o.cacheSize)
	defer cache.Unref()

	pOpts := &pebble.Options{
		Cache:        cache,
		MemTableSize: 32 << 20,
	}
	if o.path == "" {
		pOpts.FS = vfs.NewMem()
	}

	pdb, err := pebble.Open(o.path, pOpts)
	if err != nil {
		return nil, fmt.Errorf("open pebble at %q: %w", o.path, err)
	}
	log.Store.Debug().Str("path", o.path).Msg("kv store opened")
	return &KVStore{db: pdb, noSync: o.noSync}, nil
}

func (p *KVStore) writeOpts() *pebble.WriteOptions {
	if p.noSync {
		return pebble.NoSync
	}
	return pebble.Sync
}

func (p *KVStore) Get(key []byte) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrClosed
	}

	value, closer, err := p.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	result := make([]byte, len(value))
	copy(result, value)
	return result, nil
}

func (p *KVStore) Has(key []byte) (bool, error) {
	_, err := p.Get(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (p *KVStore) Put(key, value []byte) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	return p.db.Set(key, value, p.writeOpts())
}

func (p *KVStore) Delete(key []byte) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	return p.db.Delete(key, p.writeOpts())
}

func (p *KVStore) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.db.Close()
}
