package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/eigerco/katedas/internal/block"
	"github.com/eigerco/katedas/internal/crypto"
	"github.com/eigerco/katedas/pkg/db"
	"github.com/eigerco/katedas/pkg/db/pebble"
	"github.com/eigerco/katedas/pkg/log"
)

var (
	ErrBlockNotFound = errors.New("block not found")
	ErrChainClosed   = errors.New("chain store is closed")
)

// Chain stores produced blocks and the headers of imported ones.
type Chain struct {
	db     db.KVStore
	closed atomic.Bool
}

// NewChain creates a new chain store using KVStore
func NewChain(db db.KVStore) *Chain {
	return &Chain{db: db}
}

// PutBlock stores a block, its header and the number index atomically.
func (c *Chain) PutBlock(b block.Block) error {
	if c.closed.Load() {
		return ErrChainClosed
	}

	hash, err := b.Header.Hash()
	if err != nil {
		return fmt.Errorf("hash header: %w", err)
	}
	blockBytes, err := b.Bytes()
	if err != nil {
		return fmt.Errorf("marshal block: %w", err)
	}
	headerBytes, err := b.Header.Bytes()
	if err != nil {
		return err
	}

	batch := c.db.NewBatch()
	defer batch.Close()
	if err := batch.Put(makeKey(prefixBlock, hash[:]), blockBytes); err != nil {
		return fmt.Errorf("store block: %w", err)
	}
	if err := batch.Put(makeKey(prefixHeader, hash[:]), headerBytes); err != nil {
		return fmt.Errorf("store header: %w", err)
	}
	if err := batch.Put(numberKey(b.Header.Number), hash[:]); err != nil {
		return fmt.Errorf("store number index: %w", err)
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	log.Store.Debug().Str("hash", hash.Short()).Uint32("number", b.Header.Number).Msg("block stored")
	return nil
}

// PutHeader stores a header whose block body is not held locally.
func (c *Chain) PutHeader(h block.Header) error {
	if c.closed.Load() {
		return ErrChainClosed
	}
	hash, err := h.Hash()
	if err != nil {
		return fmt.Errorf("hash header: %w", err)
	}
	headerBytes, err := h.Bytes()
	if err != nil {
		return err
	}
	if err := c.db.Put(makeKey(prefixHeader, hash[:]), headerBytes); err != nil {
		return fmt.Errorf("store header: %w", err)
	}
	return nil
}

// GetBlock retrieves a block by its header hash
func (c *Chain) GetBlock(hash crypto.Hash) (block.Block, error) {
	b, err := c.get(makeKey(prefixBlock, hash[:]))
	if err != nil {
		return block.Block{}, err
	}
	return block.DecodeBlock(b)
}

// GetHeader retrieves a header by its hash
func (c *Chain) GetHeader(hash crypto.Hash) (block.Header, error) {
	b, err := c.get(makeKey(prefixHeader, hash[:]))
	if err != nil {
		return block.Header{}, err
	}
	return block.DecodeHeader(b)
}

// HashByNumber returns the hash of the stored block with number.
func (c *Chain) HashByNumber(number uint32) (crypto.Hash, error) {
	b, err := c.get(numberKey(number))
	if err != nil {
		return crypto.Hash{}, err
	}
	return crypto.Hash(b), nil
}

// SetFinalized records the latest finalized block number.
func (c *Chain) SetFinalized(number uint32) error {
	if c.closed.Load() {
		return ErrChainClosed
	}
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], number)
	return c.db.Put(keyFinalized, b[:])
}

// Finalized returns the latest finalized block number, zero if none was set.
func (c *Chain) Finalized() (uint32, error) {
	b, err := c.get(keyFinalized)
	if errors.Is(err, ErrBlockNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Prune deletes the stored blocks numbered below number together with their
// headers. It returns how many blocks were removed.
func (c *Chain) Prune(below uint32) (int, error) {
	if c.closed.Load() {
		return 0, ErrChainClosed
	}
	iter, err := c.db.NewIterator(numberKey(0), numberKey(below))
	if err != nil {
		return 0, err
	}
	var indexKeys, hashes [][]byte
	for iter.Next() {
		v, err := iter.Value()
		if err != nil {
			_ = iter.Close()
			return 0, err
		}
		indexKeys = append(indexKeys, iter.Key())
		hashes = append(hashes, v)
	}
	if err := iter.Close(); err != nil {
		return 0, err
	}
	if len(hashes) == 0 {
		return 0, nil
	}

	batch := c.db.NewBatch()
	defer batch.Close()
	for i, hash := range hashes {
		for _, key := range [][]byte{makeKey(prefixBlock, hash), makeKey(prefixHeader, hash), indexKeys[i]} {
			if err := batch.Delete(key); err != nil {
				return 0, fmt.Errorf("delete %x: %w", key[0], err)
			}
		}
	}
	if err := batch.Commit(); err != nil {
		return 0, fmt.Errorf("commit batch: %w", err)
	}
	log.Store.Debug().Int("blocks", len(hashes)).Uint32("below", below).Msg("pruned blocks")
	return len(hashes), nil
}

func (c *Chain) get(key []byte) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrChainClosed
	}
	b, err := c.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrBlockNotFound
		}
		return nil, fmt.Errorf("get %x: %w", key[0], err)
	}
	return b, nil
}

// Close closes the chain store and underlying database
func (c *Chain) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.db.Close()
}
