package pebble

import (
	"sync/atomic"

	"github.com/cockroachdb/pebble"

	"github.com/eigerco/katedas/pkg/db"
)

type Batch struct {
	batch *pebble.Batch
	opts  *pebble.WriteOptions
	done  atomic.Bool
}

func (p *KVStore) NewBatch() db.Batch {
	return &Batch{batch: p.db.NewBatch(), opts: p.writeOpts()}
}

func (b *Batch) Put(key, value []byte) error {
	if b.done.Load() {
		return ErrBatchDone
	}
	return b.batch.Set(key, value, nil)
}

func (b *Batch) Delete(key []byte) error {
	if b.done.Load() {
		return ErrBatchDone
	}
	return b.batch.Delete(key, nil)
}

// Commit applies the batch. The batch cannot be reused afterwards.
func (b *Batch) Commit() error {
	if b.done.Load() {
		return ErrBatchDone
	}
	if err := b.batch.Commit(b.opts); err != nil {
		return err
	}
	b.done.Store(true)
	return b.batch.Close()
}

// Close discards an uncommitted batch. It is safe to call more than once.
func (b *Batch) Close() error {
	if !b.done.CompareAndSwap(false, true) {
		return nil
	}
	return b.batch.Close()
}
