package pebble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/katedas/pkg/db"
)

func TestKVStore(t *testing.T) {
	tests := []struct {
		name string
		fn   func(t *testing.T, store db.KVStore)
	}{
		{name: "put_get_has", fn: testPutGetHas},
		{name: "delete", fn: testDelete},
		{name: "batch", fn: testBatch},
		{name: "batch_done", fn: testBatchDone},
		{name: "bounded_iteration", fn: testBoundedIteration},
		{name: "closed", fn: testClosed},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store, err := NewKVStore(WithoutSync())
			require.NoError(t, err)
			defer store.Close()

			tc.fn(t, store)
		})
	}
}

func testPutGetHas(t *testing.T, store db.KVStore) {
	require.NoError(t, store.Put([]byte("block-1"), []byte("payloads")))

	v, err := store.Get([]byte("block-1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("payloads"), v)

	ok, err := store.Has([]byte("block-1"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Has([]byte("block-2"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Get([]byte("block-2"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func testDelete(t *testing.T, store db.KVStore) {
	require.NoError(t, store.Put([]byte("k"), []byte("v")))
	require.NoError(t, store.Delete([]byte("k")))
	_, err := store.Get([]byte("k"))
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, store.Delete([]byte("missing")))
}

func testBatch(t *testing.T, store db.KVStore) {
	batch := store.NewBatch()
	defer batch.Close()

	require.NoError(t, batch.Put([]byte("a"), []byte("1")))
	require.NoError(t, batch.Put([]byte("b"), []byte("2")))
	require.NoError(t, batch.Delete([]byte("a")))

	_, err := store.Get([]byte("b"))
	assert.ErrorIs(t, err, ErrNotFound, "uncommitted writes are invisible")

	require.NoError(t, batch.Commit())
	v, err := store.Get([]byte("b"))
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), v)
	_, err = store.Get([]byte("a"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func testBatchDone(t *testing.T, store db.KVStore) {
	batch := store.NewBatch()
	require.NoError(t, batch.Put([]byte("k"), []byte("v")))
	require.NoError(t, batch.Commit())

	assert.ErrorIs(t, batch.Put([]byte("k2"), nil), ErrBatchDone)
	assert.ErrorIs(t, batch.Delete([]byte("k2")), ErrBatchDone)
	assert.ErrorIs(t, batch.Commit(), ErrBatchDone)
	assert.NoError(t, batch.Close())
	assert.NoError(t, batch.Close())
}

func testBoundedIteration(t *testing.T, store db.KVStore) {
	for _, k := range []string{"a", "b", "c", "d"} {
		require.NoError(t, store.Put([]byte(k), []byte("value-"+k)))
	}

	iter, err := store.NewIterator([]byte("b"), []byte("d"))
	require.NoError(t, err)
	defer iter.Close()

	_, err = iter.Value()
	assert.ErrorIs(t, err, ErrIteratorInvalid)

	var keys []string
	for iter.Next() {
		v, err := iter.Value()
		require.NoError(t, err)
		assert.Equal(t, "value-"+string(iter.Key()), string(v))
		keys = append(keys, string(iter.Key()))
	}
	assert.Equal(t, []string{"b", "c"}, keys)
	assert.False(t, iter.Valid())
}

func testClosed(t *testing.T, store db.KVStore) {
	require.NoError(t, store.Close())

	_, err := store.Get([]byte("k"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, store.Put([]byte("k"), nil), ErrClosed)
	assert.ErrorIs(t, store.Delete([]byte("k")), ErrClosed)
	_, err = store.NewIterator(nil, nil)
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, store.Close())
}
