package store

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/katedas/internal/block"
	"github.com/eigerco/katedas/internal/crypto"
	"github.com/eigerco/katedas/internal/grid"
	"github.com/eigerco/katedas/internal/kzg"
	"github.com/eigerco/katedas/internal/testutils"
	"github.com/eigerco/katedas/pkg/db/pebble"
)

func newStore(t *testing.T) *Chain {
	t.Helper()
	kv, err := pebble.NewKVStore(pebble.WithoutSync())
	require.NoError(t, err)
	return NewChain(kv)
}

func testBlock(t *testing.T, number uint32) block.Block {
	t.Helper()
	params, err := kzg.NewDevParams(4, big.NewInt(11))
	require.NoError(t, err)
	b, err := block.Produce(testutils.RandomHash(t), number,
		[]grid.AppPayload{{AppID: 1, Data: testutils.RandomBytes(t, 20)}},
		testutils.RandomSeed(t),
		block.GridConfig{MinWidth: 4, MaxWidth: 4, MaxHeight: 4},
		kzg.NewBackend(params))
	require.NoError(t, err)
	return b
}

func Test_PutGetBlock(t *testing.T) {
	chain := newStore(t)
	b := testBlock(t, 3)
	require.NoError(t, chain.PutBlock(b))

	hash, err := b.Header.Hash()
	require.NoError(t, err)

	got, err := chain.GetBlock(hash)
	require.NoError(t, err)
	assert.Equal(t, b, got)

	header, err := chain.GetHeader(hash)
	require.NoError(t, err)
	assert.Equal(t, b.Header, header)

	byNumber, err := chain.HashByNumber(3)
	require.NoError(t, err)
	assert.Equal(t, hash, byNumber)
}

func Test_PutHeaderOnly(t *testing.T) {
	chain := newStore(t)
	b := testBlock(t, 1)
	require.NoError(t, chain.PutHeader(b.Header))

	hash, err := b.Header.Hash()
	require.NoError(t, err)
	_, err = chain.GetHeader(hash)
	require.NoError(t, err)
	_, err = chain.GetBlock(hash)
	assert.ErrorIs(t, err, ErrBlockNotFound)
}

func Test_GetBlockNotFound(t *testing.T) {
	chain := newStore(t)
	_, err := chain.GetBlock(testutils.RandomHash(t))
	require.Error(t, err)
	require.Equal(t, ErrBlockNotFound, err)
}

func Test_Finalized(t *testing.T) {
	chain := newStore(t)
	n, err := chain.Finalized()
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, chain.SetFinalized(42))
	n, err = chain.Finalized()
	require.NoError(t, err)
	assert.Equal(t, uint32(42), n)
}

func Test_ChainClosed(t *testing.T) {
	chain := newStore(t)
	require.NoError(t, chain.Close())
	// Closing a closed chain should have no effect/error
	require.NoError(t, chain.Close())

	assert.ErrorIs(t, chain.PutBlock(testBlock(t, 1)), ErrChainClosed)
	_, err := chain.GetBlock(testutils.RandomHash(t))
	assert.ErrorIs(t, err, ErrChainClosed)
}

func Test_Prune(t *testing.T) {
	chain := newStore(t)
	hashes := make(map[uint32]crypto.Hash)
	for n := uint32(1); n <= 5; n++ {
		b := testBlock(t, n)
		require.NoError(t, chain.PutBlock(b))
		h, err := b.Header.Hash()
		require.NoError(t, err)
		hashes[n] = h
	}

	removed, err := chain.Prune(4)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	for n := uint32(1); n <= 5; n++ {
		_, err := chain.GetBlock(hashes[n])
		_, indexErr := chain.HashByNumber(n)
		if n < 4 {
			assert.ErrorIs(t, err, ErrBlockNotFound, "block %d", n)
			assert.ErrorIs(t, indexErr, ErrBlockNotFound, "block %d", n)
			_, err = chain.GetHeader(hashes[n])
			assert.ErrorIs(t, err, ErrBlockNotFound, "header %d", n)
		} else {
			assert.NoError(t, err, "block %d", n)
			assert.NoError(t, indexErr, "block %d", n)
		}
	}

	removed, err = chain.Prune(4)
	require.NoError(t, err)
	assert.Zero(t, removed)
}
