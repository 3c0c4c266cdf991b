package sampling

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eigerco/katedas/internal/block"
	"github.com/eigerco/katedas/internal/crypto"
	"github.com/eigerco/katedas/internal/grid"
	"github.com/eigerco/katedas/internal/kzg"
	"github.com/eigerco/katedas/internal/store"
)

var testGridConfig = block.GridConfig{MinWidth: 4, MaxWidth: 8, MaxHeight: 4}

const testRowFactor = 2

func newTestBackend(t *testing.T) *kzg.Backend {
	t.Helper()
	params, err := kzg.NewDevParams(16, big.NewInt(0x5eed))
	require.NoError(t, err)
	return kzg.NewBackend(params)
}

// produceTestBlock builds a block of two rows of eight columns.
func produceTestBlock(t *testing.T, backend *kzg.Backend, number uint32) (block.Block, crypto.Hash) {
	t.Helper()
	payloads := []grid.AppPayload{
		{AppID: 1, Data: bytes.Repeat([]byte("data availability "), 10)},
		{AppID: 2, Data: bytes.Repeat([]byte{7}, 100)},
	}
	b, err := block.Produce(crypto.Hash{1}, number, payloads, crypto.Seed{byte(number)}, testGridConfig, backend)
	require.NoError(t, err)
	require.Equal(t, grid.Dimensions{Rows: 2, Cols: 8}, b.Header.Extension.Dimensions)
	hash, err := b.Header.Hash()
	require.NoError(t, err)
	return b, hash
}

type memSource struct {
	mu     sync.Mutex
	blocks map[crypto.Hash]block.Block
	gets   int
}

func newMemSource(blocks ...block.Block) *memSource {
	s := &memSource{blocks: make(map[crypto.Hash]block.Block)}
	for _, b := range blocks {
		h, _ := b.Header.Hash()
		s.blocks[h] = b
	}
	return s
}

func (s *memSource) GetBlock(hash crypto.Hash) (block.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	b, ok := s.blocks[hash]
	if !ok {
		return block.Block{}, store.ErrBlockNotFound
	}
	return b, nil
}

func newTestServer(t *testing.T, backend *kzg.Backend, source BlockSource, metrics *Metrics) *ProofServer {
	t.Helper()
	srv, err := NewProofServer(ServerConfig{
		Grid:          testGridConfig,
		RowFactor:     testRowFactor,
		CacheSize:     16,
		GridCacheSize: 4,
		MaxCells:      64,
	}, source, backend, metrics)
	require.NoError(t, err)
	return srv
}

var errUnreachable = errors.New("peer unreachable")

// serverRequester routes requests to in-process servers over the wire
// encoding. A peer without a server fails every request.
type serverRequester struct {
	servers map[PeerID]*ProofServer
	// tamper, when set, changes a response before it is returned
	tamper func(peer PeerID, resp *CellResponse)
}

func (r *serverRequester) RequestCells(ctx context.Context, peer PeerID, req CellRequest) (CellResponse, error) {
	srv, ok := r.servers[peer]
	if !ok {
		return CellResponse{}, errUnreachable
	}
	msg, err := EncodeRequest(req)
	if err != nil {
		return CellResponse{}, err
	}
	out, err := srv.HandleCellRequest(ctx, msg)
	if err != nil {
		return CellResponse{}, err
	}
	resp, err := DecodeResponse(out)
	if err != nil {
		return CellResponse{}, err
	}
	if r.tamper != nil {
		r.tamper(peer, &resp)
	}
	return resp, nil
}

type staticPeers []PeerID

func (p staticPeers) ReservedPeers() []PeerID { return p }

type staticFinality uint32

func (f staticFinality) Finalized() (uint32, error) { return uint32(f), nil }
