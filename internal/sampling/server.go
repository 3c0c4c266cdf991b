package sampling

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/eigerco/katedas/internal/block"
	"github.com/eigerco/katedas/internal/crypto"
	"github.com/eigerco/katedas/internal/grid"
	"github.com/eigerco/katedas/internal/kate"
	"github.com/eigerco/katedas/internal/kzg"
	"github.com/eigerco/katedas/internal/store"
	"github.com/eigerco/katedas/pkg/log"
)

// BlockSource gives the server access to locally held blocks.
type BlockSource interface {
	GetBlock(hash crypto.Hash) (block.Block, error)
}

type ServerConfig struct {
	Grid      block.GridConfig
	RowFactor int
	// CacheSize bounds the number of cached proof sets.
	CacheSize int
	// GridCacheSize bounds the number of prepared extended grids.
	GridCacheSize int
	// MaxCells caps the cells of one request, zero for no cap.
	MaxCells int
}

// preparedBlock is the extended grid of a block and its row polynomials.
type preparedBlock struct {
	original *grid.EvaluationGrid
	extended *grid.EvaluationGrid
	polys    *kzg.PolynomialGrid
}

// ProofServer answers cell requests for blocks held in its BlockSource.
type ProofServer struct {
	cfg       ServerConfig
	source    BlockSource
	opener    kzg.ProofOpener
	responses *lru.Cache[string, []CellProof]
	grids     *lru.Cache[crypto.Hash, *preparedBlock]
	metrics   *Metrics
}

func NewProofServer(cfg ServerConfig, source BlockSource, opener kzg.ProofOpener, metrics *Metrics) (*ProofServer, error) {
	responses, err := lru.New[string, []CellProof](max(cfg.CacheSize, 1))
	if err != nil {
		return nil, fmt.Errorf("create response cache: %w", err)
	}
	grids, err := lru.New[crypto.Hash, *preparedBlock](max(cfg.GridCacheSize, 1))
	if err != nil {
		return nil, fmt.Errorf("create grid cache: %w", err)
	}
	return &ProofServer{
		cfg:       cfg,
		source:    source,
		opener:    opener,
		responses: responses,
		grids:     grids,
		metrics:   metrics,
	}, nil
}

// HandleCellRequest decodes a request, answers it and encodes the response.
// Only encoding problems are returned as errors, every other failure is an
// explicit failure response.
func (s *ProofServer) HandleCellRequest(ctx context.Context, msg []byte) ([]byte, error) {
	req, err := DecodeRequest(msg)
	if err != nil {
		return EncodeResponse(failure(StatusBadRequest, "malformed request: %v", err))
	}
	return EncodeResponse(s.Handle(ctx, req))
}

// Handle answers req. Proofs are cached per block and cell set, so the same
// cells asked in another order are served from the cache.
func (s *ProofServer) Handle(ctx context.Context, req CellRequest) CellResponse {
	if err := ctx.Err(); err != nil {
		return failure(StatusInternal, "request cancelled")
	}
	if s.cfg.MaxCells > 0 && len(req.Cells) > s.cfg.MaxCells {
		return failure(StatusBadRequest, "%d cells requested, at most %d", len(req.Cells), s.cfg.MaxCells)
	}

	sorted := slices.Clone(req.Cells)
	slices.SortFunc(sorted, comparePositions)
	key := cacheKey(req.BlockHash, sorted)

	proofs, hit := s.responses.Get(key)
	s.metrics.observeCache(hit)
	if !hit {
		var err error
		proofs, err = s.ServeProofs(req.BlockHash, sorted)
		if err != nil {
			status := statusOf(err)
			log.Network.Debug().Err(err).
				Str("hash", req.BlockHash.Short()).
				Stringer("status", status).
				Msg("cell request failed")
			return failure(status, "%v", err)
		}
		s.responses.Add(key, proofs)
	}

	byCell := make(map[grid.Position]CellProof, len(sorted))
	for i, c := range sorted {
		byCell[c] = proofs[i]
	}
	out := make([]CellProof, len(req.Cells))
	for i, c := range req.Cells {
		out[i] = byCell[c]
	}
	s.metrics.observeServed(len(out))
	return CellResponse{Status: StatusOK, Proofs: out}
}

// ServeProofs opens every cell of the extended grid of hash.
func (s *ProofServer) ServeProofs(hash crypto.Hash, cells []grid.Position) ([]CellProof, error) {
	pb, err := s.prepare(hash)
	if err != nil {
		return nil, err
	}
	proofs := make([]CellProof, 0, len(cells))
	for _, c := range cells {
		cell, err := s.opener.OpenSingle(pb.polys, c)
		if err != nil {
			log.KZG.Error().Err(err).
				Str("hash", hash.Short()).
				Stringer("cell", c).
				Msg("failed to open cell")
			return nil, err
		}
		proofs = append(proofs, CellProof{Data: kate.ScalarToBytes(&cell.Value), Proof: cell.Proof})
	}
	return proofs, nil
}

// ServeRows returns the encoded rows of the extended grid.
func (s *ProofServer) ServeRows(hash crypto.Hash, rows []int) ([][]byte, error) {
	pb, err := s.prepare(hash)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(rows))
	for _, r := range rows {
		b, err := pb.extended.RowBytes(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", kzg.ErrCellLengthExceeded, err)
		}
		out = append(out, b)
	}
	return out, nil
}

// AppRow is one original grid row holding data of an application.
type AppRow struct {
	Row  int
	Data []byte
}

// ServeAppData returns the original rows touched by app.
func (s *ProofServer) ServeAppData(hash crypto.Hash, app grid.AppID) ([]AppRow, error) {
	pb, err := s.prepare(hash)
	if err != nil {
		return nil, err
	}
	var out []AppRow
	for _, r := range pb.original.AppRows(app) {
		b, err := pb.original.RowBytes(r)
		if err != nil {
			return nil, err
		}
		out = append(out, AppRow{Row: r, Data: b})
	}
	return out, nil
}

func (s *ProofServer) prepare(hash crypto.Hash) (*preparedBlock, error) {
	if pb, ok := s.grids.Get(hash); ok {
		return pb, nil
	}
	b, err := s.source.GetBlock(hash)
	if err != nil {
		return nil, err
	}
	g, err := b.Grid(s.cfg.Grid)
	if err != nil {
		return nil, fmt.Errorf("rebuild grid: %w", err)
	}
	if g.Dims() != b.Header.Extension.Dimensions {
		return nil, fmt.Errorf("rebuilt grid %s does not match header %s", g.Dims(), b.Header.Extension.Dimensions)
	}
	ext, err := grid.Extend(g, s.cfg.RowFactor)
	if err != nil {
		return nil, fmt.Errorf("extend grid: %w", err)
	}
	polys, err := kzg.Interpolate(ext)
	if err != nil {
		return nil, fmt.Errorf("interpolate grid: %w", err)
	}
	pb := &preparedBlock{original: g, extended: ext, polys: polys}
	s.grids.Add(hash, pb)
	return pb, nil
}

func statusOf(err error) Status {
	switch {
	case errors.Is(err, store.ErrBlockNotFound):
		return StatusNotFound
	case errors.Is(err, kzg.ErrCellLengthExceeded):
		return StatusBadRequest
	default:
		return StatusInternal
	}
}

// cacheKey is the block hash followed by the sorted cells.
func cacheKey(hash crypto.Hash, sorted []grid.Position) string {
	key := make([]byte, 0, crypto.HashSize+8*len(sorted))
	key = append(key, hash[:]...)
	for _, c := range sorted {
		key = binary.LittleEndian.AppendUint32(key, c.Row)
		key = binary.LittleEndian.AppendUint32(key, c.Col)
	}
	return string(key)
}
