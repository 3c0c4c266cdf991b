package handlers

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/ChainSafe/gossamer/pkg/scale"
	"github.com/quic-go/quic-go"

	"github.com/eigerco/katedas/internal/crypto"
	"github.com/eigerco/katedas/internal/kzg"
	"github.com/eigerco/katedas/internal/sampling"
	"github.com/eigerco/katedas/internal/store"
)

// MaxRowsPerRequest caps the rows of one CE-201 request.
const MaxRowsPerRequest = 64

var ErrRowRequestRejected = errors.New("row request rejected by peer")

// RowServer returns encoded rows of extended grids.
type RowServer interface {
	ServeRows(hash crypto.Hash, rows []int) ([][]byte, error)
}

type RowRequest struct {
	BlockHash crypto.Hash
	Rows      []uint32
}

type RowResponse struct {
	Status sampling.Status
	Reason string
	Rows   [][]byte
}

// RowRequestHandler serves CE-201 requests for whole extended rows, used to
// fetch data for reconstruction.
type RowRequestHandler struct {
	server RowServer
}

func NewRowRequestHandler(server RowServer) *RowRequestHandler {
	return &RowRequestHandler{server: server}
}

func (h *RowRequestHandler) HandleStream(ctx context.Context, stream quic.Stream, peerKey ed25519.PublicKey) error {
	msg, err := ReadMessageWithContext(ctx, stream)
	if err != nil {
		stream.CancelRead(0)
		return fmt.Errorf("failed to read row request: %w", err)
	}

	var (
		req  RowRequest
		resp RowResponse
	)
	if err := scale.Unmarshal(msg.Content, &req); err != nil {
		resp = RowResponse{Status: sampling.StatusBadRequest, Reason: err.Error()}
	} else {
		resp = h.answer(req)
	}

	b, err := scale.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to encode row response: %w", err)
	}
	if err := WriteMessageWithContext(ctx, stream, b); err != nil {
		return fmt.Errorf("failed to write row response: %w", err)
	}
	return stream.Close()
}

func (h *RowRequestHandler) answer(req RowRequest) RowResponse {
	if len(req.Rows) > MaxRowsPerRequest {
		return RowResponse{Status: sampling.StatusBadRequest, Reason: fmt.Sprintf("%d rows requested, at most %d", len(req.Rows), MaxRowsPerRequest)}
	}
	rows := make([]int, len(req.Rows))
	for i, r := range req.Rows {
		rows[i] = int(r)
	}
	out, err := h.server.ServeRows(req.BlockHash, rows)
	switch {
	case err == nil:
		return RowResponse{Status: sampling.StatusOK, Rows: out}
	case errors.Is(err, store.ErrBlockNotFound):
		return RowResponse{Status: sampling.StatusNotFound, Reason: err.Error()}
	case errors.Is(err, kzg.ErrCellLengthExceeded):
		return RowResponse{Status: sampling.StatusBadRequest, Reason: err.Error()}
	default:
		return RowResponse{Status: sampling.StatusInternal, Reason: err.Error()}
	}
}

// RowRequester sends CE-201 requests.
type RowRequester struct{}

func NewRowRequester() *RowRequester {
	return &RowRequester{}
}

func (r *RowRequester) RequestRows(ctx context.Context, stream quic.Stream, req RowRequest) ([][]byte, error) {
	b, err := scale.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode row request: %w", err)
	}
	if err := WriteMessageWithContext(ctx, stream, b); err != nil {
		return nil, fmt.Errorf("failed to send row request: %w", err)
	}
	if err := stream.Close(); err != nil {
		return nil, fmt.Errorf("failed to close stream: %w", err)
	}

	msg, err := ReadMessageWithContext(ctx, stream)
	if err != nil {
		return nil, fmt.Errorf("failed to read row response: %w", err)
	}
	var resp RowResponse
	if err := scale.Unmarshal(msg.Content, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode row response: %w", err)
	}
	if resp.Status != sampling.StatusOK {
		return nil, fmt.Errorf("%w: %s: %s", ErrRowRequestRejected, resp.Status, resp.Reason)
	}
	if len(resp.Rows) != len(req.Rows) {
		return nil, fmt.Errorf("%w: %d rows for %d requested", ErrRowRequestRejected, len(resp.Rows), len(req.Rows))
	}
	return resp.Rows, nil
}
