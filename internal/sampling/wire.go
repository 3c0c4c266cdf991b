package sampling

import (
	"errors"
	"fmt"

	"github.com/ChainSafe/gossamer/pkg/scale"

	"github.com/eigerco/katedas/internal/crypto"
	"github.com/eigerco/katedas/internal/grid"
	"github.com/eigerco/katedas/internal/kate"
	"github.com/eigerco/katedas/internal/kzg"
)

var (
	ErrProofCountMismatch = errors.New("proof count does not match requested cells")
	ErrRequestRejected    = errors.New("cell request rejected by peer")
)

type Status uint8

const (
	StatusOK Status = iota
	StatusNotFound
	StatusBadRequest
	StatusInternal
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not found"
	case StatusBadRequest:
		return "bad request"
	case StatusInternal:
		return "internal"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// CellRequest asks a peer for the proofs of cells of an extended grid.
type CellRequest struct {
	BlockHash crypto.Hash
	Cells     []grid.Position
}

type CellProof struct {
	Data  kate.ScalarBytes
	Proof kzg.Proof
}

// CellResponse answers a CellRequest. On StatusOK Proofs follow the
// requested cell order, otherwise Reason explains the failure.
type CellResponse struct {
	Status Status
	Reason string
	Proofs []CellProof
}

func failure(status Status, format string, args ...any) CellResponse {
	return CellResponse{Status: status, Reason: fmt.Sprintf(format, args...)}
}

func EncodeRequest(r CellRequest) ([]byte, error) {
	b, err := scale.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode cell request: %w", err)
	}
	return b, nil
}

func DecodeRequest(b []byte) (CellRequest, error) {
	var r CellRequest
	if err := scale.Unmarshal(b, &r); err != nil {
		return CellRequest{}, fmt.Errorf("decode cell request: %w", err)
	}
	return r, nil
}

func EncodeResponse(r CellResponse) ([]byte, error) {
	b, err := scale.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode cell response: %w", err)
	}
	return b, nil
}

func DecodeResponse(b []byte) (CellResponse, error) {
	var r CellResponse
	if err := scale.Unmarshal(b, &r); err != nil {
		return CellResponse{}, fmt.Errorf("decode cell response: %w", err)
	}
	return r, nil
}

// Validate checks a response against the request it answers.
func (r CellResponse) Validate(req CellRequest) error {
	if r.Status != StatusOK {
		return fmt.Errorf("%w: %s: %s", ErrRequestRejected, r.Status, r.Reason)
	}
	if len(r.Proofs) != len(req.Cells) {
		return fmt.Errorf("%w: %d proofs for %d cells", ErrProofCountMismatch, len(r.Proofs), len(req.Cells))
	}
	return nil
}
