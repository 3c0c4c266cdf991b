package block

import (
	"fmt"

	"github.com/ChainSafe/gossamer/pkg/scale"

	"github.com/eigerco/katedas/internal/crypto"
	"github.com/eigerco/katedas/internal/grid"
	"github.com/eigerco/katedas/internal/kzg"
)

// Header carries what a light client needs to sample a block.
type Header struct {
	ParentHash crypto.Hash
	Number     uint32
	Extension  Extension
}

// Extension is the data availability part of the header. Dimensions and
// commitments describe the original, unextended grid.
type Extension struct {
	Dimensions  grid.Dimensions
	Commitments []byte
	DataLookup  grid.DataLookup
}

func (h Header) Bytes() ([]byte, error) {
	b, err := scale.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal header: %w", err)
	}
	return b, nil
}

// Hash is the blake2b hash of the SCALE encoded header.
func (h Header) Hash() (crypto.Hash, error) {
	b, err := h.Bytes()
	if err != nil {
		return crypto.Hash{}, err
	}
	return crypto.HashData(b), nil
}

func DecodeHeader(b []byte) (Header, error) {
	var h Header
	if err := scale.Unmarshal(b, &h); err != nil {
		return Header{}, fmt.Errorf("failed to unmarshal header: %w", err)
	}
	return h, nil
}

// RowCommitments splits the header commitments, checking there is one
// per original row.
func (e Extension) RowCommitments() ([]kzg.Commitment, error) {
	cs, err := kzg.SplitCommitments(e.Commitments)
	if err != nil {
		return nil, err
	}
	if len(cs) != int(e.Dimensions.Rows) {
		return nil, fmt.Errorf("%w: %d for %d rows", kzg.ErrCommitmentCount, len(cs), e.Dimensions.Rows)
	}
	return cs, nil
}
