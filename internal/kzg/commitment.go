package kzg

import (
	"encoding/hex"
	"fmt"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"

	"github.com/eigerco/katedas/internal/grid"
	"github.com/eigerco/katedas/internal/kate"
)

// Commitment is a compressed G1 point committing to one row polynomial.
type Commitment [kate.CommitmentSize]byte

// Proof is a compressed G1 opening witness.
type Proof [kate.ProofSize]byte

func (c Commitment) String() string { return hex.EncodeToString(c[:]) }

func (c Commitment) Point() (bls12381.G1Affine, error) {
	var p bls12381.G1Affine
	if _, err := p.SetBytes(c[:]); err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidCommitment, err)
	}
	return p, nil
}

func (p Proof) Point() (bls12381.G1Affine, error) {
	var pt bls12381.G1Affine
	if _, err := pt.SetBytes(p[:]); err != nil {
		return pt, fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	return pt, nil
}

// Cell is an opened grid value with its proof.
type Cell struct {
	Position grid.Position
	Value    fr.Element
	Proof    Proof
}

// ConcatCommitments is the header encoding of a commitment list.
func ConcatCommitments(cs []Commitment) []byte {
	out := make([]byte, 0, len(cs)*kate.CommitmentSize)
	for _, c := range cs {
		out = append(out, c[:]...)
	}
	return out
}

// SplitCommitments decodes the header encoding produced by ConcatCommitments.
func SplitCommitments(b []byte) ([]Commitment, error) {
	if len(b)%kate.CommitmentSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidCommitment, len(b))
	}
	cs := make([]Commitment, len(b)/kate.CommitmentSize)
	for i := range cs {
		copy(cs[i][:], b[i*kate.CommitmentSize:])
	}
	return cs, nil
}
