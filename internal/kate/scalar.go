// Package kate holds the field level primitives shared by the grid,
// commitment and recovery layers: the canonical scalar encoding, chunk
// constants and evaluation domains over the BLS12-381 scalar field.
package kate

import (
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
)

const (
	// ChunkSize is the encoded size of one scalar.
	ChunkSize = fr.Bytes
	// DataChunkSize is the number of payload bytes carried by one scalar. The
	// remaining high byte is always zero so every chunk is below the modulus.
	DataChunkSize = ChunkSize - 1
	// PaddingTailValue marks the end of an application's encoded payloads.
	PaddingTailValue byte = 0x80

	CommitmentSize = 48
	ProofSize      = 48
)

var (
	ErrScalarOutOfRange = errors.New("scalar is not below the field modulus")
	ErrChunkTooLong     = errors.New("chunk longer than data chunk size")
)

// ScalarBytes is the little-endian canonical encoding of a scalar.
type ScalarBytes [ChunkSize]byte

// ScalarFromBytes decodes a little-endian scalar, rejecting non canonical values.
func ScalarFromBytes(b ScalarBytes) (fr.Element, error) {
	be := reversed(b)
	var e fr.Element
	if err := e.SetBytesCanonical(be[:]); err != nil {
		return fr.Element{}, fmt.Errorf("%w: %v", ErrScalarOutOfRange, err)
	}
	return e, nil
}

// ScalarToBytes encodes e as little-endian bytes.
func ScalarToBytes(e *fr.Element) ScalarBytes {
	return reversed(e.Bytes())
}

// PadToScalar turns up to DataChunkSize bytes into a scalar by appending
// zero bytes up to ChunkSize.
func PadToScalar(chunk []byte) (fr.Element, error) {
	if len(chunk) > DataChunkSize {
		return fr.Element{}, ErrChunkTooLong
	}
	var b ScalarBytes
	copy(b[:], chunk)
	return ScalarFromBytes(b)
}

func reversed(in [ChunkSize]byte) [ChunkSize]byte {
	var out [ChunkSize]byte
	for i := range in {
		out[ChunkSize-1-i] = in[i]
	}
	return out
}
