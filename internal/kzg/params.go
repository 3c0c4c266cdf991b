package kzg

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/big"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	gnarkkzg "github.com/consensys/gnark-crypto/ecc/bls12-381/kzg"
)

// Params are the public parameters of the scheme: G1 powers of the secret
// for commitments and single openings plus the G2 powers needed to check
// multi-point openings.
type Params struct {
	SRS *gnarkkzg.SRS
	G2  []bls12381.G2Affine
}

// NewDevParams derives parameters from a known secret. Only suitable for
// development networks and tests.
func NewDevParams(size uint64, secret *big.Int) (*Params, error) {
	srs, err := gnarkkzg.NewSRS(size, secret)
	if err != nil {
		return nil, fmt.Errorf("create srs: %w", err)
	}

	var tau fr.Element
	tau.SetBigInt(secret)

	_, _, _, g2 := bls12381.Generators()
	powers := make([]bls12381.G2Affine, size)
	var (
		acc fr.Element
		bi  big.Int
	)
	acc.SetOne()
	for i := range powers {
		powers[i].ScalarMultiplication(&g2, acc.BigInt(&bi))
		acc.Mul(&acc, &tau)
	}
	return &Params{SRS: srs, G2: powers}, nil
}

// MaxG2Powers bounds the G2 powers accepted from a parameters file. No
// multiproof spans more columns than the widest grid row.
const MaxG2Powers = 1 << 16

// MaxWidth is the widest polynomial that can be committed to.
func (p *Params) MaxWidth() int {
	return len(p.SRS.Pk.G1)
}

// WriteTo encodes the G2 powers followed by the SRS.
func (p *Params) WriteTo(w io.Writer) (int64, error) {
	var n int64
	var count [4]byte
	binary.LittleEndian.PutUint32(count[:], uint32(len(p.G2)))
	m, err := w.Write(count[:])
	n += int64(m)
	if err != nil {
		return n, err
	}
	for i := range p.G2 {
		b := p.G2[i].Bytes()
		m, err := w.Write(b[:])
		n += int64(m)
		if err != nil {
			return n, err
		}
	}
	m64, err := p.SRS.WriteTo(w)
	return n + m64, err
}

// ReadFrom decodes parameters written by WriteTo.
func (p *Params) ReadFrom(r io.Reader) (int64, error) {
	var n int64
	var count [4]byte
	m, err := io.ReadFull(r, count[:])
	n += int64(m)
	if err != nil {
		return n, fmt.Errorf("read g2 count: %w", err)
	}

	g2Count := binary.LittleEndian.Uint32(count[:])
	if g2Count > MaxG2Powers {
		return n, fmt.Errorf("%w: %d g2 powers, max %d", ErrParamsCorrupt, g2Count, MaxG2Powers)
	}
	p.G2 = make([]bls12381.G2Affine, g2Count)
	buf := make([]byte, bls12381.SizeOfG2AffineCompressed)
	for i := range p.G2 {
		m, err := io.ReadFull(r, buf)
		n += int64(m)
		if err != nil {
			return n, fmt.Errorf("read g2 power %d: %w", i, err)
		}
		if _, err := p.G2[i].SetBytes(buf); err != nil {
			return n, fmt.Errorf("decode g2 power %d: %w", i, err)
		}
	}

	p.SRS = new(gnarkkzg.SRS)
	m64, err := p.SRS.ReadFrom(r)
	return n + m64, err
}
