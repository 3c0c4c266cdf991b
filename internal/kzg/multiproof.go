package kzg

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	gnarkkzg "github.com/consensys/gnark-crypto/ecc/bls12-381/kzg"

	"github.com/eigerco/katedas/internal/crypto"
	"github.com/eigerco/katedas/internal/grid"
	"github.com/eigerco/katedas/internal/kate"
	"github.com/eigerco/katedas/pkg/log"
)

// Multiproof is one aggregated opening of every cell inside Block. Evals are
// row-major within the block.
type Multiproof struct {
	Block grid.CellBlock
	Evals []fr.Element
	Proof Proof
}

// OpenBlock proves the multiproof block containing cell. Rows of the block
// are folded with a Fiat-Shamir challenge and the folded polynomial P is
// opened on the block's column points S with the quotient (P - I) / Z_S.
func (b *Backend) OpenBlock(pg *PolynomialGrid, eg *grid.EvaluationGrid, cell grid.Position, target grid.Dimensions) (*Multiproof, error) {
	if eg.Dims() != pg.dims {
		return nil, fmt.Errorf("%w: %s and %s", ErrDimensionsMismatch, pg.dims, eg.Dims())
	}
	if !pg.dims.Contains(cell) {
		return nil, fmt.Errorf("%w: %s in %s", ErrCellLengthExceeded, cell, pg.dims)
	}
	block, ok := grid.BlockOf(cell, pg.dims, target)
	if !ok {
		return nil, fmt.Errorf("%w: grid %s, target %s", ErrTargetDimsInvalid, pg.dims, target)
	}
	if block.Width()+1 > len(b.params.G2) {
		return nil, fmt.Errorf("%w: block width %d needs %d g2 powers", ErrParamsTooSmall, block.Width(), block.Width()+1)
	}

	commitments := make([]Commitment, 0, block.Height())
	for r := block.StartY; r < block.EndY; r++ {
		d, err := gnarkkzg.Commit(pg.rows[r], b.params.SRS.Pk)
		if err != nil {
			return nil, fmt.Errorf("commit row %d: %w", r, err)
		}
		commitments = append(commitments, d.Bytes())
	}
	gamma := blockChallenge(commitments, block)

	folded := make([]fr.Element, pg.dims.Cols)
	evals := make([]fr.Element, 0, block.Width()*block.Height())
	var scale fr.Element
	scale.SetOne()
	for r := block.StartY; r < block.EndY; r++ {
		for k := range pg.rows[r] {
			var t fr.Element
			t.Mul(&pg.rows[r][k], &scale)
			folded[k].Add(&folded[k], &t)
		}
		for c := block.StartX; c < block.EndX; c++ {
			v, _ := eg.Get(r, c)
			evals = append(evals, v)
		}
		scale.Mul(&scale, &gamma)
	}

	xs := blockPoints(pg.domain.Generator, block)
	ys := foldEvals(evals, block, gamma)
	interp := lagrangeInterpolate(xs, ys)
	quotient, rem := divide(subPoly(folded, interp), vanishingPoly(xs))
	if !isZeroPoly(rem) {
		log.KZG.Error().Stringer("cell", cell).Msg("multiproof quotient not exact")
		return nil, fmt.Errorf("%w: block at %s", ErrQuotientRemainder, cell)
	}

	pi, err := b.commitPoly(quotient)
	if err != nil {
		return nil, fmt.Errorf("commit quotient: %w", err)
	}
	return &Multiproof{Block: block, Evals: evals, Proof: pi.Bytes()}, nil
}

// VerifyBlock checks mp against the row commitments of a grid of dims.
func (b *Backend) VerifyBlock(commitments []Commitment, mp *Multiproof, dims grid.Dimensions) error {
	block := mp.Block
	if len(commitments) != int(dims.Rows) {
		return fmt.Errorf("%w: %d commitments for %d rows", ErrCommitmentCount, len(commitments), dims.Rows)
	}
	if block.StartX < 0 || block.StartY < 0 || block.Width() <= 0 || block.Height() <= 0 ||
		block.EndX > int(dims.Cols) || block.EndY > int(dims.Rows) {
		return fmt.Errorf("%w: block %+v in %s", ErrCellLengthExceeded, block, dims)
	}
	if len(mp.Evals) != block.Width()*block.Height() {
		return fmt.Errorf("%w: %d evaluations for block %+v", ErrInvalidProof, len(mp.Evals), block)
	}
	if block.Width()+1 > len(b.params.G2) {
		return fmt.Errorf("%w: block width %d", ErrParamsTooSmall, block.Width())
	}

	rowCommitments := commitments[block.StartY:block.EndY]
	gamma := blockChallenge(rowCommitments, block)

	points := make([]bls12381.G1Affine, len(rowCommitments))
	scalars := make([]fr.Element, len(rowCommitments))
	scalars[0].SetOne()
	for i, c := range rowCommitments {
		p, err := c.Point()
		if err != nil {
			return err
		}
		points[i] = p
		if i > 0 {
			scalars[i].Mul(&scalars[i-1], &gamma)
		}
	}
	var folded bls12381.G1Affine
	if _, err := folded.MultiExp(points, scalars, ecc.MultiExpConfig{}); err != nil {
		return fmt.Errorf("fold commitments: %w", err)
	}

	d, err := kate.Domain(uint64(dims.Cols))
	if err != nil {
		return err
	}
	xs := blockPoints(d.Generator, block)
	interp, err := b.commitPoly(lagrangeInterpolate(xs, foldEvals(mp.Evals, block, gamma)))
	if err != nil {
		return err
	}
	zeros := vanishingPoly(xs)
	var z2 bls12381.G2Affine
	if _, err := z2.MultiExp(b.params.G2[:len(zeros)], zeros, ecc.MultiExpConfig{}); err != nil {
		return fmt.Errorf("commit vanishing polynomial: %w", err)
	}
	pi, err := mp.Proof.Point()
	if err != nil {
		return err
	}

	// e(C - [I], g2) == e(pi, [Z]_2)
	var lhsJac, interpJac bls12381.G1Jac
	lhsJac.FromAffine(&folded)
	interpJac.FromAffine(&interp)
	lhsJac.SubAssign(&interpJac)
	var lhs, negPi bls12381.G1Affine
	lhs.FromJacobian(&lhsJac)
	negPi.Neg(&pi)
	ok, err := bls12381.PairingCheck(
		[]bls12381.G1Affine{lhs, negPi},
		[]bls12381.G2Affine{b.params.G2[0], z2},
	)
	if err != nil {
		return fmt.Errorf("pairing: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: block %+v", ErrVerificationFailed, block)
	}
	return nil
}

// Cells returns the evaluations of mp keyed by position.
func (mp *Multiproof) Cells() map[grid.Position]fr.Element {
	out := make(map[grid.Position]fr.Element, len(mp.Evals))
	w := mp.Block.Width()
	for i, v := range mp.Evals {
		out[grid.Position{Row: uint32(mp.Block.StartY + i/w), Col: uint32(mp.Block.StartX + i%w)}] = v
	}
	return out
}

func blockChallenge(commitments []Commitment, block grid.CellBlock) fr.Element {
	coords := make([]byte, 16)
	binary.LittleEndian.PutUint32(coords[0:], uint32(block.StartX))
	binary.LittleEndian.PutUint32(coords[4:], uint32(block.StartY))
	binary.LittleEndian.PutUint32(coords[8:], uint32(block.EndX))
	binary.LittleEndian.PutUint32(coords[12:], uint32(block.EndY))
	h := crypto.HashData(ConcatCommitments(commitments), coords)

	var gamma fr.Element
	gamma.SetBytes(h[:])
	return gamma
}

func blockPoints(generator fr.Element, block grid.CellBlock) []fr.Element {
	xs := make([]fr.Element, block.Width())
	var step fr.Element
	step.Exp(generator, new(big.Int).SetUint64(uint64(block.StartX)))
	for i := range xs {
		xs[i] = step
		step.Mul(&step, &generator)
	}
	return xs
}

func foldEvals(evals []fr.Element, block grid.CellBlock, gamma fr.Element) []fr.Element {
	w := block.Width()
	ys := make([]fr.Element, w)
	var scale fr.Element
	scale.SetOne()
	for r := 0; r < block.Height(); r++ {
		for c := 0; c < w; c++ {
			var t fr.Element
			t.Mul(&evals[r*w+c], &scale)
			ys[c].Add(&ys[c], &t)
		}
		scale.Mul(&scale, &gamma)
	}
	return ys
}
