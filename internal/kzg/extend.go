package kzg

import (
	"fmt"
	"math/big"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"

	"github.com/eigerco/katedas/internal/kate"
)

// ExtendCommitments computes the commitments of the rows grid.Extend would
// produce, from the commitments of the original rows alone. Commitments are
// linear in the row polynomials so the column transform can be applied to
// the G1 points directly.
func ExtendCommitments(commitments []Commitment, rowFactor int) ([]Commitment, error) {
	n := len(commitments)
	if !kate.IsPowerOfTwo(n) || !kate.IsPowerOfTwo(rowFactor) {
		return nil, fmt.Errorf("%w: %d commitments, factor %d", kate.ErrDomainSizeInvalid, n, rowFactor)
	}
	small, err := kate.Domain(uint64(n))
	if err != nil {
		return nil, err
	}
	large, err := kate.Domain(uint64(n * rowFactor))
	if err != nil {
		return nil, err
	}

	points := make([]bls12381.G1Jac, n)
	for i, c := range commitments {
		p, err := c.Point()
		if err != nil {
			return nil, fmt.Errorf("commitment %d: %w", i, err)
		}
		points[i].FromAffine(&p)
	}

	coeffs := fftG1(points, small.GeneratorInv)
	var nInv big.Int
	small.CardinalityInv.BigInt(&nInv)
	padded := make([]bls12381.G1Jac, n*rowFactor)
	for i := range coeffs {
		padded[i].ScalarMultiplication(&coeffs[i], &nInv)
	}
	for i := n; i < len(padded); i++ {
		// point at infinity
		padded[i].X.SetOne()
		padded[i].Y.SetOne()
	}
	extended := fftG1(padded, large.Generator)

	out := make([]Commitment, len(extended))
	for i := range extended {
		var a bls12381.G1Affine
		a.FromJacobian(&extended[i])
		out[i] = a.Bytes()
	}
	return out, nil
}

// fftG1 evaluates the G1-coefficient polynomial a at the powers of root.
func fftG1(a []bls12381.G1Jac, root fr.Element) []bls12381.G1Jac {
	n := len(a)
	if n == 1 {
		return []bls12381.G1Jac{a[0]}
	}
	even := make([]bls12381.G1Jac, n/2)
	odd := make([]bls12381.G1Jac, n/2)
	for i := 0; i < n/2; i++ {
		even[i] = a[2*i]
		odd[i] = a[2*i+1]
	}
	var sq fr.Element
	sq.Square(&root)
	e := fftG1(even, sq)
	o := fftG1(odd, sq)

	out := make([]bls12381.G1Jac, n)
	var (
		w  fr.Element
		wb big.Int
	)
	w.SetOne()
	for i := 0; i < n/2; i++ {
		var t bls12381.G1Jac
		t.ScalarMultiplication(&o[i], w.BigInt(&wb))
		out[i].Set(&e[i]).AddAssign(&t)
		out[i+n/2].Set(&e[i]).SubAssign(&t)
		w.Mul(&w, &root)
	}
	return out
}
