package kzg

import "github.com/consensys/gnark-crypto/ecc/bls12-381/fr"

// Coefficient vectors are ordered from the constant term up.

func evalPoly(p []fr.Element, x fr.Element) fr.Element {
	var acc fr.Element
	for i := len(p) - 1; i >= 0; i-- {
		acc.Mul(&acc, &x)
		acc.Add(&acc, &p[i])
	}
	return acc
}

// vanishingPoly returns prod (X - x_i).
func vanishingPoly(points []fr.Element) []fr.Element {
	z := make([]fr.Element, 1, len(points)+1)
	z[0].SetOne()
	for i := range points {
		next := make([]fr.Element, len(z)+1)
		for k := range z {
			var t fr.Element
			t.Mul(&z[k], &points[i])
			next[k].Sub(&next[k], &t)
			next[k+1].Add(&next[k+1], &z[k])
		}
		z = next
	}
	return z
}

// lagrangeInterpolate returns the polynomial of degree < len(xs) through the
// given points. The xs must be distinct.
func lagrangeInterpolate(xs, ys []fr.Element) []fr.Element {
	n := len(xs)
	out := make([]fr.Element, n)
	z := vanishingPoly(xs)
	for i := 0; i < n; i++ {
		// basis numerator z / (X - x_i)
		num, _ := divideByLinear(z, xs[i])
		denom := evalPoly(num, xs[i])
		var scale fr.Element
		scale.Inverse(&denom)
		scale.Mul(&scale, &ys[i])
		for k := range num {
			var t fr.Element
			t.Mul(&num[k], &scale)
			out[k].Add(&out[k], &t)
		}
	}
	return out
}

// divideByLinear divides p by (X - a) with synthetic division.
func divideByLinear(p []fr.Element, a fr.Element) (q []fr.Element, rem fr.Element) {
	if len(p) == 0 {
		return nil, rem
	}
	q = make([]fr.Element, len(p)-1)
	rem = p[len(p)-1]
	for i := len(p) - 2; i >= 0; i-- {
		q[i] = rem
		var t fr.Element
		t.Mul(&rem, &a)
		rem.Add(&t, &p[i])
	}
	return q, rem
}

// divide returns the quotient and remainder of p / d. d must be monic.
func divide(p, d []fr.Element) (q, r []fr.Element) {
	r = append([]fr.Element(nil), p...)
	if len(p) < len(d) {
		return nil, r
	}
	q = make([]fr.Element, len(p)-len(d)+1)
	for i := len(q) - 1; i >= 0; i-- {
		coef := r[i+len(d)-1]
		q[i] = coef
		for k := range d {
			var t fr.Element
			t.Mul(&coef, &d[k])
			r[i+k].Sub(&r[i+k], &t)
		}
	}
	return q, r[:len(d)-1]
}

func subPoly(a, b []fr.Element) []fr.Element {
	out := make([]fr.Element, max(len(a), len(b)))
	copy(out, a)
	for i := range b {
		out[i].Sub(&out[i], &b[i])
	}
	return out
}

func isZeroPoly(p []fr.Element) bool {
	for i := range p {
		if !p[i].IsZero() {
			return false
		}
	}
	return true
}

func trimPoly(p []fr.Element) []fr.Element {
	for len(p) > 0 && p[len(p)-1].IsZero() {
		p = p[:len(p)-1]
	}
	return p
}
