package kate

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr/fft"
)

var ErrDomainSizeInvalid = errors.New("evaluation domain size invalid")

var domains sync.Map // uint64 -> *fft.Domain

// Domain returns the multiplicative subgroup of exactly size n. Sizes that
// are not a power of two cannot be represented.
func Domain(n uint64) (*fft.Domain, error) {
	if n == 0 {
		return nil, fmt.Errorf("%w: zero size", ErrDomainSizeInvalid)
	}
	if d, ok := domains.Load(n); ok {
		return d.(*fft.Domain), nil
	}
	var d *fft.Domain
	if n == 1 {
		// trivial domain, transforms are the identity
		d = &fft.Domain{Cardinality: 1}
		d.Generator.SetOne()
		d.GeneratorInv.SetOne()
		d.CardinalityInv.SetOne()
	} else {
		d = fft.NewDomain(n)
	}
	if d.Cardinality != n {
		return nil, fmt.Errorf("%w: requested %d, domain has %d", ErrDomainSizeInvalid, n, d.Cardinality)
	}
	actual, _ := domains.LoadOrStore(n, d)
	return actual.(*fft.Domain), nil
}

// Point returns the i-th element of the domain of size n, generator^i.
func Point(d *fft.Domain, i uint64) fr.Element {
	var p fr.Element
	p.Exp(d.Generator, new(big.Int).SetUint64(i))
	return p
}

// FFT evaluates the coefficients in a over d, in place, natural order.
func FFT(d *fft.Domain, a []fr.Element) error {
	if uint64(len(a)) != d.Cardinality {
		return fmt.Errorf("%w: %d values for domain of %d", ErrDomainSizeInvalid, len(a), d.Cardinality)
	}
	if len(a) == 1 {
		return nil
	}
	d.FFT(a, fft.DIF)
	fft.BitReverse(a)
	return nil
}

// IFFT interpolates the evaluations in a over d into coefficients, in place.
func IFFT(d *fft.Domain, a []fr.Element) error {
	if uint64(len(a)) != d.Cardinality {
		return fmt.Errorf("%w: %d values for domain of %d", ErrDomainSizeInvalid, len(a), d.Cardinality)
	}
	if len(a) == 1 {
		return nil
	}
	d.FFTInverse(a, fft.DIF)
	fft.BitReverse(a)
	return nil
}

// IsPowerOfTwo reports whether n is a non-zero power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// NextPowerOfTwo rounds n up to a power of two. Zero maps to zero.
func NextPowerOfTwo(n int) int {
	if n == 0 {
		return 0
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
