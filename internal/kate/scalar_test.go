package kate

import (
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScalarBytesLittleEndian(t *testing.T) {
	var e fr.Element
	e.SetUint64(0x0102)

	b := ScalarToBytes(&e)
	assert.Equal(t, byte(0x02), b[0])
	assert.Equal(t, byte(0x01), b[1])
	assert.Equal(t, byte(0x00), b[31])

	back, err := ScalarFromBytes(b)
	require.NoError(t, err)
	assert.True(t, back.Equal(&e))
}

func TestScalarFromBytesRejectsNonCanonical(t *testing.T) {
	var b ScalarBytes
	for i := range b {
		b[i] = 0xff
	}
	_, err := ScalarFromBytes(b)
	assert.ErrorIs(t, err, ErrScalarOutOfRange)
}

func TestPadToScalar(t *testing.T) {
	chunk := make([]byte, DataChunkSize)
	for i := range chunk {
		chunk[i] = 0xff
	}
	e, err := PadToScalar(chunk)
	require.NoError(t, err)
	b := ScalarToBytes(&e)
	assert.Equal(t, chunk, b[:DataChunkSize])
	assert.Zero(t, b[DataChunkSize])

	_, err = PadToScalar(make([]byte, ChunkSize))
	assert.ErrorIs(t, err, ErrChunkTooLong)
}

func TestFFTRoundTrip(t *testing.T) {
	for _, n := range []uint64{1, 2, 8, 64} {
		d, err := Domain(n)
		require.NoError(t, err)

		values := make([]fr.Element, n)
		for i := range values {
			values[i].SetUint64(uint64(i*7 + 3))
		}
		work := append([]fr.Element(nil), values...)
		require.NoError(t, IFFT(d, work))
		require.NoError(t, FFT(d, work))
		for i := range values {
			assert.True(t, values[i].Equal(&work[i]), "n=%d i=%d", n, i)
		}
	}
}

func TestFFTEvaluatesAtDomainPoints(t *testing.T) {
	d, err := Domain(4)
	require.NoError(t, err)

	// p(x) = 1 + 2x
	coeffs := make([]fr.Element, 4)
	coeffs[0].SetUint64(1)
	coeffs[1].SetUint64(2)
	evals := append([]fr.Element(nil), coeffs...)
	require.NoError(t, FFT(d, evals))

	for i := uint64(0); i < 4; i++ {
		x := Point(d, i)
		var want, two fr.Element
		two.SetUint64(2)
		want.Mul(&x, &two)
		want.Add(&want, &coeffs[0])
		assert.True(t, want.Equal(&evals[i]), "point %d", i)
	}
}

func TestDomainRejectsBadSize(t *testing.T) {
	_, err := Domain(0)
	assert.ErrorIs(t, err, ErrDomainSizeInvalid)

	_, err = Domain(6)
	assert.ErrorIs(t, err, ErrDomainSizeInvalid)

	d, err := Domain(8)
	require.NoError(t, err)
	assert.ErrorIs(t, FFT(d, make([]fr.Element, 4)), ErrDomainSizeInvalid)
}

func TestNextPowerOfTwo(t *testing.T) {
	assert.Equal(t, 0, NextPowerOfTwo(0))
	assert.Equal(t, 1, NextPowerOfTwo(1))
	assert.Equal(t, 4, NextPowerOfTwo(3))
	assert.Equal(t, 256, NextPowerOfTwo(256))
	assert.True(t, IsPowerOfTwo(64))
	assert.False(t, IsPowerOfTwo(48))
}
