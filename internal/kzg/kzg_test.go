package kzg

import (
	"bytes"
	"encoding/binary"
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/katedas/internal/crypto"
	"github.com/eigerco/katedas/internal/grid"
	"github.com/eigerco/katedas/internal/kate"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	params, err := NewDevParams(16, big.NewInt(0x5eed))
	require.NoError(t, err)
	return NewBackend(params)
}

// two original rows of eight columns
func buildTestGrid(t *testing.T, seed crypto.Seed) *grid.EvaluationGrid {
	t.Helper()
	payloads := []grid.AppPayload{
		{AppID: 1, Data: bytes.Repeat([]byte("data availability "), 10)},
		{AppID: 2, Data: bytes.Repeat([]byte{7}, 100)},
	}
	g, err := grid.Build(payloads, 4, 8, 4, seed)
	require.NoError(t, err)
	require.Equal(t, grid.Dimensions{Rows: 2, Cols: 8}, g.Dims())
	return g
}

func TestInterpolateMatchesEvaluations(t *testing.T) {
	g := buildTestGrid(t, crypto.Seed{1})
	pg, err := Interpolate(g)
	require.NoError(t, err)

	for r := 0; r < int(g.Dims().Rows); r++ {
		for c := 0; c < int(g.Dims().Cols); c++ {
			want, ok := g.Get(r, c)
			require.True(t, ok)
			got := pg.Eval(r, c)
			assert.True(t, want.Equal(&got), "cell (%d,%d)", r, c)
		}
	}
}

func TestCommitIsDeterministic(t *testing.T) {
	b := newTestBackend(t)

	commit := func(seed crypto.Seed) []Commitment {
		pg, err := Interpolate(buildTestGrid(t, seed))
		require.NoError(t, err)
		cs, err := b.Commit(pg)
		require.NoError(t, err)
		return cs
	}

	first := commit(crypto.Seed{1})
	assert.Len(t, first, 2)
	assert.Equal(t, first, commit(crypto.Seed{1}))
	assert.NotEqual(t, first, commit(crypto.Seed{2}))
}

func TestCommitRejectsWideGrid(t *testing.T) {
	params, err := NewDevParams(4, big.NewInt(3))
	require.NoError(t, err)
	pg, err := Interpolate(buildTestGrid(t, crypto.Seed{}))
	require.NoError(t, err)

	_, err = NewBackend(params).Commit(pg)
	assert.ErrorIs(t, err, ErrParamsTooSmall)
}

func TestOpenAndVerifySingle(t *testing.T) {
	b := newTestBackend(t)
	ext, err := grid.Extend(buildTestGrid(t, crypto.Seed{4}), 2)
	require.NoError(t, err)
	pg, err := Interpolate(ext)
	require.NoError(t, err)
	commitments, err := b.Commit(pg)
	require.NoError(t, err)
	dims := ext.Dims()

	for r := uint32(0); r < uint32(dims.Rows); r++ {
		for c := uint32(0); c < uint32(dims.Cols); c++ {
			cell, err := b.OpenSingle(pg, grid.Position{Row: r, Col: c})
			require.NoError(t, err)
			want, _ := ext.Get(int(r), int(c))
			assert.True(t, want.Equal(&cell.Value))
			assert.NoError(t, b.VerifySingle(commitments[r], cell, dims.Cols), "cell (%d,%d)", r, c)
		}
	}

	cell, err := b.OpenSingle(pg, grid.Position{Row: 1, Col: 3})
	require.NoError(t, err)

	tampered := cell
	var one fr.Element
	one.SetOne()
	tampered.Value.Add(&tampered.Value, &one)
	assert.ErrorIs(t, b.VerifySingle(commitments[1], tampered, dims.Cols), ErrVerificationFailed)

	assert.ErrorIs(t, b.VerifySingle(commitments[2], cell, dims.Cols), ErrVerificationFailed)

	garbage := cell
	garbage.Proof = Proof{0xff}
	assert.ErrorIs(t, b.VerifySingle(commitments[1], garbage, dims.Cols), ErrInvalidProof)
}

func TestOpenSingleOutOfRange(t *testing.T) {
	b := newTestBackend(t)
	pg, err := Interpolate(buildTestGrid(t, crypto.Seed{}))
	require.NoError(t, err)

	_, err = b.OpenSingle(pg, grid.Position{Row: 2, Col: 0})
	assert.ErrorIs(t, err, ErrCellLengthExceeded)
	_, err = b.OpenSingle(pg, grid.Position{Row: 0, Col: 8})
	assert.ErrorIs(t, err, ErrCellLengthExceeded)
}

func TestExtendCommitmentsMatchesExtendedGrid(t *testing.T) {
	b := newTestBackend(t)
	g := buildTestGrid(t, crypto.Seed{5})

	pg, err := Interpolate(g)
	require.NoError(t, err)
	original, err := b.Commit(pg)
	require.NoError(t, err)

	ext, err := grid.Extend(g, 2)
	require.NoError(t, err)
	extPg, err := Interpolate(ext)
	require.NoError(t, err)
	want, err := b.Commit(extPg)
	require.NoError(t, err)

	got, err := ExtendCommitments(original, 2)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, original[0], got[0])
	assert.Equal(t, original[1], got[2])

	_, err = ExtendCommitments(original[:1], 2)
	require.NoError(t, err)
	_, err = ExtendCommitments(append(original, original[0]), 2)
	assert.ErrorIs(t, err, kate.ErrDomainSizeInvalid)
}

func TestOpenAndVerifyBlock(t *testing.T) {
	b := newTestBackend(t)
	ext, err := grid.Extend(buildTestGrid(t, crypto.Seed{6}), 2)
	require.NoError(t, err)
	pg, err := Interpolate(ext)
	require.NoError(t, err)
	commitments, err := b.Commit(pg)
	require.NoError(t, err)
	target := grid.Dimensions{Rows: 2, Cols: 4}

	mp, err := b.OpenBlock(pg, ext, grid.Position{Row: 3, Col: 5}, target)
	require.NoError(t, err)
	assert.Equal(t, grid.CellBlock{StartX: 4, StartY: 2, EndX: 6, EndY: 4}, mp.Block)
	require.Len(t, mp.Evals, 4)

	for pos, v := range mp.Cells() {
		want, ok := ext.Get(int(pos.Row), int(pos.Col))
		require.True(t, ok)
		assert.True(t, want.Equal(&v))
	}
	require.NoError(t, b.VerifyBlock(commitments, mp, ext.Dims()))

	var one fr.Element
	one.SetOne()
	bad := *mp
	bad.Evals = append([]fr.Element(nil), mp.Evals...)
	bad.Evals[3].Add(&bad.Evals[3], &one)
	assert.ErrorIs(t, b.VerifyBlock(commitments, &bad, ext.Dims()), ErrVerificationFailed)

	assert.ErrorIs(t, b.VerifyBlock(commitments[:2], mp, ext.Dims()), ErrCommitmentCount)
}

func TestOpenBlockFullWidth(t *testing.T) {
	b := newTestBackend(t)
	g := buildTestGrid(t, crypto.Seed{7})
	pg, err := Interpolate(g)
	require.NoError(t, err)
	commitments, err := b.Commit(pg)
	require.NoError(t, err)

	mp, err := b.OpenBlock(pg, g, grid.Position{Row: 0, Col: 0}, grid.Dimensions{Rows: 1, Cols: 1})
	require.NoError(t, err)
	assert.Equal(t, grid.CellBlock{StartX: 0, StartY: 0, EndX: 8, EndY: 2}, mp.Block)
	require.NoError(t, b.VerifyBlock(commitments, mp, g.Dims()))
}

func TestOpenBlockInvalidTarget(t *testing.T) {
	b := newTestBackend(t)
	g := buildTestGrid(t, crypto.Seed{})
	pg, err := Interpolate(g)
	require.NoError(t, err)

	_, err = b.OpenBlock(pg, g, grid.Position{}, grid.Dimensions{Rows: 1, Cols: 3})
	assert.ErrorIs(t, err, ErrTargetDimsInvalid)
	_, err = b.OpenBlock(pg, g, grid.Position{Row: 5}, grid.Dimensions{Rows: 1, Cols: 4})
	assert.ErrorIs(t, err, ErrCellLengthExceeded)
}

func TestParamsRoundTrip(t *testing.T) {
	b := newTestBackend(t)
	buf := &bytes.Buffer{}
	_, err := b.Params().WriteTo(buf)
	require.NoError(t, err)

	read := &Params{}
	_, err = read.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, b.Params().G2, read.G2)
	assert.Equal(t, b.Params().SRS.Pk.G1, read.SRS.Pk.G1)

	pg, err := Interpolate(buildTestGrid(t, crypto.Seed{8}))
	require.NoError(t, err)
	commitments, err := b.Commit(pg)
	require.NoError(t, err)
	cell, err := b.OpenSingle(pg, grid.Position{Row: 1, Col: 2})
	require.NoError(t, err)
	assert.NoError(t, NewBackend(read).VerifySingle(commitments[1], cell, 8))
}

func TestParamsReadRejectsOversizedCount(t *testing.T) {
	for _, count := range []uint32{MaxG2Powers + 1, 0xffffffff} {
		buf := &bytes.Buffer{}
		require.NoError(t, binary.Write(buf, binary.LittleEndian, count))

		_, err := (&Params{}).ReadFrom(buf)
		assert.ErrorIs(t, err, ErrParamsCorrupt)
	}

	// a count within bounds on truncated data fails on the missing powers
	buf := bytes.NewBuffer([]byte{2, 0, 0, 0})
	_, err := (&Params{}).ReadFrom(buf)
	assert.ErrorContains(t, err, "read g2 power 0")
}

func TestCommitmentHeaderEncoding(t *testing.T) {
	cs := []Commitment{{1}, {2}, {3}}
	b := ConcatCommitments(cs)
	assert.Len(t, b, 3*kate.CommitmentSize)

	back, err := SplitCommitments(b)
	require.NoError(t, err)
	assert.Equal(t, cs, back)

	_, err = SplitCommitments(b[1:])
	assert.ErrorIs(t, err, ErrInvalidCommitment)
}
