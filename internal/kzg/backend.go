// Package kzg commits to the rows of an evaluation grid and opens single
// cells or whole blocks of cells against those commitments.
package kzg

import (
	"errors"
	"fmt"
	"runtime"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	gnarkkzg "github.com/consensys/gnark-crypto/ecc/bls12-381/kzg"
	"golang.org/x/sync/errgroup"

	"github.com/eigerco/katedas/internal/grid"
	"github.com/eigerco/katedas/internal/kate"
	"github.com/eigerco/katedas/pkg/log"
)

type Committer interface {
	Commit(pg *PolynomialGrid) ([]Commitment, error)
}

type ProofOpener interface {
	OpenSingle(pg *PolynomialGrid, cell grid.Position) (Cell, error)
	OpenBlock(pg *PolynomialGrid, eg *grid.EvaluationGrid, cell grid.Position, target grid.Dimensions) (*Multiproof, error)
}

type Verifier interface {
	VerifySingle(c Commitment, cell Cell, cols uint16) error
	VerifyBlock(commitments []Commitment, mp *Multiproof, dims grid.Dimensions) error
}

var (
	_ Committer   = (*Backend)(nil)
	_ ProofOpener = (*Backend)(nil)
	_ Verifier    = (*Backend)(nil)
)

// Backend implements every capability over gnark-crypto.
type Backend struct {
	params *Params
}

func NewBackend(params *Params) *Backend {
	return &Backend{params: params}
}

func (b *Backend) Params() *Params { return b.params }

// Commit returns one commitment per row.
func (b *Backend) Commit(pg *PolynomialGrid) ([]Commitment, error) {
	if int(pg.dims.Cols) > b.params.MaxWidth() {
		return nil, fmt.Errorf("%w: %d columns, srs holds %d", ErrParamsTooSmall, pg.dims.Cols, b.params.MaxWidth())
	}
	out := make([]Commitment, len(pg.rows))
	var eg errgroup.Group
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for i := range pg.rows {
		eg.Go(func() error {
			d, err := gnarkkzg.Commit(pg.rows[i], b.params.SRS.Pk)
			if err != nil {
				return fmt.Errorf("commit row %d: %w", i, err)
			}
			out[i] = d.Bytes()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		log.KZG.Error().Err(err).Msg("commitment failed")
		return nil, err
	}
	return out, nil
}

// OpenSingle opens the row polynomial of cell at the cell's column point.
func (b *Backend) OpenSingle(pg *PolynomialGrid, cell grid.Position) (Cell, error) {
	if !pg.dims.Contains(cell) {
		return Cell{}, fmt.Errorf("%w: %s in %s", ErrCellLengthExceeded, cell, pg.dims)
	}
	point := kate.Point(pg.domain, uint64(cell.Col))
	proof, err := gnarkkzg.Open(pg.rows[cell.Row], point, b.params.SRS.Pk)
	if err != nil {
		log.KZG.Error().Err(err).Stringer("cell", cell).Msg("opening failed")
		return Cell{}, fmt.Errorf("open %s: %w", cell, err)
	}
	return Cell{Position: cell, Value: proof.ClaimedValue, Proof: proof.H.Bytes()}, nil
}

// VerifySingle checks cell against the commitment of its row. cols is the
// width of the committed grid.
func (b *Backend) VerifySingle(c Commitment, cell Cell, cols uint16) error {
	if cell.Position.Col >= uint32(cols) {
		return fmt.Errorf("%w: column %d of %d", ErrCellLengthExceeded, cell.Position.Col, cols)
	}
	digest, err := c.Point()
	if err != nil {
		return err
	}
	h, err := cell.Proof.Point()
	if err != nil {
		return err
	}
	d, err := kate.Domain(uint64(cols))
	if err != nil {
		return err
	}

	proof := gnarkkzg.OpeningProof{H: h, ClaimedValue: cell.Value}
	err = gnarkkzg.Verify(&digest, &proof, kate.Point(d, uint64(cell.Position.Col)), b.params.SRS.Vk)
	if err != nil {
		if errors.Is(err, gnarkkzg.ErrVerifyOpeningProof) {
			return fmt.Errorf("%w: %s", ErrVerificationFailed, cell.Position)
		}
		return fmt.Errorf("verify %s: %w", cell.Position, err)
	}
	return nil
}

// commitPoly commits to an arbitrary polynomial, the zero polynomial mapping
// to the identity.
func (b *Backend) commitPoly(coeffs []fr.Element) (bls12381.G1Affine, error) {
	coeffs = trimPoly(coeffs)
	if len(coeffs) == 0 {
		return bls12381.G1Affine{}, nil
	}
	if len(coeffs) > b.params.MaxWidth() {
		return bls12381.G1Affine{}, fmt.Errorf("%w: degree %d", ErrParamsTooSmall, len(coeffs)-1)
	}
	d, err := gnarkkzg.Commit(coeffs, b.params.SRS.Pk)
	if err != nil {
		return bls12381.G1Affine{}, err
	}
	return bls12381.G1Affine(d), nil
}
