package block

import (
	"fmt"

	"github.com/ChainSafe/gossamer/pkg/scale"

	"github.com/eigerco/katedas/internal/crypto"
	"github.com/eigerco/katedas/internal/grid"
	"github.com/eigerco/katedas/internal/kzg"
	"github.com/eigerco/katedas/pkg/log"
)

// Block is a header with the payloads and seed its grid was built from.
type Block struct {
	Header   Header
	Payloads []grid.AppPayload
	Seed     crypto.Seed
}

// GridConfig is the dimension policy used to lay a block out.
type GridConfig struct {
	MinWidth  int
	MaxWidth  int
	MaxHeight int
}

// Grid rebuilds the original evaluation grid of the block.
func (b Block) Grid(cfg GridConfig) (*grid.EvaluationGrid, error) {
	return grid.Build(b.Payloads, cfg.MinWidth, cfg.MaxWidth, cfg.MaxHeight, b.Seed)
}

// Produce builds the grid for payloads, commits to its rows and returns the
// resulting block on top of parent.
func Produce(parent crypto.Hash, number uint32, payloads []grid.AppPayload, seed crypto.Seed, cfg GridConfig, committer kzg.Committer) (Block, error) {
	g, err := grid.Build(payloads, cfg.MinWidth, cfg.MaxWidth, cfg.MaxHeight, seed)
	if err != nil {
		return Block{}, fmt.Errorf("build grid: %w", err)
	}
	pg, err := kzg.Interpolate(g)
	if err != nil {
		return Block{}, fmt.Errorf("interpolate grid: %w", err)
	}
	commitments, err := committer.Commit(pg)
	if err != nil {
		return Block{}, fmt.Errorf("commit grid: %w", err)
	}

	b := Block{
		Header: Header{
			ParentHash: parent,
			Number:     number,
			Extension: Extension{
				Dimensions:  g.Dims(),
				Commitments: kzg.ConcatCommitments(commitments),
				DataLookup:  g.Layout().Lookup(),
			},
		},
		Payloads: payloads,
		Seed:     seed,
	}
	log.Grid.Info().
		Uint32("number", number).
		Stringer("dims", g.Dims()).
		Int("payloads", len(payloads)).
		Msg("block produced")
	return b, nil
}

// Bytes encodes the whole block.
func (b Block) Bytes() ([]byte, error) {
	return scale.Marshal(b)
}

func DecodeBlock(data []byte) (Block, error) {
	var b Block
	if err := scale.Unmarshal(data, &b); err != nil {
		return Block{}, fmt.Errorf("failed to unmarshal block: %w", err)
	}
	return b, nil
}
