package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/eigerco/katedas/internal/block"
	"github.com/eigerco/katedas/internal/crypto"
	"github.com/eigerco/katedas/internal/grid"
	"github.com/eigerco/katedas/internal/kzg"
	"github.com/eigerco/katedas/internal/sampling"
	"github.com/eigerco/katedas/internal/store"
	"github.com/eigerco/katedas/pkg/log"
	"github.com/eigerco/katedas/pkg/network/peer"
)

// finalityDepth is how far behind the head produced blocks are finalized.
const finalityDepth = 4

// producer builds blocks of pseudo-random application data for development
// networks.
type producer struct {
	chain   *store.Chain
	backend *kzg.Backend
	grid    block.GridConfig
	node    *peer.Node
	sampler *sampling.Sampler
	clock   clock.Clock
	retain  uint32
	number  uint32
	parent  crypto.Hash
}

// newProducer continues from the highest stored block number. Blocks below
// the finalized one may have been pruned, so the scan starts there.
func newProducer(chain *store.Chain, backend *kzg.Backend, cfg block.GridConfig, retain uint32, node *peer.Node, sampler *sampling.Sampler) (*producer, error) {
	p := &producer{
		chain:   chain,
		backend: backend,
		grid:    cfg,
		node:    node,
		sampler: sampler,
		clock:   clock.New(),
		retain:  retain,
	}
	finalized, err := chain.Finalized()
	if err != nil {
		return nil, err
	}
	if finalized > 0 {
		if p.parent, err = chain.HashByNumber(finalized); err != nil {
			return nil, fmt.Errorf("finalized block %d: %w", finalized, err)
		}
		p.number = finalized
	}
	for {
		hash, err := chain.HashByNumber(p.number + 1)
		if errors.Is(err, store.ErrBlockNotFound) {
			return p, nil
		}
		if err != nil {
			return nil, err
		}
		p.number++
		p.parent = hash
	}
}

func (p *producer) run(ctx context.Context, interval time.Duration) {
	ticker := p.clock.Ticker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.produce(ctx); err != nil {
				log.Grid.Error().Err(err).Uint32("number", p.number+1).Msg("failed to produce block")
			}
		}
	}
}

func (p *producer) produce(ctx context.Context) error {
	number := p.number + 1
	var key [4]byte
	binary.LittleEndian.PutUint32(key[:], number)
	stream := crypto.NewStream(crypto.HashData(p.parent[:], key[:]))

	var seed crypto.Seed
	_, _ = stream.Read(seed[:])
	payloads := make([]grid.AppPayload, 1+stream.Uint64n(3))
	for i := range payloads {
		data := make([]byte, 1+stream.Uint64n(2048))
		_, _ = stream.Read(data)
		payloads[i] = grid.AppPayload{AppID: grid.AppID(1 + stream.Uint64n(4)), Data: data}
	}

	b, err := block.Produce(p.parent, number, payloads, seed, p.grid, p.backend)
	if err != nil {
		return err
	}
	if err := p.chain.PutBlock(b); err != nil {
		return fmt.Errorf("store block: %w", err)
	}
	if number > finalityDepth {
		finalized := number - finalityDepth
		if err := p.chain.SetFinalized(finalized); err != nil {
			return fmt.Errorf("set finalized: %w", err)
		}
		if p.retain > 0 && finalized > p.retain {
			if _, err := p.chain.Prune(finalized - p.retain); err != nil {
				log.Store.Warn().Err(err).Msg("failed to prune blocks")
			}
		}
	}
	hash, err := p.sampler.Import(sampling.Import{Header: b.Header, Own: true})
	if err != nil {
		return err
	}
	p.number, p.parent = number, hash

	if err := p.node.Announce(ctx, b.Header); err != nil {
		log.Network.Warn().Err(err).Str("hash", hash.Short()).Msg("failed to announce block to some peers")
	}
	return nil
}
