package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/eigerco/katedas/internal/block"
	"github.com/eigerco/katedas/internal/config"
	"github.com/eigerco/katedas/internal/crypto"
	"github.com/eigerco/katedas/internal/grid"
	"github.com/eigerco/katedas/internal/kzg"
	"github.com/eigerco/katedas/internal/recovery"
	"github.com/eigerco/katedas/internal/sampling"
	"github.com/eigerco/katedas/pkg/log"
	"github.com/eigerco/katedas/pkg/network/handlers"
	"github.com/eigerco/katedas/pkg/network/peer"
)

// rowFetcher returns encoded rows of the extended grid of a block.
type rowFetcher func(ctx context.Context, hash crypto.Hash, rows []int) ([][]byte, error)

func reconstructCmd() *cobra.Command {
	var (
		headerPath string
		peerAddr   string
		outDir     string
		rowSeed    uint64
	)
	cmd := &cobra.Command{
		Use:   "reconstruct",
		Short: "Rebuild block payloads from half of the extended rows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(headerPath)
			if err != nil {
				return err
			}
			header, err := block.DecodeHeader(raw)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			var fetch rowFetcher
			if peerAddr != "" {
				f, closeFn, err := remoteRows(ctx, cfg, peerAddr)
				if err != nil {
					return err
				}
				defer closeFn()
				fetch = f
			} else {
				f, closeFn, err := localRows(cfg)
				if err != nil {
					return err
				}
				defer closeFn()
				fetch = f
			}

			payloads, err := reconstruct(ctx, header, fetch, rowSeed)
			if err != nil {
				return err
			}
			for i, p := range payloads {
				cmd.Printf("app %d: %d bytes\n", p.AppID, len(p.Data))
				if outDir == "" {
					continue
				}
				name := filepath.Join(outDir, fmt.Sprintf("app-%d-%d.bin", p.AppID, i))
				if err := os.WriteFile(name, p.Data, 0o600); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&headerPath, "header", "", "Encoded header written by build")
	cmd.Flags().StringVar(&peerAddr, "peer", "", "Fetch rows from this peer instead of the local store")
	cmd.Flags().StringVar(&outDir, "out", "", "Directory to write recovered payloads to")
	cmd.Flags().Uint64Var(&rowSeed, "row-seed", 0, "Seed of the random half of rows to fetch")
	_ = cmd.MarkFlagRequired("header")
	return cmd
}

// reconstruct fetches a random half of the extended rows of header's block
// and decodes the payloads from them.
func reconstruct(ctx context.Context, header block.Header, fetch rowFetcher, seed uint64) ([]grid.AppPayload, error) {
	hash, err := header.Hash()
	if err != nil {
		return nil, err
	}
	dims := header.Extension.Dimensions
	extRows := 2 * int(dims.Rows)

	rng := rand.New(rand.NewPCG(seed, uint64(header.Number)))
	rows := rng.Perm(extRows)[:extRows/2]
	slices.Sort(rows)

	var encoded [][]byte
	for chunk := range slices.Chunk(rows, handlers.MaxRowsPerRequest) {
		got, err := fetch(ctx, hash, chunk)
		if err != nil {
			return nil, fmt.Errorf("fetch rows: %w", err)
		}
		encoded = append(encoded, got...)
	}

	cells, err := recovery.CellsFromRows(rows, encoded, int(dims.Cols))
	if err != nil {
		return nil, err
	}
	layout := header.Extension.DataLookup.Layout()
	payloads, err := recovery.ReconstructPayloads(layout, dims, cells)
	if err != nil {
		return nil, err
	}
	log.Grid.Info().Str("hash", hash.Short()).Int("rows", len(rows)).Int("payloads", len(payloads)).Msg("block reconstructed")
	return payloads, nil
}

func localRows(cfg *config.Config) (rowFetcher, func(), error) {
	params, err := loadParams(cfg.KZG)
	if err != nil {
		return nil, nil, err
	}
	chain, err := openChain(cfg.Store.Path)
	if err != nil {
		return nil, nil, err
	}
	server, err := sampling.NewProofServer(cfg.ProofServer(), chain, kzg.NewBackend(params), nil)
	if err != nil {
		_ = chain.Close()
		return nil, nil, err
	}
	fetch := func(_ context.Context, hash crypto.Hash, rows []int) ([][]byte, error) {
		return server.ServeRows(hash, rows)
	}
	return fetch, func() { _ = chain.Close() }, nil
}

func remoteRows(ctx context.Context, cfg *config.Config, addr string) (rowFetcher, func(), error) {
	nodeCfg := cfg.Node()
	nodeCfg.Light = true
	nodeCfg.ListenAddr = "127.0.0.1:0"
	nodeCfg.KeySeed = [32]byte{}
	node, err := peer.NewNode(nodeCfg, peer.Servers{})
	if err != nil {
		return nil, nil, err
	}
	if err := node.Start(); err != nil {
		return nil, nil, err
	}
	stop := func() { _ = node.Stop() }

	id, err := node.ConnectToPeer(ctx, addr)
	if err != nil {
		stop()
		return nil, nil, err
	}
	fetch := func(ctx context.Context, hash crypto.Hash, rows []int) ([][]byte, error) {
		req := handlers.RowRequest{BlockHash: hash, Rows: make([]uint32, len(rows))}
		for i, r := range rows {
			req.Rows[i] = uint32(r)
		}
		return node.RequestRows(ctx, id, req)
	}
	return fetch, stop, nil
}
