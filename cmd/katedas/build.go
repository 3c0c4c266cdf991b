package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eigerco/katedas/internal/block"
	"github.com/eigerco/katedas/internal/crypto"
	"github.com/eigerco/katedas/internal/grid"
	"github.com/eigerco/katedas/internal/kzg"
	"github.com/eigerco/katedas/internal/store"
)

func buildCmd() *cobra.Command {
	var (
		number    uint32
		seedHex   string
		headerOut string
	)
	cmd := &cobra.Command{
		Use:   "build <app-id>:<file>...",
		Short: "Build a block from application payload files and store it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			payloads, err := readPayloads(args)
			if err != nil {
				return err
			}
			seed, err := parseSeed(seedHex)
			if err != nil {
				return err
			}
			params, err := loadParams(cfg.KZG)
			if err != nil {
				return err
			}

			chain, err := openChain(cfg.Store.Path)
			if err != nil {
				return err
			}
			defer chain.Close()

			var parent crypto.Hash
			if number > 0 {
				parent, err = chain.HashByNumber(number - 1)
				if err != nil && !errors.Is(err, store.ErrBlockNotFound) {
					return err
				}
			}

			b, err := block.Produce(parent, number, payloads, seed, cfg.BlockGrid(), kzg.NewBackend(params))
			if err != nil {
				return err
			}
			if err := chain.PutBlock(b); err != nil {
				return fmt.Errorf("store block: %w", err)
			}
			hash, err := b.Header.Hash()
			if err != nil {
				return err
			}

			if headerOut != "" {
				raw, err := b.Header.Bytes()
				if err != nil {
					return err
				}
				if err := os.WriteFile(headerOut, raw, 0o600); err != nil {
					return fmt.Errorf("write header: %w", err)
				}
			}
			cmd.Printf("block %d %s\ndims %s, %d payloads\n", number, hash, b.Header.Extension.Dimensions, len(payloads))
			return nil
		},
	}
	cmd.Flags().Uint32Var(&number, "number", 1, "Block number, the stored block number-1 is the parent")
	cmd.Flags().StringVar(&seedHex, "seed", "", "Hex encoded 32 byte padding seed, random when empty")
	cmd.Flags().StringVar(&headerOut, "header-out", "", "File to write the encoded header to")
	return cmd
}

// readPayloads reads "<app-id>:<file>" arguments in order.
func readPayloads(args []string) ([]grid.AppPayload, error) {
	payloads := make([]grid.AppPayload, 0, len(args))
	for _, arg := range args {
		id, path, ok := strings.Cut(arg, ":")
		if !ok {
			return nil, fmt.Errorf("payload %q is not <app-id>:<file>", arg)
		}
		app, err := strconv.ParseUint(id, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("payload %q: app id: %w", arg, err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, grid.AppPayload{AppID: grid.AppID(app), Data: data})
	}
	return payloads, nil
}

func parseSeed(s string) (crypto.Seed, error) {
	var seed crypto.Seed
	if s == "" {
		_, err := rand.Read(seed[:])
		return seed, err
	}
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil || len(b) != crypto.SeedSize {
		return seed, fmt.Errorf("seed must be %d hex encoded bytes", crypto.SeedSize)
	}
	copy(seed[:], b)
	return seed, nil
}
