package main

import (
	"fmt"
	"math/big"
	"os"

	"github.com/spf13/cobra"

	"github.com/eigerco/katedas/internal/kzg"
)

func paramsCmd() *cobra.Command {
	var (
		out    string
		size   uint64
		secret string
	)
	cmd := &cobra.Command{
		Use:   "params",
		Short: "Generate development KZG parameters from a known secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, ok := new(big.Int).SetString(secret, 0)
			if !ok || s.Sign() <= 0 {
				return fmt.Errorf("invalid secret %q", secret)
			}
			params, err := kzg.NewDevParams(size, s)
			if err != nil {
				return err
			}

			f, err := os.Create(out)
			if err != nil {
				return err
			}
			n, err := params.WriteTo(f)
			if err != nil {
				_ = f.Close()
				return fmt.Errorf("write params: %w", err)
			}
			if err := f.Close(); err != nil {
				return err
			}
			cmd.Printf("wrote %d bytes of parameters for width %d to %s\n", n, params.MaxWidth(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "params.bin", "Output file")
	cmd.Flags().Uint64Var(&size, "size", 256, "Number of G1 powers, at least the max grid width")
	cmd.Flags().StringVar(&secret, "secret", "0x5eed", "Secret scalar, never use outside development")
	return cmd
}
