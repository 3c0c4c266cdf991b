package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/eigerco/katedas/internal/config"
)

func initCmd() *cobra.Command {
	var (
		out   string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config to a TOML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(out); err == nil && !force {
				return fmt.Errorf("%s already exists", out)
			}
			if err := config.Save(out, config.Default()); err != nil {
				return err
			}
			cmd.Printf("config written to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "config.toml", "Config file to write")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}
