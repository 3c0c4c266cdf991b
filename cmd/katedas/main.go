package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.PersistentFlags().AddFlagSet(configFlags())
	rootCmd.AddCommand(
		initCmd(),
		paramsCmd(),
		buildCmd(),
		nodeCmd(),
		reconstructCmd(),
	)
	rootCmd.SetHelpCommand(&cobra.Command{})
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "katedas [init || params || build || node || reconstruct]",
	Short:        "KZG data availability grids: build, serve, sample and reconstruct",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}
