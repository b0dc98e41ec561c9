package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/gridsim/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate the configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		g := cfg.Grid
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d batteries, %d generators, %d consumers, %d components)\n",
			cfgPath, len(g.Batteries), len(g.Generators), len(g.Consumers), len(g.Components))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
