package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/gridsim/core/telemetry"
	_ "github.com/kilianp07/gridsim/infra/metrics"
	_ "github.com/kilianp07/gridsim/infra/mqtt"
	_ "github.com/kilianp07/gridsim/infra/store"
)

var sinksCmd = &cobra.Command{
	Use:   "sinks",
	Short: "List registered telemetry sink types",
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range telemetry.SinkTypes() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
	},
}

func init() {
	rootCmd.AddCommand(sinksCmd)
}
