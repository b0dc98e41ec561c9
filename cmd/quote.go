package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/gridsim/core/cost"
)

var (
	quoteStandalone bool
	quoteEnergy     float64
	quoteAt         string
)

var quoteCmd = &cobra.Command{
	Use:   "quote <operation>",
	Short: "Price an energy amount for an operation at a simulated instant",
	Args:  cobra.ExactArgs(1),
	RunE:  quote,
}

func init() {
	quoteCmd.Flags().BoolVar(&quoteStandalone, "standalone", false, "use the built-in tariff")
	quoteCmd.Flags().Float64Var(&quoteEnergy, "energy", 1, "energy in kWh")
	quoteCmd.Flags().StringVar(&quoteAt, "at", "", "simulated time, RFC3339 (default: simulation start)")
	rootCmd.AddCommand(quoteCmd)
}

func quote(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(quoteStandalone)
	if err != nil {
		return err
	}
	op, err := cost.ParseOperation(args[0])
	if err != nil {
		return err
	}
	at, err := cfg.Simulation.LocalStart()
	if err != nil {
		return err
	}
	if quoteAt != "" {
		t, err := time.Parse(time.RFC3339, quoteAt)
		if err != nil {
			return fmt.Errorf("--at: %w", err)
		}
		at = t.In(at.Location())
	}
	calc, err := cost.NewCalculator(cfg.Tariff)
	if err != nil {
		return err
	}
	q, err := calc.Quote(op, quoteEnergy, at)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(q)
}
