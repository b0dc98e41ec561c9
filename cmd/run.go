package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/gridsim/app"
	"github.com/kilianp07/gridsim/config"
	"github.com/kilianp07/gridsim/infra/logger"
)

var (
	standalone bool
	runTicks   int64
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the simulation",
	RunE:  run,
}

func init() {
	runCmd.Flags().BoolVar(&standalone, "standalone", false, "ignore --config and run the built-in demo microgrid")
	runCmd.Flags().Int64Var(&runTicks, "ticks", -1, "override simulation.ticks (0 runs until interrupted)")
	rootCmd.AddCommand(runCmd)
}

func loadConfig(builtin bool) (*config.Config, error) {
	if builtin {
		return config.Default(), nil
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(standalone)
	if err != nil {
		return err
	}
	if runTicks >= 0 {
		cfg.Simulation.Ticks = runTicks
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := svc.Close(closeCtx); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()
	return svc.Run(ctx)
}
