package app

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/kilianp07/gridsim/config"
	"github.com/kilianp07/gridsim/core/cost"
	"github.com/kilianp07/gridsim/core/device"
	"github.com/kilianp07/gridsim/core/sim"
)

// BuildGrid instantiates every configured device. Each consumer draws from
// its own source derived from seed so adding a device does not change the
// randomness of the others.
func BuildGrid(cfg config.GridConfig, calc *cost.Calculator, wear device.WearPolicy, seed int64) (sim.Grid, error) {
	var (
		grid sim.Grid
		errs []error
	)
	for _, bc := range cfg.Batteries {
		b, err := device.NewBattery(bc, calc, wear)
		if err != nil {
			errs = append(errs, fmt.Errorf("battery %s: %w", bc.ID, err))
			continue
		}
		grid.Batteries = append(grid.Batteries, b)
	}
	for _, gc := range cfg.Generators {
		g, err := device.NewGenerator(gc, calc)
		if err != nil {
			errs = append(errs, fmt.Errorf("generator %s: %w", gc.ID, err))
			continue
		}
		grid.Generators = append(grid.Generators, g)
	}
	for i, cc := range cfg.Consumers {
		c, err := device.NewConsumer(cc, calc, rand.New(rand.NewSource(seed+int64(i)+1)))
		if err != nil {
			errs = append(errs, fmt.Errorf("consumer %s: %w", cc.ID, err))
			continue
		}
		grid.Consumers = append(grid.Consumers, c)
	}
	for _, kc := range cfg.Components {
		c, err := device.NewComponent(kc, calc)
		if err != nil {
			errs = append(errs, fmt.Errorf("component %s: %w", kc.ID, err))
			continue
		}
		grid.Components = append(grid.Components, c)
	}
	return grid, errors.Join(errs...)
}
