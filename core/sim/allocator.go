package sim

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Candidate is a battery able to take part in a transfer.
type Candidate struct {
	ID       string
	Priority int
	// LimitKWh is the most grid-side energy the battery can move this tick.
	LimitKWh float64
}

// Allocator splits energyKWh among candidates. The returned slice is aligned
// with candidates, never exceeds a candidate's limit and sums to at most
// energyKWh. Whatever is left goes to the external grid.
type Allocator interface {
	Name() string
	Allocate(energyKWh float64, candidates []Candidate) []float64
}

// Proportional shares the energy in proportion to each candidate's limit,
// so every battery reaches the same fraction of its limit.
type Proportional struct{}

func (Proportional) Name() string { return "proportional" }

func (Proportional) Allocate(energyKWh float64, candidates []Candidate) []float64 {
	shares := make([]float64, len(candidates))
	if energyKWh <= 0 || len(candidates) == 0 {
		return shares
	}
	for i, c := range candidates {
		shares[i] = max(0, c.LimitKWh)
	}
	total := floats.Sum(shares)
	if total <= energyKWh || total == 0 {
		return shares
	}
	floats.Scale(energyKWh/total, shares)
	for i, c := range candidates {
		shares[i] = min(shares[i], max(0, c.LimitKWh))
	}
	return shares
}

// Priority fills candidates one after another, lowest priority value first
// and by id on ties.
type Priority struct{}

func (Priority) Name() string { return "priority" }

func (Priority) Allocate(energyKWh float64, candidates []Candidate) []float64 {
	shares := make([]float64, len(candidates))
	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ca, cb := candidates[order[a]], candidates[order[b]]
		if ca.Priority != cb.Priority {
			return ca.Priority < cb.Priority
		}
		return ca.ID < cb.ID
	})
	left := energyKWh
	for _, i := range order {
		if left <= 0 {
			break
		}
		take := min(left, max(0, candidates[i].LimitKWh))
		shares[i] = take
		left -= take
	}
	return shares
}

// NewAllocator returns the allocator registered under name.
func NewAllocator(name string) (Allocator, error) {
	switch name {
	case "", "proportional":
		return Proportional{}, nil
	case "priority":
		return Priority{}, nil
	default:
		return nil, fmt.Errorf("unknown allocation policy %q", name)
	}
}
