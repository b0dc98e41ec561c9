package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProportionalSharesByLimit(t *testing.T) {
	cands := []Candidate{{ID: "a", LimitKWh: 1}, {ID: "b", LimitKWh: 3}}
	shares := Proportional{}.Allocate(2, cands)
	assert.InDelta(t, 0.5, shares[0], 1e-12)
	assert.InDelta(t, 1.5, shares[1], 1e-12)
}

func TestProportionalBelowCapacityGivesFullLimits(t *testing.T) {
	cands := []Candidate{{ID: "a", LimitKWh: 1}, {ID: "b", LimitKWh: 3}, {ID: "c", LimitKWh: -2}}
	shares := Proportional{}.Allocate(10, cands)
	assert.Equal(t, []float64{1, 3, 0}, shares)
}

func TestPriorityFillsInOrder(t *testing.T) {
	cands := []Candidate{
		{ID: "late", Priority: 2, LimitKWh: 5},
		{ID: "b", Priority: 1, LimitKWh: 1},
		{ID: "a", Priority: 1, LimitKWh: 1},
	}
	shares := Priority{}.Allocate(2.5, cands)
	assert.InDelta(t, 0.5, shares[0], 1e-12)
	assert.Equal(t, 1.0, shares[1])
	assert.Equal(t, 1.0, shares[2])
}

func TestAllocatorsHandleNothingToShare(t *testing.T) {
	for _, a := range []Allocator{Proportional{}, Priority{}} {
		assert.Empty(t, a.Allocate(1, nil), a.Name())
		assert.Equal(t, []float64{0}, a.Allocate(0, []Candidate{{ID: "a", LimitKWh: 1}}), a.Name())
	}
}

func TestAllocationNeverExceedsLimits(t *testing.T) {
	cands := []Candidate{{ID: "a", LimitKWh: 0.3}, {ID: "b", LimitKWh: 2.2}, {ID: "c", Priority: -1, LimitKWh: 0.7}}
	for _, a := range []Allocator{Proportional{}, Priority{}} {
		for _, e := range []float64{0.1, 1, 3.2, 50} {
			shares := a.Allocate(e, cands)
			var sum float64
			for i, s := range shares {
				if s < 0 || s > cands[i].LimitKWh+1e-12 {
					t.Fatalf("%s: share %d = %v outside [0,%v]", a.Name(), i, s, cands[i].LimitKWh)
				}
				sum += s
			}
			assert.LessOrEqual(t, sum, e+1e-9, a.Name())
		}
	}
}

func TestNewAllocator(t *testing.T) {
	a, err := NewAllocator("")
	require.NoError(t, err)
	assert.Equal(t, "proportional", a.Name())
	a, err = NewAllocator("priority")
	require.NoError(t, err)
	assert.Equal(t, "priority", a.Name())
	_, err = NewAllocator("greedy")
	assert.Error(t, err)
}
