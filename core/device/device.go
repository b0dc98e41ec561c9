// Package device holds the simulated grid entities. Each category is a
// concrete type behind the Device interface; its subtype is fixed at
// construction.
package device

import (
	"time"

	"github.com/kilianp07/gridsim/core/cost"
	"github.com/kilianp07/gridsim/core/model"
)

// Device is the capability shared by every simulated entity.
type Device interface {
	ID() string
	Kind() model.DeviceKind
	Type() string
	// Update starts a new tick for the device.
	Update(tick model.Tick)
	Snapshot() model.State
	Costs() cost.Totals
	Connected() bool
	SetConnected(bool)
	// OperatingKW is the absolute power at the latest operating point.
	OperatingKW() float64
	RatedKW() float64
}

type base struct {
	id        string
	kind      model.DeviceKind
	typ       string
	connected bool
	acc       *cost.Accumulator
	now       time.Time
}

func newBase(id string, kind model.DeviceKind, typ string, calc *cost.Calculator) base {
	return base{id: id, kind: kind, typ: typ, connected: true, acc: cost.NewAccumulator(calc)}
}

func (b *base) ID() string             { return b.id }
func (b *base) Kind() model.DeviceKind { return b.kind }
func (b *base) Type() string           { return b.typ }
func (b *base) Connected() bool        { return b.connected }
func (b *base) SetConnected(v bool)    { b.connected = v }
func (b *base) Costs() cost.Totals     { return b.acc.Snapshot() }

func (b *base) begin(tick model.Tick) {
	b.acc.ResetTick()
	b.now = tick.Time
}

func (b *base) state(mode string, values map[string]float64) model.State {
	return model.State{
		DeviceID:  b.id,
		Kind:      b.kind,
		Type:      b.typ,
		Connected: b.connected,
		Mode:      mode,
		Values:    values,
	}
}
