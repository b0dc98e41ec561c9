package model

import (
	"fmt"
	"time"
)

// CostTotals is the cost accumulator snapshot carried by every device record.
type CostTotals struct {
	TotalChargingCost    float64 `json:"total_charging_cost"`
	TotalDischargingCost float64 `json:"total_discharging_cost"`
	TotalStorageCost     float64 `json:"total_storage_cost"`
	TotalOperationCost   float64 `json:"total_operation_cost"`
	CurrentOperationCost float64 `json:"current_operation_cost"`
	Currency             string  `json:"currency"`
	TimeMultiplier       float64 `json:"time_multiplier"`
	SeasonalMultiplier   float64 `json:"seasonal_multiplier"`
	FinalCostPerKWh      float64 `json:"final_cost_per_kwh"`
}

// Total returns the sum of all accumulated cost categories.
func (c CostTotals) Total() float64 {
	return c.TotalChargingCost + c.TotalDischargingCost + c.TotalStorageCost + c.TotalOperationCost
}

// State is the electrical and operational state of a device at the end of a tick.
type State struct {
	DeviceID  string
	Kind      DeviceKind
	Type      string
	Connected bool
	Mode      string
	Values    map[string]float64
}

// Record is the telemetry payload published once per device per tick.
type Record struct {
	RunID         string             `json:"run_id,omitempty"`
	DeviceID      string             `json:"device_id"`
	DeviceKind    string             `json:"device_kind"`
	DeviceType    string             `json:"device_type"`
	SimulatedTime string             `json:"simulated_time"`
	Tick          int64              `json:"tick"`
	Connected     bool               `json:"connected"`
	Mode          string             `json:"mode,omitempty"`
	State         map[string]float64 `json:"state"`
	Cost          CostTotals         `json:"cost"`
	Sensors       map[string]float64 `json:"sensors,omitempty"`
	SensorLabels  map[string]string  `json:"sensor_labels,omitempty"`

	// Time is the simulated instant, kept for sinks that index by time.
	Time time.Time  `json:"-"`
	Kind DeviceKind `json:"-"`
}

// NewRecord builds a record from a device state at the given tick.
func NewRecord(runID string, tick Tick, st State, costs CostTotals) Record {
	return Record{
		RunID:         runID,
		DeviceID:      st.DeviceID,
		DeviceKind:    st.Kind.String(),
		DeviceType:    st.Type,
		SimulatedTime: FormatSimTime(tick.Time),
		Tick:          tick.Index,
		Connected:     st.Connected,
		Mode:          st.Mode,
		State:         st.Values,
		Cost:          costs,
		Time:          tick.Time,
		Kind:          st.Kind,
	}
}

// StateTopic returns the topic key a device state is published on.
func StateTopic(kind DeviceKind, id string) string {
	return fmt.Sprintf("%s/%s/state", kind.TopicRoot(), id)
}

const (
	// BalanceTopic receives the per-tick energy balance record.
	BalanceTopic = "grid/balance/state"
	// ExternalGridCostTopic receives a record for every tick with an import.
	ExternalGridCostTopic = "grid/external_grid/cost"
)
