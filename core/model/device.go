package model

import "fmt"

// DeviceKind identifies the category of a simulated device.
type DeviceKind int

const (
	KindBattery DeviceKind = iota + 1
	KindGeneration
	KindConsumer
	KindGridComponent
	// KindGrid is used for grid-level records such as the tick balance.
	KindGrid
)

func (k DeviceKind) String() string {
	switch k {
	case KindBattery:
		return "battery"
	case KindGeneration:
		return "generation"
	case KindConsumer:
		return "consumer"
	case KindGridComponent:
		return "grid_component"
	case KindGrid:
		return "grid"
	default:
		return "unknown"
	}
}

// TopicRoot is the first segment of the telemetry topic for the kind.
func (k DeviceKind) TopicRoot() string {
	switch k {
	case KindBattery:
		return "batteries"
	case KindGeneration:
		return "generation"
	case KindConsumer:
		return "consumers"
	case KindGridComponent, KindGrid:
		return "grid"
	default:
		return "devices"
	}
}

// BatteryMode is the operating mode of a battery.
type BatteryMode string

const (
	ModeIdle        BatteryMode = "idle"
	ModeCharging    BatteryMode = "charging"
	ModeDischarging BatteryMode = "discharging"
	ModeFault       BatteryMode = "fault"
)

// BatteryRole describes where a battery sits in the grid.
type BatteryRole string

const (
	RoleGrid  BatteryRole = "grid"
	RolePlant BatteryRole = "plant"
	RoleEV    BatteryRole = "ev"
)

// GenerationType is the source technology of a generator.
type GenerationType string

const (
	GenerationSolar        GenerationType = "solar"
	GenerationWind         GenerationType = "wind"
	GenerationExternalGrid GenerationType = "external_grid"
)

// ConsumerType is the demand profile family of a consumer.
type ConsumerType string

const (
	ConsumerHouse      ConsumerType = "house"
	ConsumerIndustry   ConsumerType = "industry"
	ConsumerEVCharging ConsumerType = "ev_charging"
)

// ComponentType is the kind of passive grid element.
type ComponentType string

const (
	ComponentSubstation  ComponentType = "substation"
	ComponentTransformer ComponentType = "transformer"
	ComponentInverter    ComponentType = "inverter"
)

// ParseBatteryRole validates a configured battery role. Empty means grid.
func ParseBatteryRole(s string) (BatteryRole, error) {
	switch BatteryRole(s) {
	case "":
		return RoleGrid, nil
	case RoleGrid, RolePlant, RoleEV:
		return BatteryRole(s), nil
	}
	return "", fmt.Errorf("unknown battery role %q", s)
}

// ParseGenerationType validates a configured generation type.
func ParseGenerationType(s string) (GenerationType, error) {
	switch GenerationType(s) {
	case GenerationSolar, GenerationWind, GenerationExternalGrid:
		return GenerationType(s), nil
	}
	return "", fmt.Errorf("unknown generation type %q", s)
}

// ParseConsumerType validates a configured consumer type.
func ParseConsumerType(s string) (ConsumerType, error) {
	switch ConsumerType(s) {
	case ConsumerHouse, ConsumerIndustry, ConsumerEVCharging:
		return ConsumerType(s), nil
	}
	return "", fmt.Errorf("unknown consumer type %q", s)
}

// ParseComponentType validates a configured grid component type.
func ParseComponentType(s string) (ComponentType, error) {
	switch ComponentType(s) {
	case ComponentSubstation, ComponentTransformer, ComponentInverter:
		return ComponentType(s), nil
	}
	return "", fmt.Errorf("unknown component type %q", s)
}
