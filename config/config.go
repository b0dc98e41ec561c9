// Package config loads and validates the gridsim configuration.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/gridsim/core/cost"
	"github.com/kilianp07/gridsim/core/factory"
	"github.com/kilianp07/gridsim/core/sensors"
	"github.com/kilianp07/gridsim/core/telemetry"
	"github.com/kilianp07/gridsim/infra/mqtt"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Simulation SimulationConfig           `json:"simulation"`
	Tariff     cost.Tariff                `json:"tariff"`
	Sensors    sensors.Config             `json:"sensors"`
	Grid       GridConfig                 `json:"grid"`
	Policy     PolicyConfig               `json:"policy"`
	MQTT       mqtt.Config                `json:"mqtt"`
	Sinks      []factory.ModuleConfig     `json:"sinks"`
	Publish    telemetry.DispatcherConfig `json:"publish"`
	Logging    LoggingConfig              `json:"logging"`
	Sentry     SentryConfig               `json:"sentry"`
	Metrics    MetricsConfig              `json:"metrics"`
	API        APIConfig                  `json:"api"`
	// Scenario is the path of an optional scenario file.
	Scenario string `json:"scenario"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Address is the listen address of /metrics; empty disables it.
	Address string `json:"address"`
}

// APIConfig configures the status API.
type APIConfig struct {
	// Address is the listen address; empty disables the API.
	Address        string   `json:"address"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// Load reads path and applies K_ environment overrides, using "__" as the
// nesting separator (K_SIMULATION__TICKS=96). Nothing is defaulted: the
// tariff, sensor ranges and grid must all be present.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	section := func(name string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	section("simulation", c.Simulation.Validate())
	if c.Tariff.Currency == "" && len(c.Tariff.Rates) == 0 {
		section("tariff", errors.New("section is required"))
	} else {
		section("tariff", c.Tariff.Validate())
	}
	if len(c.Sensors.Ranges) == 0 {
		section("sensors", errors.New("ranges are required"))
	} else {
		section("sensors", c.Sensors.Validate())
	}
	section("grid", c.Grid.Validate())
	section("policy", c.Policy.Validate())
	section("logging", c.Logging.Validate())
	section("sentry", c.Sentry.Validate())
	if c.MQTT.Broker == "" && (c.MQTT.TopicPrefix != "" || c.MQTT.ClientID != "") {
		section("mqtt", errors.New("broker is required"))
	}
	for i, s := range c.Sinks {
		if s.Type == "" {
			section(fmt.Sprintf("sinks[%d]", i), errors.New("type is required"))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}
