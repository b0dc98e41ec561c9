// Package scenario loads scripted device events and decides which of them
// fire on a given tick of the simulated clock.
package scenario

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Action is what an event does to its device.
type Action string

const (
	ActionDisconnect Action = "disconnect"
	ActionConnect    Action = "connect"
	ActionFault      Action = "fault"
	ActionReset      Action = "reset"
)

// EventDef is an event as written in a scenario file. Exactly one of
// Schedule (a standard cron expression evaluated on simulated time) and
// AtTick must be set.
type EventDef struct {
	Name     string `yaml:"name"`
	Schedule string `yaml:"schedule,omitempty"`
	AtTick   int64  `yaml:"at_tick,omitempty"`
	Action   string `yaml:"action"`
	Device   string `yaml:"device"`
}

// File is the on-disk scenario layout.
type File struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description,omitempty"`
	Events      []EventDef `yaml:"events"`
}

// Event is a validated scenario event.
type Event struct {
	Name     string
	Action   Action
	Device   string
	schedule cron.Schedule
	atTick   int64
}

// Scenario holds the events of a file.
type Scenario struct {
	Name   string
	Events []Event
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return sc, nil
}

// Parse decodes and validates scenario YAML.
func Parse(data []byte) (*Scenario, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	sc := &Scenario{Name: f.Name}
	var errs []error
	for i, def := range f.Events {
		ev, err := def.compile()
		if err != nil {
			errs = append(errs, fmt.Errorf("event %d (%s): %w", i, def.Name, err))
			continue
		}
		sc.Events = append(sc.Events, ev)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return sc, nil
}

func (d EventDef) compile() (Event, error) {
	ev := Event{Name: d.Name, Action: Action(d.Action), Device: d.Device, atTick: d.AtTick}
	switch ev.Action {
	case ActionDisconnect, ActionConnect, ActionFault, ActionReset:
	default:
		return Event{}, fmt.Errorf("unknown action %q", d.Action)
	}
	if d.Device == "" {
		return Event{}, errors.New("device is required")
	}
	switch {
	case d.Schedule != "" && d.AtTick != 0:
		return Event{}, errors.New("schedule and at_tick are mutually exclusive")
	case d.Schedule != "":
		s, err := parser.Parse(d.Schedule)
		if err != nil {
			return Event{}, fmt.Errorf("schedule: %w", err)
		}
		ev.schedule = s
	case d.AtTick <= 0:
		return Event{}, errors.New("one of schedule or a positive at_tick is required")
	}
	return ev, nil
}

// Due returns the events firing in the tick covering (prev, now]. A cron
// event fires at most once per tick even if its schedule matches several
// times within it.
func (s *Scenario) Due(prev, now time.Time, tick int64) []Event {
	if s == nil {
		return nil
	}
	var due []Event
	for _, ev := range s.Events {
		if ev.schedule == nil {
			if ev.atTick == tick {
				due = append(due, ev)
			}
			continue
		}
		if next := ev.schedule.Next(prev); !next.After(now) {
			due = append(due, ev)
		}
	}
	return due
}
