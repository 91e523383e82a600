// Package directio drives the valves and pumps wired straight to the controller's GPIO header.
package directio

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/hydronic-controller/internal/model"
)

// Lines is a GPIO backend working in raw electrical levels.
type Lines interface {
	SetLevel(pin int, high bool) error
	Level(pin int) (bool, error)
	Close() error
}

// Open returns the named backend: "gpiocdev", "pinctrl" or "fake".
func Open(backend, chip string) (Lines, error) {
	switch backend {
	case "", "gpiocdev":
		c, err := NewChip(chip)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "pinctrl":
		return NewPinctrl(), nil
	case "fake":
		return NewFake(), nil
	}
	return nil, fmt.Errorf("unknown gpio backend %q", backend)
}

type Pins struct {
	ZoneValves  [model.NumZones]model.GPIOPin `json:"zone_valves"`
	LoopPump    model.GPIOPin                 `json:"loop_pump"`
	FancoilPump model.GPIOPin                 `json:"fancoil_pump"`
}

type namedPin struct {
	name string
	pin  model.GPIOPin
}

func (p Pins) all() []namedPin {
	out := make([]namedPin, 0, len(p.ZoneValves)+2)
	for i, v := range p.ZoneValves {
		out = append(out, namedPin{fmt.Sprintf("zone_valve_%d", i), v})
	}
	return append(out,
		namedPin{"loop_pump", p.LoopPump},
		namedPin{"fancoil_pump", p.FancoilPump},
	)
}

// Actuators maps logical on/off requests to pin levels, honouring each pin's polarity.
type Actuators struct {
	lines    Lines
	pins     Pins
	safeMode bool
}

// NewActuators drives lines. In safe mode every request is logged and nothing is driven.
func NewActuators(lines Lines, pins Pins, safeMode bool) *Actuators {
	return &Actuators{lines: lines, pins: pins, safeMode: safeMode}
}

func (a *Actuators) SetZoneValve(zone int, open bool) error {
	if zone < 0 || zone >= len(a.pins.ZoneValves) {
		return fmt.Errorf("zone %d out of range", zone)
	}
	return a.set(fmt.Sprintf("zone_valve_%d", zone), a.pins.ZoneValves[zone], open)
}

func (a *Actuators) SetLoopPump(on bool) error {
	return a.set("loop_pump", a.pins.LoopPump, on)
}

func (a *Actuators) SetFancoilPump(on bool) error {
	return a.set("fancoil_pump", a.pins.FancoilPump, on)
}

func (a *Actuators) set(name string, pin model.GPIOPin, active bool) error {
	if a.safeMode {
		log.Debug().Str("output", name).Int("pin", pin.Number).Bool("active", active).Msg("safe mode, output not driven")
		return nil
	}
	if err := a.lines.SetLevel(pin.Number, active == pin.ActiveHigh); err != nil {
		return fmt.Errorf("failed to set %s (GPIO %d): %w", name, pin.Number, err)
	}
	log.Debug().Str("output", name).Int("pin", pin.Number).Bool("active", active).Msg("output set")
	return nil
}

// Active reads back whether pin is in its active state.
func (a *Actuators) Active(pin model.GPIOPin) (bool, error) {
	level, err := a.lines.Level(pin.Number)
	if err != nil {
		return false, err
	}
	return level == pin.ActiveHigh, nil
}

// ValidateInitialStates checks that no output is active before the controller takes over.
func (a *Actuators) ValidateInitialStates() error {
	var errs []error
	for _, np := range a.pins.all() {
		active, err := a.Active(np.pin)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to read pin level for %s (GPIO %d): %w", np.name, np.pin.Number, err))
			continue
		}
		if active {
			errs = append(errs, fmt.Errorf("pin %d (%s) is active at startup", np.pin.Number, np.name))
		}
	}
	return errors.Join(errs...)
}

// AllOff deactivates every output, continuing past failures.
func (a *Actuators) AllOff() error {
	var errs []error
	for _, np := range a.pins.all() {
		if err := a.set(np.name, np.pin, false); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
