// Package controller is the main controller's run loop. Every cycle it feeds the zone registry
// snapshot to the output controller and reports what happened.
package controller

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	regs "github.com/thatsimonsguy/hydronic-controller/internal/codec/heatpump"
	"github.com/thatsimonsguy/hydronic-controller/internal/fieldbus"
	"github.com/thatsimonsguy/hydronic-controller/internal/model"
	"github.com/thatsimonsguy/hydronic-controller/internal/outputcontroller"
	"github.com/thatsimonsguy/hydronic-controller/internal/zones"
)

// Status is one cycle's snapshot. It is what the API serves and MQTT carries.
type Status struct {
	Timestamp time.Time `json:"timestamp"`
	SystemOn  bool      `json:"system_on"`
	Mode      string    `json:"mode"`

	CommandedHeatPumpMode string       `json:"commanded_heat_pump_mode"`
	HeatPumpMode          string       `json:"heat_pump_mode"`
	HeatPumpModeAt        time.Time    `json:"heat_pump_mode_at"`
	HeatPump              *regs.Status `json:"heat_pump,omitempty"`

	Outputs outputcontroller.Outputs `json:"outputs"`
	Zones   model.ZoneInputState     `json:"zones"`

	LastEnteredHeat time.Time `json:"last_entered_heat"`
	LastEnteredCool time.Time `json:"last_entered_cool"`
}

type Publisher interface {
	PublishStatus(Status) error
}

type Metrics interface {
	ObserveController(mode model.OutputMode, commanded model.HeatPumpMode, out outputcontroller.Outputs)
	ObserveFieldAge(field string, updated, now time.Time)
	ObserveTemperature(sensor string, celsius float64)
}

// SystemObserver hears about the system switch being flipped.
type SystemObserver interface {
	SystemSwitched(on bool, now time.Time)
}

type Options struct {
	Cycle     time.Duration
	Publisher Publisher
	Metrics   Metrics
	Switches  SystemObserver
}

type Runtime struct {
	opts Options
	reg  *zones.Registry
	hp   outputcontroller.HeatPump
	out  *outputcontroller.Controller

	started      bool
	lastSystemOn bool

	mu     sync.RWMutex
	status Status
}

func New(reg *zones.Registry, hp outputcontroller.HeatPump, out *outputcontroller.Controller, opts Options) *Runtime {
	if opts.Cycle <= 0 {
		opts.Cycle = fieldbus.DefaultPollInterval
	}
	return &Runtime{opts: opts, reg: reg, hp: hp, out: out}
}

func (r *Runtime) Run(ctx context.Context) error {
	log.Info().Dur("cycle", r.opts.Cycle).Msg("Starting output controller")

	ticker := time.NewTicker(r.opts.Cycle)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			r.Step(now)
		}
	}
}

// Step runs one cycle. Run calls it on every tick; tests call it directly.
func (r *Runtime) Step(now time.Time) Status {
	systemOn, zs := r.reg.Snapshot(now)
	if r.started && systemOn != r.lastSystemOn {
		log.Info().Bool("system_on", systemOn).Msg("System switch changed")
		if r.opts.Switches != nil {
			r.opts.Switches.SystemSwitched(systemOn, now)
		}
	}
	r.started, r.lastSystemOn = true, systemOn

	mode := r.out.Update(systemOn, zs, now)

	st := Status{
		Timestamp:             now,
		SystemOn:              systemOn,
		Mode:                  mode.String(),
		CommandedHeatPumpMode: r.out.CommandedHeatPumpMode().String(),
		Outputs:               r.out.Outputs(),
		Zones:                 zs,
	}
	st.LastEnteredHeat, st.LastEnteredCool = r.out.LastEntered()

	hpMode, hpModeAt, _ := r.hp.Mode()
	st.HeatPumpMode, st.HeatPumpModeAt = hpMode.String(), hpModeAt
	hpStatus, hpStatusAt, _ := r.hp.Status()
	if !hpStatusAt.IsZero() {
		st.HeatPump = &hpStatus
	}

	r.mu.Lock()
	r.status = st
	r.mu.Unlock()

	if m := r.opts.Metrics; m != nil {
		m.ObserveController(mode, r.out.CommandedHeatPumpMode(), st.Outputs)
		m.ObserveFieldAge("heat_pump_mode", hpModeAt, now)
		m.ObserveFieldAge("heat_pump_status", hpStatusAt, now)
		if st.HeatPump != nil {
			m.ObserveTemperature("leaving_water", hpStatus.LeavingWaterC)
			m.ObserveTemperature("return_water", hpStatus.ReturnWaterC)
		}
	}

	if p := r.opts.Publisher; p != nil {
		if err := p.PublishStatus(st); err != nil {
			log.Warn().Err(err).Msg("Failed to publish controller status")
		}
	}
	return st
}

// Status returns the snapshot from the most recent cycle.
func (r *Runtime) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Observers fans output controller notifications out to several observers.
func Observers(obs ...outputcontroller.Observer) outputcontroller.Observer {
	return fanout(obs)
}

type fanout []outputcontroller.Observer

func (f fanout) ModeChanged(from, to model.OutputMode, now time.Time) {
	for _, o := range f {
		o.ModeChanged(from, to, now)
	}
}

func (f fanout) HeatPumpFault(mode model.HeatPumpMode, err error, now time.Time) {
	for _, o := range f {
		o.HeatPumpFault(mode, err, now)
	}
}
