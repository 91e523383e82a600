// Package outputcontroller turns zone demand into one building-wide operating mode and drives
// the heat pump, zone valves and circulation pumps from it.
//
// A Controller is not safe for concurrent use. Exactly one task calls Update.
package outputcontroller

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	regs "github.com/thatsimonsguy/hydronic-controller/internal/codec/heatpump"
	"github.com/thatsimonsguy/hydronic-controller/internal/fieldbus"
	"github.com/thatsimonsguy/hydronic-controller/internal/model"
	"github.com/thatsimonsguy/hydronic-controller/internal/ratelimit"
)

// ErrHeatPumpAlarm is reported to the Observer when the heat pump raises its alarm bit.
var ErrHeatPumpAlarm = errors.New("heat pump reports alarm")

// HeatPump is the part of the heat pump master the controller needs.
type HeatPump interface {
	SetMode(model.HeatPumpMode)
	Mode() (model.HeatPumpMode, time.Time, error)
	Status() (regs.Status, time.Time, error)
	LastModeWrite() fieldbus.WriteResult[model.HeatPumpMode]
}

// Actuators are the direct-IO outputs.
type Actuators interface {
	SetZoneValve(zone int, open bool) error
	SetLoopPump(on bool) error
	SetFancoilPump(on bool) error
}

// Observer is told about decisions worth recording. Calls happen on the Update caller's task.
type Observer interface {
	ModeChanged(from, to model.OutputMode, now time.Time)
	HeatPumpFault(mode model.HeatPumpMode, err error, now time.Time)
}

type Config struct {
	// ModeLockout is the minimum time between entering heat and entering cool, either way round.
	ModeLockout time.Duration
	// StandbyReady is how long the compressor must be seen idle before an active mode drops to standby.
	StandbyReady time.Duration

	HeatMode model.HeatPumpMode
	CoolMode model.HeatPumpMode

	ValveInterval time.Duration
	PumpInterval  time.Duration

	// FancoilHeats marks zones whose fancoil demand is a heat call; the others are coolers.
	FancoilHeats [model.NumZones]bool
}

// Outputs is the set of direct-IO states the controller last applied.
type Outputs struct {
	Valves      [model.NumZones]bool `json:"valves"`
	LoopPump    bool                 `json:"loop_pump"`
	FancoilPump bool                 `json:"fancoil_pump"`
}

type Controller struct {
	cfg Config
	hp  HeatPump
	io  Actuators
	obs Observer

	mode            model.OutputMode
	lastEnteredHeat time.Time
	lastEnteredCool time.Time

	// commanded is HeatPumpUnknown while the heat pump's mode is unresolved.
	commanded   model.HeatPumpMode
	commandedAt time.Time
	seenWrite   time.Time
	reissued    bool
	alarmed     bool

	compressorKnown bool
	idleSince       time.Time

	valves      [model.NumZones]*ratelimit.Limiter
	loopPump    *ratelimit.Limiter
	fancoilPump *ratelimit.Limiter
	applied     Outputs
	appliedOK   bool

	lastZones model.ZoneInputState
}

// CheckHeatPumpMode reports whether m can serve output mode out. Heat takes heat or
// heat_dhw, cool takes cool or cool_dhw.
func CheckHeatPumpMode(out model.OutputMode, m model.HeatPumpMode) error {
	if _, err := regs.EncodeMode(m); err != nil {
		return err
	}
	switch {
	case out == model.ModeHeat && (m == model.HeatPumpHeat || m == model.HeatPumpHeatDHW):
		return nil
	case out == model.ModeCool && (m == model.HeatPumpCool || m == model.HeatPumpCoolDHW):
		return nil
	}
	return fmt.Errorf("heat pump mode %s cannot serve %s", m, out)
}

// usableMode returns m when it can serve out, otherwise def. A zero m means unset.
func usableMode(out model.OutputMode, m, def model.HeatPumpMode) model.HeatPumpMode {
	err := CheckHeatPumpMode(out, m)
	if err == nil {
		return m
	}
	if m != model.HeatPumpError {
		log.Warn().Err(err).Str("default", def.String()).Msg("ignoring configured heat pump mode")
	}
	return def
}

func New(cfg Config, hp HeatPump, io Actuators, obs Observer) *Controller {
	cfg.HeatMode = usableMode(model.ModeHeat, cfg.HeatMode, model.HeatPumpHeatDHW)
	cfg.CoolMode = usableMode(model.ModeCool, cfg.CoolMode, model.HeatPumpCoolDHW)
	if obs == nil {
		obs = nopObserver{}
	}

	c := &Controller{
		cfg:         cfg,
		hp:          hp,
		io:          io,
		obs:         obs,
		mode:        model.ModeOff,
		commanded:   model.HeatPumpUnknown,
		loopPump:    ratelimit.New(cfg.PumpInterval, false),
		fancoilPump: ratelimit.New(cfg.PumpInterval, false),
	}
	for i := range c.valves {
		c.valves[i] = ratelimit.New(cfg.ValveInterval, false)
	}
	return c
}

func (c *Controller) Mode() model.OutputMode {
	return c.mode
}

// CommandedHeatPumpMode is the last mode handed to the heat pump, or HeatPumpUnknown while
// it is unresolved.
func (c *Controller) CommandedHeatPumpMode() model.HeatPumpMode {
	return c.commanded
}

func (c *Controller) Outputs() Outputs {
	return c.applied
}

func (c *Controller) LastEntered() (heat, cool time.Time) {
	return c.lastEnteredHeat, c.lastEnteredCool
}

// Update runs one control cycle and returns the resolved mode.
func (c *Controller) Update(systemOn bool, zones model.ZoneInputState, now time.Time) model.OutputMode {
	if zones != c.lastZones {
		log.Debug().Interface("zones", zones).Msg("zone input changed")
		c.lastZones = zones
	}

	c.observeCompressor(now)

	target := c.resolve(systemOn, zones, now)
	if target != c.mode {
		c.enter(target, now)
	}

	c.driveHeatPump(now)
	c.driveOutputs(zones, now)

	return c.mode
}

func (c *Controller) enter(target model.OutputMode, now time.Time) {
	from := c.mode
	c.mode = target
	switch target {
	case model.ModeHeat:
		c.lastEnteredHeat = now
	case model.ModeCool:
		c.lastEnteredCool = now
	}

	log.Info().Str("from", from.String()).Str("to", target.String()).Msg("output mode changed")
	c.obs.ModeChanged(from, target, now)
}

func (c *Controller) zoneCalls(zones model.ZoneInputState, zone int) (heat, cool bool) {
	heat = zones.Thermostats[zone].HeatCall
	cool = zones.Thermostats[zone].CoolCall
	if zones.Fancoils[zone].Active() {
		if c.cfg.FancoilHeats[zone] {
			heat = true
		} else {
			cool = true
		}
	}
	return heat, cool
}

func (c *Controller) resolve(systemOn bool, zones model.ZoneInputState, now time.Time) model.OutputMode {
	if !systemOn {
		return model.ModeOff
	}

	var heat, cool bool
	for i := range zones.Thermostats {
		h, k := c.zoneCalls(zones, i)
		heat = heat || h
		cool = cool || k
	}

	switch {
	case heat && cool:
		log.Debug().Str("mode", c.mode.String()).Msg("conflicting heat and cool demand, holding mode")
		return c.hold()
	case heat:
		if c.mode == model.ModeHeat || c.lockoutElapsed(c.lastEnteredCool, now) {
			return model.ModeHeat
		}
		log.Debug().Msg("heat demand inside cool lockout")
		return c.hold()
	case cool:
		if c.mode == model.ModeCool || c.lockoutElapsed(c.lastEnteredHeat, now) {
			return model.ModeCool
		}
		log.Debug().Msg("cool demand inside heat lockout")
		return c.hold()
	}

	if c.mode.Active() && !c.compressorIdleFor(now) {
		return c.mode
	}
	return model.ModeStandby
}

// hold keeps the current mode, except that a powered system is never held in Off.
func (c *Controller) hold() model.OutputMode {
	if c.mode == model.ModeOff {
		return model.ModeStandby
	}
	return c.mode
}

func (c *Controller) lockoutElapsed(lastEnteredOther time.Time, now time.Time) bool {
	return lastEnteredOther.IsZero() || now.Sub(lastEnteredOther) >= c.cfg.ModeLockout
}

func (c *Controller) observeCompressor(now time.Time) {
	st, at, err := c.hp.Status()
	if err != nil || at.IsZero() {
		c.compressorKnown = false
		c.idleSince = time.Time{}
		return
	}

	c.compressorKnown = true
	if st.CompressorRunning {
		c.idleSince = time.Time{}
		return
	}
	if c.idleSince.IsZero() {
		c.idleSince = now
	}
}

func (c *Controller) compressorIdleFor(now time.Time) bool {
	return c.compressorKnown && !c.idleSince.IsZero() && now.Sub(c.idleSince) >= c.cfg.StandbyReady
}

func (c *Controller) heatPumpMode(m model.OutputMode) model.HeatPumpMode {
	switch m {
	case model.ModeHeat:
		return c.cfg.HeatMode
	case model.ModeCool:
		return c.cfg.CoolMode
	}
	return model.HeatPumpOff
}

func (c *Controller) driveHeatPump(now time.Time) {
	c.reconcile(now)

	want := c.heatPumpMode(c.mode)
	if want == c.commanded {
		return
	}

	c.hp.SetMode(want)
	if c.commanded != model.HeatPumpUnknown {
		c.reissued = false
	}
	c.commanded = want
	c.commandedAt = now
	log.Info().Str("heat_pump_mode", want.String()).Str("output_mode", c.mode.String()).Msg("commanding heat pump")
}

// reconcile marks the commanded mode unresolved when the heat pump rejected the last write
// or reports something else after it was applied. A disagreement triggers at most one
// re-issue per commanded mode.
func (c *Controller) reconcile(now time.Time) {
	if c.commanded == model.HeatPumpUnknown {
		return
	}

	last := c.hp.LastModeWrite()
	if !last.At.IsZero() && !last.At.Equal(c.seenWrite) {
		c.seenWrite = last.At
		if last.Err != nil && last.Value == c.commanded {
			log.Warn().Err(last.Err).Str("heat_pump_mode", c.commanded.String()).Msg("heat pump mode write failed, will re-issue")
			c.obs.HeatPumpFault(c.commanded, last.Err, now)
			c.commanded = model.HeatPumpUnknown
			return
		}
	}

	if last.At.IsZero() || last.Err != nil || last.Value != c.commanded || last.At.Before(c.commandedAt) {
		return
	}

	mode, at, err := c.hp.Mode()
	if err != nil || at.Before(last.At) {
		return
	}
	if mode == model.HeatPumpError {
		if !c.alarmed {
			log.Warn().Str("commanded", c.commanded.String()).Msg("heat pump alarm")
			c.alarmed = true
			c.obs.HeatPumpFault(mode, ErrHeatPumpAlarm, now)
		}
		return
	}
	c.alarmed = false
	if mode == c.commanded || c.reissued {
		return
	}

	log.Warn().Str("commanded", c.commanded.String()).Str("reported", mode.String()).Msg("heat pump disagrees with commanded mode, re-issuing once")
	c.reissued = true
	c.commanded = model.HeatPumpUnknown
}

func (c *Controller) driveOutputs(zones model.ZoneInputState, now time.Time) {
	var want Outputs

	for i := range want.Valves {
		heat, cool := c.zoneCalls(zones, i)
		want.Valves[i] = (c.mode == model.ModeHeat && heat) || (c.mode == model.ModeCool && cool)
	}

	for _, sw := range zones.LoopValves {
		if sw == model.LoopValveOne || sw == model.LoopValveBoth {
			want.LoopPump = true
		}
	}

	for i, fc := range zones.Fancoils {
		if !fc.Active() {
			continue
		}
		if (c.mode == model.ModeHeat && c.cfg.FancoilHeats[i]) || (c.mode == model.ModeCool && !c.cfg.FancoilHeats[i]) {
			want.FancoilPump = true
		}
	}

	var next Outputs
	for i := range next.Valves {
		next.Valves[i] = c.valves[i].Update(want.Valves[i], now)
	}
	next.LoopPump = c.loopPump.Update(want.LoopPump, now)
	next.FancoilPump = c.fancoilPump.Update(want.FancoilPump, now)

	if c.appliedOK && next == c.applied {
		return
	}
	c.apply(next)
}

// apply writes every output that differs from what was last applied. A failed output is
// retried next cycle.
func (c *Controller) apply(next Outputs) {
	ok := true
	first := !c.appliedOK

	for i, open := range next.Valves {
		if !first && c.applied.Valves[i] == open {
			continue
		}
		if err := c.io.SetZoneValve(i, open); err != nil {
			log.Error().Err(err).Int("zone", i).Bool("open", open).Msg("zone valve write failed")
			ok = false
			continue
		}
		c.applied.Valves[i] = open
	}

	if first || c.applied.LoopPump != next.LoopPump {
		if err := c.io.SetLoopPump(next.LoopPump); err != nil {
			log.Error().Err(err).Bool("on", next.LoopPump).Msg("loop pump write failed")
			ok = false
		} else {
			c.applied.LoopPump = next.LoopPump
		}
	}

	if first || c.applied.FancoilPump != next.FancoilPump {
		if err := c.io.SetFancoilPump(next.FancoilPump); err != nil {
			log.Error().Err(err).Bool("on", next.FancoilPump).Msg("fancoil pump write failed")
			ok = false
		} else {
			c.applied.FancoilPump = next.FancoilPump
		}
	}

	c.appliedOK = ok
}

type nopObserver struct{}

func (nopObserver) ModeChanged(model.OutputMode, model.OutputMode, time.Time) {}
func (nopObserver) HeatPumpFault(model.HeatPumpMode, error, time.Time)        {}
