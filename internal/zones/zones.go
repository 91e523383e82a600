// Package zones keeps the latest report from every zone module and loop-valve switch.
package zones

import (
	"fmt"
	"sync"
	"time"

	"github.com/thatsimonsguy/hydronic-controller/internal/model"
)

type ZoneReport struct {
	Zone       int                    `json:"zone"`
	Fancoil    model.FancoilDemand    `json:"fancoil"`
	Thermostat model.ThermostatDemand `json:"thermostat"`
	At         time.Time              `json:"at"`
	Stale      bool                   `json:"stale"`
}

type LoopReport struct {
	Loop   int                   `json:"loop"`
	Switch model.LoopValveSwitch `json:"switch"`
	At     time.Time             `json:"at"`
	Stale  bool                  `json:"stale"`
}

// Registry is safe for concurrent use. Reports older than the max age count as no demand.
type Registry struct {
	mu       sync.Mutex
	maxAge   time.Duration
	systemOn bool
	zones    [model.NumZones]ZoneReport
	loops    [model.NumLoopValves]LoopReport
}

func New(maxAge time.Duration, systemOn bool) *Registry {
	r := &Registry{maxAge: maxAge, systemOn: systemOn}
	for i := range r.zones {
		r.zones[i].Zone = i
	}
	for i := range r.loops {
		r.loops[i].Loop = i
	}
	return r
}

func (r *Registry) ReportZone(zone int, fc model.FancoilDemand, th model.ThermostatDemand, now time.Time) error {
	if zone < 0 || zone >= model.NumZones {
		return fmt.Errorf("zone %d out of range [0,%d)", zone, model.NumZones)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.zones[zone] = ZoneReport{Zone: zone, Fancoil: fc, Thermostat: th, At: now}
	return nil
}

func (r *Registry) ReportLoopValve(loop int, sw model.LoopValveSwitch, now time.Time) error {
	if loop < 0 || loop >= model.NumLoopValves {
		return fmt.Errorf("loop %d out of range [0,%d)", loop, model.NumLoopValves)
	}
	if sw > model.LoopValveBoth {
		return fmt.Errorf("invalid loop valve switch state %d", sw)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loops[loop] = LoopReport{Loop: loop, Switch: sw, At: now}
	return nil
}

func (r *Registry) SetSystemOn(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.systemOn = on
}

func (r *Registry) SystemOn() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.systemOn
}

func (r *Registry) stale(at, now time.Time) bool {
	return at.IsZero() || (r.maxAge > 0 && now.Sub(at) > r.maxAge)
}

// Snapshot is the controller input at now.
func (r *Registry) Snapshot(now time.Time) (bool, model.ZoneInputState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var in model.ZoneInputState
	for i, z := range r.zones {
		if r.stale(z.At, now) {
			continue
		}
		in.Fancoils[i] = z.Fancoil
		in.Thermostats[i] = z.Thermostat
	}
	for i, l := range r.loops {
		if r.stale(l.At, now) {
			continue
		}
		in.LoopValves[i] = l.Switch
	}
	return r.systemOn, in
}

func (r *Registry) Zones(now time.Time) []ZoneReport {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]ZoneReport, len(r.zones))
	for i, z := range r.zones {
		z.Stale = r.stale(z.At, now)
		out[i] = z
	}
	return out
}

func (r *Registry) Loops(now time.Time) []LoopReport {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]LoopReport, len(r.loops))
	for i, l := range r.loops {
		l.Stale = r.stale(l.At, now)
		out[i] = l
	}
	return out
}
