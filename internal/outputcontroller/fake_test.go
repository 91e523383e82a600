package outputcontroller

import (
	"errors"
	"time"

	regs "github.com/thatsimonsguy/hydronic-controller/internal/codec/heatpump"
	"github.com/thatsimonsguy/hydronic-controller/internal/fieldbus"
	"github.com/thatsimonsguy/hydronic-controller/internal/model"
)

// fakeHeatPump applies every SetMode at once, as if the master had cycled between updates.
type fakeHeatPump struct {
	now time.Time

	mode      model.HeatPumpMode
	modeAt    time.Time
	status    regs.Status
	statusAt  time.Time
	statusErr error

	last      fieldbus.WriteResult[model.HeatPumpMode]
	sets      []model.HeatPumpMode
	failWrite error
	// stuck makes the unit accept writes but keep reporting its old mode.
	stuck bool
}

func newFakeHeatPump(now time.Time) *fakeHeatPump {
	return &fakeHeatPump{now: now, mode: model.HeatPumpOff, modeAt: now, statusAt: now}
}

func (f *fakeHeatPump) SetMode(m model.HeatPumpMode) {
	f.sets = append(f.sets, m)
	f.last = fieldbus.WriteResult[model.HeatPumpMode]{Value: m, At: f.now, Err: f.failWrite}
	if f.failWrite == nil && !f.stuck {
		f.mode = m
	}
	f.modeAt = f.now
}

func (f *fakeHeatPump) Mode() (model.HeatPumpMode, time.Time, error) {
	return f.mode, f.modeAt, nil
}

func (f *fakeHeatPump) Status() (regs.Status, time.Time, error) {
	return f.status, f.statusAt, f.statusErr
}

func (f *fakeHeatPump) LastModeWrite() fieldbus.WriteResult[model.HeatPumpMode] {
	return f.last
}

type fakeActuators struct {
	valves      [model.NumZones]bool
	loopPump    bool
	fancoilPump bool
	writes      int
	fail        error
}

func (f *fakeActuators) SetZoneValve(zone int, open bool) error {
	if f.fail != nil {
		return f.fail
	}
	f.writes++
	f.valves[zone] = open
	return nil
}

func (f *fakeActuators) SetLoopPump(on bool) error {
	if f.fail != nil {
		return f.fail
	}
	f.writes++
	f.loopPump = on
	return nil
}

func (f *fakeActuators) SetFancoilPump(on bool) error {
	if f.fail != nil {
		return f.fail
	}
	f.writes++
	f.fancoilPump = on
	return nil
}

type transition struct {
	from, to model.OutputMode
}

type recordingObserver struct {
	transitions []transition
	faults      int
	lastFault   error
}

func (r *recordingObserver) ModeChanged(from, to model.OutputMode, _ time.Time) {
	r.transitions = append(r.transitions, transition{from, to})
}

func (r *recordingObserver) HeatPumpFault(_ model.HeatPumpMode, err error, _ time.Time) {
	r.faults++
	r.lastFault = err
}

var errRelay = errors.New("relay driver offline")
