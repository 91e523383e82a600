package fanloop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/hydronic-controller/internal/codec/fancoil"
	"github.com/thatsimonsguy/hydronic-controller/internal/codec/freshair"
	"github.com/thatsimonsguy/hydronic-controller/internal/controllaw"
	"github.com/thatsimonsguy/hydronic-controller/internal/fieldbus"
	"github.com/thatsimonsguy/hydronic-controller/internal/model"
)

var t0 = time.Date(2024, 7, 1, 14, 0, 0, 0, time.UTC)

type fakeSatellite struct {
	freshAir   freshair.State
	freshAirAt time.Time
	fancoil    fancoil.State
	fancoilAt  time.Time
	noFancoil  bool
	makeup     uint16
	makeupAt   time.Time

	speeds   []uint16
	commands []model.FancoilCommand
}

func (f *fakeSatellite) FreshAirState() (freshair.State, time.Time, error) {
	return f.freshAir, f.freshAirAt, nil
}

func (f *fakeSatellite) SetFreshAirSpeed(pct uint16) {
	f.speeds = append(f.speeds, pct)
}

func (f *fakeSatellite) FancoilState() (fancoil.State, time.Time, error) {
	if f.noFancoil {
		return fancoil.State{}, time.Time{}, fieldbus.ErrNotSupported
	}
	return f.fancoil, f.fancoilAt, nil
}

func (f *fakeSatellite) SetFancoil(cmd model.FancoilCommand) error {
	if f.noFancoil {
		return fieldbus.ErrNotSupported
	}
	f.commands = append(f.commands, cmd)
	return nil
}

func (f *fakeSatellite) MakeupDemand() (uint16, time.Time, error) {
	return f.makeup, f.makeupAt, nil
}

func (f *fakeSatellite) setTemps(indoorC, outdoorC float64, at time.Time) {
	f.freshAir.Telemetry.ExtractTempCenti = int16(indoorC * 100)
	f.freshAir.Telemetry.OutdoorTempCenti = int16(outdoorC * 100)
	f.freshAirAt = at
	f.makeupAt = at
}

func testConfig() Config {
	return Config{
		MaxSampleAge: time.Minute,
		Setpoints:    model.Setpoints{CoolC: 22, HeatC: 20},
		FreshAir: controllaw.OutdoorCoolingLaw{
			Indoor:  controllaw.MustLinearRange(controllaw.Point{Delta: -4, Output: 100}, controllaw.Point{Delta: 0, Output: 0}),
			Outdoor: controllaw.MustLinearRange(controllaw.Point{Delta: -6, Output: 100}, controllaw.Point{Delta: 0, Output: 0}),
		},
		Fancoil: controllaw.DeviceLaw{
			IsHeater: false,
			Range:    controllaw.MustLinearRange(controllaw.Point{Delta: 0, Output: 0}, controllaw.Point{Delta: 3, Output: 3}),
		},
		FanInterval: 5 * time.Minute,
	}
}

func TestFreshAirFollowsCoolingLaw(t *testing.T) {
	sat := &fakeSatellite{}
	sat.setTemps(24, 10, t0)
	l := New(testConfig(), sat)

	res := l.Step(t0)
	require.True(t, res.SampleOK)
	assert.Equal(t, uint16(50), res.FreshAirSpeed)
	assert.Equal(t, []uint16{50}, sat.speeds)

	// unchanged speed is not re-sent
	l.Step(t0.Add(time.Second))
	assert.Len(t, sat.speeds, 1)
}

func TestOutdoorCeilingLimitsSpeed(t *testing.T) {
	sat := &fakeSatellite{}
	sat.setTemps(26, 23, t0)
	l := New(testConfig(), sat)

	assert.Equal(t, uint16(50), l.Step(t0).FreshAirSpeed)
}

func TestMakeupDemandWins(t *testing.T) {
	sat := &fakeSatellite{makeup: 70}
	sat.setTemps(24, 10, t0)
	l := New(testConfig(), sat)

	assert.Equal(t, uint16(70), l.Step(t0).FreshAirSpeed)
}

func TestStaleTelemetryHoldsFans(t *testing.T) {
	sat := &fakeSatellite{}
	sat.setTemps(24, 10, t0)
	l := New(testConfig(), sat)

	res := l.Step(t0.Add(2 * time.Minute))
	assert.False(t, res.SampleOK)
	assert.Empty(t, sat.speeds)
	assert.Empty(t, sat.commands)
}

func TestFanStopRateLimited(t *testing.T) {
	sat := &fakeSatellite{}
	sat.setTemps(24, 10, t0)
	l := New(testConfig(), sat)
	require.Equal(t, uint16(50), l.Step(t0).FreshAirSpeed)

	// room satisfied a minute later, fan is kept running at its last speed
	sat.setTemps(21, 10, t0.Add(time.Minute))
	assert.Equal(t, uint16(50), l.Step(t0.Add(time.Minute)).FreshAirSpeed)

	sat.setTemps(21, 10, t0.Add(5*time.Minute))
	assert.Equal(t, uint16(0), l.Step(t0.Add(5*time.Minute)).FreshAirSpeed)
	assert.Equal(t, []uint16{50, 0}, sat.speeds)
}

func TestFancoilUsesOwnAirTemp(t *testing.T) {
	sat := &fakeSatellite{}
	sat.setTemps(22, 10, t0)
	sat.fancoil.Telemetry.AirTempCenti = 2400
	sat.fancoilAt = t0
	l := New(testConfig(), sat)

	res := l.Step(t0)
	assert.True(t, res.FancoilActive)
	assert.Equal(t, model.FancoilCommand{Cool: true, Speed: 2}, res.FancoilCommand)
	assert.Equal(t, []model.FancoilCommand{{Cool: true, Speed: 2}}, sat.commands)
}

func TestNoFancoilDisablesLaw(t *testing.T) {
	sat := &fakeSatellite{noFancoil: true}
	sat.setTemps(25, 10, t0)
	l := New(testConfig(), sat)

	res := l.Step(t0)
	assert.False(t, res.FancoilActive)
	l.Step(t0.Add(time.Second))
	assert.True(t, l.noFancoil)
}

func TestRunReportsEveryStep(t *testing.T) {
	sat := &fakeSatellite{}
	cfg := testConfig()
	cfg.Interval = 5 * time.Millisecond
	results := make(chan Result, 16)
	cfg.OnStep = func(r Result) {
		select {
		case results <- r:
		default:
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(cfg, sat).Run(ctx) }()

	for i := 0; i < 2; i++ {
		select {
		case res := <-results:
			assert.False(t, res.SampleOK, "no telemetry yet")
		case <-time.After(2 * time.Second):
			t.Fatal("no step reported")
		}
	}
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
