// Package fanloop runs the satellite's closed-loop fan control: the fresh-air fan follows the
// outdoor-compensated cooling law and makeup-air demand, the fancoil fan follows its device law.
package fanloop

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/hydronic-controller/internal/codec/fancoil"
	"github.com/thatsimonsguy/hydronic-controller/internal/codec/freshair"
	"github.com/thatsimonsguy/hydronic-controller/internal/controllaw"
	"github.com/thatsimonsguy/hydronic-controller/internal/fieldbus"
	"github.com/thatsimonsguy/hydronic-controller/internal/model"
	"github.com/thatsimonsguy/hydronic-controller/internal/ratelimit"
)

// Satellite is the satellite master as seen by the fan loop.
type Satellite interface {
	FreshAirState() (freshair.State, time.Time, error)
	SetFreshAirSpeed(pct uint16)
	FancoilState() (fancoil.State, time.Time, error)
	SetFancoil(model.FancoilCommand) error
	MakeupDemand() (uint16, time.Time, error)
}

type Config struct {
	Interval     time.Duration
	MaxSampleAge time.Duration
	Setpoints    model.Setpoints
	FreshAir     controllaw.OutdoorCoolingLaw
	Fancoil      controllaw.DeviceLaw
	// FanInterval is the minimum time between a fan starting and stopping.
	FanInterval time.Duration
	// OnStep, if set, is handed every Result Run produces.
	OnStep func(Result)
}

// Result is what one Step decided. Zero-valued parts were skipped.
type Result struct {
	Sample         model.SensorSample   `json:"sample"`
	SampleOK       bool                 `json:"sample_ok"`
	FreshAirSpeed  uint16               `json:"fresh_air_speed"`
	FancoilCommand model.FancoilCommand `json:"fancoil_command"`
	FancoilActive  bool                 `json:"fancoil_active"`
}

type Loop struct {
	cfg Config
	sat Satellite

	freshAirOn *ratelimit.Limiter
	fancoilOn  *ratelimit.Limiter

	lastSpeed    uint16
	speedWritten bool
	lastCmd      model.FancoilCommand
	cmdWritten   bool
	noFancoil    bool
}

func New(cfg Config, sat Satellite) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = fieldbus.DefaultPollInterval
	}
	return &Loop{
		cfg:        cfg,
		sat:        sat,
		freshAirOn: ratelimit.New(cfg.FanInterval, false),
		fancoilOn:  ratelimit.New(cfg.FanInterval, false),
	}
}

func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			res := l.Step(now)
			if l.cfg.OnStep != nil {
				l.cfg.OnStep(res)
			}
		}
	}
}

// sample builds the indoor/outdoor reading from the fresh-air unit's telemetry.
func (l *Loop) sample(now time.Time) (model.SensorSample, bool) {
	st, at, _ := l.sat.FreshAirState()
	if at.IsZero() || now.Sub(at) > l.cfg.MaxSampleAge {
		return model.SensorSample{}, false
	}
	return model.SensorSample{
		TempC:        st.Telemetry.ExtractTempC(),
		OutdoorC:     st.Telemetry.OutdoorTempC(),
		OutdoorKnown: true,
	}, true
}

func (l *Loop) Step(now time.Time) Result {
	var res Result

	s, ok := l.sample(now)
	if !ok {
		log.Warn().Msg("fresh-air telemetry stale, fan speeds held")
		return res
	}
	res.Sample, res.SampleOK = s, true

	res.FreshAirSpeed = l.stepFreshAir(s, now)
	res.FancoilCommand, res.FancoilActive = l.stepFancoil(s, now)
	return res
}

func (l *Loop) stepFreshAir(s model.SensorSample, now time.Time) uint16 {
	want := l.cfg.FreshAir.Output(l.cfg.Setpoints, s)
	if demand, at, err := l.sat.MakeupDemand(); err == nil && !at.IsZero() && now.Sub(at) <= l.cfg.MaxSampleAge {
		want = math.Max(want, float64(demand))
	}
	speed := clamp(want, freshair.MaxFanSpeed)

	on := l.freshAirOn.Update(speed > 0, now)
	switch {
	case !on:
		speed = 0
	case speed == 0:
		// held on by the rate limiter
		speed = l.lastSpeed
	}

	if !l.speedWritten || speed != l.lastSpeed {
		l.sat.SetFreshAirSpeed(speed)
		log.Debug().Uint16("speed", speed).Float64("temp", s.TempC).Float64("outdoor", s.OutdoorC).Msg("fresh-air speed")
		l.lastSpeed, l.speedWritten = speed, true
	}
	return speed
}

func (l *Loop) stepFancoil(s model.SensorSample, now time.Time) (model.FancoilCommand, bool) {
	if l.noFancoil {
		return model.FancoilCommand{}, false
	}

	if st, at, err := l.sat.FancoilState(); err == nil && now.Sub(at) <= l.cfg.MaxSampleAge {
		s.TempC = st.Telemetry.AirTempC()
	}

	speed := uint8(clamp(l.cfg.Fancoil.Output(l.cfg.Setpoints, s), model.MaxFancoilSpeed))
	on := l.fancoilOn.Update(speed > 0, now)
	switch {
	case !on:
		speed = 0
	case speed == 0:
		speed = l.lastCmd.Speed
	}
	cmd := model.FancoilCommand{Cool: !l.cfg.Fancoil.IsHeater, Speed: speed}

	if l.cmdWritten && cmd == l.lastCmd {
		return cmd, true
	}
	if err := l.sat.SetFancoil(cmd); err != nil {
		if errors.Is(err, fieldbus.ErrNotSupported) {
			log.Info().Msg("no fancoil on this satellite, fancoil law disabled")
			l.noFancoil = true
			return model.FancoilCommand{}, false
		}
		log.Error().Err(err).Msg("fancoil command rejected")
		return cmd, true
	}
	l.lastCmd, l.cmdWritten = cmd, true
	return cmd, true
}

func clamp(v float64, max uint16) uint16 {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= float64(max):
		return max
	}
	return uint16(math.Round(v))
}
