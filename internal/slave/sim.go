package slave

import (
	"context"
	"time"

	"github.com/thatsimonsguy/hydronic-controller/internal/codec/fancoil"
	"github.com/thatsimonsguy/hydronic-controller/internal/codec/freshair"
)

// Simulator advances a device image on every tick.
type Simulator interface {
	Step()
}

// FreshAirSim spins the fan toward the commanded speed.
type FreshAirSim struct {
	Handler *freshair.Handler
	MaxRPM  uint16
}

func (s *FreshAirSim) Step() {
	s.Handler.Update(func(img *freshair.Image) {
		img.Telemetry.FanRPM = approach(img.Telemetry.FanRPM, uint16(uint32(img.FanSpeed)*uint32(s.MaxRPM)/freshair.MaxFanSpeed))
		img.Status.FanRunning = img.Telemetry.FanRPM > 0
	})
}

// FancoilSim maps the commanded speed step to fan rpm.
type FancoilSim struct {
	Handler    *fancoil.Handler
	RPMPerStep uint16
}

func (s *FancoilSim) Step() {
	s.Handler.Update(func(img *fancoil.Image) {
		img.Telemetry.FanRPM = approach(img.Telemetry.FanRPM, uint16(img.Command.Speed)*s.RPMPerStep)
		img.Status.FanRunning = img.Telemetry.FanRPM > 0
	})
}

// approach moves cur half way to target, snapping once within one rpm.
func approach(cur, target uint16) uint16 {
	diff := int(target) - int(cur)
	if diff >= -1 && diff <= 1 {
		return target
	}
	return uint16(int(cur) + diff/2)
}

// RunSim steps sim every interval until ctx is cancelled.
func RunSim(ctx context.Context, interval time.Duration, sim Simulator) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			sim.Step()
		}
	}
}
