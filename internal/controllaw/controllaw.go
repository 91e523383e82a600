// Package controllaw maps temperature error to a bounded demand by piecewise-linear
// interpolation. Breakpoints come from configuration.
package controllaw

import (
	"errors"
	"fmt"
	"math"

	"github.com/thatsimonsguy/hydronic-controller/internal/model"
)

type Point struct {
	Delta  float64 `json:"delta"`
	Output float64 `json:"output"`
}

// LinearRange interpolates between points and clamps to the first and last output outside them.
type LinearRange struct {
	points []Point
}

// NewLinearRange requires at least two points with strictly increasing Delta.
func NewLinearRange(points []Point) (LinearRange, error) {
	if len(points) < 2 {
		return LinearRange{}, errors.New("linear range needs at least two points")
	}
	for i, p := range points {
		if math.IsNaN(p.Delta) || math.IsNaN(p.Output) {
			return LinearRange{}, fmt.Errorf("point %d is NaN", i)
		}
		if i > 0 && p.Delta <= points[i-1].Delta {
			return LinearRange{}, fmt.Errorf("point %d delta %.2f does not increase on %.2f", i, p.Delta, points[i-1].Delta)
		}
	}
	return LinearRange{points: append([]Point(nil), points...)}, nil
}

// MustLinearRange is NewLinearRange for tables fixed at compile time.
func MustLinearRange(points ...Point) LinearRange {
	r, err := NewLinearRange(points)
	if err != nil {
		panic(err)
	}
	return r
}

func (r LinearRange) Points() []Point {
	return append([]Point(nil), r.points...)
}

func (r LinearRange) Output(delta float64) float64 {
	n := len(r.points)
	if n == 0 {
		return 0
	}
	if delta <= r.points[0].Delta {
		return r.points[0].Output
	}
	if delta >= r.points[n-1].Delta {
		return r.points[n-1].Output
	}
	for i := 1; i < n; i++ {
		hi := r.points[i]
		if delta > hi.Delta {
			continue
		}
		lo := r.points[i-1]
		frac := (delta - lo.Delta) / (hi.Delta - lo.Delta)
		return lo.Output + frac*(hi.Output-lo.Output)
	}
	return r.points[n-1].Output
}

// DeviceLaw drives a heater or a cooler toward its setpoint. Delta is positive when the
// device has work to do.
type DeviceLaw struct {
	IsHeater bool
	Range    LinearRange
}

func (l DeviceLaw) Output(sp model.Setpoints, s model.SensorSample) float64 {
	delta := s.TempC - sp.CoolC
	if l.IsHeater {
		delta = sp.HeatC - s.TempC
	}
	return l.Range.Output(delta)
}

// OutdoorCoolingLaw limits an indoor cooling target by what the outdoor air can deliver.
// With no outdoor reading the ceiling is zero.
type OutdoorCoolingLaw struct {
	Indoor  LinearRange
	Outdoor LinearRange
}

func (l OutdoorCoolingLaw) Output(sp model.Setpoints, s model.SensorSample) float64 {
	target := l.Indoor.Output(sp.CoolC - s.TempC)
	return math.Min(target, l.Ceiling(s))
}

func (l OutdoorCoolingLaw) Ceiling(s model.SensorSample) float64 {
	if !s.OutdoorKnown {
		return 0
	}
	return l.Outdoor.Output(s.OutdoorC - s.TempC)
}
