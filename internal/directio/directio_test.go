package directio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/hydronic-controller/internal/model"
)

func testPins() Pins {
	return Pins{
		ZoneValves: [model.NumZones]model.GPIOPin{
			{Number: 5, ActiveHigh: true},
			{Number: 6, ActiveHigh: true},
			{Number: 12, ActiveHigh: false},
			{Number: 13, ActiveHigh: true},
		},
		LoopPump:    model.GPIOPin{Number: 17, ActiveHigh: true},
		FancoilPump: model.GPIOPin{Number: 27, ActiveHigh: false},
	}
}

func TestPolarity(t *testing.T) {
	lines := NewFake()
	a := NewActuators(lines, testPins(), false)

	require.NoError(t, a.SetZoneValve(0, true))
	require.NoError(t, a.SetZoneValve(2, true))
	require.NoError(t, a.SetFancoilPump(false))

	high, _ := lines.Level(5)
	assert.True(t, high)
	high, _ = lines.Level(12)
	assert.False(t, high, "active-low valve driven low when open")
	high, _ = lines.Level(27)
	assert.True(t, high, "active-low pump driven high when off")

	active, err := a.Active(testPins().ZoneValves[2])
	require.NoError(t, err)
	assert.True(t, active)

	assert.Error(t, a.SetZoneValve(model.NumZones, true))
}

func TestSafeModeDrivesNothing(t *testing.T) {
	lines := NewFake()
	a := NewActuators(lines, testPins(), true)

	require.NoError(t, a.SetLoopPump(true))
	require.NoError(t, a.SetZoneValve(1, true))
	assert.Zero(t, lines.Sets())
}

func TestValidateInitialStates(t *testing.T) {
	lines := NewFake()
	a := NewActuators(lines, testPins(), false)

	// active-low outputs idle high
	require.NoError(t, lines.SetLevel(12, true))
	require.NoError(t, lines.SetLevel(27, true))
	assert.NoError(t, a.ValidateInitialStates())

	require.NoError(t, lines.SetLevel(17, true))
	lines.Fail(6, errors.New("busy"))
	err := a.ValidateInitialStates()
	assert.ErrorContains(t, err, "loop_pump")
	assert.ErrorContains(t, err, "zone_valve_1")
}

func TestAllOffContinuesPastFailures(t *testing.T) {
	lines := NewFake()
	a := NewActuators(lines, testPins(), false)
	for i := range testPins().ZoneValves {
		require.NoError(t, a.SetZoneValve(i, true))
	}
	require.NoError(t, a.SetLoopPump(true))

	lines.Fail(5, errors.New("busy"))
	assert.Error(t, a.AllOff())
	lines.Fail(5, nil)

	high, _ := lines.Level(17)
	assert.False(t, high)
	active, _ := a.Active(testPins().ZoneValves[3])
	assert.False(t, active)
	active, _ = a.Active(testPins().ZoneValves[0])
	assert.True(t, active, "failed pin keeps its state")
}

func TestOpen(t *testing.T) {
	l, err := Open("fake", "")
	require.NoError(t, err)
	assert.IsType(t, &Fake{}, l)

	_, err = Open("sysfs", "")
	assert.Error(t, err)
}
