package publish

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	regs "github.com/thatsimonsguy/hydronic-controller/internal/codec/heatpump"
	"github.com/thatsimonsguy/hydronic-controller/internal/controller"
)

func sampleStatus() controller.Status {
	s := controller.Status{
		Timestamp:             time.Date(2026, 2, 2, 22, 18, 12, 0, time.FixedZone("CET", 3600)),
		SystemOn:              true,
		Mode:                  "cool",
		CommandedHeatPumpMode: "cool_dhw",
		HeatPumpMode:          "cool_dhw",
		HeatPump:              &regs.Status{CompressorRunning: true, LeavingWaterC: 7.5},
	}
	s.Outputs.Valves[2] = true
	s.Outputs.LoopPump = true
	s.Zones.Thermostats[2].CoolCall = true
	return s
}

func TestFormatStatus(t *testing.T) {
	payload, err := FormatStatus(sampleStatus())
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(payload, &parsed))

	assert.Equal(t, "2026-02-02T21:18:12Z", parsed["timestamp"])
	assert.Equal(t, true, parsed["system_on"])
	assert.Equal(t, "cool", parsed["mode"])
	assert.Equal(t, "cool_dhw", parsed["commanded_heat_pump_mode"])

	outputs := parsed["outputs"].(map[string]any)
	assert.Equal(t, []any{false, false, true, false}, outputs["valves"])
	assert.Equal(t, true, outputs["loop_pump"])

	hp := parsed["heat_pump"].(map[string]any)
	assert.Equal(t, 7.5, hp["leaving_water_c"])
}

func TestFormatStatus_NoHeatPumpStatus(t *testing.T) {
	s := sampleStatus()
	s.HeatPump = nil

	payload, err := FormatStatus(s)
	require.NoError(t, err)
	assert.NotContains(t, string(payload), `"heat_pump":`)
}

func TestFake(t *testing.T) {
	f := NewFake()
	require.NoError(t, f.PublishStatus(sampleStatus()))

	f.PublishError = assert.AnError
	assert.ErrorIs(t, f.PublishStatus(sampleStatus()), assert.AnError)

	assert.Len(t, f.Statuses(), 1)
	require.Len(t, f.Payloads(), 1)
	assert.Contains(t, string(f.Payloads()[0]), `"mode":"cool"`)

	require.NoError(t, f.Close())
	assert.True(t, f.Closed)
}
