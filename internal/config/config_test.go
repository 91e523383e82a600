package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/hydronic-controller/internal/fieldbus"
	"github.com/thatsimonsguy/hydronic-controller/internal/model"
)

const controllerJSON = `{
  "bus": {"url": "rtu:///dev/ttyUSB0", "speed": 9600, "parity": "none"},
  "heat_pump": {"unit": 10},
  "controller": {"mode_lockout_minutes": 20, "fancoil_heats": [true, true, false, false]},
  "gpio": {
    "backend": "fake",
    "zone_valves": [{"pin": 5}, {"pin": 6}, {"pin": 12, "active_high": false}, {"pin": 13}],
    "loop_pump": {"pin": 17},
    "fancoil_pump": {"pin": 27}
  }
}`

const satelliteJSON = `{
  "satellite": {
    "bus": {"url": "rtu:///dev/ttyAMA0"},
    "fresh_air_unit": 1,
    "fancoil_unit": 2,
    "setpoints": {"cool_c": 24, "heat_c": 20},
    "fresh_air_indoor": [{"delta": -4, "output": 100}, {"delta": 0, "output": 0}],
    "fresh_air_outdoor": [{"delta": -6, "output": 100}, {"delta": 0, "output": 0}],
    "fancoil": {"is_heater": true, "points": [{"delta": 0, "output": 0}, {"delta": 3, "output": 3}]}
  }
}`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Controller(t *testing.T) {
	cfg, err := Load(writeConfig(t, controllerJSON), RoleController)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.PollInterval())
	assert.Equal(t, 5*time.Second, cfg.CycleInterval())
	assert.Equal(t, 8080, cfg.ListenPort)
	assert.Equal(t, "hydronic/controller/status", cfg.MQTT.Topic)

	oc := cfg.OutputController()
	assert.Equal(t, 20*time.Minute, oc.ModeLockout)
	assert.Equal(t, 180*time.Second, oc.StandbyReady)
	assert.Equal(t, model.HeatPumpHeatDHW, oc.HeatMode)
	assert.Equal(t, model.HeatPumpCoolDHW, oc.CoolMode)
	assert.Equal(t, [model.NumZones]bool{true, true, false, false}, oc.FancoilHeats)

	pins := cfg.Pins()
	assert.Equal(t, model.GPIOPin{Number: 5, ActiveHigh: true}, pins.ZoneValves[0])
	assert.Equal(t, model.GPIOPin{Number: 12, ActiveHigh: false}, pins.ZoneValves[2])
	assert.Equal(t, 27, pins.FancoilPump.Number)

	assert.Equal(t, uint8(10), cfg.HeatPumpMaster().Unit)
}

func TestLoad_Satellite(t *testing.T) {
	cfg, err := Load(writeConfig(t, satelliteJSON), RoleSatellite)
	require.NoError(t, err)

	sm := cfg.SatelliteMaster()
	assert.Equal(t, uint8(1), sm.FreshAirUnit)
	assert.Equal(t, uint8(2), sm.FancoilUnit)
	assert.False(t, sm.MakeupSensor)

	fl := cfg.FanLoop()
	assert.Equal(t, time.Minute, fl.MaxSampleAge)
	assert.True(t, fl.Fancoil.IsHeater)
	assert.InDelta(t, 1.5, fl.Fancoil.Range.Output(1.5), 1e-9)
}

func TestValidate_GPIOMissing(t *testing.T) {
	cfg := Config{Bus: busFor("rtu:///dev/ttyUSB0"), HeatPump: HeatPump{Unit: 1}}
	cfg.applyDefaults()

	err := cfg.validate(RoleController)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gpio.zone_valves")
	assert.Contains(t, err.Error(), "gpio.loop_pump")
	assert.Contains(t, err.Error(), "gpio.fancoil_pump")
}

func TestValidate_GPIOConflict(t *testing.T) {
	pin := func(n int) *Pin { return &Pin{Pin: &n} }
	cfg := Config{
		Bus:      busFor("rtu:///dev/ttyUSB0"),
		HeatPump: HeatPump{Unit: 1},
		GPIO: GPIO{
			ZoneValves:  []*Pin{pin(5), pin(6), pin(7), pin(8)},
			LoopPump:    pin(5),
			FancoilPump: pin(9),
		},
	}
	cfg.applyDefaults()

	err := cfg.validate(RoleController)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gpio.loop_pump and gpio.zone_valves[0] both use pin 5")
}

func TestValidate_AggregatesProblems(t *testing.T) {
	cfg := Config{}
	cfg.applyDefaults()
	cfg.HeatPump.HeatMode = "warm"

	err := cfg.validate(RoleController)
	require.Error(t, err)
	for _, want := range []string{"missing bus.url", "missing heat_pump.unit", "heat_pump.heat_mode", "gpio"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidate_HeatPumpModes(t *testing.T) {
	tests := []struct {
		name string
		heat string
		cool string
		want string
	}{
		{"heat unknown", "unknown", "cool_dhw", "heat_pump.heat_mode"},
		{"heat off", "off", "cool_dhw", "heat_pump.heat_mode"},
		{"heat error", "error", "cool_dhw", "heat_pump.heat_mode"},
		{"heat is a cool mode", "cool", "cool_dhw", "heat_pump.heat_mode"},
		{"cool unknown", "heat_dhw", "unknown", "heat_pump.cool_mode"},
		{"cool off", "heat_dhw", "off", "heat_pump.cool_mode"},
		{"cool error", "heat_dhw", "error", "heat_pump.cool_mode"},
		{"cool is dhw only", "heat_dhw", "dhw", "heat_pump.cool_mode"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			body := strings.Replace(controllerJSON, `"heat_pump": {"unit": 10}`,
				`"heat_pump": {"unit": 10, "heat_mode": "`+tc.heat+`", "cool_mode": "`+tc.cool+`"}`, 1)
			_, err := Load(writeConfig(t, body), RoleController)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}

	body := strings.Replace(controllerJSON, `"heat_pump": {"unit": 10}`,
		`"heat_pump": {"unit": 10, "heat_mode": "heat", "cool_mode": "cool"}`, 1)
	cfg, err := Load(writeConfig(t, body), RoleController)
	require.NoError(t, err)
	assert.Equal(t, model.HeatPumpHeat, cfg.OutputController().HeatMode)
	assert.Equal(t, model.HeatPumpCool, cfg.OutputController().CoolMode)
}

func TestValidate_SatelliteTables(t *testing.T) {
	path := writeConfig(t, `{
  "satellite": {
    "bus": {"url": "rtu:///dev/ttyAMA0"},
    "fresh_air_unit": 1,
    "fancoil_unit": 1,
    "setpoints": {"cool_c": 20, "heat_c": 22},
    "fresh_air_indoor": [{"delta": 0, "output": 100}, {"delta": 0, "output": 0}]
  }
}`)
	_, err := Load(path, RoleSatellite)
	require.Error(t, err)
	for _, want := range []string{"fresh_air_indoor", "fresh_air_outdoor", "fancoil.points", "both unit 1", "must be below"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"), RoleController)
	assert.Error(t, err)

	_, err = Load(writeConfig(t, `{"bus": {"url": 7}}`), RoleController)
	assert.Error(t, err)

	_, err = Load(writeConfig(t, `{"unknown_field": true}`), RoleSimulator)
	assert.Error(t, err)

	_, err = Load(writeConfig(t, `{"simulator": {"server": {"url": "tcp://0.0.0.0:5502"}}}`), RoleSimulator)
	assert.NoError(t, err)
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, "debug", ParseLogLevel("debug").String())
	assert.Equal(t, "info", ParseLogLevel("verbose").String())
}

func busFor(url string) (b fieldbus.BusConfig) {
	b.URL = url
	return b
}
