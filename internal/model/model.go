package model

import "fmt"

// Deployment sizing. Zone modules and loop-valve switches are wired at install time.
const (
	NumZones      = 4
	NumLoopValves = 2
)

type FancoilDemand struct {
	ValveOpen bool `json:"valve_open"`
	Override  bool `json:"override"`
}

// Active reports whether the fancoil is asking for water.
func (d FancoilDemand) Active() bool {
	return d.ValveOpen || d.Override
}

type ThermostatDemand struct {
	HeatCall bool `json:"heat_call"`
	CoolCall bool `json:"cool_call"`
}

// LoopValveSwitch is the end-switch feedback of a loop's valve pair.
type LoopValveSwitch uint8

const (
	LoopValveNone LoopValveSwitch = iota
	LoopValveOne
	LoopValveBoth
)

func (s LoopValveSwitch) String() string {
	switch s {
	case LoopValveNone:
		return "none"
	case LoopValveOne:
		return "one"
	case LoopValveBoth:
		return "both"
	}
	return fmt.Sprintf("loop_valve(%d)", uint8(s))
}

func ParseLoopValveSwitch(s string) (LoopValveSwitch, error) {
	switch s {
	case "none":
		return LoopValveNone, nil
	case "one":
		return LoopValveOne, nil
	case "both":
		return LoopValveBoth, nil
	}
	return LoopValveNone, fmt.Errorf("invalid loop valve switch state %q", s)
}

// ZoneInputState is comparable with ==; the controller relies on that to spot unchanged input.
type ZoneInputState struct {
	Fancoils    [NumZones]FancoilDemand        `json:"fancoils"`
	Thermostats [NumZones]ThermostatDemand     `json:"thermostats"`
	LoopValves  [NumLoopValves]LoopValveSwitch `json:"loop_valves"`
}

type Setpoints struct {
	CoolC float64 `json:"cool_c"`
	HeatC float64 `json:"heat_c"`
}

type SensorSample struct {
	TempC        float64
	OutdoorC     float64
	OutdoorKnown bool
}

// HeatPumpMode mirrors the heat pump's vendor encoding. Off lives in the power switch
// register, every other value in the mode register.
type HeatPumpMode int

const (
	HeatPumpError HeatPumpMode = iota
	HeatPumpUnknown
	HeatPumpOff
	HeatPumpCool
	HeatPumpHeat
	HeatPumpDHW
	HeatPumpCoolDHW
	HeatPumpHeatDHW
)

var heatPumpModeNames = map[HeatPumpMode]string{
	HeatPumpError:   "error",
	HeatPumpUnknown: "unknown",
	HeatPumpOff:     "off",
	HeatPumpCool:    "cool",
	HeatPumpHeat:    "heat",
	HeatPumpDHW:     "dhw",
	HeatPumpCoolDHW: "cool_dhw",
	HeatPumpHeatDHW: "heat_dhw",
}

func (m HeatPumpMode) String() string {
	if s, ok := heatPumpModeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("heat_pump_mode(%d)", int(m))
}

func ParseHeatPumpMode(s string) (HeatPumpMode, error) {
	for m, name := range heatPumpModeNames {
		if name == s {
			return m, nil
		}
	}
	return HeatPumpUnknown, fmt.Errorf("invalid heat pump mode %q", s)
}

// OutputMode is the controller's own decision. Off and Standby both command the heat pump off.
type OutputMode int

const (
	ModeOff OutputMode = iota
	ModeStandby
	ModeCool
	ModeHeat
)

func (m OutputMode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModeStandby:
		return "standby"
	case ModeCool:
		return "cool"
	case ModeHeat:
		return "heat"
	}
	return fmt.Sprintf("output_mode(%d)", int(m))
}

// Active is true for the modes that run the compressor.
func (m OutputMode) Active() bool {
	return m == ModeHeat || m == ModeCool
}

type FancoilCommand struct {
	Cool  bool  `json:"cool"`
	Speed uint8 `json:"speed"` // 0-3
}

const MaxFancoilSpeed = 3

type GPIOPin struct {
	Number     int  `json:"number"`
	ActiveHigh bool `json:"active_high"`
}
