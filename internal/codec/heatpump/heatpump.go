// Package heatpump decodes the heat pump's vendor register map. Standard big-endian words.
// Addresses below are wire addresses as documented by the vendor.
package heatpump

import (
	"fmt"
	"math"

	"github.com/thatsimonsguy/hydronic-controller/internal/model"
)

const (
	HoldingPower uint16 = 1 // 0 off, 1 on
	HoldingMode  uint16 = 2 // see modeValues

	InputStatus       uint16 = 1
	InputLeavingWater uint16 = 2 // °C x100, signed
	InputReturnWater  uint16 = 3
	InputCount        uint16 = 3
)

const (
	powerOff uint16 = 0
	powerOn  uint16 = 1
)

var modeValues = map[model.HeatPumpMode]uint16{
	model.HeatPumpCool:    0,
	model.HeatPumpHeat:    1,
	model.HeatPumpDHW:     2,
	model.HeatPumpCoolDHW: 3,
	model.HeatPumpHeatDHW: 4,
}

// Command is the register content needed to put the unit into a mode. Off only touches
// the power switch. Any other mode sets both, and HoldingMode directly follows HoldingPower
// so they can go in one write.
type Command struct {
	WriteMode bool
	Mode      uint16
	Power     uint16
}

func EncodeMode(m model.HeatPumpMode) (Command, error) {
	if m == model.HeatPumpOff {
		return Command{Power: powerOff}, nil
	}
	v, ok := modeValues[m]
	if !ok {
		return Command{}, fmt.Errorf("heat pump mode %s cannot be commanded", m)
	}
	return Command{WriteMode: true, Mode: v, Power: powerOn}, nil
}

// DecodeMode combines the power switch and mode registers. An alarm overrides both.
func DecodeMode(power, mode uint16, alarm bool) model.HeatPumpMode {
	if alarm {
		return model.HeatPumpError
	}
	switch power {
	case powerOff:
		return model.HeatPumpOff
	case powerOn:
	default:
		return model.HeatPumpUnknown
	}
	for m, v := range modeValues {
		if v == mode {
			return m
		}
	}
	return model.HeatPumpUnknown
}

const (
	statusCompressor = 1 << iota
	statusDefrost
	statusAlarm
)

type Status struct {
	CompressorRunning bool    `json:"compressor_running"`
	Defrost           bool    `json:"defrost"`
	Alarm             bool    `json:"alarm"`
	LeavingWaterC     float64 `json:"leaving_water_c"`
	ReturnWaterC      float64 `json:"return_water_c"`
}

// DecodeStatus decodes input registers 1..3 as returned by the transport.
func DecodeStatus(regs []uint16) (Status, error) {
	if len(regs) != int(InputCount) {
		return Status{}, fmt.Errorf("heat pump status is %d registers, want %d", len(regs), InputCount)
	}
	bits := regs[0]
	return Status{
		CompressorRunning: bits&statusCompressor != 0,
		Defrost:           bits&statusDefrost != 0,
		Alarm:             bits&statusAlarm != 0,
		LeavingWaterC:     float64(int16(regs[1])) / 100,
		ReturnWaterC:      float64(int16(regs[2])) / 100,
	}, nil
}

// EncodeStatus is the inverse of DecodeStatus, used by bench simulators and tests.
func EncodeStatus(s Status) []uint16 {
	var bits uint16
	if s.CompressorRunning {
		bits |= statusCompressor
	}
	if s.Defrost {
		bits |= statusDefrost
	}
	if s.Alarm {
		bits |= statusAlarm
	}
	return []uint16{bits, centi(s.LeavingWaterC), centi(s.ReturnWaterC)}
}

func centi(c float64) uint16 {
	return uint16(int16(math.Round(c * 100)))
}
