// Package fancoil is the register map of a fancoil-network node.
//
// Byte order: BIG-endian inside every 16-bit register (standard Modbus).
//
//	input   0     status bits (0 valve open, 1 override, 2 heat call, 3 cool call, 4 fan running)
//	input   1..4  telemetry block, 8 bytes (see Telemetry)
//	holding 0..1  model id, read-only
//	holding 2     command, write-only: bit 0 cool flag, bits 1-2 speed
//
// Offsets are 0-based; the wire address is offset+1.
package fancoil

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unsafe"

	"github.com/thatsimonsguy/hydronic-controller/internal/codec"
	"github.com/thatsimonsguy/hydronic-controller/internal/fieldbus"
	"github.com/thatsimonsguy/hydronic-controller/internal/model"
)

const (
	InputStatus    = 0
	InputTelemetry = 1
	InputCount     = 5

	HoldingModelID = 0
	HoldingCommand = 2
	HoldingCount   = 3
)

const (
	ModelIDHigh uint16 = 0x4643 // "FC"
	ModelIDLow  uint16 = 0x0201
	ModelID            = uint32(ModelIDHigh)<<16 | uint32(ModelIDLow)
)

var byteOrder = binary.BigEndian

var holdingFields = []codec.HoldingField{
	{Name: "model_id", Offset: HoldingModelID, Width: 2, Mode: codec.ReadOnly},
	{Name: "command", Offset: HoldingCommand, Width: 1, Mode: codec.WriteOnly},
}

const (
	commandCool      = 1 << 0
	commandSpeedMask = 0b11 << 1
	commandSpeedBit  = 1
)

// PackCommand places the cool flag in bit 0 and the speed in bits 1-2.
func PackCommand(c model.FancoilCommand) (uint16, error) {
	if c.Speed > model.MaxFancoilSpeed {
		return 0, fmt.Errorf("%w: fancoil speed %d", fieldbus.ErrIllegalRegister, c.Speed)
	}
	v := uint16(c.Speed) << commandSpeedBit
	if c.Cool {
		v |= commandCool
	}
	return v, nil
}

func UnpackCommand(v uint16) (model.FancoilCommand, error) {
	if v&^(commandCool|commandSpeedMask) != 0 {
		return model.FancoilCommand{}, fmt.Errorf("%w: fancoil command 0x%04x has reserved bits set", fieldbus.ErrIllegalRegister, v)
	}
	return model.FancoilCommand{
		Cool:  v&commandCool != 0,
		Speed: uint8((v & commandSpeedMask) >> commandSpeedBit),
	}, nil
}

const (
	statusValveOpen = 1 << iota
	statusOverride
	statusHeatCall
	statusCoolCall
	statusFanRunning
)

type Status struct {
	ValveOpen  bool `json:"valve_open"`
	Override   bool `json:"override"`
	HeatCall   bool `json:"heat_call"`
	CoolCall   bool `json:"cool_call"`
	FanRunning bool `json:"fan_running"`
}

func (s Status) Pack() uint16 {
	var v uint16
	if s.ValveOpen {
		v |= statusValveOpen
	}
	if s.Override {
		v |= statusOverride
	}
	if s.HeatCall {
		v |= statusHeatCall
	}
	if s.CoolCall {
		v |= statusCoolCall
	}
	if s.FanRunning {
		v |= statusFanRunning
	}
	return v
}

func UnpackStatus(v uint16) Status {
	return Status{
		ValveOpen:  v&statusValveOpen != 0,
		Override:   v&statusOverride != 0,
		HeatCall:   v&statusHeatCall != 0,
		CoolCall:   v&statusCoolCall != 0,
		FanRunning: v&statusFanRunning != 0,
	}
}

// Telemetry mirrors input registers 1..4 field for field. Changing its layout breaks the wire.
type Telemetry struct {
	AirTempCenti   int16  `json:"air_temp_centi"`
	WaterTempCenti int16  `json:"water_temp_centi"`
	HumidityCenti  uint16 `json:"humidity_centi"`
	FanRPM         uint16 `json:"fan_rpm"`
}

const TelemetrySize = 8

var _ [TelemetrySize]byte = [unsafe.Sizeof(Telemetry{})]byte{}

func (t Telemetry) AirTempC() float64   { return float64(t.AirTempCenti) / 100 }
func (t Telemetry) WaterTempC() float64 { return float64(t.WaterTempCenti) / 100 }

func EncodeTelemetry(t Telemetry) []byte {
	var buf bytes.Buffer
	buf.Grow(TelemetrySize)
	_ = binary.Write(&buf, byteOrder, t)
	return buf.Bytes()
}

func DecodeTelemetry(b []byte) (Telemetry, error) {
	var t Telemetry
	if len(b) != TelemetrySize {
		return t, fmt.Errorf("fancoil telemetry block is %d bytes, want %d", len(b), TelemetrySize)
	}
	err := binary.Read(bytes.NewReader(b), byteOrder, &t)
	return t, err
}

func EncodeWord(v uint16) []byte {
	b := make([]byte, 2)
	byteOrder.PutUint16(b, v)
	return b
}

func DecodeWord(b []byte) uint16 {
	return byteOrder.Uint16(b)
}

// State is what a master caches about a node.
type State struct {
	Status    Status    `json:"status"`
	Telemetry Telemetry `json:"telemetry"`
}

// Demand folds the node's status bits into the zone input the output controller consumes.
func (s State) Demand() model.FancoilDemand {
	return model.FancoilDemand{ValveOpen: s.Status.ValveOpen, Override: s.Status.Override}
}

// DecodeStatusBlock decodes the wire bytes of input registers 0..4.
func DecodeStatusBlock(wire []byte) (State, error) {
	if len(wire) != 2+TelemetrySize {
		return State{}, fmt.Errorf("fancoil status block is %d bytes, want %d", len(wire), 2+TelemetrySize)
	}
	t, err := DecodeTelemetry(wire[2:])
	return State{Status: UnpackStatus(DecodeWord(wire[:2])), Telemetry: t}, err
}

func DecodeModelID(wire []byte) (uint32, error) {
	if len(wire) != 4 {
		return 0, fmt.Errorf("fancoil model id is %d bytes, want 4", len(wire))
	}
	return uint32(DecodeWord(wire[:2]))<<16 | uint32(DecodeWord(wire[2:])), nil
}
