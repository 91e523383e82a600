// Package freshair is the register map of the fresh-air (ERV) unit.
//
// Byte order: LITTLE-endian inside every 16-bit register. The unit's firmware predates the
// fancoil nodes and swaps bytes on the wire; installed units depend on it, so the swap is
// reproduced here rather than normalised.
//
//	input   0     status bits (0 fan running, 1 bypass open, 2 filter alarm, 3 frost protect)
//	input   1..4  telemetry block, 8 bytes (see Telemetry)
//	input   5     makeup-air demand, percent
//	holding 0..1  model id, read-only
//	holding 2     fan speed percent, read/write
//
// Offsets are 0-based; the wire address is offset+1.
package freshair

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unsafe"

	"github.com/thatsimonsguy/hydronic-controller/internal/codec"
)

const (
	InputStatus       = 0
	InputTelemetry    = 1
	InputMakeupDemand = 5
	InputCount        = 6

	HoldingModelID  = 0
	HoldingFanSpeed = 2
	HoldingCount    = 3
)

const (
	ModelIDHigh uint16 = 0x4641 // "FA"
	ModelIDLow  uint16 = 0x0102
	ModelID            = uint32(ModelIDHigh)<<16 | uint32(ModelIDLow)

	MaxFanSpeed = 100
)

var byteOrder = binary.LittleEndian

var holdingFields = []codec.HoldingField{
	{Name: "model_id", Offset: HoldingModelID, Width: 2, Mode: codec.ReadOnly},
	{Name: "fan_speed", Offset: HoldingFanSpeed, Width: 1, Mode: codec.ReadWrite},
}

const (
	statusFanRunning = 1 << iota
	statusBypassOpen
	statusFilterAlarm
	statusFrostProtect
)

type Status struct {
	FanRunning   bool `json:"fan_running"`
	BypassOpen   bool `json:"bypass_open"`
	FilterAlarm  bool `json:"filter_alarm"`
	FrostProtect bool `json:"frost_protect"`
}

func (s Status) Pack() uint16 {
	var v uint16
	if s.FanRunning {
		v |= statusFanRunning
	}
	if s.BypassOpen {
		v |= statusBypassOpen
	}
	if s.FilterAlarm {
		v |= statusFilterAlarm
	}
	if s.FrostProtect {
		v |= statusFrostProtect
	}
	return v
}

func UnpackStatus(v uint16) Status {
	return Status{
		FanRunning:   v&statusFanRunning != 0,
		BypassOpen:   v&statusBypassOpen != 0,
		FilterAlarm:  v&statusFilterAlarm != 0,
		FrostProtect: v&statusFrostProtect != 0,
	}
}

// Telemetry mirrors input registers 1..4 field for field. Changing its layout breaks the wire.
type Telemetry struct {
	ExtractTempCenti int16  `json:"extract_temp_centi"`
	OutdoorTempCenti int16  `json:"outdoor_temp_centi"`
	HumidityCenti    uint16 `json:"humidity_centi"`
	FanRPM           uint16 `json:"fan_rpm"`
}

const TelemetrySize = 8

var _ [TelemetrySize]byte = [unsafe.Sizeof(Telemetry{})]byte{}

func (t Telemetry) ExtractTempC() float64 { return float64(t.ExtractTempCenti) / 100 }
func (t Telemetry) OutdoorTempC() float64 { return float64(t.OutdoorTempCenti) / 100 }
func (t Telemetry) HumidityPct() float64  { return float64(t.HumidityCenti) / 100 }

func EncodeTelemetry(t Telemetry) []byte {
	var buf bytes.Buffer
	buf.Grow(TelemetrySize)
	// bytes.Buffer writes never fail
	_ = binary.Write(&buf, byteOrder, t)
	return buf.Bytes()
}

func DecodeTelemetry(b []byte) (Telemetry, error) {
	var t Telemetry
	if len(b) != TelemetrySize {
		return t, fmt.Errorf("fresh-air telemetry block is %d bytes, want %d", len(b), TelemetrySize)
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

// State is what a master caches about the unit.
type State struct {
	Status    Status    `json:"status"`
	Telemetry Telemetry `json:"telemetry"`
	FanSpeed  uint16    `json:"fan_speed"`
}

// DecodeStatusBlock decodes the wire bytes of input registers 0..4.
func DecodeStatusBlock(wire []byte) (Status, Telemetry, error) {
	if len(wire) != 2+TelemetrySize {
		return Status{}, Telemetry{}, fmt.Errorf("fresh-air status block is %d bytes, want %d", len(wire), 2+TelemetrySize)
	}
	t, err := DecodeTelemetry(wire[2:])
	return UnpackStatus(DecodeWord(wire[:2])), t, err
}

func DecodeModelID(wire []byte) (uint32, error) {
	if len(wire) != 4 {
		return 0, fmt.Errorf("fresh-air model id is %d bytes, want 4", len(wire))
	}
	return uint32(DecodeWord(wire[:2]))<<16 | uint32(DecodeWord(wire[2:])), nil
}
