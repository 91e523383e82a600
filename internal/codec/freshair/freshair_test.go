package freshair

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/hydronic-controller/internal/codec"
	"github.com/thatsimonsguy/hydronic-controller/internal/fieldbus"
)

func testImage() Image {
	return Image{
		Status:       Status{FanRunning: true, FilterAlarm: true},
		Telemetry:    Telemetry{ExtractTempCenti: 2150, OutdoorTempCenti: -520, HumidityCenti: 4500, FanRPM: 1200},
		MakeupDemand: 35,
		FanSpeed:     60,
	}
}

func TestStatusPacking(t *testing.T) {
	s := Status{FanRunning: true, FrostProtect: true}
	assert.Equal(t, uint16(0b1001), s.Pack())
	assert.Equal(t, s, UnpackStatus(s.Pack()))
}

func TestTelemetry_LittleEndianWords(t *testing.T) {
	tel := Telemetry{ExtractTempCenti: 0x0102, OutdoorTempCenti: -2, HumidityCenti: 0x0A0B, FanRPM: 0x1234}
	b := EncodeTelemetry(tel)

	require.Len(t, b, TelemetrySize)
	assert.Equal(t, []byte{0x02, 0x01, 0xFE, 0xFF, 0x0B, 0x0A, 0x34, 0x12}, b)

	back, err := DecodeTelemetry(b)
	require.NoError(t, err)
	assert.Equal(t, tel, back)

	_, err = DecodeTelemetry(b[:6])
	assert.Error(t, err)
}

func TestTelemetryUnits(t *testing.T) {
	tel := testImage().Telemetry
	assert.InDelta(t, 21.5, tel.ExtractTempC(), 1e-9)
	assert.InDelta(t, -5.2, tel.OutdoorTempC(), 1e-9)
	assert.InDelta(t, 45.0, tel.HumidityPct(), 1e-9)
}

func TestReadInput_Bounds(t *testing.T) {
	h := NewHandler(testImage())

	for addr := uint16(0); addr <= InputCount+2; addr++ {
		for count := uint16(0); count <= InputCount+2; count++ {
			b, err := h.ReadInput(addr, count)
			if addr >= 1 && count >= 1 && int(addr-1)+int(count) <= InputCount {
				require.NoError(t, err, "addr=%d count=%d", addr, count)
				assert.Len(t, b, int(count)*2)
			} else {
				assert.ErrorIs(t, err, fieldbus.ErrIllegalRegister, "addr=%d count=%d", addr, count)
			}
		}
	}
}

func TestReadInput_Layout(t *testing.T) {
	h := NewHandler(testImage())

	b, err := h.ReadInput(1, InputCount)
	require.NoError(t, err)

	status, tel, err := DecodeStatusBlock(b[:10])
	require.NoError(t, err)
	assert.Equal(t, testImage().Status, status)
	assert.Equal(t, testImage().Telemetry, tel)

	// status word 0b0101 goes out low byte first
	assert.Equal(t, []byte{0x05, 0x00}, b[:2])
	assert.Equal(t, uint16(35), DecodeWord(b[10:12]))

	demand, err := h.ReadInput(InputMakeupDemand+1, 1)
	require.NoError(t, err)
	assert.Equal(t, uint16(35), DecodeWord(demand))
}

func TestReadWriteHolding(t *testing.T) {
	h := NewHandler(testImage())
	var notified uint16
	h.OnFanSpeed = func(pct uint16) { notified = pct }

	id, err := h.ReadWriteHolding(1, 2, codec.Read, nil)
	require.NoError(t, err)
	model, err := DecodeModelID(id)
	require.NoError(t, err)
	assert.Equal(t, ModelID, model)

	_, err = h.ReadWriteHolding(1, 2, codec.Write, []byte{0, 0, 0, 0})
	assert.ErrorIs(t, err, fieldbus.ErrIllegalOperation)

	_, err = h.ReadWriteHolding(1, 1, codec.Read, nil)
	assert.ErrorIs(t, err, fieldbus.ErrIllegalRegister)

	_, err = h.ReadWriteHolding(HoldingFanSpeed+1, 1, codec.Write, EncodeWord(75))
	require.NoError(t, err)
	assert.Equal(t, uint16(75), h.Image().FanSpeed)
	assert.Equal(t, uint16(75), notified)

	speed, err := h.ReadWriteHolding(HoldingFanSpeed+1, 1, codec.Read, nil)
	require.NoError(t, err)
	assert.Equal(t, uint16(75), DecodeWord(speed))

	_, err = h.ReadWriteHolding(HoldingFanSpeed+1, 1, codec.Write, EncodeWord(250))
	require.NoError(t, err)
	assert.Equal(t, uint16(MaxFanSpeed), h.Image().FanSpeed)

	_, err = h.ReadWriteHolding(HoldingCount+1, 1, codec.Read, nil)
	assert.ErrorIs(t, err, fieldbus.ErrIllegalRegister)
}

func TestReadWriteHolding_UnservedField(t *testing.T) {
	orig := holdingFields
	defer func() { holdingFields = orig }()
	holdingFields = append(append([]codec.HoldingField(nil), orig...),
		codec.HoldingField{Name: "spare", Offset: HoldingCount, Width: 1, Mode: codec.ReadWrite})

	b, err := NewHandler(testImage()).ReadWriteHolding(HoldingCount+1, 1, codec.Read, nil)
	assert.ErrorIs(t, err, fieldbus.ErrIllegalRegister)
	assert.Nil(t, b)
}
