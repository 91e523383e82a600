package heatpump

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/simonvetter/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	regs "github.com/thatsimonsguy/hydronic-controller/internal/codec/heatpump"
	"github.com/thatsimonsguy/hydronic-controller/internal/fieldbus"
	"github.com/thatsimonsguy/hydronic-controller/internal/model"
)

const unit = 10

var t0 = time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)

func newMaster(bus fieldbus.Transport) *Master {
	m := NewMaster(bus, Config{Unit: unit})
	m.now = func() time.Time { return t0 }
	return m
}

func TestSetMode_HeatDHW(t *testing.T) {
	bus := fieldbus.NewFakeTransport()
	m := newMaster(bus)

	m.SetMode(model.HeatPumpHeatDHW)
	m.cycle()

	assert.Equal(t, []fieldbus.FakeWrite{
		{Unit: unit, Addr: regs.HoldingPower, Values: []uint16{1, 4}},
	}, bus.WriteLog(), "power and mode go in one transaction")
	assert.Equal(t, uint16(4), bus.Register(unit, modbus.HOLDING_REGISTER, regs.HoldingMode))

	mode, at, err := m.Mode()
	require.NoError(t, err)
	assert.Equal(t, model.HeatPumpHeatDHW, mode)
	assert.Equal(t, t0, at)
	assert.Equal(t, model.HeatPumpHeatDHW, m.LastModeWrite().Value)
}

func TestSetMode_OffOnlyWritesPower(t *testing.T) {
	bus := fieldbus.NewFakeTransport()
	bus.SetRegisters(unit, modbus.HOLDING_REGISTER, regs.HoldingPower, 1, 0)
	m := newMaster(bus)

	m.SetMode(model.HeatPumpOff)
	m.cycle()

	assert.Equal(t, []fieldbus.FakeWrite{{Unit: unit, Addr: regs.HoldingPower, Values: []uint16{0}}}, bus.WriteLog())
	assert.Equal(t, uint16(0), bus.Register(unit, modbus.HOLDING_REGISTER, regs.HoldingMode))

	mode, _, err := m.Mode()
	require.NoError(t, err)
	assert.Equal(t, model.HeatPumpOff, mode)
}

func TestSetMode_LastWriteWins(t *testing.T) {
	bus := fieldbus.NewFakeTransport()
	m := newMaster(bus)

	m.SetMode(model.HeatPumpHeat)
	m.SetMode(model.HeatPumpCool)
	m.SetMode(model.HeatPumpCoolDHW)
	m.cycle()

	writes := bus.WriteLog()
	require.Len(t, writes, 1)
	assert.Equal(t, []uint16{1, 3}, writes[0].Values)
}

func TestSetMode_Unencodable(t *testing.T) {
	bus := fieldbus.NewFakeTransport()
	m := newMaster(bus)

	m.SetMode(model.HeatPumpUnknown)
	m.cycle()

	assert.Empty(t, bus.WriteLog())
	assert.ErrorIs(t, m.LastModeWrite().Err, fieldbus.ErrIllegalOperation)
}

func TestWriteFailureLeavesBothRegisters(t *testing.T) {
	bus := fieldbus.NewFakeTransport()
	bus.SetRegisters(unit, modbus.HOLDING_REGISTER, regs.HoldingPower, 0, 1)
	bus.FailWrites(errors.New("no ack"))
	m := newMaster(bus)

	m.SetMode(model.HeatPumpCoolDHW)
	m.cycle()

	assert.Equal(t, uint16(0), bus.Register(unit, modbus.HOLDING_REGISTER, regs.HoldingPower))
	assert.Equal(t, uint16(1), bus.Register(unit, modbus.HOLDING_REGISTER, regs.HoldingMode))
	assert.Error(t, m.LastModeWrite().Err)
}

func TestWriteFailure(t *testing.T) {
	bus := fieldbus.NewFakeTransport()
	bus.FailWrites(errors.New("no ack"))
	m := newMaster(bus)

	m.SetMode(model.HeatPumpHeatDHW)
	m.cycle()

	last := m.LastModeWrite()
	assert.Equal(t, model.HeatPumpHeatDHW, last.Value)
	assert.ErrorIs(t, last.Err, fieldbus.ErrCommunicationFailure)

	mode, _, err := m.Mode()
	require.NoError(t, err)
	assert.Equal(t, model.HeatPumpOff, mode)
}

func TestStatusAndAlarm(t *testing.T) {
	bus := fieldbus.NewFakeTransport()
	bus.SetRegisters(unit, modbus.HOLDING_REGISTER, regs.HoldingPower, 1, 1)
	bus.SetRegisters(unit, modbus.INPUT_REGISTER, regs.InputStatus,
		regs.EncodeStatus(regs.Status{CompressorRunning: true, LeavingWaterC: 41.5, ReturnWaterC: 36})...)
	m := newMaster(bus)
	require.NoError(t, m.Init(context.Background()))

	st, _, err := m.Status()
	require.NoError(t, err)
	assert.True(t, st.CompressorRunning)
	assert.InDelta(t, 41.5, st.LeavingWaterC, 1e-9)

	mode, _, _ := m.Mode()
	assert.Equal(t, model.HeatPumpHeat, mode)

	bus.SetRegisters(unit, modbus.INPUT_REGISTER, regs.InputStatus, regs.EncodeStatus(regs.Status{Alarm: true})...)
	m.cycle()
	mode, _, _ = m.Mode()
	assert.Equal(t, model.HeatPumpError, mode)
}

func TestReadFailureKeepsCache(t *testing.T) {
	bus := fieldbus.NewFakeTransport()
	bus.SetRegisters(unit, modbus.HOLDING_REGISTER, regs.HoldingPower, 1, 0)
	m := newMaster(bus)
	m.cycle()

	later := t0.Add(time.Hour)
	m.now = func() time.Time { return later }
	bus.FailReads(errors.New("timeout"))
	m.cycle()

	mode, at, err := m.Mode()
	assert.ErrorIs(t, err, fieldbus.ErrCommunicationFailure)
	assert.Equal(t, model.HeatPumpCool, mode)
	assert.Equal(t, t0, at)

	_, statusAt, err := m.Status()
	assert.Error(t, err)
	assert.Equal(t, t0, statusAt)
}

func TestInit_NoResponse(t *testing.T) {
	bus := fieldbus.NewFakeTransport()
	bus.FailReads(errors.New("timeout"))
	assert.ErrorIs(t, newMaster(bus).Init(context.Background()), fieldbus.ErrCommunicationFailure)
}
