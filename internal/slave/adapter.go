// Package slave serves a satellite register map as a Modbus server. It is used to emulate
// satellite devices on the bench and in integration setups.
package slave

import (
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/simonvetter/modbus"

	"github.com/thatsimonsguy/hydronic-controller/internal/codec"
	"github.com/thatsimonsguy/hydronic-controller/internal/fieldbus"
)

// Adapter turns a codec.Map into a modbus.RequestHandler. Request addresses are handed to
// the map untouched; the map owns the 1-based to 0-based conversion.
type Adapter struct {
	name string
	unit uint8
	regs codec.Map
}

var _ modbus.RequestHandler = (*Adapter)(nil)

// NewAdapter answers requests for unit, or for any unit when unit is 0.
func NewAdapter(name string, unit uint8, regs codec.Map) *Adapter {
	return &Adapter{name: name, unit: unit, regs: regs}
}

func (a *Adapter) HandleCoils(req *modbus.CoilsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalDataAddress
}

func (a *Adapter) HandleDiscreteInputs(req *modbus.DiscreteInputsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalDataAddress
}

func (a *Adapter) HandleHoldingRegisters(req *modbus.HoldingRegistersRequest) ([]uint16, error) {
	if !a.accepts(req.UnitId) {
		return nil, modbus.ErrGWTargetFailedToRespond
	}

	access := codec.Read
	var data []byte
	if req.IsWrite {
		access = codec.Write
		data = fieldbus.RegistersToWire(req.Args)
	}

	out, err := a.regs.ReadWriteHolding(req.Addr, req.Quantity, access, data)
	if err != nil {
		return nil, a.exception(err, "holding", req.Addr, req.Quantity)
	}

	if req.IsWrite {
		log.Debug().Str("device", a.name).Uint16("addr", req.Addr).Uints16("values", req.Args).Msg("holding write")
	}
	return fieldbus.WireToRegisters(out), nil
}

func (a *Adapter) HandleInputRegisters(req *modbus.InputRegistersRequest) ([]uint16, error) {
	if !a.accepts(req.UnitId) {
		return nil, modbus.ErrGWTargetFailedToRespond
	}

	out, err := a.regs.ReadInput(req.Addr, req.Quantity)
	if err != nil {
		return nil, a.exception(err, "input", req.Addr, req.Quantity)
	}
	return fieldbus.WireToRegisters(out), nil
}

func (a *Adapter) accepts(unit uint8) bool {
	return a.unit == 0 || a.unit == unit
}

// exception maps codec errors onto Modbus exception codes.
func (a *Adapter) exception(err error, kind string, addr, count uint16) error {
	log.Debug().Err(err).Str("device", a.name).Str("kind", kind).Uint16("addr", addr).Uint16("count", count).Msg("request rejected")

	switch {
	case errors.Is(err, fieldbus.ErrIllegalRegister):
		return modbus.ErrIllegalDataAddress
	case errors.Is(err, fieldbus.ErrIllegalOperation):
		return modbus.ErrIllegalFunction
	}
	return modbus.ErrServerDeviceFailure
}
