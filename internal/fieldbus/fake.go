package fieldbus

import (
	"fmt"
	"sync"

	"github.com/simonvetter/modbus"
)

// FakeWrite is one write seen by a FakeTransport.
type FakeWrite struct {
	Unit   uint8
	Addr   uint16
	Values []uint16
}

// FakeTransport is an in-memory bus for tests. Registers default to zero; reads of
// addresses never set return ErrIllegalRegister only when Strict is set.
type FakeTransport struct {
	mu sync.Mutex

	holding map[uint8]map[uint16]uint16
	input   map[uint8]map[uint16]uint16

	readErr  error
	writeErr error

	Strict bool
	Reads  int
	Writes []FakeWrite
}

func NewFakeTransport() *FakeTransport {
	return &FakeTransport{
		holding: map[uint8]map[uint16]uint16{},
		input:   map[uint8]map[uint16]uint16{},
	}
}

func (f *FakeTransport) bank(unit uint8, regType modbus.RegType) map[uint16]uint16 {
	banks := f.holding
	if regType == modbus.INPUT_REGISTER {
		banks = f.input
	}
	if banks[unit] == nil {
		banks[unit] = map[uint16]uint16{}
	}
	return banks[unit]
}

func (f *FakeTransport) SetRegisters(unit uint8, regType modbus.RegType, addr uint16, values ...uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.bank(unit, regType)
	for i, v := range values {
		b[addr+uint16(i)] = v
	}
}

func (f *FakeTransport) Register(unit uint8, regType modbus.RegType, addr uint16) uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bank(unit, regType)[addr]
}

// FailReads makes every read fail with a communication error until called with nil.
func (f *FakeTransport) FailReads(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readErr = err
}

func (f *FakeTransport) FailWrites(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErr = err
}

func (f *FakeTransport) WriteLog() []FakeWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FakeWrite(nil), f.Writes...)
}

func (f *FakeTransport) ReadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Reads
}

func (f *FakeTransport) ReadRegisters(unit uint8, addr, quantity uint16, regType modbus.RegType) ([]uint16, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Reads++
	if f.readErr != nil {
		return nil, fmt.Errorf("%w: unit %d read %d+%d: %w", ErrCommunicationFailure, unit, addr, quantity, f.readErr)
	}

	b := f.bank(unit, regType)
	out := make([]uint16, quantity)
	for i := range out {
		v, ok := b[addr+uint16(i)]
		if !ok && f.Strict {
			return nil, fmt.Errorf("%w: unit %d address %d", ErrIllegalRegister, unit, addr+uint16(i))
		}
		out[i] = v
	}
	return out, nil
}

func (f *FakeTransport) WriteRegister(unit uint8, addr, value uint16) error {
	return f.WriteRegisters(unit, addr, []uint16{value})
}

func (f *FakeTransport) WriteRegisters(unit uint8, addr uint16, values []uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.writeErr != nil {
		return fmt.Errorf("%w: unit %d write %d: %w", ErrCommunicationFailure, unit, addr, f.writeErr)
	}

	f.Writes = append(f.Writes, FakeWrite{Unit: unit, Addr: addr, Values: append([]uint16(nil), values...)})
	b := f.bank(unit, modbus.HOLDING_REGISTER)
	for i, v := range values {
		b[addr+uint16(i)] = v
	}
	return nil
}
