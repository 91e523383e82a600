package fieldbus

import (
	"errors"
	"testing"

	"github.com/simonvetter/modbus"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"illegal address", modbus.ErrIllegalDataAddress, ErrIllegalRegister},
		{"illegal function", modbus.ErrIllegalFunction, ErrIllegalOperation},
		{"timeout", modbus.ErrRequestTimedOut, ErrCommunicationFailure},
		{"anything else", errors.New("crc mismatch"), ErrCommunicationFailure},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := classify(tc.in, "unit %d read %d", 3, 1)
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, tc.in)
			assert.Contains(t, err.Error(), "unit 3 read 1")
		})
	}
}

func TestParseParity(t *testing.T) {
	p, err := parseParity("")
	assert.NoError(t, err)
	assert.Equal(t, modbus.PARITY_NONE, p)

	p, err = parseParity("Even")
	assert.NoError(t, err)
	assert.Equal(t, modbus.PARITY_EVEN, p)

	_, err = parseParity("mark")
	assert.Error(t, err)
}

func TestPortHint(t *testing.T) {
	orig := listPorts
	defer func() { listPorts = orig }()

	listPorts = func() ([]string, error) { return []string{"/dev/ttyUSB0", "/dev/ttyAMA0"}, nil }
	assert.Equal(t, " (available: /dev/ttyUSB0, /dev/ttyAMA0)", portHint("rtu:///dev/ttyUSB1"))
	assert.Empty(t, portHint("tcp://localhost:502"))

	listPorts = func() ([]string, error) { return nil, nil }
	assert.Equal(t, " (no serial ports found)", portHint("rtu:///dev/ttyUSB1"))

	listPorts = func() ([]string, error) { return nil, errors.New("no /dev") }
	assert.Empty(t, portHint("rtu:///dev/ttyUSB1"))
}

func TestWireRoundTrip(t *testing.T) {
	regs := []uint16{0x1234, 0xABCD}
	wire := RegistersToWire(regs)
	assert.Equal(t, []byte{0x12, 0x34, 0xAB, 0xCD}, wire)
	assert.Equal(t, regs, WireToRegisters(wire))
}

func TestFakeTransport(t *testing.T) {
	f := NewFakeTransport()
	f.SetRegisters(2, modbus.INPUT_REGISTER, 1, 5, 6)

	regs, err := f.ReadRegisters(2, 1, 2, modbus.INPUT_REGISTER)
	assert.NoError(t, err)
	assert.Equal(t, []uint16{5, 6}, regs)

	assert.NoError(t, f.WriteRegister(2, 3, 9))
	assert.Equal(t, uint16(9), f.Register(2, modbus.HOLDING_REGISTER, 3))
	assert.Len(t, f.WriteLog(), 1)

	f.FailReads(errors.New("no response"))
	_, err = f.ReadRegisters(2, 1, 2, modbus.INPUT_REGISTER)
	assert.ErrorIs(t, err, ErrCommunicationFailure)

	f.Strict = true
	f.FailReads(nil)
	_, err = f.ReadRegisters(2, 40, 1, modbus.INPUT_REGISTER)
	assert.ErrorIs(t, err, ErrIllegalRegister)
}
