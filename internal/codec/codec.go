// Package codec holds the address arithmetic shared by the satellite register maps.
// Byte order is deliberately not shared: every device package encodes its own words.
package codec

import (
	"fmt"

	"github.com/thatsimonsguy/hydronic-controller/internal/fieldbus"
)

type Access int

const (
	Read Access = iota
	Write
)

func (a Access) String() string {
	if a == Write {
		return "write"
	}
	return "read"
}

// Mode of a holding register.
type Mode int

const (
	ReadOnly Mode = iota
	WriteOnly
	ReadWrite
)

// Map is implemented by every satellite register map. Addresses are wire addresses.
type Map interface {
	ReadInput(addr, count uint16) ([]byte, error)
	ReadWriteHolding(addr, count uint16, access Access, data []byte) ([]byte, error)
}

// HoldingField declares one holding register (or register group) at a 0-based offset.
type HoldingField struct {
	Name   string
	Offset uint16
	Width  uint16
	Mode   Mode
}

// Offset converts a 1-based wire address to the internal 0-based layout.
func Offset(addr uint16) (uint16, error) {
	if addr == 0 {
		return 0, fmt.Errorf("%w: wire address 0", fieldbus.ErrIllegalRegister)
	}
	return addr - 1, nil
}

// WireAddr is the inverse of Offset.
func WireAddr(offset uint16) uint16 {
	return offset + 1
}

// InputRange validates an input-register request against a map of size registers and
// returns the 0-based start offset.
func InputRange(addr, count, size uint16) (uint16, error) {
	off, err := Offset(addr)
	if err != nil {
		return 0, err
	}
	if count == 0 || uint32(off)+uint32(count) > uint32(size) {
		return 0, fmt.Errorf("%w: input %d+%d exceeds %d registers", fieldbus.ErrIllegalRegister, addr, count, size)
	}
	return off, nil
}

// LookupHolding resolves a holding request to exactly one declared field. The request must
// start at the field and cover its full width.
func LookupHolding(fields []HoldingField, addr, count uint16, access Access, data []byte) (HoldingField, error) {
	off, err := Offset(addr)
	if err != nil {
		return HoldingField{}, err
	}

	for _, f := range fields {
		if f.Offset != off {
			continue
		}
		if count != f.Width {
			return f, fmt.Errorf("%w: %s is %d registers, request was %d", fieldbus.ErrIllegalRegister, f.Name, f.Width, count)
		}
		if access == Write && len(data) != int(count)*2 {
			return f, fmt.Errorf("%w: %s write carries %d bytes", fieldbus.ErrIllegalRegister, f.Name, len(data))
		}
		if (access == Read && f.Mode == WriteOnly) || (access == Write && f.Mode == ReadOnly) {
			return f, fmt.Errorf("%w: %s of %s", fieldbus.ErrIllegalOperation, access, f.Name)
		}
		return f, nil
	}

	return HoldingField{}, fmt.Errorf("%w: no holding register at %d", fieldbus.ErrIllegalRegister, addr)
}
