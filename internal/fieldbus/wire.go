package fieldbus

import "encoding/binary"

// RegistersToWire lays registers out exactly as they travel on the bus (high byte first).
// Device codecs apply their own byte order on top of this.
func RegistersToWire(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, r := range regs {
		binary.BigEndian.PutUint16(out[i*2:], r)
	}
	return out
}

// WireToRegisters is the inverse of RegistersToWire. A trailing odd byte is dropped.
func WireToRegisters(b []byte) []uint16 {
	out := make([]uint16, len(b)/2)
	for i := range out {
		out[i] = binary.BigEndian.Uint16(b[i*2:])
	}
	return out
}
