package freshair

import (
	"fmt"
	"sync"

	"github.com/thatsimonsguy/hydronic-controller/internal/codec"
	"github.com/thatsimonsguy/hydronic-controller/internal/fieldbus"
)

// Image is the live register content served by the unit.
type Image struct {
	Status       Status
	Telemetry    Telemetry
	MakeupDemand uint16
	FanSpeed     uint16
}

// Handler serves the unit's register map from an Image. Safe for concurrent use.
type Handler struct {
	mu  sync.Mutex
	img Image

	// OnFanSpeed, if set, is called after a master writes the fan speed register.
	OnFanSpeed func(pct uint16)
}

var _ codec.Map = (*Handler)(nil)

func NewHandler(img Image) *Handler {
	return &Handler{img: img}
}

func (h *Handler) Image() Image {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.img
}

func (h *Handler) Update(fn func(*Image)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(&h.img)
}

func (h *Handler) ReadInput(addr, count uint16) ([]byte, error) {
	off, err := codec.InputRange(addr, count, InputCount)
	if err != nil {
		return nil, err
	}

	img := h.Image()
	block := make([]byte, 0, InputCount*2)
	block = append(block, EncodeWord(img.Status.Pack())...)
	block = append(block, EncodeTelemetry(img.Telemetry)...)
	block = append(block, EncodeWord(img.MakeupDemand)...)

	return block[off*2 : (off+count)*2], nil
}

func (h *Handler) ReadWriteHolding(addr, count uint16, access codec.Access, data []byte) ([]byte, error) {
	f, err := codec.LookupHolding(holdingFields, addr, count, access, data)
	if err != nil {
		return nil, err
	}

	switch f.Offset {
	case HoldingModelID:
		return append(EncodeWord(ModelIDHigh), EncodeWord(ModelIDLow)...), nil
	case HoldingFanSpeed:
		if access == codec.Read {
			return EncodeWord(h.Image().FanSpeed), nil
		}
		pct := DecodeWord(data)
		if pct > MaxFanSpeed {
			pct = MaxFanSpeed
		}
		h.Update(func(img *Image) { img.FanSpeed = pct })
		if h.OnFanSpeed != nil {
			h.OnFanSpeed(pct)
		}
		return EncodeWord(pct), nil
	}
	return nil, fmt.Errorf("%w: holding %s is not served", fieldbus.ErrIllegalRegister, f.Name)
}
