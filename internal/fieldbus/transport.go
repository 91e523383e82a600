package fieldbus

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/simonvetter/modbus"
	"go.bug.st/serial"
)

// Transport issues single Modbus transactions. Addresses are wire addresses (1-based).
// Only the function codes used by the devices on this bus are exposed.
type Transport interface {
	ReadRegisters(unit uint8, addr, quantity uint16, regType modbus.RegType) ([]uint16, error)
	WriteRegister(unit uint8, addr, value uint16) error
	WriteRegisters(unit uint8, addr uint16, values []uint16) error
}

type BusConfig struct {
	URL           string `json:"url"` // rtu:///dev/ttyUSB0, rtuovertcp://host:port, tcp://host:port
	Speed         uint   `json:"speed"`
	DataBits      uint   `json:"data_bits"`
	Parity        string `json:"parity"` // none, even, odd
	StopBits      uint   `json:"stop_bits"`
	TimeoutMillis int    `json:"timeout_ms"`
}

const defaultBusTimeout = 500 * time.Millisecond

// RTUTransport owns one physical bus. Unit id selection and the transaction that follows
// happen under one lock so two masters may share the bus.
type RTUTransport struct {
	mu     sync.Mutex
	url    string
	client *modbus.ModbusClient
}

func NewRTUTransport(cfg BusConfig) (*RTUTransport, error) {
	parity, err := parseParity(cfg.Parity)
	if err != nil {
		return nil, err
	}

	timeout := defaultBusTimeout
	if cfg.TimeoutMillis > 0 {
		timeout = time.Duration(cfg.TimeoutMillis) * time.Millisecond
	}

	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:      cfg.URL,
		Speed:    cfg.Speed,
		DataBits: cfg.DataBits,
		Parity:   parity,
		StopBits: cfg.StopBits,
		Timeout:  timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create modbus client for %s: %w", cfg.URL, err)
	}

	return &RTUTransport{url: cfg.URL, client: client}, nil
}

func parseParity(p string) (uint, error) {
	switch strings.ToLower(p) {
	case "", "none":
		return modbus.PARITY_NONE, nil
	case "even":
		return modbus.PARITY_EVEN, nil
	case "odd":
		return modbus.PARITY_ODD, nil
	}
	return 0, fmt.Errorf("invalid parity %q", p)
}

func (t *RTUTransport) Open() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.client.Open(); err != nil {
		return fmt.Errorf("%w: open %s: %w%s", ErrCommunicationFailure, t.url, err, portHint(t.url))
	}
	log.Info().Str("bus", t.url).Msg("Modbus bus opened")
	return nil
}

// listPorts is swapped out in tests.
var listPorts = serial.GetPortsList

// portHint names the serial ports that do exist when an rtu:// device could not be opened.
func portHint(url string) string {
	if !strings.HasPrefix(url, "rtu://") {
		return ""
	}
	ports, err := listPorts()
	if err != nil {
		return ""
	}
	if len(ports) == 0 {
		return " (no serial ports found)"
	}
	return fmt.Sprintf(" (available: %s)", strings.Join(ports, ", "))
}

func (t *RTUTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client.Close()
}

func (t *RTUTransport) ReadRegisters(unit uint8, addr, quantity uint16, regType modbus.RegType) ([]uint16, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.client.SetUnitId(unit); err != nil {
		return nil, classify(err, "unit %d select", unit)
	}
	regs, err := t.client.ReadRegisters(addr, quantity, regType)
	if err != nil {
		return nil, classify(err, "unit %d read %d+%d", unit, addr, quantity)
	}
	return regs, nil
}

func (t *RTUTransport) WriteRegister(unit uint8, addr, value uint16) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.client.SetUnitId(unit); err != nil {
		return classify(err, "unit %d select", unit)
	}
	if err := t.client.WriteRegister(addr, value); err != nil {
		return classify(err, "unit %d write %d", unit, addr)
	}
	return nil
}

func (t *RTUTransport) WriteRegisters(unit uint8, addr uint16, values []uint16) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.client.SetUnitId(unit); err != nil {
		return classify(err, "unit %d select", unit)
	}
	if err := t.client.WriteRegisters(addr, values); err != nil {
		return classify(err, "unit %d write %d+%d", unit, addr, len(values))
	}
	return nil
}

// classify maps device exceptions onto the register taxonomy; anything else is a bus fault.
func classify(err error, format string, args ...any) error {
	ctx := fmt.Sprintf(format, args...)
	switch {
	case errors.Is(err, modbus.ErrIllegalDataAddress):
		return fmt.Errorf("%w: %s: %w", ErrIllegalRegister, ctx, err)
	case errors.Is(err, modbus.ErrIllegalFunction):
		return fmt.Errorf("%w: %s: %w", ErrIllegalOperation, ctx, err)
	default:
		return fmt.Errorf("%w: %s: %w", ErrCommunicationFailure, ctx, err)
	}
}
