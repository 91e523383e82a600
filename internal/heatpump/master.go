// Package heatpump is the Modbus master for the heat pump on the main bus.
package heatpump

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/simonvetter/modbus"

	regs "github.com/thatsimonsguy/hydronic-controller/internal/codec/heatpump"
	"github.com/thatsimonsguy/hydronic-controller/internal/fieldbus"
	"github.com/thatsimonsguy/hydronic-controller/internal/model"
)

type Config struct {
	Unit         uint8         `json:"unit"`
	PollInterval time.Duration `json:"-"`
}

// Master caches the heat pump's mode and status. SetMode queues a mode; the background loop
// writes it before the next refresh.
type Master struct {
	bus  fieldbus.Transport
	unit uint8
	loop *fieldbus.Loop
	now  func() time.Time

	mu        sync.Mutex
	mode      fieldbus.Field[model.HeatPumpMode]
	status    fieldbus.Field[regs.Status]
	modeSlot  fieldbus.Slot[model.HeatPumpMode]
	modeWrite fieldbus.WriteResult[model.HeatPumpMode]
}

func NewMaster(bus fieldbus.Transport, cfg Config) *Master {
	return &Master{
		bus:  bus,
		unit: cfg.Unit,
		loop: fieldbus.NewLoop(cfg.PollInterval),
		now:  time.Now,
	}
}

// Init confirms the unit answers on the bus and fills the cache.
func (m *Master) Init(ctx context.Context) error {
	if _, err := m.bus.ReadRegisters(m.unit, regs.HoldingPower, 2, modbus.HOLDING_REGISTER); err != nil {
		return fmt.Errorf("heat pump unit %d not responding: %w", m.unit, err)
	}
	m.refresh()

	mode, _, _ := m.Mode()
	log.Info().Uint8("unit", m.unit).Str("mode", mode.String()).Msg("heat pump master initialised")
	return nil
}

func (m *Master) Run(ctx context.Context) error {
	return m.loop.Run(ctx, func(context.Context) { m.cycle() })
}

func (m *Master) cycle() {
	m.mu.Lock()
	mode, pending := m.modeSlot.Take()
	m.mu.Unlock()

	if pending {
		err := m.writeMode(mode)
		m.mu.Lock()
		m.modeWrite = fieldbus.WriteResult[model.HeatPumpMode]{Value: mode, At: m.now(), Err: err}
		m.mu.Unlock()

		if err != nil {
			log.Warn().Err(err).Str("mode", mode.String()).Msg("heat pump mode write failed")
		} else {
			log.Info().Str("mode", mode.String()).Msg("heat pump mode written")
		}
	}

	m.refresh()
}

// writeMode puts power and mode in one write-multiple transaction so the unit never sees
// one without the other. Off only touches the power switch.
func (m *Master) writeMode(mode model.HeatPumpMode) error {
	cmd, err := regs.EncodeMode(mode)
	if err != nil {
		return fmt.Errorf("%w: %w", fieldbus.ErrIllegalOperation, err)
	}
	if !cmd.WriteMode {
		return m.bus.WriteRegister(m.unit, regs.HoldingPower, cmd.Power)
	}
	return m.bus.WriteRegisters(m.unit, regs.HoldingPower, []uint16{cmd.Power, cmd.Mode})
}

func (m *Master) refresh() {
	var status regs.Status
	in, err := m.bus.ReadRegisters(m.unit, regs.InputStatus, regs.InputCount, modbus.INPUT_REGISTER)
	if err == nil {
		status, err = regs.DecodeStatus(in)
	}
	statusErr := err

	var mode model.HeatPumpMode
	hold, err := m.bus.ReadRegisters(m.unit, regs.HoldingPower, 2, modbus.HOLDING_REGISTER)
	if err == nil {
		mode = regs.DecodeMode(hold[0], hold[1], statusErr == nil && status.Alarm)
	}
	if err != nil || statusErr != nil {
		log.Debug().AnErr("mode_err", err).AnErr("status_err", statusErr).Uint8("unit", m.unit).Msg("heat pump refresh failed")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.status.Record(status, statusErr, now)
	m.mode.Record(mode, err, now)
}

func (m *Master) Mode() (model.HeatPumpMode, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode.Value, m.mode.Updated, m.mode.Err
}

func (m *Master) Status() (regs.Status, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status.Value, m.status.Updated, m.status.Err
}

// SetMode queues mode, replacing any mode not yet written.
func (m *Master) SetMode(mode model.HeatPumpMode) {
	m.mu.Lock()
	m.modeSlot.Put(mode)
	m.mu.Unlock()
	m.loop.Signal()
}

func (m *Master) LastModeWrite() fieldbus.WriteResult[model.HeatPumpMode] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.modeWrite
}
