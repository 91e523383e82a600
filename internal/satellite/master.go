// Package satellite is the Modbus master that owns the satellite bus: the fresh-air unit and,
// on deployments that have one, a fancoil node.
package satellite

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/simonvetter/modbus"

	"github.com/thatsimonsguy/hydronic-controller/internal/codec"
	"github.com/thatsimonsguy/hydronic-controller/internal/codec/fancoil"
	"github.com/thatsimonsguy/hydronic-controller/internal/codec/freshair"
	"github.com/thatsimonsguy/hydronic-controller/internal/fieldbus"
	"github.com/thatsimonsguy/hydronic-controller/internal/model"
)

type Config struct {
	FreshAirUnit uint8 `json:"fresh_air_unit"`
	// FancoilUnit 0 means no fancoil node is wired to this bus.
	FancoilUnit uint8 `json:"fancoil_unit"`
	// MakeupSensor is false on units built without the makeup-air demand sensor.
	MakeupSensor bool          `json:"makeup_sensor"`
	PollInterval time.Duration `json:"-"`
}

// Master caches the last known state of every satellite device and applies queued writes
// from a single background loop. Getters and setters never touch the bus.
type Master struct {
	bus  fieldbus.Transport
	cfg  Config
	loop *fieldbus.Loop
	now  func() time.Time

	mu            sync.Mutex
	freshAir      fieldbus.Field[freshair.State]
	fancoil       fieldbus.Field[fancoil.State]
	makeup        fieldbus.Field[uint16]
	fanSpeed      fieldbus.Slot[uint16]
	fancoilCmd    fieldbus.Slot[model.FancoilCommand]
	freshAirWrite fieldbus.WriteResult[uint16]
	fancoilWrite  fieldbus.WriteResult[model.FancoilCommand]
}

func NewMaster(bus fieldbus.Transport, cfg Config) *Master {
	return &Master{
		bus:  bus,
		cfg:  cfg,
		loop: fieldbus.NewLoop(cfg.PollInterval),
		now:  time.Now,
	}
}

func (m *Master) hasFancoil() bool {
	return m.cfg.FancoilUnit != 0
}

// Init checks the model id of every configured device and fills the cache once.
func (m *Master) Init(ctx context.Context) error {
	if err := m.probe(m.cfg.FreshAirUnit, "fresh-air", freshair.ModelID, freshair.DecodeModelID); err != nil {
		return err
	}
	if m.hasFancoil() {
		if err := m.probe(m.cfg.FancoilUnit, "fancoil", fancoil.ModelID, fancoil.DecodeModelID); err != nil {
			return err
		}
	}

	m.refresh()
	log.Info().
		Uint8("fresh_air_unit", m.cfg.FreshAirUnit).
		Uint8("fancoil_unit", m.cfg.FancoilUnit).
		Bool("makeup_sensor", m.cfg.MakeupSensor).
		Msg("satellite master initialised")
	return nil
}

func (m *Master) probe(unit uint8, name string, want uint32, decode func([]byte) (uint32, error)) error {
	regs, err := m.bus.ReadRegisters(unit, codec.WireAddr(0), 2, modbus.HOLDING_REGISTER)
	if err != nil {
		return fmt.Errorf("failed to read %s model id: %w", name, err)
	}
	got, err := decode(fieldbus.RegistersToWire(regs))
	if err != nil {
		return fmt.Errorf("failed to decode %s model id: %w", name, err)
	}
	if got != want {
		return fmt.Errorf("%w: unit %d reports model 0x%08x, expected %s 0x%08x", fieldbus.ErrNotSupported, unit, got, name, want)
	}
	return nil
}

// Run polls until ctx is cancelled.
func (m *Master) Run(ctx context.Context) error {
	return m.loop.Run(ctx, func(context.Context) { m.cycle() })
}

// cycle applies pending writes, then refreshes every readable field.
func (m *Master) cycle() {
	m.mu.Lock()
	speed, speedPending := m.fanSpeed.Take()
	cmd, cmdPending := m.fancoilCmd.Take()
	m.mu.Unlock()

	if speedPending {
		err := m.bus.WriteRegister(m.cfg.FreshAirUnit, codec.WireAddr(freshair.HoldingFanSpeed), fieldbus.WireToRegisters(freshair.EncodeWord(speed))[0])
		m.mu.Lock()
		m.freshAirWrite = fieldbus.WriteResult[uint16]{Value: speed, At: m.now(), Err: err}
		m.mu.Unlock()
		if err != nil {
			log.Warn().Err(err).Uint16("speed", speed).Msg("fresh-air fan speed write failed")
		}
	}

	if cmdPending {
		err := m.writeFancoil(cmd)
		m.mu.Lock()
		m.fancoilWrite = fieldbus.WriteResult[model.FancoilCommand]{Value: cmd, At: m.now(), Err: err}
		m.mu.Unlock()
		if err != nil {
			log.Warn().Err(err).Bool("cool", cmd.Cool).Uint8("speed", cmd.Speed).Msg("fancoil command write failed")
		}
	}

	m.refresh()
}

func (m *Master) writeFancoil(cmd model.FancoilCommand) error {
	v, err := fancoil.PackCommand(cmd)
	if err != nil {
		return err
	}
	return m.bus.WriteRegister(m.cfg.FancoilUnit, codec.WireAddr(fancoil.HoldingCommand), fieldbus.WireToRegisters(fancoil.EncodeWord(v))[0])
}

func (m *Master) refresh() {
	m.refreshFreshAir()
	if m.hasFancoil() {
		m.refreshFancoil()
	}
}

func (m *Master) refreshFreshAir() {
	count := uint16(freshair.InputMakeupDemand)
	if m.cfg.MakeupSensor {
		count = freshair.InputCount
	}

	var state freshair.State
	var demand uint16
	regs, err := m.bus.ReadRegisters(m.cfg.FreshAirUnit, codec.WireAddr(freshair.InputStatus), count, modbus.INPUT_REGISTER)
	if err == nil {
		wire := fieldbus.RegistersToWire(regs)
		state.Status, state.Telemetry, err = freshair.DecodeStatusBlock(wire[:2+freshair.TelemetrySize])
		if m.cfg.MakeupSensor {
			demand = freshair.DecodeWord(wire[2*freshair.InputMakeupDemand:])
		}
	}
	inputErr := err
	if err == nil {
		var speed []uint16
		speed, err = m.bus.ReadRegisters(m.cfg.FreshAirUnit, codec.WireAddr(freshair.HoldingFanSpeed), 1, modbus.HOLDING_REGISTER)
		if err == nil {
			state.FanSpeed = freshair.DecodeWord(fieldbus.RegistersToWire(speed))
		}
	}
	if err != nil {
		log.Debug().Err(err).Uint8("unit", m.cfg.FreshAirUnit).Msg("fresh-air refresh failed")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.freshAir.Record(state, err, now)
	if m.cfg.MakeupSensor {
		m.makeup.Record(demand, inputErr, now)
	} else {
		m.makeup.Record(0, nil, now)
	}
}

func (m *Master) refreshFancoil() {
	regs, err := m.bus.ReadRegisters(m.cfg.FancoilUnit, codec.WireAddr(fancoil.InputStatus), fancoil.InputCount, modbus.INPUT_REGISTER)
	var state fancoil.State
	if err == nil {
		state, err = fancoil.DecodeStatusBlock(fieldbus.RegistersToWire(regs))
	}
	if err != nil {
		log.Debug().Err(err).Uint8("unit", m.cfg.FancoilUnit).Msg("fancoil refresh failed")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.fancoil.Record(state, err, m.now())
}

func (m *Master) FreshAirState() (freshair.State, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.freshAir.Value, m.freshAir.Updated, m.freshAir.Err
}

// SetFreshAirSpeed queues a fan speed in percent, replacing any speed not yet written.
func (m *Master) SetFreshAirSpeed(pct uint16) {
	if pct > freshair.MaxFanSpeed {
		pct = freshair.MaxFanSpeed
	}
	m.mu.Lock()
	m.fanSpeed.Put(pct)
	m.mu.Unlock()
	m.loop.Signal()
}

func (m *Master) LastFreshAirWrite() fieldbus.WriteResult[uint16] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.freshAirWrite
}

func (m *Master) FancoilState() (fancoil.State, time.Time, error) {
	if !m.hasFancoil() {
		return fancoil.State{}, time.Time{}, fieldbus.ErrNotSupported
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fancoil.Value, m.fancoil.Updated, m.fancoil.Err
}

// SetFancoil queues a command for the fancoil node. It fails immediately when no node is
// configured or the command cannot be encoded.
func (m *Master) SetFancoil(cmd model.FancoilCommand) error {
	if !m.hasFancoil() {
		return fieldbus.ErrNotSupported
	}
	if _, err := fancoil.PackCommand(cmd); err != nil {
		return err
	}
	m.mu.Lock()
	m.fancoilCmd.Put(cmd)
	m.mu.Unlock()
	m.loop.Signal()
	return nil
}

func (m *Master) LastFancoilWrite() fieldbus.WriteResult[model.FancoilCommand] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fancoilWrite
}

func (m *Master) MakeupDemand() (uint16, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.makeup.Value, m.makeup.Updated, m.makeup.Err
}
