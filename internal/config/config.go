package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/thatsimonsguy/hydronic-controller/internal/controllaw"
	"github.com/thatsimonsguy/hydronic-controller/internal/directio"
	"github.com/thatsimonsguy/hydronic-controller/internal/fanloop"
	"github.com/thatsimonsguy/hydronic-controller/internal/fieldbus"
	"github.com/thatsimonsguy/hydronic-controller/internal/heatpump"
	"github.com/thatsimonsguy/hydronic-controller/internal/model"
	"github.com/thatsimonsguy/hydronic-controller/internal/outputcontroller"
	"github.com/thatsimonsguy/hydronic-controller/internal/satellite"
	"github.com/thatsimonsguy/hydronic-controller/internal/slave"
)

// Role selects which sections of the file must be complete.
type Role string

const (
	RoleController Role = "controller"
	RoleSatellite  Role = "satellite"
	RoleSimulator  Role = "simulator"
)

type Pin struct {
	Pin        *int  `json:"pin"`
	ActiveHigh *bool `json:"active_high"` // default true
}

type GPIO struct {
	Backend     string `json:"backend"` // gpiocdev, pinctrl, fake
	Chip        string `json:"chip"`
	ZoneValves  []*Pin `json:"zone_valves"`
	LoopPump    *Pin   `json:"loop_pump"`
	FancoilPump *Pin   `json:"fancoil_pump"`
}

type HeatPump struct {
	Unit     uint8  `json:"unit"`
	HeatMode string `json:"heat_mode"` // default heat_dhw
	CoolMode string `json:"cool_mode"` // default cool_dhw
}

type Controller struct {
	CycleSeconds         int    `json:"cycle_seconds"`
	ModeLockoutMinutes   int    `json:"mode_lockout_minutes"`
	StandbyReadySeconds  int    `json:"standby_ready_seconds"`
	ValveIntervalSeconds int    `json:"valve_interval_seconds"`
	PumpIntervalSeconds  int    `json:"pump_interval_seconds"`
	ZoneReportMaxAgeSecs int    `json:"zone_report_max_age_seconds"`
	FancoilHeats         []bool `json:"fancoil_heats"`
	SystemOn             bool   `json:"system_on"`
}

type DeviceLaw struct {
	IsHeater bool               `json:"is_heater"`
	Points   []controllaw.Point `json:"points"`
}

type Satellite struct {
	Bus                 fieldbus.BusConfig `json:"bus"`
	FreshAirUnit        uint8              `json:"fresh_air_unit"`
	FancoilUnit         uint8              `json:"fancoil_unit"`
	MakeupSensor        bool               `json:"makeup_sensor"`
	Setpoints           model.Setpoints    `json:"setpoints"`
	FreshAirIndoor      []controllaw.Point `json:"fresh_air_indoor"`
	FreshAirOutdoor     []controllaw.Point `json:"fresh_air_outdoor"`
	Fancoil             DeviceLaw          `json:"fancoil"`
	FanIntervalSeconds  int                `json:"fan_interval_seconds"`
	MaxSampleAgeSeconds int                `json:"max_sample_age_seconds"`
}

type Simulator struct {
	Server slave.ServerConfig `json:"server"`
	Unit   uint8              `json:"unit"`
	MaxRPM uint16             `json:"max_rpm"`
}

type MQTT struct {
	Broker   string `json:"broker"` // empty disables publishing
	ClientID string `json:"client_id"`
	Topic    string `json:"topic"`
}

type Datadog struct {
	Enabled   bool     `json:"enabled"`
	AgentAddr string   `json:"agent_addr"`
	Namespace string   `json:"namespace"`
	Tags      []string `json:"tags"`
}

type Config struct {
	ConfigFile string        `json:"-"`
	LogLevel   zerolog.Level `json:"-"`

	LogFile  string `json:"log_file"`
	SafeMode bool   `json:"safe_mode"`

	PollIntervalSeconds int                `json:"poll_interval_seconds"`
	Bus                 fieldbus.BusConfig `json:"bus"`
	HeatPump            HeatPump           `json:"heat_pump"`
	Controller          Controller         `json:"controller"`
	GPIO                GPIO               `json:"gpio"`
	Satellite           Satellite          `json:"satellite"`
	Simulator           Simulator          `json:"simulator"`

	ListenPort  int     `json:"listen_port"`
	HistoryDB   string  `json:"history_db"`
	MQTT        MQTT    `json:"mqtt"`
	Datadog     Datadog `json:"datadog"`
	NtfyTopic   string  `json:"ntfy_topic"`
	NtfyBaseURL string  `json:"ntfy_base_url"`
}

// Load reads path, fills defaults and checks the sections role needs. All problems are
// reported together.
func Load(path string, role Role) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}
	defer file.Close()

	cfg := &Config{ConfigFile: path}
	dec := json.NewDecoder(file)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(role); err != nil {
		return nil, err
	}
	return cfg, nil
}

func ParseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (cfg *Config) applyDefaults() {
	if cfg.PollIntervalSeconds == 0 {
		cfg.PollIntervalSeconds = int(fieldbus.DefaultPollInterval / time.Second)
	}
	if cfg.HeatPump.HeatMode == "" {
		cfg.HeatPump.HeatMode = model.HeatPumpHeatDHW.String()
	}
	if cfg.HeatPump.CoolMode == "" {
		cfg.HeatPump.CoolMode = model.HeatPumpCoolDHW.String()
	}
	if cfg.Controller.CycleSeconds == 0 {
		cfg.Controller.CycleSeconds = cfg.PollIntervalSeconds
	}
	if cfg.Controller.ModeLockoutMinutes == 0 {
		cfg.Controller.ModeLockoutMinutes = 30
	}
	if cfg.Controller.StandbyReadySeconds == 0 {
		cfg.Controller.StandbyReadySeconds = 180
	}
	if cfg.Controller.ZoneReportMaxAgeSecs == 0 {
		cfg.Controller.ZoneReportMaxAgeSecs = 120
	}
	if cfg.Satellite.MaxSampleAgeSeconds == 0 {
		cfg.Satellite.MaxSampleAgeSeconds = 60
	}
	if cfg.ListenPort == 0 {
		cfg.ListenPort = 8080
	}
	if cfg.MQTT.Topic == "" {
		cfg.MQTT.Topic = "hydronic/controller/status"
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "hydronic-controller"
	}
	if cfg.Simulator.MaxRPM == 0 {
		cfg.Simulator.MaxRPM = 1800
	}
}

func (cfg *Config) validate(role Role) error {
	var problems []string

	switch role {
	case RoleController:
		problems = append(problems, cfg.validateController()...)
	case RoleSatellite:
		problems = append(problems, cfg.validateSatellite()...)
	case RoleSimulator:
		if cfg.Simulator.Server.URL == "" {
			problems = append(problems, "missing simulator.server.url")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown role %q", role))
	}

	if len(problems) > 0 {
		return errors.New("invalid config: " + strings.Join(problems, "; "))
	}
	return nil
}

func (cfg *Config) validateController() []string {
	var problems []string

	if cfg.Bus.URL == "" {
		problems = append(problems, "missing bus.url")
	}
	if cfg.HeatPump.Unit == 0 {
		problems = append(problems, "missing heat_pump.unit")
	}
	modes := []struct {
		name  string
		value string
		out   model.OutputMode
	}{
		{"heat_pump.heat_mode", cfg.HeatPump.HeatMode, model.ModeHeat},
		{"heat_pump.cool_mode", cfg.HeatPump.CoolMode, model.ModeCool},
	}
	for _, m := range modes {
		hm, err := model.ParseHeatPumpMode(m.value)
		if err == nil {
			err = outputcontroller.CheckHeatPumpMode(m.out, hm)
		}
		if err != nil {
			problems = append(problems, m.name+": "+err.Error())
		}
	}
	if n := len(cfg.Controller.FancoilHeats); n != 0 && n != model.NumZones {
		problems = append(problems, fmt.Sprintf("controller.fancoil_heats has %d entries, want %d", n, model.NumZones))
	}

	return append(problems, cfg.validateGPIO()...)
}

func (cfg *Config) validateGPIO() []string {
	var (
		missing   []string
		conflicts []string
		usedPins  = map[int]string{}
	)

	check := func(name string, p *Pin) {
		if p == nil || p.Pin == nil {
			missing = append(missing, "gpio."+name)
			return
		}
		if other, exists := usedPins[*p.Pin]; exists {
			conflicts = append(conflicts, fmt.Sprintf("gpio.%s and gpio.%s both use pin %d", name, other, *p.Pin))
			return
		}
		usedPins[*p.Pin] = name
	}

	if len(cfg.GPIO.ZoneValves) != model.NumZones {
		missing = append(missing, fmt.Sprintf("gpio.zone_valves (%d of %d)", len(cfg.GPIO.ZoneValves), model.NumZones))
	}
	for i, p := range cfg.GPIO.ZoneValves {
		check(fmt.Sprintf("zone_valves[%d]", i), p)
	}
	check("loop_pump", cfg.GPIO.LoopPump)
	check("fancoil_pump", cfg.GPIO.FancoilPump)

	var problems []string
	if len(missing) > 0 {
		problems = append(problems, "missing required GPIO config fields: "+strings.Join(missing, ", "))
	}
	if len(conflicts) > 0 {
		sort.Strings(conflicts)
		problems = append(problems, "conflicting GPIO pins: "+strings.Join(conflicts, ", "))
	}
	return problems
}

func (cfg *Config) validateSatellite() []string {
	var problems []string
	s := cfg.Satellite

	if s.Bus.URL == "" {
		problems = append(problems, "missing satellite.bus.url")
	}
	if s.FreshAirUnit == 0 {
		problems = append(problems, "missing satellite.fresh_air_unit")
	}
	if s.FancoilUnit != 0 && s.FancoilUnit == s.FreshAirUnit {
		problems = append(problems, "satellite.fancoil_unit and satellite.fresh_air_unit are both unit "+fmt.Sprint(s.FancoilUnit))
	}
	if s.Setpoints.HeatC >= s.Setpoints.CoolC {
		problems = append(problems, fmt.Sprintf("satellite.setpoints heat %.1f must be below cool %.1f", s.Setpoints.HeatC, s.Setpoints.CoolC))
	}

	tables := []struct {
		name   string
		points []controllaw.Point
	}{
		{"satellite.fresh_air_indoor", s.FreshAirIndoor},
		{"satellite.fresh_air_outdoor", s.FreshAirOutdoor},
		{"satellite.fancoil.points", s.Fancoil.Points},
	}
	for _, tbl := range tables {
		if _, err := controllaw.NewLinearRange(tbl.points); err != nil {
			problems = append(problems, tbl.name+": "+err.Error())
		}
	}
	return problems
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func (cfg *Config) PollInterval() time.Duration {
	return seconds(cfg.PollIntervalSeconds)
}

func (cfg *Config) CycleInterval() time.Duration {
	return seconds(cfg.Controller.CycleSeconds)
}

func (cfg *Config) ZoneReportMaxAge() time.Duration {
	return seconds(cfg.Controller.ZoneReportMaxAgeSecs)
}

func (cfg *Config) HeatPumpMaster() heatpump.Config {
	return heatpump.Config{Unit: cfg.HeatPump.Unit, PollInterval: cfg.PollInterval()}
}

func (cfg *Config) SatelliteMaster() satellite.Config {
	return satellite.Config{
		FreshAirUnit: cfg.Satellite.FreshAirUnit,
		FancoilUnit:  cfg.Satellite.FancoilUnit,
		MakeupSensor: cfg.Satellite.MakeupSensor,
		PollInterval: cfg.PollInterval(),
	}
}

// OutputController assumes a validated config.
func (cfg *Config) OutputController() outputcontroller.Config {
	heat, _ := model.ParseHeatPumpMode(cfg.HeatPump.HeatMode)
	cool, _ := model.ParseHeatPumpMode(cfg.HeatPump.CoolMode)

	oc := outputcontroller.Config{
		ModeLockout:   time.Duration(cfg.Controller.ModeLockoutMinutes) * time.Minute,
		StandbyReady:  seconds(cfg.Controller.StandbyReadySeconds),
		HeatMode:      heat,
		CoolMode:      cool,
		ValveInterval: seconds(cfg.Controller.ValveIntervalSeconds),
		PumpInterval:  seconds(cfg.Controller.PumpIntervalSeconds),
	}
	copy(oc.FancoilHeats[:], cfg.Controller.FancoilHeats)
	return oc
}

func (p *Pin) pin() model.GPIOPin {
	if p == nil || p.Pin == nil {
		return model.GPIOPin{}
	}
	activeHigh := true
	if p.ActiveHigh != nil {
		activeHigh = *p.ActiveHigh
	}
	return model.GPIOPin{Number: *p.Pin, ActiveHigh: activeHigh}
}

func (cfg *Config) Pins() directio.Pins {
	var pins directio.Pins
	for i := 0; i < len(pins.ZoneValves) && i < len(cfg.GPIO.ZoneValves); i++ {
		pins.ZoneValves[i] = cfg.GPIO.ZoneValves[i].pin()
	}
	pins.LoopPump = cfg.GPIO.LoopPump.pin()
	pins.FancoilPump = cfg.GPIO.FancoilPump.pin()
	return pins
}

// FanLoop assumes a validated config.
func (cfg *Config) FanLoop() fanloop.Config {
	s := cfg.Satellite
	return fanloop.Config{
		Interval:     cfg.PollInterval(),
		MaxSampleAge: seconds(s.MaxSampleAgeSeconds),
		Setpoints:    s.Setpoints,
		FreshAir: controllaw.OutdoorCoolingLaw{
			Indoor:  controllaw.MustLinearRange(s.FreshAirIndoor...),
			Outdoor: controllaw.MustLinearRange(s.FreshAirOutdoor...),
		},
		Fancoil: controllaw.DeviceLaw{
			IsHeater: s.Fancoil.IsHeater,
			Range:    controllaw.MustLinearRange(s.Fancoil.Points...),
		},
		FanInterval: seconds(s.FanIntervalSeconds),
	}
}
