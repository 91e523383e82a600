// Package metrics exports controller and satellite state. Prometheus gauges are always
// kept and served on /metrics; DogStatsD gauges are pushed as well when an agent is configured.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/hydronic-controller/internal/model"
	"github.com/thatsimonsguy/hydronic-controller/internal/outputcontroller"
)

const namespace = "hydronic"

var (
	outputModes   = []model.OutputMode{model.ModeOff, model.ModeStandby, model.ModeCool, model.ModeHeat}
	heatPumpModes = []model.HeatPumpMode{
		model.HeatPumpError, model.HeatPumpUnknown, model.HeatPumpOff, model.HeatPumpCool,
		model.HeatPumpHeat, model.HeatPumpDHW, model.HeatPumpCoolDHW, model.HeatPumpHeatDHW,
	}
)

type DatadogConfig struct {
	AgentAddr string
	Namespace string
	Tags      []string
}

type Metrics struct {
	reg *prometheus.Registry
	dog *statsd.Client

	outputMode   *prometheus.GaugeVec
	heatPumpMode *prometheus.GaugeVec
	valve        *prometheus.GaugeVec
	pump         *prometheus.GaugeVec
	fieldAge     *prometheus.GaugeVec
	fanSpeed     *prometheus.GaugeVec
	temperature  *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		outputMode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "output_mode",
			Help:      "1 for the operating mode the controller is in",
		}, []string{"mode"}),
		heatPumpMode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "heat_pump_mode",
			Help:      "1 for the mode last commanded to the heat pump",
		}, []string{"mode"}),
		valve: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "zone_valve_open",
			Help:      "Zone valve output state",
		}, []string{"zone"}),
		pump: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pump_on",
			Help:      "Circulation pump output state",
		}, []string{"pump"}),
		fieldAge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "field_age_seconds",
			Help:      "Seconds since a cached device field was last read successfully",
		}, []string{"field"}),
		fanSpeed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fan_speed",
			Help:      "Fan speed last commanded by the satellite",
		}, []string{"fan"}),
		temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temperature_celsius",
			Help:      "Temperatures reported by field devices",
		}, []string{"sensor"}),
	}
	m.reg.MustRegister(m.outputMode, m.heatPumpMode, m.valve, m.pump, m.fieldAge, m.fanSpeed, m.temperature)
	return m
}

// EnableDatadog starts pushing every gauge to a DogStatsD agent as well.
func (m *Metrics) EnableDatadog(cfg DatadogConfig) error {
	client, err := statsd.New(cfg.AgentAddr)
	if err != nil {
		return err
	}
	client.Namespace = cfg.Namespace
	client.Tags = cfg.Tags
	m.dog = client

	log.Info().
		Str("addr", cfg.AgentAddr).
		Str("namespace", cfg.Namespace).
		Strs("tags", cfg.Tags).
		Msg("Datadog metrics initialized")
	return nil
}

func (m *Metrics) Close() error {
	if m.dog == nil {
		return nil
	}
	return m.dog.Close()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Gauge pushes one value to Datadog. It is a no-op when Datadog is not enabled.
func (m *Metrics) Gauge(name string, value float64, tags ...string) {
	if m.dog == nil {
		return
	}
	if err := m.dog.Gauge(name, value, tags, 1); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("Failed to emit gauge metric")
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func (m *Metrics) ObserveController(mode model.OutputMode, commanded model.HeatPumpMode, out outputcontroller.Outputs) {
	for _, om := range outputModes {
		m.outputMode.WithLabelValues(om.String()).Set(boolValue(om == mode))
	}
	for _, hm := range heatPumpModes {
		m.heatPumpMode.WithLabelValues(hm.String()).Set(boolValue(hm == commanded))
	}
	m.Gauge("output_mode", float64(mode), "mode:"+mode.String())
	m.Gauge("heat_pump_mode", float64(commanded), "mode:"+commanded.String())

	for zone, open := range out.Valves {
		label := zoneLabel(zone)
		m.valve.WithLabelValues(label).Set(boolValue(open))
		m.Gauge("zone_valve_open", boolValue(open), "zone:"+label)
	}
	m.pump.WithLabelValues("loop").Set(boolValue(out.LoopPump))
	m.pump.WithLabelValues("fancoil").Set(boolValue(out.FancoilPump))
	m.Gauge("pump_on", boolValue(out.LoopPump), "pump:loop")
	m.Gauge("pump_on", boolValue(out.FancoilPump), "pump:fancoil")
}

// ObserveFieldAge records how stale a cached field is. A field never read is reported as -1.
func (m *Metrics) ObserveFieldAge(field string, updated, now time.Time) {
	age := -1.0
	if !updated.IsZero() {
		age = now.Sub(updated).Seconds()
	}
	m.fieldAge.WithLabelValues(field).Set(age)
	m.Gauge("field_age_seconds", age, "field:"+field)
}

func (m *Metrics) ObserveFanSpeed(fan string, speed float64) {
	m.fanSpeed.WithLabelValues(fan).Set(speed)
	m.Gauge("fan_speed", speed, "fan:"+fan)
}

func (m *Metrics) ObserveTemperature(sensor string, celsius float64) {
	m.temperature.WithLabelValues(sensor).Set(celsius)
	m.Gauge("temperature_celsius", celsius, "sensor:"+sensor)
}

func zoneLabel(zone int) string {
	return strconv.Itoa(zone)
}
