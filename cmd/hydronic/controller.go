package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/thatsimonsguy/hydronic-controller/internal/api"
	"github.com/thatsimonsguy/hydronic-controller/internal/config"
	"github.com/thatsimonsguy/hydronic-controller/internal/controller"
	"github.com/thatsimonsguy/hydronic-controller/internal/directio"
	"github.com/thatsimonsguy/hydronic-controller/internal/fieldbus"
	"github.com/thatsimonsguy/hydronic-controller/internal/heatpump"
	"github.com/thatsimonsguy/hydronic-controller/internal/history"
	"github.com/thatsimonsguy/hydronic-controller/internal/metrics"
	"github.com/thatsimonsguy/hydronic-controller/internal/notifications"
	"github.com/thatsimonsguy/hydronic-controller/internal/outputcontroller"
	"github.com/thatsimonsguy/hydronic-controller/internal/publish"
	"github.com/thatsimonsguy/hydronic-controller/internal/zones"
)

var controllerCmd = &cobra.Command{
	Use:   "controller",
	Short: "Run the main controller",
	RunE:  runController,
}

func init() {
	rootCmd.AddCommand(controllerCmd)
}

func runController(cmd *cobra.Command, args []string) error {
	cfg, closer, err := setup(config.RoleController)
	if err != nil {
		return err
	}
	defer closer.Close()

	log.Info().
		Str("config", cfg.ConfigFile).
		Str("bus", cfg.Bus.URL).
		Uint8("heat_pump_unit", cfg.HeatPump.Unit).
		Msg("Starting hydronic controller")

	ctx, stop := signalContext()
	defer stop()

	if cfg.SafeMode {
		log.Warn().Msg("SAFE MODE ENABLED - direct outputs will not be driven")
	}
	lines, err := directio.Open(cfg.GPIO.Backend, cfg.GPIO.Chip)
	if err != nil {
		return err
	}
	defer lines.Close()

	act := directio.NewActuators(lines, cfg.Pins(), cfg.SafeMode)
	if err := act.ValidateInitialStates(); err != nil {
		return fmt.Errorf("refusing to start with unsafe pin states: %w", err)
	}
	defer func() {
		if err := act.AllOff(); err != nil {
			log.Error().Err(err).Msg("Failed to switch outputs off on shutdown")
		}
		log.Info().Msg("Direct outputs deactivated")
	}()

	bus, err := fieldbus.NewRTUTransport(cfg.Bus)
	if err != nil {
		return err
	}
	if err := bus.Open(); err != nil {
		return err
	}
	defer bus.Close()

	hp := heatpump.NewMaster(bus, cfg.HeatPumpMaster())
	if err := hp.Init(ctx); err != nil {
		return fmt.Errorf("heat pump init: %w", err)
	}

	m := metrics.New()
	defer m.Close()
	if cfg.Datadog.Enabled {
		if err := m.EnableDatadog(metrics.DatadogConfig{
			AgentAddr: cfg.Datadog.AgentAddr,
			Namespace: cfg.Datadog.Namespace,
			Tags:      cfg.Datadog.Tags,
		}); err != nil {
			log.Warn().Err(err).Msg("Failed to create DogStatsD client")
		}
	}

	var (
		observers []outputcontroller.Observer
		events    api.EventLog
	)
	opts := controller.Options{Cycle: cfg.CycleInterval(), Metrics: m}

	if cfg.HistoryDB != "" {
		store, err := history.Open(cfg.HistoryDB)
		if err != nil {
			return err
		}
		defer store.Close()
		observers = append(observers, store)
		events = store
		opts.Switches = store
	}
	if n := notifications.New(cfg.NtfyBaseURL, cfg.NtfyTopic); n != nil {
		observers = append(observers, n)
	}
	if cfg.MQTT.Broker != "" {
		pub, err := publish.NewMQTT(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.Topic)
		if err != nil {
			log.Warn().Err(err).Str("broker", cfg.MQTT.Broker).Msg("MQTT unavailable, status will not be published")
		} else {
			defer pub.Close()
			opts.Publisher = pub
		}
	}

	out := outputcontroller.New(cfg.OutputController(), hp, act, controller.Observers(observers...))
	reg := zones.New(cfg.ZoneReportMaxAge(), cfg.Controller.SystemOn)
	rt := controller.New(reg, hp, out, opts)
	srv := api.NewServer(rt, reg, events, m.Handler())

	err = runTasks(ctx,
		task{"heat pump master", hp.Run},
		task{"output controller", rt.Run},
		task{"api", func(ctx context.Context) error { return srv.Start(ctx, cfg.ListenPort) }},
	)
	log.Info().Msg("Hydronic controller stopped")
	return err
}
