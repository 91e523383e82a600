package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/thatsimonsguy/hydronic-controller/internal/config"
	"github.com/thatsimonsguy/hydronic-controller/internal/fanloop"
	"github.com/thatsimonsguy/hydronic-controller/internal/fieldbus"
	"github.com/thatsimonsguy/hydronic-controller/internal/metrics"
	"github.com/thatsimonsguy/hydronic-controller/internal/satellite"
)

var satelliteCmd = &cobra.Command{
	Use:   "satellite",
	Short: "Run the satellite fan loop",
	RunE:  runSatellite,
}

func init() {
	rootCmd.AddCommand(satelliteCmd)
}

func runSatellite(cmd *cobra.Command, args []string) error {
	cfg, closer, err := setup(config.RoleSatellite)
	if err != nil {
		return err
	}
	defer closer.Close()

	log.Info().
		Str("config", cfg.ConfigFile).
		Str("bus", cfg.Satellite.Bus.URL).
		Uint8("fresh_air_unit", cfg.Satellite.FreshAirUnit).
		Uint8("fancoil_unit", cfg.Satellite.FancoilUnit).
		Msg("Starting satellite")

	ctx, stop := signalContext()
	defer stop()

	bus, err := fieldbus.NewRTUTransport(cfg.Satellite.Bus)
	if err != nil {
		return err
	}
	if err := bus.Open(); err != nil {
		return err
	}
	defer bus.Close()

	sat := satellite.NewMaster(bus, cfg.SatelliteMaster())
	if err := sat.Init(ctx); err != nil {
		return fmt.Errorf("satellite init: %w", err)
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

	flc := cfg.FanLoop()
	flc.OnStep = func(res fanloop.Result) {
		now := time.Now()
		_, at, _ := sat.FreshAirState()
		m.ObserveFieldAge("fresh_air", at, now)
		if !res.SampleOK {
			return
		}
		m.ObserveTemperature("indoor", res.Sample.TempC)
		if res.Sample.OutdoorKnown {
			m.ObserveTemperature("outdoor", res.Sample.OutdoorC)
		}
		m.ObserveFanSpeed("fresh_air", float64(res.FreshAirSpeed))
		if res.FancoilActive {
			m.ObserveFanSpeed("fancoil", float64(res.FancoilCommand.Speed))
		}
	}
	loop := fanloop.New(flc, sat)

	err = runTasks(ctx,
		task{"satellite master", sat.Run},
		task{"fan loop", loop.Run},
		task{"metrics", func(ctx context.Context) error { return serveMetrics(ctx, cfg.ListenPort, m.Handler()) }},
	)
	log.Info().Msg("Satellite stopped")
	return err
}

func serveMetrics(ctx context.Context, port int, h http.Handler) error {
	r := mux.NewRouter()
	r.Handle("/metrics", h).Methods(http.MethodGet)

	srv := &http.Server{Addr: fmt.Sprintf("0.0.0.0:%d", port), Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	log.Info().Str("address", srv.Addr).Msg("Serving metrics")
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
