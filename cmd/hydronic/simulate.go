package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/thatsimonsguy/hydronic-controller/internal/codec/fancoil"
	"github.com/thatsimonsguy/hydronic-controller/internal/codec/freshair"
	"github.com/thatsimonsguy/hydronic-controller/internal/config"
	"github.com/thatsimonsguy/hydronic-controller/internal/model"
	"github.com/thatsimonsguy/hydronic-controller/internal/slave"
)

var simStep time.Duration

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Serve a simulated field device over Modbus",
}

var simulateFreshAirCmd = &cobra.Command{
	Use:   "freshair",
	Short: "Simulate the fresh-air unit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, closer, err := setup(config.RoleSimulator)
		if err != nil {
			return err
		}
		defer closer.Close()

		h := freshair.NewHandler(freshair.Image{
			Telemetry: freshair.Telemetry{ExtractTempCenti: 2350, OutdoorTempCenti: 1800, HumidityCenti: 4500},
		})
		h.OnFanSpeed = func(pct uint16) {
			log.Info().Uint16("fan_speed", pct).Msg("fresh-air fan speed written")
		}
		return simulate(cfg, slave.NewAdapter("fresh_air", cfg.Simulator.Unit, h),
			&slave.FreshAirSim{Handler: h, MaxRPM: cfg.Simulator.MaxRPM})
	},
}

var simulateFancoilCmd = &cobra.Command{
	Use:   "fancoil",
	Short: "Simulate a fancoil node",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, closer, err := setup(config.RoleSimulator)
		if err != nil {
			return err
		}
		defer closer.Close()

		h := fancoil.NewHandler(fancoil.Image{
			Status:    fancoil.Status{ValveOpen: true, CoolCall: true},
			Telemetry: fancoil.Telemetry{AirTempCenti: 2450, WaterTempCenti: 1200, HumidityCenti: 5200},
		})
		h.OnCommand = func(c model.FancoilCommand) {
			log.Info().Bool("cool", c.Cool).Uint8("speed", c.Speed).Msg("fancoil command written")
		}
		return simulate(cfg, slave.NewAdapter("fancoil", cfg.Simulator.Unit, h),
			&slave.FancoilSim{Handler: h, RPMPerStep: cfg.Simulator.MaxRPM / model.MaxFancoilSpeed})
	},
}

func init() {
	simulateCmd.PersistentFlags().DurationVar(&simStep, "step", time.Second, "Simulation step interval")
	simulateCmd.AddCommand(simulateFreshAirCmd, simulateFancoilCmd)
	rootCmd.AddCommand(simulateCmd)
}

func simulate(cfg *config.Config, adapter *slave.Adapter, sim slave.Simulator) error {
	srv, err := slave.NewServer(cfg.Simulator.Server, adapter)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	return runTasks(ctx,
		task{"modbus server", srv.Run},
		task{"simulation", func(ctx context.Context) error { return slave.RunSim(ctx, simStep, sim) }},
	)
}
