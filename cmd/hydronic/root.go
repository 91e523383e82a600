package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/thatsimonsguy/hydronic-controller/internal/config"
	"github.com/thatsimonsguy/hydronic-controller/internal/logging"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "hydronic",
	Short: "Hydronic zone controller",
	Long: `hydronic runs the pieces of a hydronic heating and cooling plant.

  controller  drives the heat pump, zone valves and circulation pumps from zone demand
  satellite   runs the fresh-air unit and fancoil fan loop on a satellite bus
  simulate    serves a simulated fresh-air unit or fancoil over Modbus TCP
  events      prints the mode change and fault history
  pins        inspects GPIO pins and writes the boot-time pin script
  ports       lists serial ports`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json", "Path to the JSON config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
}

// setup loads the config for role and points the global logger where it says.
func setup(role config.Role) (*config.Config, io.Closer, error) {
	cfg, err := config.Load(configPath, role)
	if err != nil {
		return nil, nil, err
	}
	cfg.LogLevel = config.ParseLogLevel(logLevel)

	closer, err := logging.Init(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, nil, err
	}
	return cfg, closer, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

type task struct {
	name string
	run  func(context.Context) error
}

// runTasks runs every task until ctx is cancelled or one of them fails. The first failure
// stops the rest and is returned.
func runTasks(ctx context.Context, tasks ...task) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	for _, t := range tasks {
		wg.Add(1)
		go func(t task) {
			defer wg.Done()
			err := t.run(ctx)
			if err == nil || errors.Is(err, context.Canceled) {
				return
			}
			log.Error().Err(err).Str("task", t.name).Msg("Task failed, shutting down")
			once.Do(func() {
				firstErr = fmt.Errorf("%s: %w", t.name, err)
				cancel()
			})
		}(t)
	}
	wg.Wait()
	return firstErr
}
