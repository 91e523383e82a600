package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/thatsimonsguy/hydronic-controller/internal/config"
	"github.com/thatsimonsguy/hydronic-controller/internal/directio"
)

var (
	bootOutDir  string
	serviceUser string
	execStart   string
)

var pinsCmd = &cobra.Command{
	Use:   "pins",
	Short: "Show the current state of every GPIO pin",
	RunE: func(cmd *cobra.Command, args []string) error {
		states, err := directio.NewPinctrl().States()
		if err != nil {
			return err
		}
		nums := make([]int, 0, len(states))
		for n := range states {
			nums = append(nums, n)
		}
		sort.Ints(nums)

		w := cmd.OutOrStdout()
		for _, n := range nums {
			s := states[n]
			fmt.Fprintf(w, "%3d  %-3s %-3s %-3s %-3s  %s\n", s.Pin, s.Mode, s.Pull, s.Drive, s.Level, s.Comment)
		}
		return nil
	},
}

var bootScriptCmd = &cobra.Command{
	Use:   "boot-script",
	Short: "Write the boot-time GPIO script and systemd units for the controller pins",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, closer, err := setup(config.RoleController)
		if err != nil {
			return err
		}
		defer closer.Close()

		if err := os.MkdirAll(bootOutDir, 0755); err != nil {
			return err
		}

		const (
			scriptName  = "hydronic-gpio-init.sh"
			bootUnit    = "hydronic-gpio.service"
			serviceName = "hydronic.service"
		)
		scriptPath := filepath.Join(bootOutDir, scriptName)
		files := []struct {
			path    string
			content string
			mode    os.FileMode
		}{
			{scriptPath, directio.BootScript(cfg.Pins()), 0755},
			{filepath.Join(bootOutDir, bootUnit), directio.BootUnit("/usr/local/bin/" + scriptName), 0644},
			{filepath.Join(bootOutDir, serviceName), directio.ServiceUnit(bootUnit, serviceUser, execStart), 0644},
		}
		for _, f := range files {
			if err := os.WriteFile(f.path, []byte(f.content), f.mode); err != nil {
				return fmt.Errorf("failed to write %s: %w", f.path, err)
			}
			log.Info().Str("path", f.path).Msg("Wrote file")
		}
		return nil
	},
}

func init() {
	bootScriptCmd.Flags().StringVar(&bootOutDir, "out", ".", "Directory to write the script and units into")
	bootScriptCmd.Flags().StringVar(&serviceUser, "user", "hydronic", "User the controller service runs as")
	bootScriptCmd.Flags().StringVar(&execStart, "exec", "/usr/local/bin/hydronic controller -c /etc/hydronic/config.json", "Controller command line for the service unit")
	pinsCmd.AddCommand(bootScriptCmd)
	rootCmd.AddCommand(pinsCmd)
}
