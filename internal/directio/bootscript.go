package directio

import (
	"fmt"
	"strings"
)

// BootScript is a bash script that drives every output to its inactive level with pinctrl.
// It runs at boot so relays stay off until the controller takes over.
func BootScript(pins Pins) string {
	var lines []string
	lines = append(lines, "#!/bin/bash", "", "# Hydronic controller GPIO pin configuration at boot", "")

	for _, np := range pins.all() {
		drive := "dh"
		if np.pin.ActiveHigh {
			drive = "dl"
		}
		lines = append(lines, fmt.Sprintf("# %s", np.name))
		lines = append(lines, fmt.Sprintf("pinctrl set %d op pn %s", np.pin.Number, drive))
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n") + "\n"
}

// BootUnit is a oneshot systemd unit running scriptPath.
func BootUnit(scriptPath string) string {
	return fmt.Sprintf(`[Unit]
Description=Configure GPIO pins at boot
After=network.target

[Service]
Type=oneshot
Environment=PATH=/usr/local/bin:/usr/bin:/bin
ExecStart=%s
RemainAfterExit=true

[Install]
WantedBy=multi-user.target
`, scriptPath)
}

// ServiceUnit runs the controller once the boot unit has made the outputs safe.
func ServiceUnit(bootUnitName, user, execStart string) string {
	return fmt.Sprintf(`[Unit]
Description=Hydronic controller
After=%s
Requires=%s

[Service]
Type=simple
User=%s
ExecStart=%s
Restart=on-failure
RestartSec=5s

[Install]
WantedBy=multi-user.target
`, bootUnitName, bootUnitName, user, execStart)
}
