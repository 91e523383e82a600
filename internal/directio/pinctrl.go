package directio

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

type PinState struct {
	Pin     int
	Mode    string // e.g., "ip", "op", "no"
	Pull    string // e.g., "pu", "pd", "pn"
	Drive   string // e.g., "dh", "dl", ""
	Level   string // e.g., "hi", "lo", "--"
	Comment string // full comment, typically includes // GPIO#
}

var pinLineRegex = regexp.MustCompile(`^\s*(\d+):\s+(\S+)\s+(.*?)\s+\|\s+(\S+)\s+//\s+(.*GPIO(\d+).*)$`)

// Pinctrl drives lines by shelling out to the Raspberry Pi `pinctrl` tool. It is the
// fallback for images where the character device is not available to the service user.
type Pinctrl struct {
	run func(args ...string) ([]byte, error)
}

func NewPinctrl() *Pinctrl {
	return &Pinctrl{run: func(args ...string) ([]byte, error) {
		return exec.Command("pinctrl", args...).CombinedOutput()
	}}
}

func (p *Pinctrl) SetLevel(pin int, high bool) error {
	drive := "dl"
	if high {
		drive = "dh"
	}
	out, err := p.run("set", fmt.Sprint(pin), "op", "pn", drive)
	if err != nil {
		return fmt.Errorf("pinctrl set failed: %w (output: %s)", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Level performs a fast read using `pinctrl lev <pin>`.
func (p *Pinctrl) Level(pin int) (bool, error) {
	out, err := p.run("lev", fmt.Sprint(pin))
	if err != nil {
		return false, fmt.Errorf("failed to read level for pin %d: %w", pin, err)
	}
	return parseLevel(string(out))
}

func (p *Pinctrl) Close() error {
	return nil
}

// States returns the parsed result of `pinctrl get`, keyed by GPIO number.
func (p *Pinctrl) States() (map[int]PinState, error) {
	out, err := p.run("get")
	if err != nil {
		return nil, fmt.Errorf("failed to execute pinctrl get: %w", err)
	}
	return parseGet(strings.NewReader(string(out)))
}

func parseLevel(out string) (bool, error) {
	trimmed := strings.TrimSpace(out)
	switch trimmed {
	case "1":
		return true, nil
	case "0":
		return false, nil
	}
	return false, fmt.Errorf("unexpected output from pinctrl lev: %q", trimmed)
}

func parseGet(r io.Reader) (map[int]PinState, error) {
	result := make(map[int]PinState)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		matches := pinLineRegex.FindStringSubmatch(scanner.Text())
		if len(matches) != 7 {
			continue
		}

		index, _ := strconv.Atoi(matches[1])
		state := PinState{
			Pin:     index,
			Mode:    matches[2],
			Level:   matches[4],
			Comment: matches[5],
		}

		for _, opt := range strings.Fields(matches[3]) {
			if state.Pull == "" && (opt == "pu" || opt == "pd" || opt == "pn") {
				state.Pull = opt
			} else if state.Drive == "" && (opt == "dh" || opt == "dl") {
				state.Drive = opt
			}
		}

		result[state.Pin] = state
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error scanning pinctrl output: %w", err)
	}
	return result, nil
}
