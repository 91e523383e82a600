//go:build linux

package directio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// Chip drives lines through the Linux GPIO character device. Lines are requested as
// outputs on first use and held until Close.
type Chip struct {
	mu    sync.Mutex
	chip  *gpiocdev.Chip
	lines map[int]*gpiocdev.Line
}

func NewChip(name string) (*Chip, error) {
	if name == "" {
		name = "gpiochip0"
	}
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", name, err)
	}
	return &Chip{chip: chip, lines: map[int]*gpiocdev.Line{}}, nil
}

func (c *Chip) line(pin int, initial int) (*gpiocdev.Line, bool, error) {
	if l, ok := c.lines[pin]; ok {
		return l, false, nil
	}
	l, err := c.chip.RequestLine(pin, gpiocdev.AsOutput(initial), gpiocdev.WithConsumer("hydronic"))
	if err != nil {
		return nil, false, fmt.Errorf("request gpio %d: %w", pin, err)
	}
	c.lines[pin] = l
	return l, true, nil
}

func (c *Chip) SetLevel(pin int, high bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := 0
	if high {
		v = 1
	}
	l, fresh, err := c.line(pin, v)
	if err != nil || fresh {
		return err
	}
	if err := l.SetValue(v); err != nil {
		return fmt.Errorf("set gpio %d: %w", pin, err)
	}
	return nil
}

// Level of a line not yet driven is read without claiming it as an output.
func (c *Chip) Level(pin int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if l, ok := c.lines[pin]; ok {
		v, err := l.Value()
		return v == 1, err
	}

	l, err := c.chip.RequestLine(pin, gpiocdev.AsIs, gpiocdev.WithConsumer("hydronic"))
	if err != nil {
		return false, fmt.Errorf("request gpio %d: %w", pin, err)
	}
	defer l.Close()

	v, err := l.Value()
	if err != nil {
		return false, fmt.Errorf("read gpio %d: %w", pin, err)
	}
	return v == 1, nil
}

func (c *Chip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for pin, l := range c.lines {
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close gpio %d: %w", pin, err))
		}
	}
	c.lines = map[int]*gpiocdev.Line{}
	if err := c.chip.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close chip: %w", err))
	}
	return errors.Join(errs...)
}
