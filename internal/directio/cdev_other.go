//go:build !linux

package directio

import "errors"

// Chip is not available on non-Linux platforms.
type Chip struct{}

func NewChip(name string) (*Chip, error) {
	return nil, errors.New("gpio: character device requires Linux")
}

func (c *Chip) SetLevel(pin int, high bool) error {
	return errors.New("gpio: not supported")
}

func (c *Chip) Level(pin int) (bool, error) {
	return false, errors.New("gpio: not supported")
}

func (c *Chip) Close() error {
	return nil
}
