package directio

import (
	"fmt"
	"sync"
)

// Fake is an in-memory Lines. Unset pins read low.
type Fake struct {
	mu     sync.Mutex
	levels map[int]bool
	sets   int
	fail   map[int]error
	Closed bool
}

func NewFake() *Fake {
	return &Fake{levels: map[int]bool{}, fail: map[int]error{}}
}

func (f *Fake) SetLevel(pin int, high bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[pin]; err != nil {
		return err
	}
	f.levels[pin] = high
	f.sets++
	return nil
}

func (f *Fake) Level(pin int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[pin]; err != nil {
		return false, err
	}
	return f.levels[pin], nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Fail makes every access to pin return err until called with nil.
func (f *Fake) Fail(pin int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, pin)
		return
	}
	f.fail[pin] = fmt.Errorf("gpio %d: %w", pin, err)
}

func (f *Fake) Sets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sets
}
