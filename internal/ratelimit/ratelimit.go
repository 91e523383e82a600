// Package ratelimit keeps actuators from chattering on a noisy demand signal.
package ratelimit

import "time"

// Limiter accepts a new boolean state only when MinInterval has passed since the last change.
type Limiter struct {
	MinInterval time.Duration

	state       bool
	lastChanged time.Time
}

func New(minInterval time.Duration, initial bool) *Limiter {
	return &Limiter{MinInterval: minInterval, state: initial}
}

// Update returns the state the actuator should be in after asking for want at now.
func (l *Limiter) Update(want bool, now time.Time) bool {
	if want == l.state {
		return l.state
	}
	if !l.lastChanged.IsZero() && now.Sub(l.lastChanged) < l.MinInterval {
		return l.state
	}
	l.state = want
	l.lastChanged = now
	return l.state
}

// Reset forgets the last change so the next transition is always accepted.
func (l *Limiter) Reset() {
	l.lastChanged = time.Time{}
}

func (l *Limiter) State() bool {
	return l.state
}

func (l *Limiter) LastChanged() time.Time {
	return l.lastChanged
}
