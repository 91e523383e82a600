package fieldbus

import (
	"context"
	"time"
)

const DefaultPollInterval = 5 * time.Second

// Loop is the wake/poll scheduler shared by every master. Callers Signal after queueing a
// write; Run wakes on a signal or when the poll interval elapses, whichever comes first.
type Loop struct {
	interval time.Duration
	wake     chan struct{}
}

func NewLoop(interval time.Duration) *Loop {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Loop{
		interval: interval,
		wake:     make(chan struct{}, 1),
	}
}

// Signal never blocks. Signals that arrive while one is already queued collapse into it.
func (l *Loop) Signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) Interval() time.Duration {
	return l.interval
}

// Run calls cycle once immediately and then once per wake until ctx is done.
func (l *Loop) Run(ctx context.Context, cycle func(context.Context)) error {
	timer := time.NewTimer(l.interval)
	defer timer.Stop()

	for {
		cycle(ctx)

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(l.interval)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		case <-timer.C:
		}
	}
}
