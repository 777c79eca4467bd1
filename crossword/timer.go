package crossword

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Repeater calls a function at a fixed interval until stopped.
type Repeater struct {
	ticker clockwork.Ticker
	done   chan struct{}
	once   sync.Once
}

// Every schedules fn every d on clock. The ticker exists by the time Every
// returns, so a fake clock can be advanced right away.
func Every(clock clockwork.Clock, d time.Duration, fn func()) *Repeater {
	r := &Repeater{
		ticker: clock.NewTicker(d),
		done:   make(chan struct{}),
	}
	go r.run(fn)
	return r
}

func (r *Repeater) run(fn func()) {
	defer r.ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-r.ticker.Chan():
			select {
			case <-r.done:
				return
			default:
			}
			fn()
		}
	}
}

// Stop cancels the repeater. It is safe to call more than once and does not
// wait for a callback in flight.
func (r *Repeater) Stop() {
	if r == nil {
		return
	}
	r.once.Do(func() { close(r.done) })
}
