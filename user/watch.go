package user

import (
	"context"
	"sync"
	"time"

	"github.com/eapache/channels"
)

// Watcher polls a User for new messages on an interval and fans them
// out through an unbounded channel, the same shape as the teacher's
// provider worker draining its InfiniteChannel of inbound packets —
// here the "packets" are Sync results instead of Sphinx packets.
type Watcher struct {
	sync.WaitGroup

	u        *User
	ch       *channels.InfiniteChannel
	interval time.Duration
	haltCh   chan struct{}
}

// NewWatcher constructs a Watcher that polls u every interval.
func NewWatcher(u *User, interval time.Duration) *Watcher {
	return &Watcher{
		u:        u,
		ch:       channels.NewInfiniteChannel(),
		interval: interval,
		haltCh:   make(chan struct{}),
	}
}

// Out returns the channel watchers should range over; each delivered
// value is either a Message or an error.
func (w *Watcher) Out() <-chan interface{} { return w.ch.Out() }

// Start begins the polling worker. Callers must eventually call Halt.
func (w *Watcher) Start(ctx context.Context) {
	w.Add(1)
	go w.worker(ctx)
}

func (w *Watcher) worker(ctx context.Context) {
	defer w.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	in := w.ch.In()
	for {
		select {
		case <-w.haltCh:
			w.u.logf("watcher: halting")
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			msgs, err := w.u.FetchNextMessages(ctx)
			if err != nil {
				in <- err
				continue
			}
			for _, m := range msgs {
				in <- m
			}
		}
	}
}

// Halt stops the worker and closes the output channel.
func (w *Watcher) Halt() {
	close(w.haltCh)
	w.Wait()
	w.ch.Close()
}
