// Package notifier polls the backend for subscriptions that are about to
// expire and keeps the latest result for the admin dashboard.
package notifier

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nutriplan/clinicweb/api"
)

// DefaultInterval is the time between polls.
const DefaultInterval = 5 * time.Minute

// FetchFunc loads the current list of expiring subscriptions. Retrying is
// the fetch function's concern; one call is one polling cycle.
type FetchFunc func(ctx context.Context) ([]api.ExpiringSubscription, error)

// State is a snapshot of the notifier's last cycle.
type State struct {
	Subscriptions []api.ExpiringSubscription
	// CheckedAt is the time of the last successful poll.
	CheckedAt time.Time
	// Err is the user-facing message of the last failed cycle, cleared by
	// the next success.
	Err string
	// Cycles counts completed polls, successful or not.
	Cycles int
}

type Notifier struct {
	fetch    FetchFunc
	interval time.Duration
	log      zerolog.Logger
	now      func() time.Time

	mu      sync.RWMutex
	state   State
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

type Option func(*Notifier)

func WithInterval(d time.Duration) Option {
	return func(n *Notifier) {
		if d > 0 {
			n.interval = d
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(n *Notifier) { n.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(n *Notifier) { n.now = now }
}

func New(fetch FetchFunc, opts ...Option) *Notifier {
	n := &Notifier{
		fetch:    fetch,
		interval: DefaultInterval,
		log:      zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// ForClient polls Client.ExpiringSubscriptions with the given credentials.
func ForClient(c *api.Client, tokens api.TokenStore, opts ...Option) *Notifier {
	return New(func(ctx context.Context) ([]api.ExpiringSubscription, error) {
		return c.ExpiringSubscriptions(ctx, tokens)
	}, opts...)
}

// Start polls immediately and then once per interval until Stop is called
// or ctx is done. Calling Start twice has no effect.
func (n *Notifier) Start(ctx context.Context) {
	n.mu.Lock()
	if n.started {
		n.mu.Unlock()
		return
	}
	ctx, n.cancel = context.WithCancel(ctx)
	n.done = make(chan struct{})
	n.started = true
	done := n.done
	n.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(n.interval)
		defer ticker.Stop()
		n.Poll(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n.Poll(ctx)
			}
		}
	}()
}

// Stop ends polling and waits for an in-flight cycle to return.
func (n *Notifier) Stop() {
	n.mu.Lock()
	cancel, done := n.cancel, n.done
	n.cancel = nil
	n.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Poll runs one cycle and returns the resulting state. A failed cycle
// keeps the previous list and records exactly one message.
func (n *Notifier) Poll(ctx context.Context) State {
	subs, err := n.fetch(ctx)

	n.mu.Lock()
	defer n.mu.Unlock()
	n.state.Cycles++
	if err != nil {
		if ctx.Err() != nil {
			return n.snapshot()
		}
		n.state.Err = api.UserMessage(err)
		n.log.Warn().Err(err).Int("cycle", n.state.Cycles).Msg("notifier: expiring subscriptions unavailable")
		return n.snapshot()
	}
	n.state.Subscriptions = subs
	n.state.CheckedAt = n.now()
	n.state.Err = ""
	n.log.Debug().Int("count", len(subs)).Msg("notifier: expiring subscriptions refreshed")
	return n.snapshot()
}

// State returns the latest snapshot.
func (n *Notifier) State() State {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.snapshot()
}

func (n *Notifier) snapshot() State {
	s := n.state
	s.Subscriptions = append([]api.ExpiringSubscription(nil), n.state.Subscriptions...)
	return s
}
