package job

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/domain/model"
)

// ErrWaiterRequired indicates a notifier cannot be constructed without a waiter.
var ErrWaiterRequired = errors.New("notifier waiter is required")

// Waiter blocks until the queue signals new jobs of the given type. The
// Postgres job repository implements it over LISTEN/NOTIFY.
type Waiter interface {
	WaitForNotification(ctx context.Context, jobType model.JobType) error
}

// Notifier fans queue wake-ups out to worker pools. Probe and sweep runners
// subscribe per job type and sleep on the returned channel between reserves.
type Notifier interface {
	Subscribe(jobType model.JobType) (func(), <-chan struct{})
	StopAll()
}

// NotifierOptions configure the default notifier.
type NotifierOptions struct {
	Waiter     Waiter
	WaitWindow time.Duration // cap per wait so listeners re-check their context
	Backoff    time.Duration // pause after a failed wait before listening again
}

// subscriberGroup holds the live channels for one job type.
type subscriberGroup struct {
	channels map[chan struct{}]struct{}
	cancel   context.CancelFunc
}

// DefaultNotifier runs one listener goroutine per subscribed job type and
// delivers at most one pending wake-up per subscriber.
type DefaultNotifier struct {
	waiter     Waiter
	waitWindow time.Duration
	backoff    time.Duration

	mu     sync.Mutex
	groups map[model.JobType]*subscriberGroup
}

// NewNotifier constructs the default notifier.
func NewNotifier(opts NotifierOptions) (*DefaultNotifier, error) {
	if opts.Waiter == nil {
		return nil, ErrWaiterRequired
	}

	n := &DefaultNotifier{
		waiter:     opts.Waiter,
		waitWindow: opts.WaitWindow,
		backoff:    opts.Backoff,
		groups:     make(map[model.JobType]*subscriberGroup),
	}
	if n.waitWindow <= 0 {
		n.waitWindow = time.Minute
	}
	if n.backoff <= 0 {
		n.backoff = 250 * time.Millisecond
	}
	return n, nil
}

// Subscribe registers interest in one job type. The first subscriber for a
// type starts its listener; the returned unsubscribe closes the channel and
// stops the listener when the last subscriber leaves.
func (n *DefaultNotifier) Subscribe(jobType model.JobType) (func(), <-chan struct{}) {
	n.mu.Lock()
	defer n.mu.Unlock()

	group := n.groups[jobType]
	if group == nil {
		ctx, cancel := context.WithCancel(context.Background())
		group = &subscriberGroup{
			channels: make(map[chan struct{}]struct{}),
			cancel:   cancel,
		}
		n.groups[jobType] = group
		go n.listen(ctx, jobType)
	}

	ch := make(chan struct{}, 1)
	group.channels[ch] = struct{}{}

	unsub := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		g := n.groups[jobType]
		if g == nil {
			return
		}
		if _, ok := g.channels[ch]; !ok {
			return
		}
		delete(g.channels, ch)
		drainAndClose(ch)
		if len(g.channels) == 0 {
			g.cancel()
			delete(n.groups, jobType)
		}
	}

	return unsub, ch
}

// StopAll cancels every listener and closes every subscriber channel.
func (n *DefaultNotifier) StopAll() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for jobType, group := range n.groups {
		group.cancel()
		for ch := range group.channels {
			drainAndClose(ch)
		}
		delete(n.groups, jobType)
	}
}

// listen repeatedly waits on the queue and broadcasts on each return. A wait
// error still broadcasts (workers re-check the queue either way), then the
// loop backs off before re-listening so a down connection does not spin.
func (n *DefaultNotifier) listen(ctx context.Context, jobType model.JobType) {
	for ctx.Err() == nil {
		waitCtx, cancel := context.WithTimeout(ctx, n.waitWindow)
		err := n.waiter.WaitForNotification(waitCtx, jobType)
		cancel()

		n.broadcast(jobType)

		if err == nil || ctx.Err() != nil {
			continue
		}
		timer := time.NewTimer(n.backoff)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return
		case <-timer.C:
		}
	}
}

// broadcast delivers a non-blocking wake-up to every subscriber of jobType.
func (n *DefaultNotifier) broadcast(jobType model.JobType) {
	n.mu.Lock()
	defer n.mu.Unlock()

	group := n.groups[jobType]
	if group == nil {
		return
	}
	for ch := range group.channels {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// drainAndClose empties any buffered wake-up before closing so receivers see
// the close immediately.
func drainAndClose(ch chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			close(ch)
			return
		}
	}
}

var _ Notifier = (*DefaultNotifier)(nil)
