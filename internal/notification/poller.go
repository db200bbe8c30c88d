package notification

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// fetchTimeout is the default upper bound for a single listing request.
const fetchTimeout = 30 * time.Second

type Lister interface {
	List(ctx context.Context) (Snapshot, error)
}

// PollStatus describes the most recent poll attempts.
type PollStatus struct {
	Interval    time.Duration `json:"interval"`
	LastAttempt time.Time     `json:"lastAttempt"`
	LastSuccess time.Time     `json:"lastSuccess"`
	LastError   string        `json:"lastError,omitempty"`
}

// Poller refreshes the store from full listings on a fixed interval and on
// demand. A zero interval disables ticking; Refresh still works.
type Poller struct {
	store      *Store
	api        Lister
	timeout    time.Duration
	triggerCh  chan struct{}
	intervalCh chan time.Duration
	mu         sync.Mutex
	status     PollStatus
}

func NewPoller(store *Store, api Lister, interval time.Duration) *Poller {
	return &Poller{
		store:      store,
		api:        api,
		timeout:    fetchTimeout,
		triggerCh:  make(chan struct{}, 1),
		intervalCh: make(chan time.Duration, 1),
		status:     PollStatus{Interval: interval},
	}
}

func (p *Poller) SetFetchTimeout(d time.Duration) {
	if d > 0 {
		p.timeout = d
	}
}

// Run fetches immediately and then on every tick until ctx is done. Each
// call starts a fresh schedule.
func (p *Poller) Run(ctx context.Context) {
	p.drain()

	var (
		ticker *time.Ticker
		tick   <-chan time.Time
	)
	reset := func(d time.Duration) {
		if ticker != nil {
			ticker.Stop()
			ticker, tick = nil, nil
		}
		if d > 0 {
			ticker = time.NewTicker(d)
			tick = ticker.C
		}
	}
	reset(p.Status().Interval)
	defer reset(0)

	p.fetch(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			p.fetch(ctx)
		case <-p.triggerCh:
			p.fetch(ctx)
		case d := <-p.intervalCh:
			reset(d)
		}
	}
}

// Refresh asks for an immediate poll. Requests made while one is already
// queued are coalesced.
func (p *Poller) Refresh() {
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

func (p *Poller) SetInterval(d time.Duration) {
	if d < 0 {
		d = 0
	}
	p.mu.Lock()
	p.status.Interval = d
	p.mu.Unlock()

	for {
		select {
		case p.intervalCh <- d:
			return
		default:
		}
		select {
		case <-p.intervalCh:
		default:
		}
	}
}

func (p *Poller) Status() PollStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Poller) drain() {
	for {
		select {
		case <-p.triggerCh:
		case <-p.intervalCh:
		default:
			return
		}
	}
}

func (p *Poller) fetch(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, p.timeout)
	defer cancel()

	issued := time.Now()
	snap, err := p.api.List(ctx)

	p.mu.Lock()
	p.status.LastAttempt = issued
	if err != nil {
		p.status.LastError = err.Error()
	} else {
		p.status.LastSuccess = issued
		p.status.LastError = ""
	}
	p.mu.Unlock()

	if err != nil {
		switch {
		case parent.Err() != nil:
		case IsAuthError(err):
			log.Err(err).Msg("notification poll rejected, session is no longer valid")
		default:
			log.Warn().Err(err).Msg("notification poll failed, keeping cached notifications")
		}
		return
	}

	asOf := snap.AsOf
	if asOf.IsZero() {
		asOf = issued
	}
	if p.store.Merge(Batch{Mode: ModeSnapshot, Records: snap.Records, AsOf: asOf}) {
		log.Debug().Int("records", len(snap.Records)).Msg("notification snapshot merged")
	}
}
