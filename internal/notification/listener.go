package notification

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"
)

// Listener keeps a push subscription open and turns its events into store
// merges. Lost connections are re-established with exponential backoff.
type Listener struct {
	store      *Store
	stream     PushStream
	newBackOff func() backoff.BackOff
	connected  *atomic.Bool
}

func NewListener(store *Store, stream PushStream) *Listener {
	return &Listener{
		store:      store,
		stream:     stream,
		newBackOff: reconnectBackOff,
		connected:  atomic.NewBool(false),
	}
}

const minReconnectDelay = time.Second

func reconnectBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = time.Minute
	b.MaxElapsedTime = 0
	return b
}

// SetReconnectBackOff replaces the policy used between subscribe attempts.
func (l *Listener) SetReconnectBackOff(fn func() backoff.BackOff) {
	if fn != nil {
		l.newBackOff = fn
	}
}

func (l *Listener) Connected() bool {
	return l.connected.Load()
}

// Run blocks until ctx is done. One reconnect policy spans the whole run and
// is only reset once a connection has delivered an event, so a transport
// that accepts and drops connections right away is still backed off.
func (l *Listener) Run(ctx context.Context) {
	b := l.policy()
	for {
		sub, err := l.stream.Subscribe(ctx)
		switch {
		case err == nil:
			if l.serve(ctx, sub) {
				b.Reset()
			}
		case ctx.Err() == nil:
			log.Warn().Err(err).Msg("push subscription failed")
		}
		if !sleep(ctx, l.nextDelay(b)) {
			return
		}
	}
}

// policy never gives up on its own: push must come back for as long as the
// engine runs.
func (l *Listener) policy() backoff.BackOff {
	b := l.newBackOff()
	if eb, ok := b.(*backoff.ExponentialBackOff); ok {
		eb.MaxElapsedTime = 0
	}
	b.Reset()
	return b
}

func (l *Listener) nextDelay(b backoff.BackOff) time.Duration {
	next := b.NextBackOff()
	if next == backoff.Stop {
		b.Reset()
		if next = b.NextBackOff(); next == backoff.Stop {
			next = minReconnectDelay
		}
	}
	return next
}

func sleep(ctx context.Context, d time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// serve consumes sub until it is lost or ctx is done and reports whether any
// event came through.
func (l *Listener) serve(ctx context.Context, sub Subscription) bool {
	l.connected.Store(true)
	log.Info().Msg("push subscription established")
	received := l.consume(ctx, sub)
	l.connected.Store(false)
	if errClose := sub.Close(); errClose != nil {
		log.Err(errClose).Msg("could not close push subscription")
	}
	if ctx.Err() == nil {
		log.Warn().Msg("push connection lost, relying on polling until it is back")
	}
	return received
}

func (l *Listener) consume(ctx context.Context, sub Subscription) bool {
	received := false
	events := sub.Events()
	for {
		select {
		case <-ctx.Done():
			return received
		case ev, ok := <-events:
			if !ok {
				return received
			}
			received = true
			l.apply(ev)
		}
	}
}

func (l *Listener) apply(ev Event) {
	switch ev.Kind {
	case EventCreated, EventUpdated:
		l.store.Merge(Batch{Mode: ModeDelta, Records: []Record{ev.Record}})
	case EventDeleted:
		l.store.Remove(ev.ID)
	default:
		log.Warn().Str("kind", ev.Kind.String()).Msg("ignoring unknown push event")
	}
}
