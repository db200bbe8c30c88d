package notification

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// API is the server side of the notification feed.
type API interface {
	Lister
	MarkRead(ctx context.Context, id int64) (*Record, error)
	MarkAllRead(ctx context.Context) error
	Delete(ctx context.Context, id int64) error
}

// Refresher forces an out-of-schedule snapshot.
type Refresher interface {
	Refresh()
}

const defaultMutationRetries = 2

// Coordinator applies user actions to the store before the server answers
// and reconciles once it does. Every optimistic change has a rollback.
type Coordinator struct {
	store      *Store
	api        API
	refresher  Refresher
	retries    uint64
	newBackOff func() backoff.BackOff
}

func NewCoordinator(store *Store, api API, refresher Refresher) *Coordinator {
	return &Coordinator{
		store:      store,
		api:        api,
		refresher:  refresher,
		retries:    defaultMutationRetries,
		newBackOff: mutationBackOff,
	}
}

func mutationBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return b
}

// SetRetries bounds how many times a transient failure is retried before
// the optimistic change is rolled back.
func (c *Coordinator) SetRetries(n uint64) {
	c.retries = n
}

func (c *Coordinator) SetBackOff(fn func() backoff.BackOff) {
	if fn != nil {
		c.newBackOff = fn
	}
}

// MarkAsRead is a no-op for records that are unknown or already read.
func (c *Coordinator) MarkAsRead(ctx context.Context, id int64) error {
	token, ok := c.store.beginRead(id)
	if !ok {
		return nil
	}
	var confirmed *Record
	err := c.send(ctx, "mark notification read", func(ctx context.Context) error {
		var err error
		confirmed, err = c.api.MarkRead(ctx, id)
		return err
	})
	switch {
	case err == nil:
		c.store.settleRead(token, id)
		if confirmed != nil && confirmed.ID == id {
			c.store.Merge(Batch{Mode: ModeDelta, Records: []Record{*confirmed}})
		}
		return nil
	case IsNotFound(err):
		c.store.Remove(id)
		return nil
	default:
		c.store.revertRead(token, id)
		log.Err(err).Int64("id", id).Msg("mark as read rolled back")
		return err
	}
}

// MarkAllAsRead flips every unread record and sends a single request. On
// failure nothing is rolled back per record: the unconfirmed values are
// left for the next snapshot to overwrite and that snapshot is requested
// right away.
func (c *Coordinator) MarkAllAsRead(ctx context.Context) error {
	token, ids := c.store.beginReadAll()
	err := c.send(ctx, "mark all notifications read", c.api.MarkAllRead)
	c.store.settleRead(token, ids...)
	if err == nil || IsNotFound(err) {
		return nil
	}
	log.Err(err).Int("records", len(ids)).Msg("mark all as read failed, forcing resync")
	if c.refresher != nil {
		c.refresher.Refresh()
	}
	return err
}

// Delete is a no-op for records that are unknown or already being deleted.
func (c *Coordinator) Delete(ctx context.Context, id int64) error {
	token, ok := c.store.beginDelete(id)
	if !ok {
		return nil
	}
	err := c.send(ctx, "delete notification", func(ctx context.Context) error {
		return c.api.Delete(ctx, id)
	})
	if err == nil || IsNotFound(err) {
		c.store.confirmDelete(id, token)
		return nil
	}
	c.store.revertDelete(id, token)
	log.Err(err).Int64("id", id).Msg("delete rolled back")
	return err
}

func (c *Coordinator) send(ctx context.Context, op string, call func(context.Context) error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.retries), ctx)
	err := backoff.RetryNotify(func() error {
		err := call(ctx)
		if err != nil && !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, next time.Duration) {
		log.Warn().Err(err).Str("op", op).Dur("retry_in", next).Msg("notification request failed, retrying")
	})
	if err == nil {
		return nil
	}
	return classify(op, err)
}
