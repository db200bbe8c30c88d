package storage

import (
	"github.com/jackc/pgtype"

	"github.com/scraping050/proyecto-garantias-sub001/internal/notification"
)

// Notification is one row of the notification_cache table.
type Notification struct {
	ID        int64
	Kind      string
	Title     string
	Message   string
	Priority  string
	IsRead    bool
	Link      pgtype.Text
	CreatedAt pgtype.Timestamptz
	Revision  int64
}

func toDBNotification(r notification.Record) *Notification {
	link := pgtype.Text{Status: pgtype.Null}
	if r.Link != "" {
		link = pgtype.Text{String: r.Link, Status: pgtype.Present}
	}
	return &Notification{
		ID:       r.ID,
		Kind:     string(r.Kind),
		Title:    r.Title,
		Message:  r.Message,
		Priority: string(r.Priority),
		IsRead:   r.IsRead,
		Link:     link,
		CreatedAt: pgtype.Timestamptz{
			Time:   r.CreatedAt.UTC(),
			Status: pgtype.Present,
		},
		Revision: r.Revision,
	}
}

func (n *Notification) toRecord() notification.Record {
	r := notification.Record{
		ID:       n.ID,
		Kind:     notification.Kind(n.Kind),
		Title:    n.Title,
		Message:  n.Message,
		Priority: notification.Priority(n.Priority),
		IsRead:   n.IsRead,
		Revision: n.Revision,
	}
	if n.Link.Status == pgtype.Present {
		r.Link = n.Link.String
	}
	if n.CreatedAt.Status == pgtype.Present {
		r.CreatedAt = n.CreatedAt.Time
	}
	return r
}
