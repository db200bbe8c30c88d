package notification

import (
	"fmt"
	"time"
)

type Kind string

const (
	KindTenderUpdate Kind = "tender-update"
	KindGuarantee    Kind = "guarantee"
	KindAward        Kind = "award"
	KindConsortium   Kind = "consortium"
	KindReport       Kind = "report"
	KindSystem       Kind = "system"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

var (
	ErrNoSuchKind     = fmt.Errorf("no such notification kind exists")
	ErrNoSuchPriority = fmt.Errorf("no such notification priority exists")
)

// Record is one alert surfaced to a user. Only IsRead changes through user
// action; everything else is owned by the server.
type Record struct {
	ID        int64     `json:"id"`
	Kind      Kind      `json:"kind"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Priority  Priority  `json:"priority"`
	IsRead    bool      `json:"isRead"`
	Link      string    `json:"link,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	Revision  int64     `json:"revision"`
}

func (r Record) valid() bool {
	return r.ID > 0
}

// newerThan reports whether r is a strictly newer server copy than o.
func (r Record) newerThan(o Record) bool {
	if r.Revision != o.Revision {
		return r.Revision > o.Revision
	}
	return r.CreatedAt.After(o.CreatedAt)
}

func (r Record) equal(o Record) bool {
	return r.ID == o.ID &&
		r.Kind == o.Kind &&
		r.Title == o.Title &&
		r.Message == o.Message &&
		r.Priority == o.Priority &&
		r.IsRead == o.IsRead &&
		r.Link == o.Link &&
		r.CreatedAt.Equal(o.CreatedAt) &&
		r.Revision == o.Revision
}

// before reports whether r sorts ahead of o in the canonical order:
// newest first, ties broken by the higher ID.
func (r Record) before(o Record) bool {
	if !r.CreatedAt.Equal(o.CreatedAt) {
		return r.CreatedAt.After(o.CreatedAt)
	}
	return r.ID > o.ID
}

// Snapshot is a full listing as returned by the notification API.
// AsOf is zero when the server does not stamp its listings.
type Snapshot struct {
	Records []Record  `json:"items"`
	AsOf    time.Time `json:"asOf"`
}

func ParseKind(kind string) (Kind, error) {
	switch Kind(kind) {
	case KindTenderUpdate, KindGuarantee, KindAward, KindConsortium, KindReport, KindSystem:
		return Kind(kind), nil
	default:
		return "", ErrNoSuchKind
	}
}

func ParsePriority(priority string) (Priority, error) {
	switch Priority(priority) {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return Priority(priority), nil
	default:
		return "", ErrNoSuchPriority
	}
}
