package notification

import (
	"context"
	"encoding/json"
	"fmt"
)

type EventKind int8

const (
	EventCreated EventKind = iota
	EventUpdated
	EventDeleted
)

const (
	wireCreated = "notification.created"
	wireUpdated = "notification.updated"
	wireDeleted = "notification.deleted"
)

var ErrUnknownEvent = fmt.Errorf("unknown push event type")

// Event is a single push message. Record is set for EventCreated and
// EventUpdated, ID for EventDeleted.
type Event struct {
	Kind   EventKind
	Record Record
	ID     int64
}

func (k EventKind) String() string {
	switch k {
	case EventCreated:
		return wireCreated
	case EventUpdated:
		return wireUpdated
	case EventDeleted:
		return wireDeleted
	default:
		return fmt.Sprintf("EventKind(%d)", int8(k))
	}
}

type wireEvent struct {
	Type         string  `json:"type"`
	Notification *Record `json:"notification,omitempty"`
	ID           int64   `json:"id,omitempty"`
}

func DecodeEvent(b []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(b, &w); err != nil {
		return Event{}, fmt.Errorf("decoding push event: %w", err)
	}
	switch w.Type {
	case wireCreated, wireUpdated:
		if w.Notification == nil {
			return Event{}, fmt.Errorf("%s event without notification payload", w.Type)
		}
		kind := EventCreated
		if w.Type == wireUpdated {
			kind = EventUpdated
		}
		return Event{Kind: kind, Record: *w.Notification, ID: w.Notification.ID}, nil
	case wireDeleted:
		if w.ID <= 0 {
			return Event{}, fmt.Errorf("%s event without id", w.Type)
		}
		return Event{Kind: EventDeleted, ID: w.ID}, nil
	default:
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownEvent, w.Type)
	}
}

func EncodeEvent(e Event) ([]byte, error) {
	w := wireEvent{Type: e.Kind.String()}
	switch e.Kind {
	case EventCreated, EventUpdated:
		rec := e.Record
		w.Notification = &rec
	case EventDeleted:
		w.ID = e.ID
	default:
		return nil, ErrUnknownEvent
	}
	return json.Marshal(w)
}

// Subscription is one live connection to the push transport. Events is
// closed when the connection is lost or the subscription is closed.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

type PushStream interface {
	Subscribe(ctx context.Context) (Subscription, error)
}
