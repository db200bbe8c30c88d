//go:generate mockgen -destination=notificationmocks/mocks.go -package=notificationmocks github.com/scraping050/proyecto-garantias-sub001/internal/notification API,Service

package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
)

// Service is what the presentation layer may do with notifications: read
// projections and request mutations. It never exposes the store itself.
type Service interface {
	View(f Filter) []Record
	UnreadCount() int
	Summary() Summary
	Status() Status
	MarkAsRead(ctx context.Context, id int64) error
	MarkAllAsRead(ctx context.Context) error
	Delete(ctx context.Context, id int64) error
}

type Endpoint struct {
	svc Service
}

func NewEndpoint(svc Service) *Endpoint {
	return &Endpoint{
		svc: svc,
	}
}

type listResponse struct {
	Items       []Record `json:"items"`
	UnreadCount int      `json:"unreadCount"`
}

type countResponse struct {
	UnreadCount int `json:"unreadCount"`
}

func (e *Endpoint) Register(router *httprouter.Router) {
	router.GET("/notifications", e.ListNotifications)
	router.GET("/unread-count", e.UnreadCount)
	router.GET("/summary", e.Summary)
	router.GET("/status", e.Status)
	router.PUT("/notifications/:id/read", e.MarkAsRead)
	router.PUT("/read-all", e.MarkAllAsRead)
	router.DELETE("/notifications/:id", e.DeleteNotification)
}

func (e *Endpoint) ListNotifications(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	f, err := parseFilter(r)
	if err != nil {
		log.Err(err).Msg("invalid notification filter")
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{
		Items:       e.svc.View(f),
		UnreadCount: e.svc.UnreadCount(),
	})
}

func (e *Endpoint) UnreadCount(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, countResponse{UnreadCount: e.svc.UnreadCount()})
}

func (e *Endpoint) Summary(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, e.svc.Summary())
}

func (e *Endpoint) Status(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, e.svc.Status())
}

func (e *Endpoint) MarkAsRead(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := parseID(ps)
	if err != nil {
		log.Err(err).Msg("invalid notification id")
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	e.reply(w, e.svc.MarkAsRead(r.Context(), id))
}

func (e *Endpoint) MarkAllAsRead(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	e.reply(w, e.svc.MarkAllAsRead(r.Context()))
}

func (e *Endpoint) DeleteNotification(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := parseID(ps)
	if err != nil {
		log.Err(err).Msg("invalid notification id")
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	e.reply(w, e.svc.Delete(r.Context(), id))
}

func (e *Endpoint) reply(w http.ResponseWriter, err error) {
	if err == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	var (
		netErr *NetworkError
		srvErr *ServerError
	)
	switch {
	case IsAuthError(err):
		w.WriteHeader(http.StatusUnauthorized)
	case errors.As(err, &netErr), errors.As(err, &srvErr):
		w.WriteHeader(http.StatusBadGateway)
	default:
		log.Err(err).Msg("internal error")
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func parseID(ps httprouter.Params) (int64, error) {
	id, err := strconv.ParseInt(ps.ByName("id"), 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, strconv.ErrRange
	}
	return id, nil
}

func parseFilter(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	var (
		f   Filter
		err error
	)
	if v := q.Get("kind"); v != "" {
		if f.Kind, err = ParseKind(v); err != nil {
			return Filter{}, err
		}
	}
	if v := q.Get("priority"); v != "" {
		if f.Priority, err = ParsePriority(v); err != nil {
			return Filter{}, err
		}
	}
	if v := q.Get("unread"); v != "" {
		if f.UnreadOnly, err = strconv.ParseBool(v); err != nil {
			return Filter{}, err
		}
	}
	if v := q.Get("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil {
			return Filter{}, err
		}
	}
	return f, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Err(err).Msg("error while marshalling")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err = w.Write(b); err != nil {
		log.Err(err).Msg("error while writing response")
	}
}
