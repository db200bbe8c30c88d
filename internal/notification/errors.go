package notification

import (
	"errors"
	"fmt"
	"net/http"
)

// NetworkError means the request never completed against the server.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// AuthError means the session is no longer valid.
type AuthError struct {
	Op         string
	StatusCode int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed (%d)", e.Op, e.StatusCode)
}

type NotFoundError struct {
	Op string
	ID int64
}

func (e *NotFoundError) Error() string {
	if e.ID == 0 {
		return fmt.Sprintf("%s: not found", e.Op)
	}
	return fmt.Sprintf("%s: notification %d not found", e.Op, e.ID)
}

// ServerError is any other non-2xx answer.
type ServerError struct {
	Op         string
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: server answered %d", e.Op, e.StatusCode)
}

func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

func IsNotFound(err error) bool {
	var nfErr *NotFoundError
	return errors.As(err, &nfErr)
}

// IsTransient reports whether retrying the same request may succeed.
func IsTransient(err error) bool {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var srvErr *ServerError
	if errors.As(err, &srvErr) {
		switch srvErr.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout, http.StatusTooManyRequests:
			return true
		}
	}
	return false
}

func classify(op string, err error) error {
	var (
		netErr  *NetworkError
		authErr *AuthError
		nfErr   *NotFoundError
		srvErr  *ServerError
	)
	if errors.As(err, &netErr) || errors.As(err, &authErr) || errors.As(err, &nfErr) || errors.As(err, &srvErr) {
		return err
	}
	return &NetworkError{Op: op, Err: err}
}
