package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scraping050/proyecto-garantias-sub001/internal/notification"
)

// Client talks to the notification REST API on behalf of the engine. It
// maps transport and status failures onto the notification error types.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.httpClient.Timeout = d
		}
	}
}

// NewClient creates a client rooted at baseURL. An empty token sends no
// Authorization header.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) List(ctx context.Context) (notification.Snapshot, error) {
	const op = "list notifications"
	body, err := c.do(ctx, op, http.MethodGet, "/notifications", 0)
	if err != nil {
		return notification.Snapshot{}, err
	}
	return decodeSnapshot(body)
}

// MarkRead returns the updated record when the server sends one back.
func (c *Client) MarkRead(ctx context.Context, id int64) (*notification.Record, error) {
	const op = "mark notification read"
	body, err := c.do(ctx, op, http.MethodPut, fmt.Sprintf("/notifications/%d/read", id), id)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	var rec notification.Record
	if err := json.Unmarshal(body, &rec); err != nil || rec.ID != id {
		return nil, nil
	}
	return &rec, nil
}

func (c *Client) MarkAllRead(ctx context.Context) error {
	_, err := c.do(ctx, "mark all notifications read", http.MethodPut, "/notifications/read-all", 0)
	return err
}

func (c *Client) Delete(ctx context.Context, id int64) error {
	_, err := c.do(ctx, "delete notification", http.MethodDelete, fmt.Sprintf("/notifications/%d", id), id)
	return err
}

func (c *Client) do(ctx context.Context, op, method, path string, id int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if method != http.MethodGet {
		req.Header.Set("Idempotency-Key", uuid.New().String())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &notification.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &notification.NetworkError{Op: op, Err: fmt.Errorf("reading response body: %w", err)}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, &notification.AuthError{Op: op, StatusCode: resp.StatusCode}
	case resp.StatusCode == http.StatusNotFound:
		return nil, &notification.NotFoundError{Op: op, ID: id}
	default:
		return nil, &notification.ServerError{Op: op, StatusCode: resp.StatusCode}
	}
}

// decodeSnapshot accepts either {"items": [...], "asOf": ...} or a bare
// array of records.
func decodeSnapshot(body []byte) (notification.Snapshot, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var records []notification.Record
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return notification.Snapshot{}, fmt.Errorf("decoding notification list: %w", err)
		}
		return notification.Snapshot{Records: records}, nil
	}
	var snap notification.Snapshot
	if err := json.Unmarshal(trimmed, &snap); err != nil {
		return notification.Snapshot{}, fmt.Errorf("decoding notification snapshot: %w", err)
	}
	return snap, nil
}
