// Typed CRUD client for the simulation store collections
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"epiconsole/internal/entity"
	"epiconsole/internal/logging"
)

// DefaultTimeout bounds a single store request when Options.Timeout is zero.
const DefaultTimeout = 10 * time.Second

// maxBody caps how much of a response body is read.
const maxBody = 8 << 20

// Options configures every client built from it.
type Options struct {
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *slog.Logger
	Metrics    *Metrics
	UserAgent  string
}

// Client performs list/get/create/update/delete against one collection.
// It keeps no cache and never retries.
type Client[E entity.Record, P any] struct {
	kind     entity.Kind
	endpoint string
	hc       *http.Client
	timeout  time.Duration
	log      *slog.Logger
	metrics  *Metrics
	agent    string
}

// NewClient builds a client for kind's collection under baseURL
// (e.g. http://localhost:8000/api/v1).
func NewClient[E entity.Record, P any](baseURL string, kind entity.Kind, opts Options) (*Client[E, P], error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	agent := opts.UserAgent
	if agent == "" {
		agent = "epiconsole"
	}
	return &Client[E, P]{
		kind:     kind,
		endpoint: strings.TrimRight(u.String(), "/") + kind.Path(),
		hc:       hc,
		timeout:  timeout,
		log:      log.With("collection", kind.Collection()),
		metrics:  opts.Metrics,
		agent:    agent,
	}, nil
}

// Kind returns the entity kind served by the client.
func (c *Client[E, P]) Kind() entity.Kind { return c.kind }

// List fetches the whole collection in store order.
func (c *Client[E, P]) List(ctx context.Context) ([]E, error) {
	var out []E
	if err := c.do(ctx, "list", http.MethodGet, c.endpoint, 0, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []E{}
	}
	return out, nil
}

// Get fetches one record.
func (c *Client[E, P]) Get(ctx context.Context, id entity.ID) (E, error) {
	var out E
	err := c.do(ctx, "get", http.MethodGet, c.endpoint+id.String(), id, nil, &out)
	return out, err
}

// Create submits a draft and returns the stored record with its id.
func (c *Client[E, P]) Create(ctx context.Context, draft E) (E, error) {
	var out E
	if draft.RecordID() != 0 {
		return out, fmt.Errorf("create %s: draft already carries id %s", c.kind, draft.RecordID())
	}
	err := c.do(ctx, "create", http.MethodPost, c.endpoint, 0, draft, &out)
	return out, err
}

// Update applies a partial update. Fields left nil in patch are untouched.
func (c *Client[E, P]) Update(ctx context.Context, id entity.ID, patch P) (E, error) {
	var out E
	err := c.do(ctx, "update", http.MethodPatch, c.endpoint+id.String()+"/", id, patch, &out)
	return out, err
}

// Delete removes one record.
func (c *Client[E, P]) Delete(ctx context.Context, id entity.ID) error {
	return c.do(ctx, "delete", http.MethodDelete, c.endpoint+id.String()+"/", id, nil, nil)
}

func (c *Client[E, P]) do(ctx context.Context, op, method, target string, id entity.ID, body, out any) (err error) {
	start := time.Now()
	reqID := uuid.NewString()
	defer func() {
		outcome := Outcome(err)
		c.metrics.observe(c.kind.Collection(), op, outcome, time.Since(start))
		c.log.Debug("store request", "op", op, "method", method, "url", target,
			"request_id", reqID, "outcome", outcome, "elapsed", time.Since(start))
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s %s: encode body: %w", c.kind, op, err)
		}
		c.log.Log(ctx, logging.LevelTrace, "request body", "request_id", reqID, "body", string(data))
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return &TransportError{Op: op, URL: target, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.agent)
	req.Header.Set("X-Request-ID", reqID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return &TransportError{Op: op, URL: target, Err: err}
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return &TransportError{Op: op, URL: target, Status: resp.StatusCode, Err: err}
	}
	c.log.Log(ctx, logging.LevelTrace, "response body", "request_id", reqID, "status", resp.StatusCode, "body", string(data))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil || len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return &TransportError{Op: op, URL: target, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
		}
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return &NotFoundError{Collection: c.kind.Collection(), ID: id}
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusConflict,
		resp.StatusCode == http.StatusUnprocessableEntity:
		return parseValidation(resp.StatusCode, data)
	default:
		return &TransportError{Op: op, URL: target, Status: resp.StatusCode, Err: errors.New(statusText(resp.StatusCode, data))}
	}
}

func statusText(code int, body []byte) string {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	if msg == "" {
		return http.StatusText(code)
	}
	return http.StatusText(code) + ": " + msg
}
