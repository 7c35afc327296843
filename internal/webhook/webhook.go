// Package webhook delivers finalized schedule and invite requests to the external
// automation service as a JSON POST.
//
// Each request is attempted exactly once; a non-2xx status is returned as a
// *StatusError so callers can tell the user what the service answered.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/Jeeves/internal/models"
	"github.com/BTreeMap/Jeeves/internal/store"
	"github.com/BTreeMap/Jeeves/internal/util"
)

const (
	// DefaultTimeout bounds a single delivery attempt.
	DefaultTimeout = 10 * time.Second
	// maxErrorBodyBytes caps how much of a failed response body is kept for logs.
	maxErrorBodyBytes = 512
)

// ErrNoURL is returned by NewClient when no endpoint is configured.
var ErrNoURL = errors.New("webhook URL not set")

// StatusError reports a non-success HTTP status from the webhook.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook responded with status %d: %s", e.StatusCode, e.Body)
}

// Recorder receives an audit record for every delivery attempt.
type Recorder interface {
	RecordDelivery(d store.Delivery) error
}

// Opts holds configuration options for the webhook client.
type Opts struct {
	URL        string
	Timeout    time.Duration
	HTTPClient *http.Client
	Recorder   Recorder
}

// Option defines a configuration option for the webhook client.
type Option func(*Opts)

// WithURL sets the endpoint every payload is posted to.
func WithURL(url string) Option {
	return func(o *Opts) { o.URL = url }
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// WithHTTPClient replaces the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// WithRecorder records every attempt in the given delivery log.
func WithRecorder(r Recorder) Option {
	return func(o *Opts) { o.Recorder = r }
}

// Client posts payloads to a single webhook endpoint.
type Client struct {
	url      string
	http     *http.Client
	recorder Recorder
}

// NewClient creates a webhook client. A URL is required.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.URL == "" {
		return nil, ErrNoURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	slog.Debug("Webhook NewClient configured", "timeout", cfg.Timeout, "recorder_set", cfg.Recorder != nil)
	return &Client{url: cfg.URL, http: httpClient, recorder: cfg.Recorder}, nil
}

// Deliver sends payload as JSON. It returns *StatusError on a non-2xx response.
func (c *Client) Deliver(ctx context.Context, kind models.ActionType, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", kind, err)
	}

	record := store.Delivery{
		ID:          util.GenerateDeliveryID(),
		Kind:        string(kind),
		PayloadJSON: string(body),
		CreatedAt:   time.Now(),
	}
	if origin, ok := originOf(payload); ok {
		record.UserID = origin.RequestedBy
		record.ChannelID = origin.ChannelID
	}

	err = c.post(ctx, body, &record)
	c.record(record)
	if err != nil {
		slog.Error("Webhook delivery failed", "kind", kind, "id", record.ID, "status", record.StatusCode, "error", err)
		return err
	}
	slog.Info("Webhook delivery succeeded", "kind", kind, "id", record.ID, "status", record.StatusCode)
	return nil
}

func (c *Client) post(ctx context.Context, body []byte, record *store.Delivery) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		record.Error = err.Error()
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		record.Error = err.Error()
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	record.StatusCode = resp.StatusCode

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: string(text)}
		record.Error = statusErr.Error()
		return statusErr
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) record(d store.Delivery) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.RecordDelivery(d); err != nil {
		slog.Warn("Webhook failed to record delivery", "id", d.ID, "error", err)
	}
}

func originOf(payload any) (models.Origin, bool) {
	switch p := payload.(type) {
	case models.SchedulePayload:
		return p.Origin, true
	case *models.SchedulePayload:
		return p.Origin, true
	case models.InvitePayload:
		return p.Origin, true
	case *models.InvitePayload:
		return p.Origin, true
	}
	return models.Origin{}, false
}
