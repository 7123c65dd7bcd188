// Package notify delivers clip messages to per-channel webhook endpoints.
//
// Delivery is fire-and-forget: Dispatch returns immediately and the outcome
// is only logged and counted. The payload is the Discord webhook shape
// {"content": "..."}, which most chat webhooks accept.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/onnwee/clipstream/crypto"
	"github.com/onnwee/clipstream/telemetry"
)

const (
	defaultTimeout       = 10 * time.Second
	defaultMaxConcurrent = 8
	// Only a snippet of an error body is kept for the log line.
	maxErrorBody = 512
)

// StatusError reports a non-2xx webhook response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook returned status %d: %s", e.StatusCode, e.Body)
}

type payload struct {
	Content string `json:"content"`
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithHTTPClient(c *http.Client) Option { return func(d *Dispatcher) { d.client = c } }

// WithTimeout bounds each delivery.
func WithTimeout(t time.Duration) Option { return func(d *Dispatcher) { d.timeout = t } }

// WithMaxConcurrent limits simultaneous deliveries. Extra deliveries queue.
func WithMaxConcurrent(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.slots = make(chan struct{}, n)
		}
	}
}

// Dispatcher runs deliveries on tracked goroutines.
type Dispatcher struct {
	client  *http.Client
	timeout time.Duration
	slots   chan struct{}
	wg      sync.WaitGroup
}

func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{timeout: defaultTimeout}
	for _, opt := range opts {
		opt(d)
	}
	if d.client == nil {
		d.client = &http.Client{Transport: telemetry.InstrumentedTransport(nil)}
	}
	if d.slots == nil {
		d.slots = make(chan struct{}, defaultMaxConcurrent)
	}
	return d
}

// Dispatch queues delivery of message to endpoint and returns at once. The
// delivery keeps the request's values (correlation id, trace) but not its
// cancellation.
func (d *Dispatcher) Dispatch(ctx context.Context, endpoint, message string) {
	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	telemetry.AddInFlight(1)
	go func() {
		defer d.wg.Done()
		defer telemetry.AddInFlight(-1)

		logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "notify"), slog.String("endpoint", crypto.RedactURL(endpoint)))
		defer func() {
			if p := recover(); p != nil {
				telemetry.CountNotification("failed")
				logger.Error("notification panic", slog.Any("panic", p))
			}
		}()

		d.slots <- struct{}{}
		defer func() { <-d.slots }()

		start := time.Now()
		if err := d.Send(ctx, endpoint, message); err != nil {
			telemetry.CountNotification("failed")
			logger.Error("notification failed", slog.Any("err", err), slog.Duration("elapsed", time.Since(start)))
			return
		}
		telemetry.CountNotification("sent")
		logger.Info("notification sent", slog.Duration("elapsed", time.Since(start)))
	}()
}

// Send delivers synchronously and reports the outcome.
func (d *Dispatcher) Send(ctx context.Context, endpoint, message string) error {
	if endpoint == "" {
		return fmt.Errorf("notify: empty endpoint")
	}
	body, err := json.Marshal(payload{Content: message})
	if err != nil {
		return fmt.Errorf("notify: encode payload: %w", err)
	}
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		// url.Error embeds the full endpoint, secret included.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("notify: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(snippet)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Wait blocks until queued deliveries finish or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Active returns the number of deliveries currently holding a slot.
func (d *Dispatcher) Active() int { return len(d.slots) }

// MaxConcurrent returns the delivery concurrency limit.
func (d *Dispatcher) MaxConcurrent() int { return cap(d.slots) }
