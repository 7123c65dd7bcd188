// Package live determines whether a YouTube channel is broadcasting without
// spending Data API quota. It requests the channel's /live page with redirects
// disabled and reads the broadcast id either from the redirect target or from
// the returned HTML.
package live

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/onnwee/clipstream/telemetry"
)

// Status is the outcome of a live probe.
type Status int

const (
	// StatusOffline means the probe completed but no live broadcast was found.
	StatusOffline Status = iota
	// StatusLive means a broadcast id was resolved.
	StatusLive
	// StatusFailed means the probe itself failed (network, timeout, unreadable body).
	StatusFailed
)

// String returns a human-readable name for the status.
func (s Status) String() string {
	switch s {
	case StatusLive:
		return "live"
	case StatusOffline:
		return "offline"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result carries the probe outcome. BroadcastID is set only for StatusLive and
// Err only for StatusFailed.
type Result struct {
	Status      Status
	BroadcastID string
	HTTPStatus  int
	Err         error
}

const (
	// DefaultUserAgent mimics a desktop browser; YouTube serves consent or
	// stripped pages to unknown agents.
	DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	defaultBaseURL   = "https://www.youtube.com"
	defaultTimeout   = 8 * time.Second
	// Live pages run to a couple of MB; cap the read well above that.
	maxBodyBytes = 8 << 20
)

var (
	broadcastIDPattern = regexp.MustCompile(`^[\w-]+$`)
	canonicalPattern   = regexp.MustCompile(`(?:rel="canonical"\s+href|property="og:url"\s+content)="https?://(?:www\.|m\.)?youtube\.com/watch\?v=([\w-]+)`)
	videoIDPattern     = regexp.MustCompile(`"videoId":"([\w-]+)"`)
	// Fallback for redirect targets that carry v= outside a parsable query.
	// Anchored so parameters like rev= or dev= never match.
	locationIDPattern = regexp.MustCompile(`[?&]v=([\w-]+)`)
)

const isLiveMarker = `"isLive":true`

// Option provides functional configuration for the Resolver.
type Option func(*Resolver)

// WithHTTPClient overrides the HTTP client. Redirect following is always
// disabled on the client the resolver ends up using.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Resolver) { r.client = client }
}

// WithBaseURL points the resolver at a different host. Useful for testing.
func WithBaseURL(base string) Option {
	return func(r *Resolver) { r.baseURL = strings.TrimRight(base, "/") }
}

// WithTimeout bounds each probe.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.timeout = d }
}

// WithUserAgent overrides the browser user agent.
func WithUserAgent(ua string) Option {
	return func(r *Resolver) { r.userAgent = ua }
}

// Resolver performs zero-quota live checks.
type Resolver struct {
	client    *http.Client
	baseURL   string
	userAgent string
	timeout   time.Duration
}

// NewResolver returns a configured resolver.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		baseURL:   defaultBaseURL,
		userAgent: DefaultUserAgent,
		timeout:   defaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}

	var base http.Client
	if r.client != nil {
		base = *r.client
	} else {
		base = http.Client{Transport: telemetry.InstrumentedTransport(nil)}
	}
	// The redirect target is the answer, so never follow it.
	base.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	r.client = &base
	return r
}

// LiveURL returns the probe URL for a channel.
func (r *Resolver) LiveURL(channelID string) string {
	return fmt.Sprintf("%s/channel/%s/live", r.baseURL, url.PathEscape(channelID))
}

// Resolve probes the channel. It never returns an error; failures are reported
// as StatusFailed.
func (r *Resolver) Resolve(ctx context.Context, channelID string) Result {
	var res Result
	telemetry.TimeFunc(telemetry.ProbeDuration, func() {
		res = r.resolve(ctx, channelID)
	})
	telemetry.CountProbe(res.Status.String())
	return res
}

func (r *Resolver) resolve(ctx context.Context, channelID string) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			res = Result{Status: StatusFailed, Err: fmt.Errorf("live probe panic: %v", p)}
		}
	}()

	if channelID == "" {
		return Result{Status: StatusFailed, Err: errors.New("channel id is required")}
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.LiveURL(channelID), nil)
	if err != nil {
		return Result{Status: StatusFailed, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Accept-Language", "en")

	resp, err := r.client.Do(req)
	if err != nil {
		return Result{Status: StatusFailed, Err: fmt.Errorf("fetch live page: %w", err)}
	}
	defer resp.Body.Close()

	res.HTTPStatus = resp.StatusCode
	switch {
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		if id := BroadcastIDFromLocation(resp.Header.Get("Location")); id != "" {
			res.Status, res.BroadcastID = StatusLive, id
			return res
		}
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			res.Status, res.Err = StatusFailed, fmt.Errorf("read live page: %w", err)
			return res
		}
		if id := BroadcastIDFromHTML(body); id != "" {
			res.Status, res.BroadcastID = StatusLive, id
			return res
		}
	}
	res.Status = StatusOffline
	return res
}

// BroadcastIDFromLocation extracts the v= parameter from a redirect target.
func BroadcastIDFromLocation(location string) string {
	if location == "" {
		return ""
	}
	if u, err := url.Parse(location); err == nil {
		if v := u.Query().Get("v"); broadcastIDPattern.MatchString(v) {
			return v
		}
	}
	if m := locationIDPattern.FindStringSubmatch(location); len(m) == 2 {
		return m[1]
	}
	return ""
}

// BroadcastIDFromHTML looks for the canonical or og:url watch link first, then
// for the embedded player JSON of a page that marks itself live.
func BroadcastIDFromHTML(body []byte) string {
	if m := canonicalPattern.FindSubmatch(body); len(m) == 2 {
		return string(m[1])
	}
	if !bytes.Contains(body, []byte(isLiveMarker)) {
		return ""
	}
	if m := videoIDPattern.FindSubmatch(body); len(m) == 2 {
		return string(m[1])
	}
	return ""
}
