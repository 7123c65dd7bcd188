// Package youtubeapi wraps the YouTube Data API for the single purpose of
// reading a live broadcast's actual start time. Every call here costs quota,
// so callers confirm liveness first and cache the answer.
package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/api/googleapi/transport"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/onnwee/clipstream/config"
	"github.com/onnwee/clipstream/telemetry"
)

var (
	// ErrMissingAPIKey is returned when no API key is configured.
	ErrMissingAPIKey = errors.New("youtube: missing API key")
	// ErrStartTimeUnavailable means the video has no actualStartTime yet
	// (not live, not found, or details not populated).
	ErrStartTimeUnavailable = errors.New("youtube: actual start time not available")
)

const defaultTimeout = 10 * time.Second

type Client struct {
	apiKey string
	svc    *yt.Service
}

// New builds a Client from config. A missing key is not an error here; calls
// return ErrMissingAPIKey so the caller can report a misconfiguration.
func New(ctx context.Context, cfg *config.Config) (*Client, error) {
	timeout := cfg.APITimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	// option.WithAPIKey is ignored once a custom client is supplied, so the key
	// rides on the transport instead.
	client := &http.Client{
		Timeout:   timeout,
		Transport: &transport.APIKey{Key: cfg.YouTubeAPIKey, Transport: telemetry.InstrumentedTransport(nil)},
	}
	return NewWithClient(ctx, cfg.YouTubeAPIKey, client, cfg.YouTubeAPIEndpoint)
}

// NewWithClient builds a Client on an existing HTTP client. endpoint may be
// empty for the public API.
func NewWithClient(ctx context.Context, apiKey string, client *http.Client, endpoint string) (*Client, error) {
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	svc, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	return &Client{apiKey: apiKey, svc: svc}, nil
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool { return c != nil && c.apiKey != "" }

// ActualStartTime returns the UTC start time of a live broadcast.
func (c *Client) ActualStartTime(ctx context.Context, videoID string) (time.Time, error) {
	if !c.Configured() {
		return time.Time{}, ErrMissingAPIKey
	}
	if videoID == "" {
		return time.Time{}, fmt.Errorf("youtube: empty video id")
	}
	res, err := c.svc.Videos.List([]string{"liveStreamingDetails"}).Id(videoID).Context(ctx).Do()
	if err != nil {
		telemetry.CountLookup("error")
		return time.Time{}, fmt.Errorf("youtube videos.list: %w", err)
	}
	start, err := startTimeFrom(res)
	switch {
	case errors.Is(err, ErrStartTimeUnavailable):
		telemetry.CountLookup("unavailable")
	case err != nil:
		telemetry.CountLookup("error")
	default:
		telemetry.CountLookup("ok")
	}
	return start, err
}

func startTimeFrom(res *yt.VideoListResponse) (time.Time, error) {
	if res == nil || len(res.Items) == 0 || res.Items[0] == nil {
		return time.Time{}, ErrStartTimeUnavailable
	}
	details := res.Items[0].LiveStreamingDetails
	if details == nil || details.ActualStartTime == "" {
		return time.Time{}, ErrStartTimeUnavailable
	}
	t, err := time.Parse(time.RFC3339, details.ActualStartTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("youtube: parse actualStartTime %q: %w", details.ActualStartTime, err)
	}
	return t.UTC(), nil
}
