package youtubeapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"google.golang.org/api/googleapi"

	"github.com/onnwee/clipstream/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		YouTubeAPIKey:      "test-key",
		YouTubeAPIEndpoint: srv.URL + "/",
		APITimeout:         2 * time.Second,
	}
	c, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestActualStartTime(t *testing.T) {
	var gotPath, gotKey, gotPart, gotID string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		q := r.URL.Query()
		gotKey, gotPart, gotID = q.Get("key"), q.Get("part"), q.Get("id")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[{"id":"XYZ123","liveStreamingDetails":{"actualStartTime":"2024-01-01T12:00:00+02:00"}}]}`))
	})

	got, err := c.ActualStartTime(context.Background(), "XYZ123")
	if err != nil {
		t.Fatalf("ActualStartTime() error = %v", err)
	}
	want := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	if !got.Equal(want) || got.Location() != time.UTC {
		t.Errorf("ActualStartTime() = %v, want %v in UTC", got, want)
	}
	if gotPath != "/youtube/v3/videos" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("key = %q, want test-key", gotKey)
	}
	if gotPart != "liveStreamingDetails" || gotID != "XYZ123" {
		t.Errorf("part=%q id=%q", gotPart, gotID)
	}
}

func TestActualStartTimeUnavailable(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no items", `{"items":[]}`},
		{"no live details", `{"items":[{"id":"XYZ123"}]}`},
		{"empty start time", `{"items":[{"id":"XYZ123","liveStreamingDetails":{"scheduledStartTime":"2024-01-01T12:00:00Z"}}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.ActualStartTime(context.Background(), "XYZ123")
			if !errors.Is(err, ErrStartTimeUnavailable) {
				t.Errorf("error = %v, want ErrStartTimeUnavailable", err)
			}
		})
	}
}

func TestActualStartTimeUpstreamError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"quotaExceeded"}}`))
	})

	_, err := c.ActualStartTime(context.Background(), "XYZ123")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrStartTimeUnavailable) {
		t.Error("upstream failure must not look like an unavailable start time")
	}
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) || gerr.Code != http.StatusForbidden {
		t.Errorf("error = %v, want wrapped googleapi 403", err)
	}
}

func TestActualStartTimeBadTimestamp(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[{"liveStreamingDetails":{"actualStartTime":"yesterday"}}]}`))
	})
	_, err := c.ActualStartTime(context.Background(), "XYZ123")
	if err == nil || errors.Is(err, ErrStartTimeUnavailable) {
		t.Errorf("error = %v, want parse error", err)
	}
}

func TestMissingAPIKey(t *testing.T) {
	c, err := New(context.Background(), &config.Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.Configured() {
		t.Error("Configured() = true without key")
	}
	if _, err := c.ActualStartTime(context.Background(), "XYZ123"); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("error = %v, want ErrMissingAPIKey", err)
	}

	var nilClient *Client
	if nilClient.Configured() {
		t.Error("nil client reports configured")
	}
}
