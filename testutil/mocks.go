package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// MockYouTubeServer serves both the channel /live pages and the Data API
// videos endpoint. Point the live resolver's base URL and the API endpoint
// (with a trailing slash) at URL.
type MockYouTubeServer struct {
	*httptest.Server

	mu       sync.Mutex
	Handlers map[string]http.HandlerFunc

	videoCalls atomic.Int32
}

func NewMockYouTubeServer(t *testing.T) *MockYouTubeServer {
	t.Helper()
	m := &MockYouTubeServer{Handlers: make(map[string]http.HandlerFunc)}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/youtube/v3/videos" {
			m.videoCalls.Add(1)
		}
		m.mu.Lock()
		handler, ok := m.Handlers[r.URL.Path]
		m.mu.Unlock()
		if ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

func (m *MockYouTubeServer) handle(path string, h http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Handlers[path] = h
}

// VideoCalls returns how many metered lookups reached the server.
func (m *MockYouTubeServer) VideoCalls() int { return int(m.videoCalls.Load()) }

// MockLiveRedirect makes the channel's /live page redirect to the watch page.
func (m *MockYouTubeServer) MockLiveRedirect(channelID, videoID string) {
	m.handle("/channel/"+channelID+"/live", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/watch?v="+videoID, http.StatusFound)
	})
}

// MockLivePage serves html with status 200 for the channel's /live page.
func (m *MockYouTubeServer) MockLivePage(channelID, html string) {
	m.handle("/channel/"+channelID+"/live", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(html)) //nolint:errcheck // test mock response
	})
}

// MockStartTime answers videos.list with an actualStartTime for videoID and
// no items for anything else.
func (m *MockYouTubeServer) MockStartTime(videoID string, start time.Time) {
	m.handle("/youtube/v3/videos", func(w http.ResponseWriter, r *http.Request) {
		items := []map[string]interface{}{}
		if r.URL.Query().Get("id") == videoID {
			items = append(items, map[string]interface{}{
				"id": videoID,
				"liveStreamingDetails": map[string]string{
					"actualStartTime": start.UTC().Format(time.RFC3339),
				},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"items": items}) //nolint:errcheck // test mock response
	})
}

// MockVideosError makes videos.list fail with status.
func (m *MockYouTubeServer) MockVideosError(status int) {
	m.handle("/youtube/v3/videos", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{ //nolint:errcheck // test mock response
			"error": map[string]interface{}{"code": status, "message": http.StatusText(status)},
		})
	})
}

// WebhookRecorder captures notification posts.
type WebhookRecorder struct {
	*httptest.Server
	Messages chan string

	status atomic.Int32
}

// NewWebhookRecorder starts a webhook endpoint that answers 204 and pushes
// each posted content onto Messages.
func NewWebhookRecorder(t *testing.T) *WebhookRecorder {
	t.Helper()
	rec := &WebhookRecorder{Messages: make(chan string, 16)}
	rec.status.Store(http.StatusNoContent)
	rec.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Content string `json:"content"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body) //nolint:errcheck // recorded as-is
		rec.Messages <- body.Content
		w.WriteHeader(int(rec.status.Load()))
	}))
	t.Cleanup(rec.Close)
	return rec
}

// SetStatus changes the status code returned for subsequent posts.
func (rec *WebhookRecorder) SetStatus(code int) { rec.status.Store(int32(code)) }

// Next waits for the next message or fails the test after timeout.
func (rec *WebhookRecorder) Next(t *testing.T, timeout time.Duration) string {
	t.Helper()
	select {
	case msg := <-rec.Messages:
		return msg
	case <-time.After(timeout):
		t.Fatalf("no webhook message within %v", timeout)
		return ""
	}
}
