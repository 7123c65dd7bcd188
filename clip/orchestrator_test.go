package clip

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/clipstream/db"
	"github.com/onnwee/clipstream/live"
	"github.com/onnwee/clipstream/youtubeapi"
)

const testChannel = "UCX6OQ3DkcsbYNE6H8uQQuVA"

type fakeBindings struct {
	bindings map[string]*db.Binding
	err      error
	calls    int
}

func (f *fakeBindings) GetBinding(_ context.Context, id string) (*db.Binding, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	b, ok := f.bindings[id]
	if !ok {
		return nil, db.ErrBindingNotFound
	}
	return b, nil
}

type fakeLive struct {
	result live.Result
	calls  int
}

func (f *fakeLive) Resolve(context.Context, string) live.Result {
	f.calls++
	return f.result
}

type fakeStartTimes struct {
	start time.Time
	err   error
	calls int
}

func (f *fakeStartTimes) Resolve(context.Context, string) (time.Time, error) {
	f.calls++
	return f.start, f.err
}

type sentMessage struct {
	endpoint, message string
}

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (r *recordingDispatcher) Dispatch(_ context.Context, endpoint, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentMessage{endpoint, message})
}

// blockingDispatcher models a dispatcher that spawns delivery and returns.
type blockingDispatcher struct {
	release chan struct{}
	done    chan struct{}
}

func (b *blockingDispatcher) Dispatch(context.Context, string, string) {
	go func() {
		<-b.release
		close(b.done)
	}()
}

var (
	testStart = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	testNow   = testStart.Add(1*time.Hour + 23*time.Minute + 44*time.Second)
)

func newTestOrchestrator() (*Orchestrator, *fakeBindings, *fakeLive, *fakeStartTimes, *recordingDispatcher) {
	b := &fakeBindings{bindings: map[string]*db.Binding{
		testChannel: {ChannelID: testChannel, NotificationEndpoint: "https://hooks.example.com/abc"},
	}}
	l := &fakeLive{result: live.Result{Status: live.StatusLive, BroadcastID: "XYZ123", HTTPStatus: 302}}
	s := &fakeStartTimes{start: testStart}
	d := &recordingDispatcher{}
	o := &Orchestrator{
		Bindings:   b,
		Live:       l,
		StartTimes: s,
		Notifier:   d,
		Now:        func() time.Time { return testNow },
	}
	return o, b, l, s, d
}

func TestHandleSuccess(t *testing.T) {
	o, _, _, _, d := newTestOrchestrator()

	res, err := o.Handle(context.Background(), Request{ChannelID: testChannel, User: "alice", Note: "great play"})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	wantURL := "https://youtu.be/XYZ123?t=1h23m44s"
	if res.URL != wantURL {
		t.Errorf("URL = %q, want %q", res.URL, wantURL)
	}
	if res.Text != "Clip created! "+wantURL {
		t.Errorf("Text = %q", res.Text)
	}
	if res.Offset != "1h23m44s" || res.BroadcastID != "XYZ123" || !res.StartTime.Equal(testStart) {
		t.Errorf("Result = %+v", res)
	}

	if len(d.sent) != 1 {
		t.Fatalf("dispatched %d messages, want 1", len(d.sent))
	}
	if d.sent[0].endpoint != "https://hooks.example.com/abc" {
		t.Errorf("endpoint = %q", d.sent[0].endpoint)
	}
	wantMsg := "**Clip Created by alice!**\n" + wantURL + "\n**Note:** great play"
	if d.sent[0].message != wantMsg {
		t.Errorf("message = %q, want %q", d.sent[0].message, wantMsg)
	}
}

func TestHandleCustomShareBase(t *testing.T) {
	o, _, _, _, _ := newTestOrchestrator()
	o.ShareBase = "http://share.test/"
	res, err := o.Handle(context.Background(), Request{ChannelID: testChannel})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if res.URL != "http://share.test/XYZ123?t=1h23m44s" {
		t.Errorf("URL = %q", res.URL)
	}
}

func TestHandleFailures(t *testing.T) {
	tests := []struct {
		name      string
		channel   string
		setup     func(o *Orchestrator, b *fakeBindings, l *fakeLive, s *fakeStartTimes)
		wantKind  Kind
		wantProbe bool
		wantFetch bool
	}{
		{
			name:     "invalid channel",
			channel:  "not-a-channel",
			wantKind: KindInvalidChannel,
		},
		{
			name:     "store not initialized",
			setup:    func(o *Orchestrator, _ *fakeBindings, _ *fakeLive, _ *fakeStartTimes) { o.Bindings = nil },
			wantKind: KindMisconfigured,
		},
		{
			name:     "not registered",
			channel:  "UCaaaaaaaaaaaaaaaaaaaaaa",
			wantKind: KindNotRegistered,
		},
		{
			name:     "store error",
			setup: func(_ *Orchestrator, b *fakeBindings, _ *fakeLive, _ *fakeStartTimes) {
				b.err = errors.New("connection refused")
			},
			wantKind: KindStoreUnavailable,
		},
		{
			name: "no live resolver",
			setup: func(o *Orchestrator, _ *fakeBindings, _ *fakeLive, _ *fakeStartTimes) {
				o.Live = nil
			},
			wantKind: KindMisconfigured,
		},
		{
			name: "offline",
			setup: func(_ *Orchestrator, _ *fakeBindings, l *fakeLive, _ *fakeStartTimes) {
				l.result = live.Result{Status: live.StatusOffline, HTTPStatus: 404}
			},
			wantKind:  KindOffline,
			wantProbe: true,
		},
		{
			name: "probe failed",
			setup: func(_ *Orchestrator, _ *fakeBindings, l *fakeLive, _ *fakeStartTimes) {
				l.result = live.Result{Status: live.StatusFailed, Err: errors.New("timeout")}
			},
			wantKind:  KindLiveCheckFailed,
			wantProbe: true,
		},
		{
			name: "metered lookup not configured",
			setup: func(o *Orchestrator, _ *fakeBindings, _ *fakeLive, _ *fakeStartTimes) {
				o.MeteredReady = func() bool { return false }
			},
			wantKind:  KindMisconfigured,
			wantProbe: true,
		},
		{
			name: "no start time resolver",
			setup: func(o *Orchestrator, _ *fakeBindings, _ *fakeLive, _ *fakeStartTimes) {
				o.StartTimes = nil
			},
			wantKind:  KindMisconfigured,
			wantProbe: true,
		},
		{
			name: "missing key from lookup",
			setup: func(_ *Orchestrator, _ *fakeBindings, _ *fakeLive, s *fakeStartTimes) {
				s.err = youtubeapi.ErrMissingAPIKey
			},
			wantKind:  KindMisconfigured,
			wantProbe: true,
			wantFetch: true,
		},
		{
			name: "start time unavailable",
			setup: func(_ *Orchestrator, _ *fakeBindings, _ *fakeLive, s *fakeStartTimes) {
				s.err = fmt.Errorf("lookup: %w", youtubeapi.ErrStartTimeUnavailable)
			},
			wantKind:  KindStartTimeUnavailable,
			wantProbe: true,
			wantFetch: true,
		},
		{
			name: "upstream failure",
			setup: func(_ *Orchestrator, _ *fakeBindings, _ *fakeLive, s *fakeStartTimes) {
				s.err = errors.New("quota exceeded")
			},
			wantKind:  KindUpstreamFailed,
			wantProbe: true,
			wantFetch: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, b, l, s, d := newTestOrchestrator()
			if tt.setup != nil {
				tt.setup(o, b, l, s)
			}
			ch := tt.channel
			if ch == "" {
				ch = testChannel
			}

			res, err := o.Handle(context.Background(), Request{ChannelID: ch})
			if res != nil {
				t.Errorf("Handle() result = %+v, want nil", res)
			}
			var cerr *Error
			if !errors.As(err, &cerr) {
				t.Fatalf("Handle() error = %v, want *Error", err)
			}
			if cerr.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", cerr.Kind, tt.wantKind)
			}
			if (l.calls > 0) != tt.wantProbe {
				t.Errorf("live probe calls = %d, want probe=%v", l.calls, tt.wantProbe)
			}
			if (s.calls > 0) != tt.wantFetch {
				t.Errorf("start time calls = %d, want fetch=%v", s.calls, tt.wantFetch)
			}
			if len(d.sent) != 0 {
				t.Errorf("dispatched %d messages on failure", len(d.sent))
			}
		})
	}
}

func TestHandleDoesNotWaitForDispatch(t *testing.T) {
	o, _, _, _, _ := newTestOrchestrator()
	bd := &blockingDispatcher{release: make(chan struct{}), done: make(chan struct{})}
	o.Notifier = bd

	finished := make(chan *Result, 1)
	go func() {
		res, err := o.Handle(context.Background(), Request{ChannelID: testChannel})
		if err != nil {
			t.Errorf("Handle() error = %v", err)
		}
		finished <- res
	}()

	select {
	case res := <-finished:
		if res == nil || res.URL != "https://youtu.be/XYZ123?t=1h23m44s" {
			t.Errorf("Handle() = %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Handle() blocked on notification delivery")
	}
	close(bd.release)
	<-bd.done
}

func TestNotificationText(t *testing.T) {
	tests := []struct {
		user, note, want string
	}{
		{"alice", "", "**Clip Created by alice!**\nL"},
		{"", "", "**Clip Created by User!**\nL"},
		{"bob", "  ", "**Clip Created by bob!**\nL"},
		{"bob", "wow", "**Clip Created by bob!**\nL\n**Note:** wow"},
	}
	for _, tt := range tests {
		if got := NotificationText(tt.user, "L", tt.note); got != tt.want {
			t.Errorf("NotificationText(%q, %q) = %q, want %q", tt.user, tt.note, got, tt.want)
		}
	}
}

func TestErrorFormatting(t *testing.T) {
	inner := errors.New("boom")
	err := &Error{Kind: KindUpstreamFailed, Err: inner}
	if !errors.Is(err, inner) {
		t.Error("Error does not unwrap")
	}
	if err.Error() != "clip: upstream_failed: boom" {
		t.Errorf("Error() = %q", err.Error())
	}
	if (&Error{Kind: KindOffline}).Error() != "clip: offline" {
		t.Error("Error() without cause")
	}
	if !KindOffline.Expected() || KindUpstreamFailed.Expected() {
		t.Error("Expected() classification wrong")
	}
}
