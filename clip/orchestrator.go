// Package clip turns a chat command into a timestamped share link: it checks
// the channel's binding, confirms the channel is live, resolves the
// broadcast's start time and posts the link to the bound endpoint.
package clip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/onnwee/clipstream/channel"
	"github.com/onnwee/clipstream/db"
	"github.com/onnwee/clipstream/live"
	"github.com/onnwee/clipstream/telemetry"
	"github.com/onnwee/clipstream/youtubeapi"
)

const (
	// DefaultUser names the requester when the chat bot sends no user.
	DefaultUser = "User"
	// DefaultShareBase is the short-link host used for share URLs.
	DefaultShareBase = "https://youtu.be"
)

// BindingLookup finds the binding registered for a channel.
type BindingLookup interface {
	GetBinding(ctx context.Context, channelID string) (*db.Binding, error)
}

// LiveResolver reports whether a channel is live and which broadcast it is showing.
type LiveResolver interface {
	Resolve(ctx context.Context, channelID string) live.Result
}

// StartTimeResolver returns the actual start time of a broadcast.
type StartTimeResolver interface {
	Resolve(ctx context.Context, broadcastID string) (time.Time, error)
}

// Dispatcher delivers a message without blocking the caller.
type Dispatcher interface {
	Dispatch(ctx context.Context, endpoint, message string)
}

// Request is a single clip command.
type Request struct {
	ChannelID string
	User      string
	Note      string
}

// Result describes a created clip.
type Result struct {
	BroadcastID string
	StartTime   time.Time
	Offset      string
	URL         string
	Text        string
}

// Orchestrator runs the clip pipeline. Bindings, Live and StartTimes are
// required; a nil one is reported as a misconfiguration.
type Orchestrator struct {
	Bindings   BindingLookup
	Live       LiveResolver
	StartTimes StartTimeResolver
	Notifier   Dispatcher

	// MeteredReady reports whether the metered lookup has credentials. When
	// nil the lookup itself reports a missing key.
	MeteredReady func() bool
	ShareBase    string
	Now          func() time.Time
}

// Handle runs the pipeline for req. Every failure is returned as *Error and
// nothing is retried. The notification is queued after the link is computed and
// never affects the result.
func (o *Orchestrator) Handle(ctx context.Context, req Request) (res *Result, err error) {
	ctx, span := telemetry.StartSpan(ctx, "clip", "clip.Handle")
	defer span.End()
	start := time.Now()
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "clip"), slog.String("channel_id", req.ChannelID))

	defer func() {
		outcome := "ok"
		var cerr *Error
		if errors.As(err, &cerr) {
			outcome = cerr.Kind.String()
			if !cerr.Kind.Expected() {
				telemetry.RecordError(span, err)
			}
		} else {
			telemetry.SetSpanSuccess(span)
		}
		telemetry.CountClip(outcome)
		if telemetry.ClipDuration != nil {
			telemetry.ClipDuration.Observe(time.Since(start).Seconds())
		}
	}()

	if !channel.IsChannelID(req.ChannelID) {
		return nil, fail(KindInvalidChannel, fmt.Errorf("invalid channel id %q", req.ChannelID))
	}

	// LookupBinding
	if o.Bindings == nil {
		logger.Error("binding store not initialized")
		return nil, fail(KindMisconfigured, errors.New("binding store not initialized"))
	}
	binding, err := o.Bindings.GetBinding(ctx, req.ChannelID)
	switch {
	case errors.Is(err, db.ErrBindingNotFound):
		logger.Warn("channel not registered")
		return nil, fail(KindNotRegistered, err)
	case err != nil:
		logger.Error("binding lookup failed", slog.Any("err", err))
		return nil, fail(KindStoreUnavailable, err)
	}

	// CheckLive
	if o.Live == nil {
		logger.Error("live resolver not initialized")
		return nil, fail(KindMisconfigured, errors.New("live resolver not initialized"))
	}
	probe := o.Live.Resolve(ctx, req.ChannelID)
	switch probe.Status {
	case live.StatusLive:
	case live.StatusOffline:
		logger.Info("no live stream found", slog.Int("http_status", probe.HTTPStatus))
		return nil, fail(KindOffline, nil)
	default:
		logger.Error("live check failed", slog.Any("err", probe.Err))
		return nil, fail(KindLiveCheckFailed, probe.Err)
	}
	logger = logger.With(slog.String("broadcast_id", probe.BroadcastID))

	// ResolveStartTime
	if o.MeteredReady != nil && !o.MeteredReady() {
		logger.Error("youtube api key missing")
		return nil, fail(KindMisconfigured, youtubeapi.ErrMissingAPIKey)
	}
	if o.StartTimes == nil {
		logger.Error("start time resolver not initialized")
		return nil, fail(KindMisconfigured, errors.New("start time resolver not initialized"))
	}
	startTime, err := o.StartTimes.Resolve(ctx, probe.BroadcastID)
	switch {
	case errors.Is(err, youtubeapi.ErrMissingAPIKey):
		logger.Error("youtube api key missing")
		return nil, fail(KindMisconfigured, err)
	case errors.Is(err, youtubeapi.ErrStartTimeUnavailable):
		logger.Info("start time not available, stream may not be live yet")
		return nil, fail(KindStartTimeUnavailable, err)
	case err != nil:
		logger.Error("start time lookup failed", slog.Any("err", err))
		return nil, fail(KindUpstreamFailed, err)
	}

	// ComputeOffset
	offset := FormatOffset(startTime, o.now())
	link := ShareURL(o.shareBase(), probe.BroadcastID, offset)

	// Dispatch
	if o.Notifier != nil && binding.NotificationEndpoint != "" {
		o.Notifier.Dispatch(ctx, binding.NotificationEndpoint, NotificationText(req.User, link, req.Note))
	}

	logger.Info("clip created", slog.String("offset", offset))
	return &Result{
		BroadcastID: probe.BroadcastID,
		StartTime:   startTime,
		Offset:      offset,
		URL:         link,
		Text:        "Clip created! " + link,
	}, nil
}

// NotificationText formats the message posted to the bound endpoint.
func NotificationText(user, link, note string) string {
	user = strings.TrimSpace(user)
	if user == "" {
		user = DefaultUser
	}
	msg := fmt.Sprintf("**Clip Created by %s!**\n%s", user, link)
	if note = strings.TrimSpace(note); note != "" {
		msg += "\n**Note:** " + note
	}
	return msg
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o *Orchestrator) shareBase() string {
	if o.ShareBase != "" {
		return o.ShareBase
	}
	return DefaultShareBase
}
