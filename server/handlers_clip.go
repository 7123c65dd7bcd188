package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/onnwee/clipstream/clip"
	"github.com/onnwee/clipstream/telemetry"
)

// clipMessages is the text chat bots echo back for each failure kind.
var clipMessages = map[clip.Kind]string{
	clip.KindInvalidChannel:       "Error: Invalid channel ID.",
	clip.KindNotRegistered:        "Error: Channel not registered.",
	clip.KindStoreUnavailable:     "Error: Database lookup failed.",
	clip.KindOffline:              "Error: Stream is offline or not found.",
	clip.KindLiveCheckFailed:      "Error: Failed to check stream status.",
	clip.KindMisconfigured:        "Error: Server misconfiguration.",
	clip.KindStartTimeUnavailable: "Error: Stream details not available.",
	clip.KindUpstreamFailed:       "Error: Failed to fetch stream details.",
}

const genericClipError = "Error: Failed to create clip."

// ClipMessage returns the user-visible text for a clip failure.
func ClipMessage(err error) string {
	var cerr *clip.Error
	if errors.As(err, &cerr) {
		if msg, ok := clipMessages[cerr.Kind]; ok {
			return msg
		}
	}
	return genericClipError
}

// HandleClip runs a clip request. Every outcome is 200 text/plain because chat
// bots relay the body verbatim and hide non-2xx responses.
func (h *Handlers) HandleClip(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Clips == nil {
		telemetry.LoggerWithCorr(r.Context()).Error("clip orchestrator not configured", slog.String("component", "clip"))
		writeText(w, http.StatusOK, clipMessages[clip.KindMisconfigured])
		return
	}

	q := r.URL.Query()
	user := q.Get("user")
	if user == "" {
		user = clip.DefaultUser
	}
	res, err := h.Clips.Handle(r.Context(), clip.Request{
		ChannelID: q.Get("channel_id"),
		User:      user,
		Note:      q.Get("message"),
	})
	if err != nil {
		writeText(w, http.StatusOK, ClipMessage(err))
		return
	}
	writeText(w, http.StatusOK, res.Text)
}
