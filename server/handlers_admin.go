package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/clipstream/channel"
	"github.com/onnwee/clipstream/crypto"
	"github.com/onnwee/clipstream/db"
	"github.com/onnwee/clipstream/telemetry"
)

type bindingView struct {
	ChannelID  string    `json:"channel_id"`
	Email      string    `json:"email"`
	ChannelURL string    `json:"channel_url"`
	Endpoint   string    `json:"endpoint,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func viewOf(b db.Binding) bindingView {
	return bindingView{
		ChannelID:  b.ChannelID,
		Email:      b.Email,
		ChannelURL: b.ChannelURL,
		Endpoint:   crypto.RedactURL(b.NotificationEndpoint),
		CreatedAt:  b.CreatedAt,
	}
}

// HandleAdminBindings lists registered channels, newest first.
func (h *Handlers) HandleAdminBindings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Bindings == nil {
		writeDetail(w, http.StatusServiceUnavailable, "Database not initialized.")
		return
	}
	list, err := h.Bindings.ListBindings(r.Context(), true)
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("list bindings failed", slog.Any("err", err), slog.String("component", "admin"))
		writeDetail(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	views := make([]bindingView, 0, len(list))
	for _, b := range list {
		views = append(views, viewOf(b))
	}
	writeJSON(w, http.StatusOK, map[string]any{"total": len(views), "bindings": views})
}

// HandleAdminTestNotification posts a test message to a channel's endpoint
// and reports the delivery result synchronously.
func (h *Handlers) HandleAdminTestNotification(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Bindings == nil || h.Notifier == nil {
		writeDetail(w, http.StatusServiceUnavailable, "Server misconfiguration.")
		return
	}
	channelID, ok := channel.ExtractChannelID(r.URL.Query().Get("channel_id"))
	if !ok {
		writeDetail(w, http.StatusBadRequest, "Invalid channel ID.")
		return
	}
	b, err := h.Bindings.GetBinding(r.Context(), channelID)
	if errors.Is(err, db.ErrBindingNotFound) {
		writeDetail(w, http.StatusNotFound, "Channel not registered.")
		return
	}
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "Database lookup failed.")
		return
	}
	if err := h.Notifier.Send(r.Context(), b.NotificationEndpoint, "**Test notification** for "+b.ChannelURL); err != nil {
		telemetry.LoggerWithCorr(r.Context()).Warn("test notification failed", slog.Any("err", err), slog.String("channel_id", channelID))
		writeJSON(w, http.StatusBadGateway, map[string]string{"status": "failed", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent", "channel_id": channelID})
}
