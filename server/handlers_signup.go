package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/gookit/validate"

	"github.com/onnwee/clipstream/channel"
	"github.com/onnwee/clipstream/crypto"
	"github.com/onnwee/clipstream/db"
	"github.com/onnwee/clipstream/telemetry"
)

const maxSignupBody = 16 << 10

// signupRequest accepts both the current field names and the legacy ones
// older landing pages post.
type signupRequest struct {
	Email                string `json:"email"`
	ChannelURLOrID       string `json:"channelUrlOrId"`
	NotificationEndpoint string `json:"notificationEndpoint"`
	YouTubeChannelURL    string `json:"youtubeChannelUrl"`
	DiscordWebhookURL    string `json:"discordWebhookUrl"`
}

func (s signupRequest) channelInput() string {
	if s.ChannelURLOrID != "" {
		return s.ChannelURLOrID
	}
	return s.YouTubeChannelURL
}

func (s signupRequest) endpoint() string {
	if s.NotificationEndpoint != "" {
		return s.NotificationEndpoint
	}
	return s.DiscordWebhookURL
}

// HandleSignup binds a channel to a notification endpoint. Re-registering a
// channel replaces its binding.
func (h *Handlers) HandleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	logger := telemetry.LoggerWithCorr(r.Context()).With(slog.String("component", "signup"))

	var req signupRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSignupBody)).Decode(&req); err != nil {
		telemetry.CountSignup("invalid")
		writeDetail(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	channelID, ok := channel.ExtractChannelID(req.channelInput())
	if !ok {
		telemetry.CountSignup("invalid")
		writeDetail(w, http.StatusBadRequest, "Invalid YouTube Channel ID. Must start with 'UC'.")
		return
	}
	email := strings.TrimSpace(req.Email)
	if !validate.IsEmail(email) {
		telemetry.CountSignup("invalid")
		writeDetail(w, http.StatusBadRequest, "Invalid email address.")
		return
	}
	endpoint := strings.TrimSpace(req.endpoint())
	if !validEndpoint(endpoint) {
		telemetry.CountSignup("invalid")
		writeDetail(w, http.StatusBadRequest, "Invalid notification endpoint URL.")
		return
	}

	if h.Bindings == nil {
		telemetry.CountSignup("error")
		logger.Error("signup rejected, database not initialized")
		writeDetail(w, http.StatusInternalServerError, "Database not initialized.")
		return
	}

	b := db.Binding{
		ChannelID:            channelID,
		Email:                email,
		ChannelURL:           channel.ChannelURL(channelID),
		NotificationEndpoint: endpoint,
	}
	if err := h.Bindings.PutBinding(r.Context(), b); err != nil {
		telemetry.CountSignup("error")
		logger.Error("store binding failed", slog.Any("err", err), slog.String("channel_id", channelID))
		writeDetail(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	telemetry.CountSignup("ok")
	logger.Info("channel registered",
		slog.String("channel_id", channelID),
		slog.String("email", email),
		slog.String("endpoint", crypto.RedactURL(endpoint)))
	writeJSON(w, http.StatusOK, map[string]string{"message": "Signup successful", "channel_id": channelID})
}

func validEndpoint(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "https" || u.Scheme == "http"
}
