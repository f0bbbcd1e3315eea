// Package api provides the HTTP surface for TripNavi.
//
// It exposes the LINE webhook callback, serves generated audio files
// under the public base URL, and offers a health endpoint. Signature
// verification happens at this boundary; the bot only ever sees the
// extracted (userID, text, replyToken) tuple.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
	"github.com/tripnavi/tripnavi/internal/models"
	"github.com/tripnavi/tripnavi/internal/util"
)

// Default configuration constants
const (
	// DefaultAddr is the default listen address.
	DefaultAddr = ":8000"
	// loadingSeconds is the duration hint for the chat loading indicator.
	loadingSeconds int32 = 20
)

// MessageHandler processes one inbound message and returns the reply set.
type MessageHandler interface {
	HandleMessage(ctx context.Context, userID, text string) (models.Reply, error)
}

// dispatcher abstracts the LINE messaging API calls the server makes.
type dispatcher interface {
	Reply(replyToken string, messages []messaging_api.MessageInterface) error
	ShowLoading(chatID string, seconds int32) error
}

// lineDispatcher adapts the LINE SDK client to dispatcher.
type lineDispatcher struct {
	client *messaging_api.MessagingApiAPI
}

func (d lineDispatcher) Reply(replyToken string, messages []messaging_api.MessageInterface) error {
	_, err := d.client.ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages:   messages,
	})
	return err
}

func (d lineDispatcher) ShowLoading(chatID string, seconds int32) error {
	_, err := d.client.ShowLoadingAnimation(&messaging_api.ShowLoadingAnimationRequest{
		ChatId:         chatID,
		LoadingSeconds: seconds,
	})
	return err
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr          string
	ChannelSecret string
	ChannelToken  string
	PublicBaseURL string
	AudioDir      string
}

// Option defines a functional option for API server configuration.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithChannelSecret sets the LINE channel secret used for signature verification.
func WithChannelSecret(secret string) Option {
	return func(o *Opts) { o.ChannelSecret = secret }
}

// WithChannelToken sets the LINE channel access token.
func WithChannelToken(token string) Option {
	return func(o *Opts) { o.ChannelToken = token }
}

// WithPublicBaseURL sets the externally reachable base URL audio links are built from.
func WithPublicBaseURL(u string) Option {
	return func(o *Opts) { o.PublicBaseURL = u }
}

// WithAudioDir sets the directory generated audio files are served from.
func WithAudioDir(dir string) Option {
	return func(o *Opts) { o.AudioDir = dir }
}

// Server handles webhook callbacks and audio retrieval.
type Server struct {
	handler       MessageHandler
	dispatch      dispatcher
	channelSecret string
	publicBaseURL string
	audioDir      string
	addr          string
}

// NewServer creates the API server around a message handler.
func NewServer(handler MessageHandler, opts ...Option) (*Server, error) {
	cfg := Opts{Addr: DefaultAddr, AudioDir: "audio"}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.ChannelSecret == "" {
		return nil, fmt.Errorf("LINE channel secret not set")
	}
	if cfg.ChannelToken == "" {
		return nil, fmt.Errorf("LINE channel access token not set")
	}

	client, err := messaging_api.NewMessagingApiAPI(cfg.ChannelToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create messaging API client: %w", err)
	}

	slog.Debug("api.NewServer: server created", "addr", cfg.Addr, "publicBaseURL", cfg.PublicBaseURL, "audioDir", cfg.AudioDir)
	return &Server{
		handler:       handler,
		dispatch:      lineDispatcher{client: client},
		channelSecret: cfg.ChannelSecret,
		publicBaseURL: cfg.PublicBaseURL,
		audioDir:      cfg.AudioDir,
		addr:          cfg.Addr,
	}, nil
}

// Handler returns the HTTP handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", s.callbackHandler)
	mux.HandleFunc("/audio/", s.audioHandler)
	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	slog.Info("api.Run: TripNavi API listening", "addr", s.addr)
	return http.ListenAndServe(s.addr, s.Handler())
}

// callbackHandler receives the signed LINE webhook and processes each
// text message event as one synchronous call chain.
func (s *Server) callbackHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	cb, err := webhook.ParseRequest(s.channelSecret, r)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			slog.Warn("api.callbackHandler: invalid webhook signature")
			w.WriteHeader(http.StatusBadRequest)
		} else {
			slog.Error("api.callbackHandler: failed to parse webhook request", "error", err)
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}

	for _, event := range cb.Events {
		s.processEvent(r.Context(), event)
	}
	w.WriteHeader(http.StatusOK)
}

// processEvent handles a single webhook event. Errors are logged and
// converted to best-effort replies; they never propagate to the caller.
func (s *Server) processEvent(ctx context.Context, event webhook.EventInterface) {
	e, ok := event.(webhook.MessageEvent)
	if !ok {
		slog.Debug("api.processEvent: skipping non-message event", "type", fmt.Sprintf("%T", event))
		return
	}
	msg, ok := e.Message.(webhook.TextMessageContent)
	if !ok {
		slog.Debug("api.processEvent: skipping non-text message", "type", e.Message.GetType())
		return
	}
	src, ok := e.Source.(webhook.UserSource)
	if !ok || src.UserId == "" {
		slog.Debug("api.processEvent: skipping event without user source")
		return
	}

	// Best-effort loading indicator; failure must not abort the turn.
	if err := s.dispatch.ShowLoading(src.UserId, loadingSeconds); err != nil {
		slog.Warn("api.processEvent: failed to show loading animation", "error", err, "userID", src.UserId)
	}

	reply, err := s.handler.HandleMessage(ctx, src.UserId, msg.Text)
	if err != nil {
		slog.Error("api.processEvent: message handling failed, dropping turn", "error", err, "userID", src.UserId)
		return
	}

	if err := s.dispatch.Reply(e.ReplyToken, s.buildMessages(reply)); err != nil {
		slog.Error("api.processEvent: failed to send reply", "error", err, "userID", src.UserId)
		return
	}
	slog.Info("api.processEvent: reply sent", "userID", src.UserId, "hasAudio", reply.HasAudio())
}

// buildMessages converts a bot reply into the outbound LINE message set:
// one text message, plus one audio message when audio is present.
func (s *Server) buildMessages(reply models.Reply) []messaging_api.MessageInterface {
	messages := []messaging_api.MessageInterface{
		&messaging_api.TextMessage{Text: reply.Text},
	}
	if reply.HasAudio() {
		messages = append(messages, &messaging_api.AudioMessage{
			OriginalContentUrl: s.audioURL(reply.AudioName),
			Duration:           reply.AudioDuration,
		})
	}
	return messages
}

// audioURL builds the publicly reachable URL for a stored audio file.
func (s *Server) audioURL(name string) string {
	return s.publicBaseURL + "/audio/" + name
}

// audioHandler serves previously generated audio files by name.
func (s *Server) audioHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	name := filepath.Base(r.URL.Path)
	if !util.IsAudioFileName(name) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	http.ServeFile(w, r, filepath.Join(s.audioDir, name))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
