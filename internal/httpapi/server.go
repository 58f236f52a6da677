package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/noamsh/donna/internal/config"
	"github.com/noamsh/donna/internal/messenger"
	"github.com/noamsh/donna/internal/observability"
	"github.com/noamsh/donna/internal/pending"
	"github.com/noamsh/donna/internal/policy"
	"github.com/noamsh/donna/internal/protocol"
	"github.com/noamsh/donna/internal/transcribe"
)

// MessageHandler is the conversation core. It always returns a reply.
type MessageHandler interface {
	HandleMessage(ctx context.Context, userKey, body string) string
}

// MediaFetcher downloads an inbound attachment.
type MediaFetcher interface {
	Fetch(ctx context.Context, url, contentType string) (transcribe.Media, error)
}

// Transcriber turns an attachment into text.
type Transcriber interface {
	Transcribe(ctx context.Context, m transcribe.Media) (string, error)
}

// ReplySender delivers a reply out of band, used when the reply mode is rest.
type ReplySender interface {
	Send(ctx context.Context, to, text string) error
}

type Server struct {
	cfg         config.Config
	handler     MessageHandler
	store       pending.Store
	fetcher     MediaFetcher
	transcriber Transcriber
	sender      ReplySender
	metrics     *observability.Metrics
	upgrader    websocket.Upgrader
}

func New(cfg config.Config, handler MessageHandler, store pending.Store, fetcher MediaFetcher, transcriber Transcriber, sender ReplySender, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:         cfg,
		handler:     handler,
		store:       store,
		fetcher:     fetcher,
		transcriber: transcriber,
		sender:      sender,
		metrics:     metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Default: only allow browser websocket connections from the same origin.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/webhook", s.handleWebhook)
	r.Get("/debug/pending", s.handlePendingStats)
	r.Get("/debug/latency", s.handleLatency)
	r.Get("/v1/chat/ws", s.handleChatWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"reply_mode": s.cfg.ReplyMode,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.Stats(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "store_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// handleWebhook receives one Twilio message POST. Voice notes are transcribed
// into the body before dispatch; a reply always goes out, even on internal
// failure.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_form", err.Error())
		return
	}
	from := strings.TrimSpace(r.PostFormValue("From"))
	if from == "" {
		respondError(w, http.StatusBadRequest, "missing_sender", "From is required")
		return
	}
	body := strings.TrimSpace(r.PostFormValue("Body"))

	if text, ok := s.transcribeInbound(r); ok {
		body = text
	}

	redacted, _ := policy.RedactPII(body)
	log.Printf("httpapi: inbound from %s: %q", policy.MaskUserKey(from), redacted)

	reply := s.handler.HandleMessage(r.Context(), from, body)

	if s.cfg.ReplyMode == "rest" && s.sender != nil {
		if err := s.sender.Send(r.Context(), from, reply); err != nil {
			log.Printf("httpapi: rest reply to %s failed: %v", policy.MaskUserKey(from), err)
		}
		// Empty TwiML so Twilio does not send a second message.
		reply = ""
	}
	if err := messenger.WriteTwiML(w, reply); err != nil {
		log.Printf("httpapi: twiml write failed: %v", err)
	}
}

// transcribeInbound returns the transcription of the first audio attachment,
// if the message carries one and transcription is configured.
func (s *Server) transcribeInbound(r *http.Request) (string, bool) {
	if s.fetcher == nil || s.transcriber == nil {
		return "", false
	}
	numMedia, _ := strconv.Atoi(r.PostFormValue("NumMedia"))
	if numMedia <= 0 {
		return "", false
	}
	mediaURL := strings.TrimSpace(r.PostFormValue("MediaUrl0"))
	contentType := r.PostFormValue("MediaContentType0")
	if mediaURL == "" || !strings.HasPrefix(strings.ToLower(contentType), "audio/") {
		return "", false
	}

	media, err := s.fetcher.Fetch(r.Context(), mediaURL, contentType)
	if err != nil {
		log.Printf("httpapi: media fetch failed: %v", err)
		return "", false
	}
	text, err := s.transcriber.Transcribe(r.Context(), media)
	if err != nil {
		log.Printf("httpapi: transcription failed: %v", err)
		return "", false
	}
	return text, text != ""
}

func (s *Server) handleLatency(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.LatencySnapshot())
}

func (s *Server) handlePendingStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// handleChatWS serves the dev chat console: a websocket that feeds typed
// messages through the same dispatcher the webhook uses.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Minute))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Minute))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		msg, err := protocol.ParseClientMessage(data)
		if err != nil {
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			_ = conn.WriteJSON(protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				Code:   "invalid_client_message",
				Detail: err.Error(),
			})
			continue
		}

		reply := s.handler.HandleMessage(r.Context(), msg.UserKey, msg.Body)
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(protocol.AssistantReply{
			Type:      protocol.TypeAssistantReply,
			UserKey:   msg.UserKey,
			MessageID: uuid.NewString(),
			Body:      reply,
			TSMs:      time.Now().UnixMilli(),
		}); err != nil {
			return
		}
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
