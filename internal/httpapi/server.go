package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/ent0n29/chatrelay/internal/config"
	"github.com/ent0n29/chatrelay/internal/observability"
	"github.com/ent0n29/chatrelay/internal/protocol"
	"github.com/ent0n29/chatrelay/internal/session"
	"github.com/ent0n29/chatrelay/internal/stream"
)

// maxRequestBody bounds the inbound chat payload.
const maxRequestBody = 1 << 20

type ChatService interface {
	Chat(ctx context.Context, req protocol.ChatRequest, emit stream.EmitFunc) (stream.Outcome, error)
	BackendName() string
}

type SessionReader interface {
	Get(id string) (*session.Session, error)
}

type Server struct {
	cfg      config.Config
	chat     ChatService
	sessions SessionReader
	metrics  *observability.Metrics
	log      zerolog.Logger // base for request loggers; carries no component field
	upgrader websocket.Upgrader
}

func New(cfg config.Config, chat ChatService, sessions SessionReader, metrics *observability.Metrics, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		chat:     chat,
		sessions: sessions,
		metrics:  metrics,
		log:      logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.originAllowed,
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(s.log))
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Post("/chat", s.handleChat)
	r.Get("/chat/ws", s.handleChatWS)
	r.Get("/v1/sessions/{id}", s.handleGetSession)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"backend": s.chat.BackendName(),
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req protocol.ChatRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "streaming_unsupported", err.Error())
		return
	}
	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	sse.flusher.Flush()

	logger := hlog.FromRequest(r)
	ctx := logger.WithContext(r.Context())
	if _, err := s.chat.Chat(ctx, req, sse.WriteEvent); err != nil {
		logger.Debug().Err(err).Msg("chat stream ended with error")
	}
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}
	sess, err := s.sessions.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

// requestLogger logs one line per request with the chi request id.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger := hlog.FromRequest(r).With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
		r = r.WithContext(logger.WithContext(r.Context()))

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.Info().
			Str("component", "httpapi").
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		// Non-browser clients often omit Origin.
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
