// Package server exposes the HTTP API: authentication, session lifecycle,
// answer evaluation, standalone speech synthesis, and WebRTC signaling.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/pion/webrtc/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fluentive/fluentive/internal/auth"
	"github.com/fluentive/fluentive/internal/evaluate"
	"github.com/fluentive/fluentive/internal/health"
	"github.com/fluentive/fluentive/internal/observe"
	"github.com/fluentive/fluentive/internal/session"
	"github.com/fluentive/fluentive/internal/synthesis"
)

// maxUploadSize caps multipart request bodies on the check endpoint. Spoken
// answers are short clips; 10 MiB leaves generous headroom.
const maxUploadSize = 10 << 20

// Server routes API requests to the evaluation pipeline and its supporting
// services.
type Server struct {
	log      *slog.Logger
	auth     *auth.Service
	sessions *session.Service
	pipeline *evaluate.Pipeline
	synth    *synthesis.Synthesizer
	metrics  *observe.Metrics
	checks   *health.Handler
	router   *mux.Router

	speechOff bool

	mu    sync.Mutex
	peers map[*webrtc.PeerConnection]struct{}
}

// Option configures a [Server].
type Option func(*Server)

// WithSynthesizer enables the standalone /api/tts endpoint.
func WithSynthesizer(s *synthesis.Synthesizer) Option {
	return func(srv *Server) { srv.synth = s }
}

// WithMetrics attaches request instrumentation and the /metrics endpoint.
func WithMetrics(m *observe.Metrics) Option {
	return func(srv *Server) { srv.metrics = m }
}

// WithHealth registers the /healthz and /readyz endpoints.
func WithHealth(h *health.Handler) Option {
	return func(srv *Server) { srv.checks = h }
}

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(srv *Server) { srv.log = log }
}

// WithSpeechDisabled suppresses synthesis on check responses. Clients can
// still request audio explicitly through /api/tts.
func WithSpeechDisabled() Option {
	return func(srv *Server) { srv.speechOff = true }
}

// New assembles the API server.
func New(authSvc *auth.Service, sessions *session.Service, pipeline *evaluate.Pipeline, opts ...Option) *Server {
	s := &Server{
		log:      slog.Default(),
		auth:     authSvc,
		sessions: sessions,
		pipeline: pipeline,
		peers:    make(map[*webrtc.PeerConnection]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	if s.metrics != nil {
		r.Use(mux.MiddlewareFunc(observe.Middleware(s.metrics)))
		r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}
	if s.checks != nil {
		s.checks.Register(r)
	}
	r.HandleFunc("/webrtc/offer", s.handleOffer).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auth/signup", s.handleSignup).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/tts", s.handleTTS).Methods(http.MethodPost)

	priv := api.NewRoute().Subrouter()
	priv.Use(mux.MiddlewareFunc(s.auth.Middleware))
	priv.HandleFunc("/auth/me", s.handleMe).Methods(http.MethodGet)
	priv.HandleFunc("/check", s.handleCheck).Methods(http.MethodPost)
	priv.HandleFunc("/session/start", s.handleSessionStart).Methods(http.MethodPost)
	priv.HandleFunc("/session/end", s.handleSessionEnd).Methods(http.MethodPost)
	priv.HandleFunc("/session/history", s.handleSessionHistory).Methods(http.MethodGet)
	priv.HandleFunc("/session/{id}", s.handleSessionGet).Methods(http.MethodGet)
	return r
}

// Close tears down any WebRTC peer connections still open.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for pc := range s.peers {
		pc.Close()
	}
	clear(s.peers)
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("server: encoding response failed", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
