// Package api serves tally over HTTP: platform webhooks, the AG-UI web
// chat and a health check.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/spetersoncode/tally/internal/channel"
	"github.com/spetersoncode/tally/internal/channel/agui"
	"github.com/spetersoncode/tally/internal/domain"
)

// maxBodyBytes caps webhook request bodies.
const maxBodyBytes = 1 << 20

// Router processes inbound messages.
type Router interface {
	Handle(ctx context.Context, msg domain.InboundMessage) error
	HandleWith(ctx context.Context, msg domain.InboundMessage, out channel.Sender) error
}

// Config holds the server configuration.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	HandlerTimeout  time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string

	// WebhookToken, when set, must accompany every webhook request as a
	// bearer token.
	WebhookToken string

	// Channels limits the webhook channels accepted. Empty accepts any.
	Channels []string
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    90 * time.Second,
		IdleTimeout:     60 * time.Second,
		HandlerTimeout:  60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		CORSOrigins:     []string{"*"},
	}
}

// Server is the HTTP server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	config     Config
	logger     *slog.Logger
	gateway    Router

	// base outlives requests; webhook hand-offs run under it.
	base       context.Context
	cancelBase context.CancelFunc
	background sync.WaitGroup
}

// New creates a Server that hands messages to gw.
func New(cfg Config, gw Router, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	base, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:     cfg,
		logger:     logger,
		gateway:    gw,
		base:       base,
		cancelBase: cancel,
	}

	s.router = s.setupRouter()
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	if s.config.HandlerTimeout > 0 {
		r.Use(middleware.Timeout(s.config.HandlerTimeout))
	}

	if len(s.config.CORSOrigins) > 0 {
		corsMiddleware := cors.New(cors.Options{
			AllowedOrigins: s.config.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		})
		r.Use(corsMiddleware.Handler)
	}

	r.Get("/health", s.handleHealth)
	r.Post("/webhook/{channel}", s.handleWebhook)
	r.Method(http.MethodPost, "/api/chat", agui.NewHandler(s.gateway, s.logger))

	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// loggingMiddleware logs HTTP requests using structured logging.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleWebhook accepts a normalized message from a platform adapter and
// processes it after responding. Replies go out through the channel's
// callback, not this response.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "channel")
	if len(s.config.Channels) > 0 && !slices.Contains(s.config.Channels, name) {
		writeError(w, http.StatusNotFound, "unknown channel")
		return
	}
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var msg domain.InboundMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	msg.Channel = name
	if err := validateMessage(msg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now()
	}

	log := s.logger.With("channel", msg.Channel, "source_id", msg.SourceID,
		"request_id", middleware.GetReqID(r.Context()))

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		if err := s.gateway.Handle(s.base, msg); err != nil {
			log.Error("message handling failed", "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) authorized(r *http.Request) bool {
	if s.config.WebhookToken == "" {
		return true
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.config.WebhookToken)) == 1
}

func validateMessage(msg domain.InboundMessage) error {
	switch {
	case msg.SourceID == "":
		return errors.New("sourceId is required")
	case msg.SenderID == "":
		return errors.New("senderId is required")
	case !msg.HasText() && !msg.HasImage():
		return errors.New("text or imageRef is required")
	}
	return nil
}

// ListenAndServe serves until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("starting http server", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, then waits for webhook hand-offs to
// finish. Hand-offs still running when the timeout expires are cancelled.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")

	shutdownCtx := ctx
	if s.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()
	}

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.cancelBase()
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	done := make(chan struct{})
	go func() {
		s.background.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		s.logger.Warn("cancelling in-flight messages")
		s.cancelBase()
		<-done
	}
	s.cancelBase()

	s.logger.Info("http server stopped")
	return nil
}

// Wait blocks until in-flight webhook hand-offs finish.
func (s *Server) Wait() {
	s.background.Wait()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
