// Package server exposes the question pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/profileqa/internal/clarify"
	"github.com/haasonsaas/profileqa/internal/classifier"
	"github.com/haasonsaas/profileqa/internal/config"
	"github.com/haasonsaas/profileqa/internal/evaluator"
	"github.com/haasonsaas/profileqa/internal/notify"
	"github.com/haasonsaas/profileqa/internal/observability"
	"github.com/haasonsaas/profileqa/internal/orchestrator"
)

const maxBodyBytes = 1 << 20

// Processor is the part of the orchestrator the server calls.
type Processor interface {
	Process(ctx context.Context, q orchestrator.Query) *orchestrator.Result
	Stats() orchestrator.Stats
}

// Critic scores a finished answer.
type Critic interface {
	SelfCritique(ctx context.Context, query, answer string, toolsUsed []string, contextQuality string) evaluator.Critique
}

// Clarifier builds follow-up questions for an ambiguous query.
type Clarifier interface {
	Generate(ctx context.Context, query string, qctx classifier.QueryContext) clarify.Set
}

// Classifier classifies a query before the clarification analysis.
type Classifier interface {
	Classify(ctx context.Context, query string, qctx classifier.QueryContext) classifier.Classification
}

// notifyStatser is implemented by notifiers that keep delivery stats.
type notifyStatser interface {
	Stats() notify.Stats
}

// Server serves the chat API, stats, health and metrics.
type Server struct {
	proc     Processor
	notifier notify.Notifier
	critic   Critic
	clar     Clarifier
	cls      Classifier
	gatherer prometheus.Gatherer
	cfg      config.ServerConfig
	logger   *observability.Logger

	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(l *observability.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithNotifier enables the notification test endpoint.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Server) { s.notifier = n }
}

// WithCritic enables the evaluation endpoint.
func WithCritic(c Critic) Option {
	return func(s *Server) { s.critic = c }
}

// WithClarifier enables the clarification endpoint. cls may be nil, in which
// case the analysis skips the classification confidence rule.
func WithClarifier(c Clarifier, cls Classifier) Option {
	return func(s *Server) {
		s.clar = c
		s.cls = cls
	}
}

// WithGatherer serves metrics from g instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// New creates a Server for proc.
func New(proc Processor, cfg config.ServerConfig, opts ...Option) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	s := &Server{
		proc:     proc,
		cfg:      cfg,
		gatherer: prometheus.DefaultGatherer,
		logger:   observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler wrapped in the request middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat", s.handleChat)
	mux.HandleFunc("POST /v1/evaluate", s.handleEvaluate)
	mux.HandleFunc("POST /v1/clarify", s.handleClarify)
	mux.HandleFunc("GET /v1/stats", s.handleStats)
	mux.HandleFunc("POST /v1/notify/test", s.handleNotifyTest)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET "+s.cfg.MetricsPath, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return requestIDMiddleware(loggingMiddleware(s.logger)(mux))
}

// Run listens on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	return s.Serve(ctx, listener)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(listener)
	}()
	s.logger.Info(ctx, "starting http server", "addr", listener.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn(shutdownCtx, "http server shutdown error", "error", err)
		return err
	}
	return nil
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var q orchestrator.Query
	if err := decodeJSON(w, r, &q); err != nil {
		s.jsonError(w, r, err.Error(), http.StatusBadRequest)
		return
	}
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		s.jsonError(w, r, "query is required", http.StatusBadRequest)
		return
	}
	if q.Context.SessionID == "" {
		q.Context.SessionID = r.Header.Get("X-Session-ID")
	}
	s.jsonResponse(w, r, http.StatusOK, s.proc.Process(r.Context(), q))
}

type evaluateRequest struct {
	Query          string   `json:"query"`
	Answer         string   `json:"answer"`
	ToolsUsed      []string `json:"tools_used"`
	ContextQuality string   `json:"context_quality"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	if s.critic == nil {
		s.jsonError(w, r, "evaluation is not configured", http.StatusServiceUnavailable)
		return
	}
	var req evaluateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.jsonError(w, r, err.Error(), http.StatusBadRequest)
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	req.Answer = strings.TrimSpace(req.Answer)
	if req.Query == "" || req.Answer == "" {
		s.jsonError(w, r, "query and answer are required", http.StatusBadRequest)
		return
	}
	if req.ToolsUsed == nil {
		req.ToolsUsed = []string{}
	}
	critique := s.critic.SelfCritique(r.Context(), req.Query, req.Answer, req.ToolsUsed, req.ContextQuality)
	s.jsonResponse(w, r, http.StatusOK, critique)
}

type clarifyRequest struct {
	Query   string                  `json:"query"`
	Context classifier.QueryContext `json:"context"`
}

type clarifyResponse struct {
	Analysis       clarify.Analysis           `json:"analysis"`
	Classification *classifier.Classification `json:"classification,omitempty"`
	Clarification  clarify.Set                `json:"clarification"`
}

// handleClarify returns the clarification analysis of a query together with
// the questions to ask.
func (s *Server) handleClarify(w http.ResponseWriter, r *http.Request) {
	if s.clar == nil {
		s.jsonError(w, r, "clarification is not configured", http.StatusServiceUnavailable)
		return
	}
	var req clarifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.jsonError(w, r, err.Error(), http.StatusBadRequest)
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		s.jsonError(w, r, "query is required", http.StatusBadRequest)
		return
	}
	if req.Context.SessionID == "" {
		req.Context.SessionID = r.Header.Get("X-Session-ID")
	}

	var resp clarifyResponse
	if s.cls != nil {
		cls := s.cls.Classify(r.Context(), req.Query, req.Context)
		resp.Classification = &cls
	}
	resp.Analysis = clarify.NeedsClarification(req.Query, resp.Classification)
	resp.Clarification = s.clar.Generate(r.Context(), req.Query, req.Context)
	s.jsonResponse(w, r, http.StatusOK, resp)
}

type statsResponse struct {
	Orchestrator  orchestrator.Stats `json:"orchestrator"`
	Notifications *notify.Stats      `json:"notifications,omitempty"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{Orchestrator: s.proc.Stats()}
	if ns, ok := s.notifier.(notifyStatser); ok {
		st := ns.Stats()
		resp.Notifications = &st
	}
	s.jsonResponse(w, r, http.StatusOK, resp)
}

type notifyTestRequest struct {
	Message  string `json:"message"`
	Title    string `json:"title"`
	Priority string `json:"priority"`
}

func (s *Server) handleNotifyTest(w http.ResponseWriter, r *http.Request) {
	if s.notifier == nil {
		s.jsonError(w, r, "notifications are not configured", http.StatusServiceUnavailable)
		return
	}
	var req notifyTestRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			s.jsonError(w, r, err.Error(), http.StatusBadRequest)
			return
		}
	}
	if req.Message == "" {
		req.Message = "Notificación de prueba del agente CV"
	}
	if req.Title == "" {
		req.Title = "Prueba de notificaciones"
	}
	delivered := s.notifier.Notify(r.Context(), notify.Event{
		Message:  req.Message,
		Title:    req.Title,
		Priority: notify.ParsePriority(req.Priority),
		Type:     "test",
	})
	s.jsonResponse(w, r, http.StatusOK, map[string]bool{"delivered": delivered})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (s *Server) jsonResponse(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error(r.Context(), "json encode error", "error", err)
	}
}

func (s *Server) jsonError(w http.ResponseWriter, r *http.Request, message string, code int) {
	s.jsonResponse(w, r, code, map[string]string{"error": message})
}
