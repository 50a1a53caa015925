package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"audit-analyzer/internal/config"
	"audit-analyzer/internal/extract"
	"audit-analyzer/internal/metrics"
	"audit-analyzer/internal/store"
	"audit-analyzer/internal/types"
	"audit-analyzer/internal/workflow"
)

type Options struct {
	Flow    *workflow.Controller
	Store   *store.MemoryStore
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	// Ready reports dependency health for /api/health. Optional.
	Ready func(context.Context) error
}

type Server struct {
	router  *chi.Mux
	store   *store.MemoryStore
	flow    *workflow.Controller
	cfg     config.Config
	metrics *metrics.Metrics
	logger  *slog.Logger
	pages   *pageRenderer
	ready   func(context.Context) error
}

func NewServer(cfg config.Config, opts Options) (*Server, error) {
	if opts.Flow == nil {
		return nil, errors.New("server: workflow controller is required")
	}
	if opts.Store == nil {
		opts.Store = store.NewMemoryStore()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	pages, err := newPageRenderer()
	if err != nil {
		return nil, fmt.Errorf("failed to parse page templates: %w", err)
	}
	s := &Server{
		router:  chi.NewRouter(),
		store:   opts.Store,
		flow:    opts.Flow,
		cfg:     cfg,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		pages:   pages,
		ready:   opts.Ready,
	}
	s.metrics.TrackSessions(s.store.Len)
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.requestLogger)

	// Browser pages
	s.router.Get("/", s.handlePage)
	s.router.Post("/document", s.handlePageDocument)
	s.router.Post("/analyze", s.handlePageAnalyze)
	s.router.Post("/followup", s.handlePageFollowUp)
	s.router.Post("/reset", s.handlePageReset)

	// JSON API
	s.router.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{s.cfg.AllowedOrigin},
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With", "X-Session-Id"},
			ExposedHeaders:   []string{"X-Session-Id"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
		r.Get("/health", s.handleHealth)
		r.Get("/session", s.handleSession)
		r.Get("/step/{step}", s.handleSelectStep)
		r.Post("/document", s.handleDocument)
		r.Post("/summary", s.handleSummary)
		r.Post("/followup", s.handleFollowUp)
	})

	s.router.Handle("/metrics", s.metrics.Handler())
}

func (s *Server) Router() http.Handler { return s.router }

// Run serves on addr until ctx is cancelled, sweeping idle sessions in the
// background, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		// Completion calls can be slow; leave room beyond the gateway timeout.
		WriteTimeout: s.cfg.LLMTimeout + 30*time.Second,
		IdleTimeout:  2 * time.Minute,
	}
	go s.sweepSessions(ctx, time.Minute)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("audit analyzer listening", "addr", addr, "variant", s.flow.Variant())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s.logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) sweepSessions(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.store.Sweep(s.cfg.SessionTTL); n > 0 {
				s.logger.Info("expired idle sessions", "count", n)
			}
		}
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.Warn("health check failed", "error", err)
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sid := s.getOrCreateSessionID(r, w)
	s.writeJSON(w, http.StatusOK, s.sessionResponse(s.store.Snapshot(sid), ""))
}

func (s *Server) handleSelectStep(w http.ResponseWriter, r *http.Request) {
	sid := s.getOrCreateSessionID(r, w)
	var view workflow.StepView
	err := s.store.With(sid, func(sess *store.Session) error {
		var err error
		view, err = s.flow.SelectStep(sess, store.Step(chi.URLParam(r, "step")))
		return err
	})
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if view.Warning != "" {
		s.metrics.SequencingWarning()
		s.writeError(w, http.StatusConflict, view.Warning)
		return
	}
	s.writeJSON(w, http.StatusOK, s.sessionResponse(s.store.Snapshot(sid), ""))
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	sid := s.getOrCreateSessionID(r, w)
	name, data, err := s.readUpload(w, r)
	if err != nil {
		s.writeActionError(w, err)
		return
	}
	var chars int
	err = s.store.With(sid, func(sess *store.Session) error {
		if err := s.flow.SubmitDocument(sess, name, data); err != nil {
			return err
		}
		chars = len(sess.Document)
		return nil
	})
	if err != nil {
		s.metrics.DocumentRejected()
		s.writeActionError(w, err)
		return
	}
	s.metrics.DocumentAccepted()
	s.writeJSON(w, http.StatusOK, types.DocumentResponse{SessionID: sid, DocumentName: name, Characters: chars})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sid := s.getOrCreateSessionID(r, w)
	var summary string
	err := s.store.With(sid, func(sess *store.Session) error {
		if err := s.flow.RequestSummary(r.Context(), sess); err != nil {
			return err
		}
		summary = sess.AuditSummary
		return nil
	})
	if err != nil {
		s.writeActionError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, types.SummaryResponse{SessionID: sid, AuditSummary: summary})
}

func (s *Server) handleFollowUp(w http.ResponseWriter, r *http.Request) {
	sid := s.getOrCreateSessionID(r, w)
	var req types.FollowUpRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			s.writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	var result string
	err := s.store.With(sid, func(sess *store.Session) error {
		if err := s.flow.RequestFollowUp(r.Context(), sess, req.Question); err != nil {
			return err
		}
		result = sess.SecondaryResult
		return nil
	})
	if err != nil {
		s.writeActionError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, types.FollowUpResponse{SessionID: sid, Variant: string(s.flow.Variant()), Result: result})
}

// readUpload reads the multipart "file" field, capped at MaxUploadBytes.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return "", nil, errUploadTooLarge
		}
		return "", nil, errInvalidUpload
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", nil, errMissingUpload
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		return "", nil, errInvalidUpload
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		return "", nil, errUploadTooLarge
	}
	return header.Filename, data, nil
}

var (
	errUploadTooLarge = errors.New("uploaded file is too large")
	errInvalidUpload  = errors.New("invalid multipart form")
	errMissingUpload  = errors.New("audit report file is required (field 'file')")
)

// describeError maps an action failure to an HTTP status and the message
// shown to the user.
func describeError(err error) (int, string) {
	var ce *workflow.CompletionError
	switch {
	case errors.Is(err, workflow.ErrNoSummary):
		return http.StatusConflict, workflow.SequencingWarning
	case errors.Is(err, workflow.ErrNoDocument), errors.Is(err, workflow.ErrEmptyQuestion),
		errors.Is(err, errInvalidUpload), errors.Is(err, errMissingUpload):
		return http.StatusBadRequest, capitalize(err.Error())
	case errors.Is(err, errUploadTooLarge):
		return http.StatusRequestEntityTooLarge, capitalize(err.Error())
	case errors.Is(err, extract.ErrUnsupported):
		return http.StatusUnsupportedMediaType, "This file type cannot be read yet. Upload a text, HTML or DOCX report."
	case errors.Is(err, extract.ErrDecode):
		return http.StatusBadRequest, "The uploaded file could not be decoded as text."
	case errors.Is(err, extract.ErrEmpty):
		return http.StatusBadRequest, "The uploaded file contains no text."
	case errors.As(err, &ce):
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout, "The analysis service timed out. Please try again."
		}
		return http.StatusBadGateway, "The analysis service could not complete the request. Please try again."
	default:
		return http.StatusInternalServerError, "Something went wrong. Please try again."
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (s *Server) writeActionError(w http.ResponseWriter, err error) {
	code, msg := describeError(err)
	if code == http.StatusConflict {
		s.metrics.SequencingWarning()
	}
	if code >= 500 {
		s.logger.Error("action failed", "status", code, "error", err)
	}
	s.writeError(w, code, msg)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, types.ErrorResponse{Error: msg})
}

func (s *Server) sessionResponse(sess store.Session, warning string) types.SessionResponse {
	return types.SessionResponse{
		SessionID:       sess.ID,
		Step:            string(sess.Step),
		Variant:         string(s.flow.Variant()),
		DocumentName:    sess.DocumentName,
		HasDocument:     sess.HasDocument(),
		AuditSummary:    sess.AuditSummary,
		SecondaryResult: sess.SecondaryResult,
		Warning:         warning,
	}
}

// getOrCreateSessionID returns the caller's session id, issuing a new one
// (and its cookie) when none is presented.
func (s *Server) getOrCreateSessionID(r *http.Request, w http.ResponseWriter) string {
	sid := getSessionID(r)
	if sid == "" {
		sid = newSessionID()
		s.logger.Debug("creating session", "session", sid, "path", r.URL.Path)
		SetSessionCookie(w, r, sid, s.cfg.SessionTTL)
	}
	w.Header().Set("X-Session-Id", sid)
	return sid
}
