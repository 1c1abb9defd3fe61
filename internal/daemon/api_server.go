package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/rs/cors"

	"folderexport/internal/api"
	"folderexport/internal/config"
	"folderexport/internal/logging"
	"folderexport/internal/services"
)

const (
	userIDHeader   = "X-User-ID"
	maxRequestBody = 1 << 20
)

type apiServer struct {
	bind    string
	logger  *slog.Logger
	daemon  *Daemon
	svc     *api.Service
	handler http.Handler

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, svc *api.Service, logger *slog.Logger) *apiServer {
	bind := strings.TrimSpace(cfg.API.Bind)
	if bind == "" {
		return nil
	}
	s := &apiServer{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
		svc:    svc,
	}
	s.handler = s.routes(cfg.API.CORSOrigins)
	return s
}

func (s *apiServer) routes(origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, s.requestLogger, middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/exports", func(r chi.Router) {
			r.Post("/", s.handleSubmit)
			r.Get("/", s.handleList)
			r.Get("/{id}", s.handleGet)
			r.Delete("/{id}", s.handleDelete)
			r.Get("/{id}/download", s.handleDownload)
		})
		r.Get("/folders", s.handleFolders)
		r.Get("/status", s.handleStatus)
	})

	if len(origins) == 0 {
		return r
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept", userIDHeader},
		ExposedHeaders: []string{"Content-Disposition"},
	}).Handler(r)
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Artifact downloads stream for as long as the client needs.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
}

// address returns the bound listener address, or the configured bind when
// the server is not listening.
func (s *apiServer) address() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.bind
}

func (s *apiServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := services.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		logging.WithContext(ctx, s.logger).Debug("http request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", status),
			logging.Int("bytes", ww.BytesWritten()),
			logging.Duration("duration", time.Since(start)),
		)
	})
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		s.writeError(w, r, services.Wrap(services.ErrValidation, "api", "decode", "request body must be a JSON object", err))
		return
	}
	userID, err := parseUserID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	req.UserID = userID

	view, err := s.svc.Submit(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, view)
}

func (s *apiServer) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, r, services.Wrap(services.ErrValidation, "api", "list", "limit must be an integer", err))
			return
		}
		limit = parsed
	}
	views, err := s.svc.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if views == nil {
		views = []api.JobView{}
	}
	s.writeJSON(w, http.StatusOK, map[string][]api.JobView{"exports": views})
}

func (s *apiServer) handleGet(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *apiServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *apiServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	artifact, err := s.svc.OpenArtifact(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer artifact.File.Close()

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.Name))
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, artifact.Name, artifact.ModTime, artifact.File)
}

func (s *apiServer) handleFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := s.svc.Folders(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if folders == nil {
		folders = []api.FolderView{}
	}
	s.writeJSON(w, http.StatusOK, map[string][]api.FolderView{"folders": folders})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, newStatusResponse(s.daemon.Status(r.Context())))
}

func parseUserID(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.Header.Get(userIDHeader))
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0, services.Wrap(services.ErrValidation, "api", "user id", userIDHeader+" must be a non-negative integer", err)
	}
	return id, nil
}

// statusCode maps a classified error onto its HTTP status.
func statusCode(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrInvalidFolder), errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, services.ErrGone):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error  string            `json:"error"`
	Code   string            `json:"code"`
	Fields map[string]string `json:"fields,omitempty"`
}

func (s *apiServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusCode(err)
	details := services.Details(err)
	resp := errorResponse{Error: details.Message, Code: details.Code}

	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		resp.Fields = make(map[string]string, len(fieldErrs))
		for field, fieldErr := range fieldErrs {
			resp.Fields[field] = fieldErr.Error()
		}
	}

	logger := logging.WithContext(r.Context(), s.logger)
	if status >= http.StatusInternalServerError {
		logging.ErrorWithContext(logger, "api request failed", "api_request_failed",
			logging.String("path", r.URL.Path),
			logging.Error(err),
		)
	} else {
		logger.Debug("api request rejected",
			logging.String("path", r.URL.Path),
			logging.Int("status", status),
			logging.Error(err),
		)
	}
	s.writeJSON(w, status, resp)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}
