package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"mailroom/internal/archive"
	"mailroom/internal/config"
	"mailroom/internal/intake"
	"mailroom/internal/logging"
	"mailroom/internal/services"
)

// maxUploadBytes bounds the multipart body accepted by /api/compare.
const maxUploadBytes = 32 << 20

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logger,
		daemon: d,
	}
	srv.server = &http.Server{
		Handler:           srv.routes(cfg.Paths.APIToken),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      180 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) routes(token string) http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /api/status", s.handleStatus)
	api.HandleFunc("POST /api/intake/next", s.handleIntakeNext)
	api.HandleFunc("GET /api/ledger", s.handleLedger)
	api.HandleFunc("GET /api/documents", s.handleDocuments)
	api.HandleFunc("GET /api/documents/{id}", s.handleDocument)
	api.HandleFunc("POST /api/compare", s.handleCompare)
	api.HandleFunc("POST /api/notify/test", s.handleNotifyTest)

	mux := http.NewServeMux()
	mux.Handle("/api/", authMiddleware(token, api))
	if s.daemon.metrics != nil {
		mux.Handle("GET /metrics", s.daemon.metrics.Handler())
	}
	return requestIDMiddleware(mux)
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil || s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) address() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handleIntakeNext(w http.ResponseWriter, r *http.Request) {
	outcome := s.daemon.processor.Next(r.Context())
	s.writeJSON(w, outcomeHTTPStatus(outcome), outcome)
}

// outcomeHTTPStatus maps an intake outcome to a response code. The body is
// always the outcome itself.
func outcomeHTTPStatus(outcome intake.Outcome) int {
	if outcome.Status != intake.StatusError {
		return http.StatusOK
	}
	switch outcome.Kind {
	case intake.KindDirectoryNotFound:
		return http.StatusNotFound
	case intake.KindLock:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) handleLedger(w http.ResponseWriter, r *http.Request) {
	records, err := s.daemon.coordinator.Records(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []intake.Record{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"entries": records})
}

func (s *apiServer) handleDocuments(w http.ResponseWriter, r *http.Request) {
	if s.daemon.archive == nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"documents": []archive.Document{}})
		return
	}
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	docs, err := s.daemon.archive.ListDocuments(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if docs == nil {
		docs = []archive.Document{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *apiServer) handleDocument(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid document id")
		return
	}
	if s.daemon.archive == nil {
		s.writeError(w, http.StatusNotFound, "document not found")
		return
	}
	doc, err := s.daemon.archive.GetDocument(r.Context(), id)
	if errors.Is(err, archive.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}

func (s *apiServer) handleCompare(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, http.StatusBadRequest, "expected multipart form with invoice1 and invoice2: "+err.Error())
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	dir, err := os.MkdirTemp("", "mailroom-compare-")
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer os.RemoveAll(dir)

	left, err := saveUpload(r, "invoice1", dir)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	right, err := saveUpload(r, "invoice2", dir)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.daemon.processor.Compare(r.Context(), left, right)
	if err != nil {
		status := http.StatusBadGateway
		switch services.ErrorKind(err) {
		case "configuration":
			status = http.StatusServiceUnavailable
		case "validation":
			status = http.StatusUnprocessableEntity
		}
		if errors.Is(err, os.ErrNotExist) || strings.Contains(err.Error(), "unsupported document format") {
			status = http.StatusUnprocessableEntity
		}
		s.writeError(w, status, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// saveUpload copies one multipart file into dir, keeping its base name so the
// extension still selects the extractor.
func saveUpload(r *http.Request, field, dir string) (string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return "", fmt.Errorf("missing %s upload", field)
	}
	defer file.Close()
	name := filepath.Base(header.Filename)
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = field
	}
	target := filepath.Join(dir, field+"-"+name)
	return target, copyUpload(file, target)
}

func copyUpload(src multipart.File, target string) error {
	dst, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("store upload: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return fmt.Errorf("store upload: %w", err)
	}
	return dst.Close()
}

func (s *apiServer) handleNotifyTest(w http.ResponseWriter, r *http.Request) {
	sent, message, err := s.daemon.TestNotification(r.Context())
	payload := map[string]any{"sent": sent, "message": message}
	if err != nil {
		payload["error"] = err.Error()
		s.writeJSON(w, http.StatusBadGateway, payload)
		return
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
