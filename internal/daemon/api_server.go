package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"magpie/internal/broadcast"
	"magpie/internal/config"
	"magpie/internal/faults"
	"magpie/internal/jobs"
	"magpie/internal/logging"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}

	token := cfg.Paths.APIToken
	mux := http.NewServeMux()
	mux.HandleFunc("/api/parse", authMiddleware(token, srv.handleParse))
	mux.HandleFunc("/api/download", authMiddleware(token, srv.handleDownload))
	mux.HandleFunc("/api/history", authMiddleware(token, srv.handleHistory))
	mux.HandleFunc("/api/history/", authMiddleware(token, srv.handleHistoryItem))
	mux.HandleFunc("/api/platforms", authMiddleware(token, srv.handlePlatforms))
	mux.HandleFunc("/api/status", authMiddleware(token, srv.handleStatus))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Download streams stay open until the job's terminal event, so no
		// write timeout.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

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
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

type parseRequest struct {
	URL string `json:"url"`
}

func (s *apiServer) handleParse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", faults.KindInvalidInput)
		return
	}
	var req parseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body", faults.KindInvalidInput)
		return
	}
	info, err := s.daemon.Parse(req.URL)
	if err != nil {
		s.writeFault(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

type downloadRequest struct {
	URL           string `json:"url"`
	DownloadFiles *bool  `json:"download_files,omitempty"`
	OutputDir     string `json:"output_dir,omitempty"`
}

// handleDownload submits a job and streams its events as newline-delimited
// JSON. The stream always ends with the job's single terminal event.
func (s *apiServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", faults.KindInvalidInput)
		return
	}
	var req downloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body", faults.KindInvalidInput)
		return
	}

	opts := jobs.Options{
		DownloadFiles: s.daemon.cfg.Downloads.DownloadFiles,
		OutputDir:     req.OutputDir,
	}
	if req.DownloadFiles != nil {
		opts.DownloadFiles = *req.DownloadFiles
	}

	job, err := s.daemon.Submit(r.Context(), req.URL, opts)
	if err != nil {
		s.writeFault(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported", faults.KindInternal)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	replay, live, cancel := s.daemon.Hub().Subscribe(job.ID)
	defer cancel()

	encoder := json.NewEncoder(w)
	for _, evt := range replay {
		if done := s.streamEvent(encoder, flusher, evt); done {
			return
		}
	}
	for {
		select {
		case <-r.Context().Done():
			// Client went away; the job keeps running in the background.
			return
		case evt, ok := <-live:
			if !ok {
				return
			}
			if done := s.streamEvent(encoder, flusher, evt); done {
				return
			}
		}
	}
}

func (s *apiServer) streamEvent(encoder *json.Encoder, flusher http.Flusher, evt broadcast.Event) bool {
	if err := encoder.Encode(evt); err != nil {
		return true
	}
	flusher.Flush()
	return evt.Terminal()
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", faults.KindInvalidInput)
		return
	}
	entries, err := s.daemon.HistoryList(r.Context())
	if err != nil {
		s.writeFault(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *apiServer) handleHistoryItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", faults.KindInvalidInput)
		return
	}
	folder := strings.TrimPrefix(r.URL.Path, "/api/history/")
	if folder == "" || strings.Contains(folder, "/") {
		s.writeError(w, http.StatusNotFound, "history entry not found", faults.KindNotFound)
		return
	}
	if err := s.daemon.HistoryRemove(r.Context(), folder); err != nil {
		s.writeFault(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"removed": folder})
}

func (s *apiServer) handlePlatforms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", faults.KindInvalidInput)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"platforms": s.daemon.Platforms()})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", faults.KindInvalidInput)
		return
	}
	status := s.daemon.Status(r.Context())
	jobStats := make(map[string]int, len(status.JobStats))
	for state, count := range status.JobStats {
		jobStats[string(state)] = count
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"running":      status.Running,
		"pid":          status.PID,
		"ledger_db":    status.LedgerDBPath,
		"lock_file":    status.LockFilePath,
		"jobs":         jobStats,
		"ledger_stats": status.LedgerStats,
	})
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

func (s *apiServer) writeFault(w http.ResponseWriter, err error) {
	s.writeError(w, faults.HTTPStatus(err), err.Error(), faults.KindOf(err))
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string, kind faults.Kind) {
	s.writeJSON(w, status, map[string]string{"error": message, "kind": string(kind)})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
