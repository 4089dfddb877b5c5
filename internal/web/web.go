package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	appLog "awical/internal/log"
	"awical/internal/status"
)

// Server exposes the importer's status over HTTP. It never triggers imports.
type Server struct {
	bucket   string
	dataPath string
	reporter *status.Reporter
	started  time.Time
	mux      *http.ServeMux
}

// NewServer constructs a new Server.
func NewServer(bucket, dataPath string, reporter *status.Reporter) *Server {
	s := &Server{
		bucket:   bucket,
		dataPath: dataPath,
		reporter: reporter,
		started:  time.Now(),
		mux:      http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.Handle("/metrics", promhttp.Handler())
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type statusResponse struct {
	Bucket   string         `json:"bucket"`
	DataPath string         `json:"data_path"`
	Started  time.Time      `json:"started"`
	Last     string         `json:"last"`
	History  []status.Entry `json:"history"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := statusResponse{
		Bucket:   s.bucket,
		DataPath: s.dataPath,
		Started:  s.started,
		History:  []status.Entry{},
	}
	if s.reporter != nil {
		resp.Last = s.reporter.Last()
		resp.History = s.reporter.History()
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		appLog.Error("encode status response failed", err)
	}
}
