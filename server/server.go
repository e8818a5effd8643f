// Package server exposes health, the last cycle report and metrics over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"mod-update-notifier/metrics"
	"mod-update-notifier/updater"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// ReportSource returns the most recent cycle result.
type ReportSource interface {
	LastResult() (updater.Result, bool)
}

// Trigger starts a cycle out of schedule.
type Trigger interface {
	Trigger(ctx context.Context) bool
}

// Router creates the status API.
func Router(baseCtx context.Context, reports ReportSource, trigger Trigger, m *metrics.Metrics) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", HealthHandler())
	r.Get("/v1/report", ReportHandler(reports))
	if trigger != nil {
		r.Post("/v1/cycle", TriggerHandler(baseCtx, trigger))
	}
	r.Handle("/metrics", m.Handler())
	return r
}

// HealthHandler handles GET /healthz
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReportHandler handles GET /v1/report
func ReportHandler(reports ReportSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, ok := reports.LastResult()
		if !ok {
			writeError(w, http.StatusNotFound, "no cycle has run yet")
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// TriggerHandler handles POST /v1/cycle. The cycle runs on ctx, not on the
// request context, so it outlives the request.
func TriggerHandler(ctx context.Context, trigger Trigger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !trigger.Trigger(ctx) {
			writeError(w, http.StatusConflict, "a cycle is already running")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Serve runs an HTTP server on addr until ctx is done.
func Serve(ctx context.Context, addr string, handler http.Handler, log *zap.SugaredLogger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("Status server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		log.Info("Status server stopped")
		return nil
	}
}
