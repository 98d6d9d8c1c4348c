// Package confserver is the HTTP lifecycle harness around a session.Server:
// readiness/liveness/drain endpoints, an optional pprof mount, a dedicated
// metrics listener, and graceful shutdown, grounded on
// httpserver.Server's structure.
package confserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/atomic"

	"github.com/ruteri/confchannel/confmetrics"
	"github.com/ruteri/confchannel/session"
)

// Config holds every knob needed to stand up a Server.
type Config struct {
	ListenAddr  string
	MetricsAddr string
	EnablePprof bool
	Log         *slog.Logger

	DrainDuration            time.Duration
	GracefulShutdownDuration time.Duration
	ReadTimeout              time.Duration
	WriteTimeout             time.Duration
}

// Server exposes a session.Server's Respond method over a single HTTP
// endpoint, plus the usual health/drain/metrics surface.
type Server struct {
	cfg     *Config
	isReady atomic.Bool
	log     *slog.Logger

	session *session.Server
	metrics *confmetrics.SessionMetrics

	srv        *http.Server
	metricsSrv *confmetrics.Server
}

// New wires a confserver.Server around an already-constructed
// session.Server.
func New(cfg *Config, sess *session.Server, namespace string) (*Server, error) {
	var metricsSrv *confmetrics.Server
	if cfg.MetricsAddr != "" {
		var err error
		metricsSrv, err = confmetrics.New(namespace, cfg.MetricsAddr)
		if err != nil {
			return nil, err
		}
	}

	srv := &Server{
		cfg:        cfg,
		log:        cfg.Log,
		session:    sess,
		metrics:    confmetrics.NewSessionMetrics(namespace),
		metricsSrv: metricsSrv,
	}
	srv.isReady.Store(true)

	srv.srv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.getRouter(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return srv, nil
}

func (srv *Server) getRouter() http.Handler {
	mux := chi.NewRouter()

	mux.With(srv.httpLogger).Post("/v1/channel", srv.handleChannel)

	mux.With(srv.httpLogger).Get("/livez", srv.handleLivenessCheck)
	mux.With(srv.httpLogger).Get("/readyz", srv.handleReadinessCheck)
	mux.With(srv.httpLogger).Get("/drain", srv.handleDrain)
	mux.With(srv.httpLogger).Get("/undrain", srv.handleUndrain)

	if srv.cfg.EnablePprof {
		srv.log.Info("pprof API enabled")
		mux.Mount("/debug", middleware.Profiler())
	}
	return mux
}

func (srv *Server) httpLogger(next http.Handler) http.Handler {
	return httplogger.LoggingMiddlewareSlog(srv.log, next)
}

// handleChannel accepts a raw wire envelope (KeyRequest or Request) and
// replies with the matching encoded response.
func (srv *Server) handleChannel(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		srv.log.Error("failed to read request body", "err", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	resp, err := srv.session.Respond(r.Context(), body)
	if err != nil {
		srv.log.Warn("channel request failed", "err", err)
		srv.metrics.RequestsTotal.WithLabelValues("error").Inc()
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	srv.metrics.RequestsTotal.WithLabelValues("ok").Inc()
	srv.metrics.RequestDuration.Observe(time.Since(start).Seconds())

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(resp)
}

func (srv *Server) handleLivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"alive"}`))
}

func (srv *Server) handleReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if !srv.isReady.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"not ready"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

func (srv *Server) handleDrain(w http.ResponseWriter, r *http.Request) {
	if !srv.isReady.Swap(false) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"already draining"}`))
		return
	}

	srv.log.Info("Server marked as not ready")

	go func() {
		time.Sleep(srv.cfg.DrainDuration)
		srv.log.Info("Drain period completed")
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"draining"}`))
}

func (srv *Server) handleUndrain(w http.ResponseWriter, r *http.Request) {
	if srv.isReady.Swap(true) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"already ready"}`))
		return
	}

	srv.log.Info("Server marked as ready")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

func (srv *Server) RunInBackground() {
	if srv.metricsSrv != nil {
		go func() {
			srv.log.With("metricsAddress", srv.cfg.MetricsAddr).Info("Starting metrics server")
			if err := srv.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				srv.log.Error("metrics server failed", "err", err)
			}
		}()
	}

	go func() {
		srv.log.Info("Starting HTTP server", "listenAddress", srv.cfg.ListenAddr)
		if err := srv.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srv.log.Error("HTTP server failed", "err", err)
		}
	}()
}

func (srv *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), srv.cfg.GracefulShutdownDuration)
	defer cancel()
	if err := srv.srv.Shutdown(ctx); err != nil {
		srv.log.Error("graceful HTTP server shutdown failed", "err", err)
	} else {
		srv.log.Info("HTTP server gracefully stopped")
	}

	if srv.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), srv.cfg.GracefulShutdownDuration)
		defer cancel()
		if err := srv.metricsSrv.Shutdown(ctx); err != nil {
			srv.log.Error("graceful metrics server shutdown failed", "err", err)
		} else {
			srv.log.Info("metrics server gracefully stopped")
		}
	}
}

// RefreshLoop periodically calls session.Server.RefreshKey, mirroring the
// background rollover loop keyprovider.Refresher drives for the key
// provider itself, but coupled to evidence regeneration through
// session.Server.RefreshKey.
func (srv *Server) RefreshLoop(ctx context.Context, syncInterval, rolloverInterval time.Duration) {
	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			syncOnly := time.Since(srv.session.LastKeyRefresh()) < rolloverInterval
			changed, err := srv.session.RefreshKey(ctx, syncOnly)
			if err != nil {
				srv.log.Error("key refresh failed", "err", err)
				srv.metrics.KeyRequestsTotal.WithLabelValues("refresh_error").Inc()
				continue
			}
			if changed {
				srv.metrics.KeyRolloversTotal.Inc()
			}
		}
	}
}
