package endpoints

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/context"

	"github.com/twitter/equalizer/common/stats"
)

// Addr is the host:port the admin server listens on.
type Addr string

// StatScope prefixes every stat of a process.
type StatScope string

// HealthChecker is asked by /health. A nil checker is always healthy.
type HealthChecker interface {
	Healthy() bool
}

const shutdownTimeout = 5 * time.Second

// TwitterServer serves the admin endpoints of a process: /health and
// /admin/metrics.json.
type TwitterServer struct {
	Addr   Addr
	Stats  stats.StatsReceiver
	Health HealthChecker

	mux *http.ServeMux
}

func NewTwitterServer(addr Addr, stats stats.StatsReceiver, health HealthChecker) *TwitterServer {
	s := &TwitterServer{Addr: addr, Stats: stats, Health: health, mux: http.NewServeMux()}
	s.mux.HandleFunc("/", helpHandler)
	s.mux.HandleFunc("/health", s.healthHandler)
	s.mux.HandleFunc("/admin/metrics.json", s.statsHandler)
	return s
}

func (s *TwitterServer) Handler() http.Handler { return s.mux }

// Serve listens on Addr until ctx is done.
func (s *TwitterServer) Serve(ctx context.Context) error {
	srv := &http.Server{Addr: string(s.Addr), Handler: s.mux}
	errCh := make(chan error, 1)
	go func() {
		log.WithFields(log.Fields{"addr": s.Addr}).Info("Serving http & stats")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func helpHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	http.Error(w, "Common paths: '/health', '/admin/metrics.json'", http.StatusNotImplemented)
}

func (s *TwitterServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	if s.Health != nil && !s.Health.Healthy() {
		http.Error(w, "not running", http.StatusServiceUnavailable)
		return
	}
	fmt.Fprintf(w, "ok")
}

func (s *TwitterServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	pretty := r.URL.Query().Get("pretty") == "true"
	if _, err := io.Copy(w, bytes.NewBuffer(s.Stats.Render(pretty))); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// MakeStatsReceiver returns a finagle-style receiver under scope, latched
// every latch interval, with latencies shown in milliseconds.
func MakeStatsReceiver(scope StatScope, latch time.Duration) stats.StatsReceiver {
	s, _ := stats.NewCustomStatsReceiver(stats.NewFinagleStatsRegistry, latch)
	return s.Scope(string(scope)).Precision(time.Millisecond)
}
