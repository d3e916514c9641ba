package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vkorchagin/oddsmesh/internal/canon"
	"github.com/vkorchagin/oddsmesh/internal/catalog"
	"github.com/vkorchagin/oddsmesh/internal/scheduler"
	"github.com/vkorchagin/oddsmesh/internal/supervisor"
)

// Server is the operational HTTP surface: health probes, catalog views,
// source health, cache introspection, Prometheus metrics, and the websocket
// snapshot fan-out. It is a debug/ops surface, not the consumer API.
type Server struct {
	store *catalog.Store
	cache *canon.Cache
	sched *scheduler.Scheduler
	sup   *supervisor.Supervisor
	hub   *wsHub
	reg   *prometheus.Registry
}

func NewServer(store *catalog.Store, cache *canon.Cache, sched *scheduler.Scheduler, sup *supervisor.Supervisor, reg *prometheus.Registry) *Server {
	s := &Server{
		store: store,
		cache: cache,
		sched: sched,
		sup:   sup,
		hub:   newWSHub(),
		reg:   reg,
	}
	store.Subscribe(s.hub.SnapshotHook)
	return s
}

// Run serves until the context is cancelled.
func (s *Server) Run(ctx context.Context, addr string, readHeaderTimeout time.Duration) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", s.handlePing)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/active", s.handleActive)
	mux.HandleFunc("/history", s.handleHistory)
	mux.HandleFunc("/sources", s.handleSources)
	mux.HandleFunc("/cache", s.handleCache)
	mux.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/ws", s.hub.handle)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		<-ctx.Done()
		s.hub.closeAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("Ops server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ops server error: %w", err)
	}
	return nil
}

func AddrFor(port int) string {
	return fmt.Sprintf(":%d", port)
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "pong")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Current()
	state, pending := s.sched.Status()

	writeJSON(w, map[string]interface{}{
		"status":          "ok",
		"scheduler_state": state,
		"pending_rerun":   pending,
		"passes":          s.sched.PassCount(),
		"active_records":  len(snap.Active),
		"last_merged_at":  snap.MergedAt,
		"sources":         s.sup.Health(),
	})
}

func (s *Server) handleActive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.store.GetActive())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	filter := catalog.HistoryFilter{
		Sport: r.URL.Query().Get("sport"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		filter.Limit = n
	}
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "invalid since, want RFC3339", http.StatusBadRequest)
			return
		}
		filter.Since = t
	}

	records, err := s.store.GetHistory(r.Context(), filter)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to query history: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, records)
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.sup.Health())
}

func (s *Server) handleCache(w http.ResponseWriter, r *http.Request) {
	if et := r.URL.Query().Get("type"); et != "" {
		writeJSON(w, s.cache.Entities(canon.EntityType(et)))
		return
	}
	writeJSON(w, s.cache.Stats())
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, fmt.Sprintf("failed to encode response: %v", err), http.StatusInternalServerError)
	}
}
