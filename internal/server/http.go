// Package server exposes completed simulation runs over HTTP: snapshot and
// banking-series queries as JSON, plus health and metrics endpoints.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"wcisim/internal/ledger"
	"wcisim/internal/observability"
)

// Server serves run results. Routes:
//
//	GET /v1/runs
//	GET /v1/runs/{id}/bank
//	GET /v1/runs/{id}/snapshots/{quarter}?jurisdiction=CA
//	GET /healthz, /readyz, /metrics
type Server struct {
	httpServer *http.Server
	store      *RunStore
	metrics    *observability.Metrics
	health     *observability.HealthChecker
	log        zerolog.Logger
}

func NewServer(addr string, store *RunStore, metrics *observability.Metrics, health *observability.HealthChecker, log zerolog.Logger) *Server {
	s := &Server{
		store:   store,
		metrics: metrics,
		health:  health,
		log:     log,
	}

	r := mux.NewRouter()
	r.HandleFunc("/v1/runs", s.handleListRuns).Methods(http.MethodGet)
	r.HandleFunc("/v1/runs/{id}/bank", s.handleBank).Methods(http.MethodGet)
	r.HandleFunc("/v1/runs/{id}/snapshots/{quarter}", s.handleSnapshot).Methods(http.MethodGet)
	r.HandleFunc("/healthz", health.LivenessHandler).Methods(http.MethodGet)
	r.HandleFunc("/readyz", health.ReadinessHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start serves until the context is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Info().Msg("http server shutting down")
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.log.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, "list_runs", http.StatusOK, map[string]interface{}{
		"runs": s.store.IDs(),
	})
}

func (s *Server) handleBank(w http.ResponseWriter, r *http.Request) {
	run, ok := s.store.Get(mux.Vars(r)["id"])
	if !ok {
		s.writeError(w, "bank", http.StatusNotFound, "run not found")
		return
	}
	s.writeJSON(w, "bank", http.StatusOK, map[string]interface{}{
		"run_id": run.Result.RunID,
		"series": run.Series,
	})
}

// snapshotRow is the JSON projection of one ledger batch.
type snapshotRow struct {
	Account     string  `json:"account"`
	AuctionType string  `json:"auction_type"`
	Category    string  `json:"category"`
	Vintage     int     `json:"vintage"`
	Newness     string  `json:"newness"`
	Status      string  `json:"status"`
	DateLevel   string  `json:"date_level"`
	FirstUnsold string  `json:"first_unsold"`
	LastUnsold  string  `json:"last_unsold"`
	Quantity    float64 `json:"quantity"`
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	run, ok := s.store.Get(vars["id"])
	if !ok {
		s.writeError(w, "snapshot", http.StatusNotFound, "run not found")
		return
	}
	q, err := ledger.ParseQuarter(vars["quarter"])
	if err != nil {
		s.writeError(w, "snapshot", http.StatusBadRequest, err.Error())
		return
	}

	juris := ledger.CA
	if jp := r.URL.Query().Get("jurisdiction"); jp != "" {
		switch jp {
		case "CA":
			juris = ledger.CA
		case "QC":
			juris = ledger.QC
		default:
			s.writeError(w, "snapshot", http.StatusBadRequest, "unknown jurisdiction")
			return
		}
	}
	st, ok := run.Result.States[juris]
	if !ok {
		s.writeError(w, "snapshot", http.StatusNotFound, "jurisdiction not simulated")
		return
	}

	for _, snap := range st.Snapshots {
		if snap.Quarter != q {
			continue
		}
		rows := make([]snapshotRow, 0, snap.Ledger.Len())
		for _, row := range snap.Ledger.Rows() {
			rows = append(rows, snapshotRow{
				Account:     row.Key.Acct.String(),
				AuctionType: row.Key.AuctType.String(),
				Category:    row.Key.Cat.String(),
				Vintage:     row.Key.Vintage,
				Newness:     row.Key.New.String(),
				Status:      row.Key.Stat.String(),
				DateLevel:   row.Key.DateLevel.String(),
				FirstUnsold: row.Key.FirstUnsold.String(),
				LastUnsold:  row.Key.LastUnsold.String(),
				Quantity:    row.Qty,
			})
		}
		s.writeJSON(w, "snapshot", http.StatusOK, map[string]interface{}{
			"run_id":       run.Result.RunID,
			"jurisdiction": juris.String(),
			"quarter":      q.String(),
			"total":        snap.Ledger.Total(),
			"rows":         rows,
		})
		return
	}
	s.writeError(w, "snapshot", http.StatusNotFound, "quarter not simulated")
}

func (s *Server) writeJSON(w http.ResponseWriter, endpoint string, code int, body interface{}) {
	start := time.Now()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Warn().Err(err).Str("endpoint", endpoint).Msg("response encode failed")
	}
	if s.metrics != nil {
		s.metrics.QueryRequests.WithLabelValues(endpoint, http.StatusText(code)).Inc()
		s.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
}

func (s *Server) writeError(w http.ResponseWriter, endpoint string, code int, msg string) {
	s.writeJSON(w, endpoint, code, map[string]string{"error": msg})
}
