package status

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/luas-archive/collector/internal/collector"
	"github.com/luas-archive/collector/internal/metrics"
)

// Title is shown on the status endpoint
const Title = "Luas data archiving service"

// Source exposes the collector state reported by the server
type Source interface {
	LastBatch() *collector.BatchSummary
	Stats() metrics.CycleSummary
}

// Pinger is a database the health check verifies
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server serves health and status JSON for the collector
type Server struct {
	source    Source
	databases map[string]Pinger
	stopCount int
	interval  time.Duration
	startedAt time.Time
	httpSrv   *http.Server
}

// NewServer creates a status server listening on port
func NewServer(source Source, stopCount int, interval time.Duration, port string) *Server {
	s := &Server{
		source:    source,
		databases: make(map[string]Pinger),
		stopCount: stopCount,
		interval:  interval,
		startedAt: time.Now().UTC(),
	}
	s.httpSrv = &http.Server{
		Addr:              ":" + port,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// AddDatabase includes a database in the health check
func (s *Server) AddDatabase(name string, db Pinger) {
	s.databases[name] = db
}

// Router builds the HTTP routes
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/api/status", s.handleStatus)
	return r
}

// Start listens until Shutdown is called
func (s *Server) Start() error {
	log.Printf("Status server starting on %s", s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// handleHealth handles GET /health
// Reports unhealthy when a database is unreachable or no batch sealed for
// three poll intervals.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	now := time.Now().UTC()
	code := http.StatusOK
	body := map[string]interface{}{
		"status":    "ok",
		"timestamp": now,
	}

	dbs := make(map[string]string, len(s.databases))
	for name, db := range s.databases {
		if err := db.Ping(ctx); err != nil {
			dbs[name] = "disconnected"
			code = http.StatusServiceUnavailable
			body["status"] = "error"
			continue
		}
		dbs[name] = "connected"
	}
	if len(dbs) > 0 {
		body["databases"] = dbs
	}

	last := s.source.LastBatch()
	switch {
	case last == nil:
		if now.Sub(s.startedAt) > 3*s.interval {
			code = http.StatusServiceUnavailable
			body["status"] = "error"
		}
		body["lastBatch"] = nil
	default:
		age := now.Sub(last.CapturedAt)
		body["lastBatch"] = last.CapturedAt
		body["lastBatchAge"] = age.Round(time.Second).String()
		if age > 3*s.interval {
			code = http.StatusServiceUnavailable
			body["status"] = "stale"
		}
	}

	writeJSON(w, code, body)
}

// StatusResponse is the JSON response for GET /api/status
type StatusResponse struct {
	Title     string                  `json:"title"`
	StartedAt time.Time               `json:"startedAt"`
	Time      time.Time               `json:"time"`
	StopCount int                     `json:"stopCount"`
	Interval  string                  `json:"pollInterval"`
	LastBatch *collector.BatchSummary `json:"lastBatch"`
	Cycles    metrics.CycleSummary    `json:"cycles"`
}

// handleStatus handles GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Title:     Title,
		StartedAt: s.startedAt,
		Time:      time.Now().UTC(),
		StopCount: s.stopCount,
		Interval:  s.interval.String(),
		LastBatch: s.source.LastBatch(),
		Cycles:    s.source.Stats(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Status: failed to encode response: %v", err)
	}
}
