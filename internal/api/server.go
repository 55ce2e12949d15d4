package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"robustroute/internal/auth"
	"robustroute/internal/config"
	"robustroute/internal/metrics"
	"robustroute/internal/store"
	"robustroute/internal/webhooks"
)

type Server struct {
	Store  store.Store
	Pub    *webhooks.Publisher
	Broker EventBroker
	Auth   *auth.Verifier
	Cfg    config.Config
	Log    zerolog.Logger

	worker  *webhooks.Worker
	closers []func() error
}

// NewServer wires the store, broker and notifier from cfg. An empty database
// URL selects the in-memory store; an empty Redis URL the in-process broker.
func NewServer(cfg config.Config, log zerolog.Logger) (*Server, error) {
	s := &Server{Cfg: cfg, Log: log, Auth: auth.NewVerifier(cfg.Auth)}
	if strings.TrimSpace(cfg.Database.URL) == "" {
		s.Store = store.NewMemory()
	} else {
		pg, err := store.NewPostgres(cfg.Database.URL, store.PoolOptions{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		if cfg.Database.Migrate {
			if err := pg.Migrate(context.Background()); err != nil {
				_ = pg.Close()
				return nil, err
			}
		}
		s.Store = pg
		s.closers = append(s.closers, pg.Close)
	}

	s.Broker = NewBroker()
	if cfg.Redis.URL != "" {
		rb, err := NewRedisBroker(cfg.Redis.URL, cfg.Redis.Channel, log)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable; using in-process broker")
		} else {
			s.Broker = rb
			s.closers = append(s.closers, rb.Close)
		}
	}

	if cfg.Notify.Enabled() {
		s.worker = webhooks.NewWorker(cfg.Notify.URL, cfg.Notify.Secret, cfg.Notify.MaxAttempts, cfg.Notify.Timeout, log.With().Str("component", "notify").Logger())
		s.worker.Start()
	}
	s.Pub = webhooks.NewPublisher(s.worker, log)
	return s, nil
}

// Close stops the notifier and releases connections.
func (s *Server) Close() error {
	if s.worker != nil {
		s.worker.Stop()
	}
	var first error
	for _, c := range s.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Handler returns the full route table wrapped in middleware.
func (s *Server) Handler() http.Handler {
	metrics.RegisterDefault()
	mux := http.NewServeMux()

	// Solving
	mux.Handle("POST /v1/solve/savings", s.requireAuth(s.SavingsHandler))
	mux.Handle("POST /v1/solve/insertion", s.requireAuth(s.InsertionHandler))
	mux.Handle("POST /v1/anneal", s.requireAuth(s.AnnealHandler))
	mux.Handle("POST /v1/batch", s.requireAuth(s.BatchHandler))
	mux.Handle("POST /v1/evaluate", s.requireAuth(s.EvaluateHandler))

	// Solutions and runs
	mux.HandleFunc("GET /v1/solutions/{id}", s.SolutionByIDHandler)
	mux.HandleFunc("GET /v1/runs", s.RunsHandler)
	mux.HandleFunc("GET /v1/runs/ws", s.RunsWSHandler)
	mux.HandleFunc("GET /v1/runs/{id}", s.RunByIDHandler)
	mux.HandleFunc("GET /v1/runs/{id}/events/stream", s.RunEventsHandler)

	// Config, health, metrics
	mux.HandleFunc("GET /v1/optimizer/config", s.OptimizerConfigHandler)
	mux.HandleFunc("GET /v1/optimizer/latest", s.LatestRunsHandler)
	mux.HandleFunc("GET /healthz", s.HealthHandler)
	mux.HandleFunc("GET /readyz", s.ReadyHandler)
	mux.HandleFunc("GET /debug/info", s.DebugJSON)
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	h := observe(mux)
	h = rateLimit(s.Cfg.Rate.RPS, s.Cfg.Rate.Burst, h)
	h = withLogger(s.Log, h)
	return requestID(h)
}
