package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"robustroute/internal/opt"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// SolveDuration records wall time per algorithm run in seconds
	SolveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "solve_duration_seconds", Help: "Solver run duration in seconds.", Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300}},
		[]string{"algorithm"},
	)
	// SolutionCost tracks the total cost of returned solutions
	SolutionCost = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "solution_total_cost", Help: "Total cost of returned solutions.", Buckets: prometheus.ExponentialBuckets(100, 2, 12)},
		[]string{"algorithm"},
	)
	// ForcedCustomers counts customers placed on singleton routes by insertion
	ForcedCustomers = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "insertion_forced_customers_total", Help: "Customers forced onto their own route."},
	)
	// AnnealMoves counts annealing moves by outcome (accepted, improving, rejected_*)
	AnnealMoves = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "anneal_moves_total", Help: "Annealing moves by outcome."},
		[]string{"outcome"},
	)
	// RunsActive is the number of runs currently executing
	RunsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "runs_active", Help: "Solver runs in progress."},
	)

	// NotifyDeliveries counts run notification outcomes by event type and status
	NotifyDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "notify_deliveries_total", Help: "Run notifications by event type and status."},
		[]string{"event_type", "status"},
	)
	// NotifyLatency tracks notification delivery latencies in milliseconds
	NotifyLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "notify_delivery_latency_ms", Help: "Run notification latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests, HTTPDuration)
		Registry.MustRegister(SolveDuration, SolutionCost, ForcedCustomers, AnnealMoves, RunsActive)
		Registry.MustRegister(NotifyDeliveries, NotifyLatency)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once

// ObserveAnneal adds the move counters of one annealing run.
func ObserveAnneal(st opt.AnnealStats) {
	AnnealMoves.WithLabelValues("accepted").Add(float64(st.Accepted))
	AnnealMoves.WithLabelValues("improving").Add(float64(st.Improving))
	AnnealMoves.WithLabelValues("rejected_expected").Add(float64(st.RejectedExpected))
	AnnealMoves.WithLabelValues("rejected_pessimistic").Add(float64(st.RejectedPessimistic))
	AnnealMoves.WithLabelValues("rejected_both").Add(float64(st.RejectedBoth))
}
