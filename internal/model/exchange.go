package model

import (
	"time"

	"robustroute/internal/opt"
)

// ExchangeVersion is written into every exchange file.
const ExchangeVersion = 1

// Exchange is the routes file shared between the constructive heuristics and
// the annealer.
type Exchange struct {
	Version       int            `json:"version" yaml:"version"`
	Dataset       string         `json:"dataset,omitempty" yaml:"dataset,omitempty"`
	DatasetSize   int            `json:"dataset_size,omitempty" yaml:"dataset_size,omitempty"`
	WindowProfile string         `json:"window_profile,omitempty" yaml:"window_profile,omitempty"`
	Algorithm     string         `json:"algorithm" yaml:"algorithm"`
	GeneratedAt   time.Time      `json:"generated_at" yaml:"generated_at"`
	Parameters    ExchangeParams `json:"parameters" yaml:"parameters"`
	Routes        [][]int        `json:"routes" yaml:"routes"`
	Metrics       *opt.Metrics   `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// ExchangeParams records how the routes were produced.
type ExchangeParams struct {
	Algorithm   string      `json:"algorithm,omitempty" yaml:"algorithm,omitempty"`
	Dataset     string      `json:"dataset,omitempty" yaml:"dataset,omitempty"`
	DayHorizon  float64     `json:"day_horizon" yaml:"day_horizon"`
	ServiceTime float64     `json:"service_time" yaml:"service_time"`
	Mode        string      `json:"mode,omitempty" yaml:"mode,omitempty"`
	Seed        int64       `json:"seed,omitempty" yaml:"seed,omitempty"`
	Repeat      int         `json:"repeat,omitempty" yaml:"repeat,omitempty"`
	Forced      []int       `json:"forced,omitempty" yaml:"forced,omitempty"`
	CostModel   *opt.Params `json:"cost_model,omitempty" yaml:"cost_model,omitempty"`
}

// NewExchange builds the exchange object for a finished constructive run.
func NewExchange(dataset, algorithm string, sol opt.Solution, m opt.Metrics, p opt.Params, mode opt.Mode) Exchange {
	routes := make([][]int, len(sol))
	for i, r := range sol {
		routes[i] = append([]int(nil), r...)
	}
	cm := p
	return Exchange{
		Version:     ExchangeVersion,
		Dataset:     dataset,
		Algorithm:   algorithm,
		GeneratedAt: time.Now().UTC(),
		Parameters: ExchangeParams{
			Algorithm:   algorithm,
			Dataset:     dataset,
			DayHorizon:  p.DayHorizon,
			ServiceTime: p.ServiceTime,
			Mode:        mode.String(),
			CostModel:   &cm,
		},
		Routes:  routes,
		Metrics: &m,
	}
}

// Solution converts the routes under policy.
func (e Exchange) Solution(policy opt.BoundaryPolicy) (opt.Solution, error) {
	return opt.NormalizeRoutes(e.Routes, policy)
}

// AnnealParameters is the reproducibility block of an anneal payload.
type AnnealParameters struct {
	TMax           float64 `json:"t_max"`
	TMin           float64 `json:"t_min"`
	Alpha          float64 `json:"alpha"`
	ItersPerTemp   int     `json:"iters_per_temperature"`
	Neighborhood   string  `json:"neighborhood"`
	Seed           int64   `json:"seed"`
	DayHorizon     float64 `json:"day_horizon"`
	ServiceTime    float64 `json:"service_time"`
	TimeWeight     float64 `json:"time_weight"`
	RoutesSource   string  `json:"routes_source,omitempty"`
	MatricesSource string  `json:"matrices_source,omitempty"`
}

// Process summarises the search itself.
type Process struct {
	RuntimeSec          float64 `json:"runtime_sec"`
	Epochs              int     `json:"epochs"`
	AcceptedMoves       int     `json:"accepted_moves"`
	ImprovingMoves      int     `json:"improving_moves"`
	SkippedMoves        int     `json:"skipped_moves"`
	RejectedTotal       int     `json:"rejected_total"`
	RejectedExpected    int     `json:"rejected_expected"`
	RejectedPessimistic int     `json:"rejected_pessimistic"`
	RejectedBoth        int     `json:"rejected_both"`
	TotalAttempts       int     `json:"total_attempts"`
	RejectionRate       float64 `json:"rejection_rate"`
}

// TracePoint is one [epoch, best_cost] improvement.
type TracePoint struct {
	Epoch    int     `json:"epoch"`
	BestCost float64 `json:"best_cost"`
}

// AnnealPayload is the result file of an anneal run.
type AnnealPayload struct {
	Parameters        AnnealParameters `json:"parameters"`
	InitialCost       float64          `json:"initial_cost"`
	BestCost          float64          `json:"best_cost"`
	ImprovementPct    float64          `json:"improvement_pct"`
	BestRoutes        opt.Solution     `json:"best_routes"`
	MetricsInitial    opt.Metrics      `json:"metrics_initial"`
	MetricsBest       opt.Metrics      `json:"metrics_best"`
	MetricsDelta      opt.MetricsDelta `json:"metrics_delta"`
	Process           Process          `json:"process"`
	TraceImprovements []TracePoint     `json:"trace_improvements"`
}

// NewAnnealPayload flattens res into the payload shape.
func NewAnnealPayload(res opt.AnnealResult, cfg opt.AnnealConfig, p opt.Params, routesSource, matricesSource string) AnnealPayload {
	st := res.Stats
	imps := res.Improvements()
	trace := make([]TracePoint, len(imps))
	for i, e := range imps {
		trace[i] = TracePoint{Epoch: e.Epoch, BestCost: e.BestCost}
	}
	return AnnealPayload{
		Parameters: AnnealParameters{
			TMax:           cfg.TMax,
			TMin:           cfg.TMin,
			Alpha:          cfg.Alpha,
			ItersPerTemp:   cfg.ItersPerTemp,
			Neighborhood:   string(cfg.Neighborhood),
			Seed:           cfg.Seed,
			DayHorizon:     p.DayHorizon,
			ServiceTime:    p.ServiceTime,
			TimeWeight:     p.TimeWeight,
			RoutesSource:   routesSource,
			MatricesSource: matricesSource,
		},
		InitialCost:    res.InitialCost,
		BestCost:       res.BestCost,
		ImprovementPct: res.ImprovementPct(),
		BestRoutes:     res.Best,
		MetricsInitial: res.InitialMetrics,
		MetricsBest:    res.BestMetrics,
		MetricsDelta:   res.BestMetrics.Delta(res.InitialMetrics),
		Process: Process{
			RuntimeSec:          st.Runtime.Seconds(),
			Epochs:              st.Epochs,
			AcceptedMoves:       st.Accepted,
			ImprovingMoves:      st.Improving,
			SkippedMoves:        st.Skipped,
			RejectedTotal:       st.RejectedTotal,
			RejectedExpected:    st.RejectedExpected,
			RejectedPessimistic: st.RejectedPessimistic,
			RejectedBoth:        st.RejectedBoth,
			TotalAttempts:       st.Attempts,
			RejectionRate:       st.RejectionRate,
		},
		TraceImprovements: trace,
	}
}
