package model

import (
	"encoding/json"
	"time"

	"robustroute/internal/opt"
)

// Request and response payloads of the HTTP API. Exchange files use the
// snake_case shapes further down.

// WindowIn accepts either numeric minutes or an "HH:MM-HH:MM" range.
type WindowIn struct {
	Start *float64 `json:"start,omitempty"`
	End   *float64 `json:"end,omitempty"`
	Range string   `json:"range,omitempty"`
}

// InstanceIn is the problem bundle posted to the solve endpoints. Params
// fields left out fall back to the configured defaults.
type InstanceIn struct {
	Dataset     string           `json:"dataset,omitempty"`
	Matrices    opt.Matrices     `json:"matrices"`
	TimeWindows map[int]WindowIn `json:"timeWindows,omitempty"`
	Params      *ParamsIn        `json:"params,omitempty"`
}

// ParamsIn is a partial opt.Params.
type ParamsIn struct {
	DayHorizon           *float64 `json:"dayHorizon,omitempty"`
	ServiceTime          *float64 `json:"serviceTime,omitempty"`
	CostPerKm            *float64 `json:"costPerKm,omitempty"`
	VehicleFixedCost     *float64 `json:"vehicleFixedCost,omitempty"`
	PenaltyHorizonPerMin *float64 `json:"penaltyHorizonPerMin,omitempty"`
	TimeWeight           *float64 `json:"timeWeight,omitempty"`
}

// Apply overlays the fields that are set onto base.
func (p *ParamsIn) Apply(base opt.Params) opt.Params {
	if p == nil {
		return base
	}
	set := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	set(&base.DayHorizon, p.DayHorizon)
	set(&base.ServiceTime, p.ServiceTime)
	set(&base.CostPerKm, p.CostPerKm)
	set(&base.VehicleFixedCost, p.VehicleFixedCost)
	set(&base.PenaltyHorizonPerMin, p.PenaltyHorizonPerMin)
	set(&base.TimeWeight, p.TimeWeight)
	return base
}

type SavingsRequest struct {
	Instance InstanceIn `json:"instance"`
	Mode     string     `json:"mode,omitempty"`
}

type InsertionRequest struct {
	Instance InstanceIn `json:"instance"`
	Mode     string     `json:"mode,omitempty"`
	Repeats  int        `json:"repeats,omitempty"`
	Seed     int64      `json:"seed,omitempty"`
	BestOnly bool       `json:"bestOnly,omitempty"`
}

// AnnealConfigIn is a partial opt.AnnealConfig.
type AnnealConfigIn struct {
	TMax         *float64 `json:"tMax,omitempty"`
	TMin         *float64 `json:"tMin,omitempty"`
	Alpha        *float64 `json:"alpha,omitempty"`
	ItersPerTemp *int     `json:"itersPerTemp,omitempty"`
	Neighborhood string   `json:"neighborhood,omitempty"`
	Seed         *int64   `json:"seed,omitempty"`
}

// Apply overlays the fields that are set onto base.
func (c *AnnealConfigIn) Apply(base opt.AnnealConfig) opt.AnnealConfig {
	if c == nil {
		return base
	}
	if c.TMax != nil {
		base.TMax = *c.TMax
	}
	if c.TMin != nil {
		base.TMin = *c.TMin
	}
	if c.Alpha != nil {
		base.Alpha = *c.Alpha
	}
	if c.ItersPerTemp != nil {
		base.ItersPerTemp = *c.ItersPerTemp
	}
	if c.Neighborhood != "" {
		base.Neighborhood = opt.Neighborhood(c.Neighborhood)
	}
	if c.Seed != nil {
		base.Seed = *c.Seed
	}
	return base
}

// AnnealRequest starts a synchronous anneal. RunID may be chosen by the
// client so it can subscribe to progress before posting.
type AnnealRequest struct {
	RunID          string          `json:"runId,omitempty"`
	Instance       InstanceIn      `json:"instance"`
	Routes         [][]int         `json:"routes,omitempty"`
	SolutionID     string          `json:"solutionId,omitempty"`
	Config         *AnnealConfigIn `json:"config,omitempty"`
	StrictBoundary bool            `json:"strictBoundary,omitempty"`
	Polish         bool            `json:"polish,omitempty"`
}

type BatchRequest struct {
	RunID          string     `json:"runId,omitempty"`
	Instance       InstanceIn `json:"instance"`
	Routes         [][]int    `json:"routes,omitempty"`
	SolutionID     string     `json:"solutionId,omitempty"`
	Grid           opt.Grid   `json:"grid"`
	Workers        int        `json:"workers,omitempty"`
	StrictBoundary bool       `json:"strictBoundary,omitempty"`
}

type EvaluateRequest struct {
	Instance       InstanceIn `json:"instance"`
	Routes         [][]int    `json:"routes"`
	StrictBoundary bool       `json:"strictBoundary,omitempty"`
}

type SolveResponse struct {
	SolutionID string           `json:"solutionId"`
	Algorithm  string           `json:"algorithm"`
	Mode       string           `json:"mode"`
	Routes     opt.Solution     `json:"routes"`
	Cost       float64          `json:"cost"`
	Metrics    opt.Metrics      `json:"metrics"`
	Forced     []int            `json:"forced,omitempty"`
	Seed       int64            `json:"seed,omitempty"`
	Runs       []opt.RunSummary `json:"runs,omitempty"`
}

// RouteCheck is the classification of one evaluated route.
type RouteCheck struct {
	Route          opt.Route          `json:"route"`
	Classification opt.Classification `json:"classification"`
}

type EvaluateResponse struct {
	Cost     float64      `json:"cost"`
	Metrics  opt.Metrics  `json:"metrics"`
	Routes   []RouteCheck `json:"routes"`
	Feasible bool         `json:"feasible"`
}

type AnnealResponse struct {
	RunID      string        `json:"runId"`
	SolutionID string        `json:"solutionId"`
	Result     AnnealPayload `json:"result"`
}

type BatchResponse struct {
	RunID string        `json:"runId"`
	Rows  []opt.GridRow `json:"rows"`
	Best  *opt.GridRow  `json:"best,omitempty"`
}

// Run is a persisted anneal or batch run.
type Run struct {
	ID          string          `json:"id"`
	Dataset     string          `json:"dataset,omitempty"`
	Algorithm   string          `json:"algorithm"`
	Status      string          `json:"status"`
	SolutionID  string          `json:"solutionId,omitempty"`
	InitialCost float64         `json:"initialCost"`
	BestCost    float64         `json:"bestCost"`
	RouteEndE   []float64       `json:"routeEndE,omitempty"`
	RouteEndP   []float64       `json:"routeEndP,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	FinishedAt  *time.Time      `json:"finishedAt,omitempty"`
}

const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
	RunCancelled = "cancelled"
)

// StoredSolution is an exchange object with its store id.
type StoredSolution struct {
	ID        string    `json:"id"`
	Exchange  Exchange  `json:"exchange"`
	CreatedAt time.Time `json:"createdAt"`
}

// ProgressEvent is streamed to SSE and websocket subscribers of a run.
type ProgressEvent struct {
	Type  string          `json:"type"`
	RunID string          `json:"runId"`
	Epoch *opt.EpochEvent `json:"epoch,omitempty"`
	Done  *RunDone        `json:"done,omitempty"`
}

// RunDone is the terminal progress event.
type RunDone struct {
	Status   string  `json:"status"`
	BestCost float64 `json:"bestCost"`
	Error    string  `json:"error,omitempty"`
}

const (
	EventEpoch = "anneal.epoch"
	EventDone  = "run.done"
)
