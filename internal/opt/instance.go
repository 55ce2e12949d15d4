package opt

import (
	"fmt"
	"math"
	"strings"

	"robustroute/internal/apperr"
)

// Depot is the location index every route starts and ends at.
const Depot = 0

// Matrix is a square travel-time or distance matrix indexed by location.
type Matrix [][]float64

// Matrices is the bundle of scenario matrices for one instance.
type Matrices struct {
	Expected    Matrix `json:"expected" yaml:"expected"`
	Pessimistic Matrix `json:"pessimistic" yaml:"pessimistic"`
	Optimistic  Matrix `json:"optimistic,omitempty" yaml:"optimistic,omitempty"`
	DistanceKm  Matrix `json:"distance_km,omitempty" yaml:"distance_km,omitempty"`
}

// Size is the number of locations including the depot.
func (m Matrices) Size() int { return len(m.Expected) }

// Validate checks that both required axes exist and every matrix is N×N.
func (m Matrices) Validate() error {
	if len(m.Expected) == 0 {
		return apperr.New(apperr.CodeMissingMatrixAxis, "expected matrix is required")
	}
	if len(m.Pessimistic) == 0 {
		return apperr.New(apperr.CodeMissingMatrixAxis, "pessimistic matrix is required")
	}
	n := len(m.Expected)
	for name, mx := range map[string]Matrix{"expected": m.Expected, "pessimistic": m.Pessimistic, "optimistic": m.Optimistic, "distance_km": m.DistanceKm} {
		if mx == nil {
			continue
		}
		if len(mx) != n {
			return apperr.Newf(apperr.CodeDimensionMismatch, "%s has %d rows, want %d", name, len(mx), n)
		}
		for i, row := range mx {
			if len(row) != n {
				return apperr.Newf(apperr.CodeDimensionMismatch, "%s row %d has %d columns, want %d", name, i, len(row), n)
			}
			for j, v := range row {
				if !finite(v) {
					return apperr.Newf(apperr.CodeInvalidInput, "%s[%d][%d] is not finite", name, i, j)
				}
				if v < 0 {
					return apperr.Newf(apperr.CodeInvalidInput, "%s[%d][%d] is negative", name, i, j)
				}
			}
		}
	}
	return nil
}

// Window is a service interval in minutes after the day-start reference.
type Window struct {
	Start float64 `json:"start" yaml:"start"`
	End   float64 `json:"end" yaml:"end"`
}

// Windows maps a customer index to its window; a missing key or nil value is unconstrained.
type Windows map[int]*Window

// lookup never reports a window for the depot.
func (w Windows) lookup(i int) (Window, bool) {
	if i == Depot || w == nil {
		return Window{}, false
	}
	tw := w[i]
	if tw == nil {
		return Window{}, false
	}
	return *tw, true
}

// Route is a depot-bounded sequence of location indices.
type Route []int

// Customers is the number of interior stops.
func (r Route) Customers() int {
	if len(r) < 2 {
		return 0
	}
	return len(r) - 2
}

// Solution is an ordered set of routes.
type Solution []Route

// Clone returns a deep copy.
func (s Solution) Clone() Solution {
	out := make(Solution, len(s))
	for i, r := range s {
		out[i] = append(Route(nil), r...)
	}
	return out
}

// VehiclesUsed counts routes with at least one customer.
func (s Solution) VehiclesUsed() int {
	k := 0
	for _, r := range s {
		if len(r) > 2 {
			k++
		}
	}
	return k
}

// Visits counts interior stops across all routes.
func (s Solution) Visits() int {
	v := 0
	for _, r := range s {
		v += r.Customers()
	}
	return v
}

// Validate checks the depot boundary of every route and that interior stops
// partition {1..n-1}.
func (s Solution) Validate(n int) error {
	seen := make([]bool, n)
	count := 0
	for ri, r := range s {
		if len(r) < 2 || r[0] != Depot || r[len(r)-1] != Depot {
			return apperr.Newf(apperr.CodeInvalidRouteBoundary, "route %d does not start and end at the depot", ri).WithField("route", ri)
		}
		for _, c := range r[1 : len(r)-1] {
			if c <= Depot || c >= n {
				return apperr.Newf(apperr.CodePartitionViolation, "route %d visits unknown location %d", ri, c)
			}
			if seen[c] {
				return apperr.Newf(apperr.CodePartitionViolation, "customer %d visited more than once", c)
			}
			seen[c] = true
			count++
		}
	}
	if n > 0 && count != n-1 {
		missing := []string{}
		for c := 1; c < n; c++ {
			if !seen[c] {
				missing = append(missing, fmt.Sprint(c))
			}
		}
		return apperr.Newf(apperr.CodePartitionViolation, "customers not routed: %s", strings.Join(missing, ","))
	}
	return nil
}

// BoundaryPolicy decides how routes lacking depot endpoints are treated on load.
type BoundaryPolicy int

const (
	BoundaryNormalize BoundaryPolicy = iota
	BoundaryStrict
)

// NormalizeRoutes converts raw lists into a Solution. Empty lists are dropped.
// Under BoundaryNormalize missing depot endpoints are added; under
// BoundaryStrict they produce an InvalidRouteBoundary error.
func NormalizeRoutes(raw [][]int, policy BoundaryPolicy) (Solution, error) {
	out := make(Solution, 0, len(raw))
	for i, r := range raw {
		if len(r) == 0 {
			continue
		}
		okStart, okEnd := r[0] == Depot, r[len(r)-1] == Depot
		if len(r) == 1 && okStart {
			okEnd = false
		}
		if (!okStart || !okEnd) && policy == BoundaryStrict {
			return nil, apperr.Newf(apperr.CodeInvalidRouteBoundary, "route %d must start and end with %d", i, Depot).WithField("route", i)
		}
		rt := make(Route, 0, len(r)+2)
		if !okStart {
			rt = append(rt, Depot)
		}
		rt = append(rt, r...)
		if !okEnd {
			rt = append(rt, Depot)
		}
		out = append(out, rt)
	}
	return out, nil
}

// Params holds the cost weights and schedule limits. The engine applies no defaults.
type Params struct {
	DayHorizon           float64 `json:"day_horizon" yaml:"day_horizon"`
	ServiceTime          float64 `json:"service_time" yaml:"service_time"`
	CostPerKm            float64 `json:"cost_per_km" yaml:"cost_per_km"`
	VehicleFixedCost     float64 `json:"vehicle_fixed_cost" yaml:"vehicle_fixed_cost"`
	PenaltyHorizonPerMin float64 `json:"penalty_horizon_per_min" yaml:"penalty_horizon_per_min"`
	TimeWeight           float64 `json:"time_weight" yaml:"time_weight"`
}

// Validate rejects negative or non-finite limits and weights.
func (p Params) Validate() error {
	checks := []struct {
		name string
		v    float64
	}{
		{"day_horizon", p.DayHorizon},
		{"service_time", p.ServiceTime},
		{"cost_per_km", p.CostPerKm},
		{"vehicle_fixed_cost", p.VehicleFixedCost},
		{"penalty_horizon_per_min", p.PenaltyHorizonPerMin},
		{"time_weight", p.TimeWeight},
	}
	for _, c := range checks {
		if !finite(c.v) || c.v < 0 {
			return apperr.InvalidInput(c.name, "must be a finite number >= 0")
		}
	}
	return nil
}

// Instance is the read-only input of a search.
type Instance struct {
	Matrices Matrices
	Windows  Windows
	Params   Params
}

// NewInstance validates the bundle and parameters.
func NewInstance(m Matrices, tw Windows, p Params) (*Instance, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	for i, w := range tw {
		if i < 0 || i >= m.Size() {
			return nil, apperr.Newf(apperr.CodeInvalidInput, "time window for unknown location %d", i)
		}
		if w == nil {
			continue
		}
		if !finite(w.Start) || !finite(w.End) {
			return nil, apperr.Newf(apperr.CodeInvalidInput, "time window for %d is not finite", i)
		}
		if w.End < w.Start {
			return nil, apperr.Newf(apperr.CodeInvalidInput, "time window for %d ends before it starts", i)
		}
	}
	return &Instance{Matrices: m, Windows: tw, Params: p}, nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// N is the number of locations including the depot.
func (in *Instance) N() int { return in.Matrices.Size() }

// Mode relaxes feasibility for constructive experiments.
type Mode int

const (
	ModeStrict Mode = iota
	ModeIgnorePessimistic
	ModeIgnoreAll
)

func (m Mode) String() string {
	switch m {
	case ModeIgnorePessimistic:
		return "ignore-p"
	case ModeIgnoreAll:
		return "ignore-all"
	default:
		return "strict"
	}
}

// ParseMode accepts strict, ignore-p and ignore-all; empty means strict.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return ModeStrict, nil
	case "ignore-p", "ignore_p", "ignore-pessimistic":
		return ModeIgnorePessimistic, nil
	case "ignore-all", "ignore_all":
		return ModeIgnoreAll, nil
	}
	return ModeStrict, apperr.InvalidInput("mode", fmt.Sprintf("unknown mode %q", s))
}
