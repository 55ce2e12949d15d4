package opt

import (
	"context"
	"math"
	"time"

	"robustroute/internal/apperr"
)

// AnnealConfig controls the cooling schedule and move selection.
type AnnealConfig struct {
	TMax         float64      `json:"t_max" yaml:"t_max"`
	TMin         float64      `json:"t_min" yaml:"t_min"`
	Alpha        float64      `json:"alpha" yaml:"alpha"`
	ItersPerTemp int          `json:"iters_per_temperature" yaml:"iters_per_temperature"`
	Neighborhood Neighborhood `json:"neighborhood" yaml:"neighborhood"`
	Seed         int64        `json:"seed" yaml:"seed"`
}

// Validate checks the schedule terminates and the operator is known.
func (c AnnealConfig) Validate() error {
	if c.TMax <= 0 {
		return apperr.InvalidInput("t_max", "must be > 0")
	}
	if c.TMin <= 0 {
		return apperr.InvalidInput("t_min", "must be > 0")
	}
	if c.Alpha <= 0 || c.Alpha >= 1 {
		return apperr.InvalidInput("alpha", "must be in (0,1)")
	}
	if c.ItersPerTemp <= 0 {
		return apperr.InvalidInput("iters_per_temperature", "must be > 0")
	}
	if _, err := ParseNeighborhood(string(c.Neighborhood)); err != nil {
		return err
	}
	return nil
}

// Epochs is the number of cooling steps the schedule runs.
func (c AnnealConfig) Epochs() int {
	if c.TMax <= c.TMin || c.Alpha <= 0 || c.Alpha >= 1 {
		return 0
	}
	n := 0
	for t := c.TMax; t > c.TMin; t *= c.Alpha {
		n++
	}
	return n
}

// TraceEntry records the state at the end of one epoch.
type TraceEntry struct {
	Epoch       int     `json:"epoch"`
	Temperature float64 `json:"temperature"`
	BestCost    float64 `json:"best_cost"`
	CurrentCost float64 `json:"current_cost"`
}

// EpochEvent is delivered to an Observer after every epoch.
type EpochEvent struct {
	TraceEntry
	Vehicles int  `json:"vehicles"`
	Accepted int  `json:"accepted"`
	Rejected int  `json:"rejected"`
	Improved bool `json:"improved"`
}

// Observer receives epoch progress. It runs on the search goroutine and must not block.
type Observer func(EpochEvent)

// AnnealStats aggregates move outcomes over a run.
type AnnealStats struct {
	Epochs              int           `json:"epochs"`
	Attempts            int           `json:"total_attempts"`
	Skipped             int           `json:"skipped"`
	Accepted            int           `json:"accepted_moves"`
	Improving           int           `json:"improving_moves"`
	RejectedExpected    int           `json:"rejected_expected"`
	RejectedPessimistic int           `json:"rejected_pessimistic"`
	RejectedBoth        int           `json:"rejected_both"`
	RejectedTotal       int           `json:"rejected_total"`
	RejectionRate       float64       `json:"rejection_rate"`
	Runtime             time.Duration `json:"runtime"`
}

// AnnealResult is the outcome of Anneal.
type AnnealResult struct {
	Best           Solution     `json:"best_routes"`
	BestCost       float64      `json:"best_cost"`
	InitialCost    float64      `json:"initial_cost"`
	InitialMetrics Metrics      `json:"metrics_initial"`
	BestMetrics    Metrics      `json:"metrics_best"`
	Stats          AnnealStats  `json:"process"`
	Trace          []TraceEntry `json:"trace"`
}

// Improvements returns the first trace entry and every later one at which the
// best cost went down.
func (r AnnealResult) Improvements() []TraceEntry {
	out := []TraceEntry{}
	for i, e := range r.Trace {
		if i == 0 || e.BestCost < out[len(out)-1].BestCost {
			out = append(out, e)
		}
	}
	return out
}

// ImprovementPct is the relative cost reduction from the initial solution, in percent.
func (r AnnealResult) ImprovementPct() float64 {
	if r.InitialCost == 0 {
		return 0
	}
	return 100 * (r.InitialCost - r.BestCost) / r.InitialCost
}

// Anneal improves initial by simulated annealing.
//
// Each epoch runs ItersPerTemp iterations at temperature T. A candidate from the
// configured operator is rejected outright when any route fails Classify, and
// the violation axes are tallied. Otherwise it replaces the current solution if
// it is cheaper or with probability exp(-delta/T). T is multiplied by Alpha
// after every epoch until it reaches TMin. ctx is checked between epochs; on
// cancellation the best solution so far is returned with ctx.Err().
func Anneal(ctx context.Context, in *Instance, initial Solution, cfg AnnealConfig, opts ...Option) (AnnealResult, error) {
	if err := cfg.Validate(); err != nil {
		return AnnealResult{}, err
	}
	if err := initial.Validate(in.N()); err != nil {
		return AnnealResult{}, err
	}
	o := buildOptions(opts)
	nb, _ := ParseNeighborhood(string(cfg.Neighborhood))
	rng := NewRNG(cfg.Seed)
	started := time.Now()

	current := initial.Clone()
	currentCost, currentMetrics := Evaluate(current, in)
	best, bestCost, bestMetrics := current.Clone(), currentCost, currentMetrics

	res := AnnealResult{InitialCost: currentCost, InitialMetrics: currentMetrics}
	var st AnnealStats

	T := cfg.TMax
	epoch := 0
	var runErr error
	for T > cfg.TMin {
		epochAccepted, epochRejected := 0, 0
		epochImproved := false
		for it := 0; it < cfg.ItersPerTemp; it++ {
			op := nb
			if nb == Mixed {
				op = mixedOrder[rng.Intn(len(mixedOrder))]
			}
			cand := moves[op](current, rng)
			if cand == nil {
				st.Skipped++
				continue
			}
			st.Attempts++

			if v, ok := classifyAll(in, cand); !ok {
				st.RejectedTotal++
				epochRejected++
				if v.Expected {
					st.RejectedExpected++
				}
				if v.Pessimistic {
					st.RejectedPessimistic++
				}
				if v.Both {
					st.RejectedBoth++
				}
				continue
			}

			candCost, candMetrics := Evaluate(cand, in)
			delta := candCost - currentCost
			if delta < 0 || math.Exp(-delta/T) > rng.Float64() {
				current, currentCost = cand, candCost
				st.Accepted++
				epochAccepted++
				if delta < 0 {
					st.Improving++
				}
				if currentCost < bestCost {
					best, bestCost, bestMetrics = current.Clone(), currentCost, candMetrics
					epochImproved = true
				}
			}
		}

		entry := TraceEntry{Epoch: epoch, Temperature: T, BestCost: bestCost, CurrentCost: currentCost}
		res.Trace = append(res.Trace, entry)
		if o.observer != nil {
			o.observer(EpochEvent{TraceEntry: entry, Vehicles: current.VehiclesUsed(), Accepted: epochAccepted, Rejected: epochRejected, Improved: epochImproved})
		}
		if epoch%10 == 0 {
			o.logger.Info().
				Int("epoch", epoch).
				Float64("t", T).
				Float64("cost", currentCost).
				Int("vehicles", current.VehiclesUsed()).
				Float64("best", bestCost).
				Msg("anneal progress")
		}
		epoch++
		T *= cfg.Alpha
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
	}

	st.Epochs = epoch
	if st.Attempts > 0 {
		st.RejectionRate = float64(st.RejectedTotal) / float64(st.Attempts)
	}
	st.Runtime = time.Since(started)

	res.Best, res.BestCost, res.BestMetrics, res.Stats = best, bestCost, bestMetrics, st
	o.logger.Info().
		Int("epochs", st.Epochs).
		Int("accepted", st.Accepted).
		Int("rejected", st.RejectedTotal).
		Float64("initial_cost", res.InitialCost).
		Float64("best_cost", bestCost).
		Dur("runtime", st.Runtime).
		Msg("anneal finished")
	return res, runErr
}

// classifyAll merges the classification of every route; ok is false if any route fails.
func classifyAll(in *Instance, sol Solution) (Classification, bool) {
	var agg Classification
	ok := true
	for _, r := range sol {
		c := in.Classify(r)
		if !c.OK {
			ok = false
			agg.Expected = agg.Expected || c.Expected
			agg.Pessimistic = agg.Pessimistic || c.Pessimistic
			agg.Both = agg.Both || c.Both
		}
	}
	agg.OK = ok
	return agg, ok
}
