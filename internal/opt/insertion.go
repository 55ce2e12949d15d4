package opt

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// InsertionResult is one greedy-insertion run.
type InsertionResult struct {
	Solution Solution `json:"routes"`
	Cost     float64  `json:"cost"`
	Metrics  Metrics  `json:"metrics"`
	// Forced lists customers that had no feasible placement and were put on
	// their own route anyway.
	Forced []int `json:"forced,omitempty"`
	Seed   int64 `json:"seed"`
}

// Infeasible reports whether the run had to force any customer.
func (r InsertionResult) Infeasible() bool { return len(r.Forced) > 0 }

// GreedyInsertion builds a solution by cheapest global-cost insertion in a
// random customer order drawn from rng.
//
// For each customer every interior position of every route is tried, plus a
// new singleton route. Candidates must pass feasibility under mode and are
// ranked by the full-solution Evaluate cost. A customer with no feasible
// placement is forced onto its own route and reported in Forced.
func GreedyInsertion(in *Instance, mode Mode, rng *rand.Rand) InsertionResult {
	n := in.N()
	if n <= 1 {
		sol := Solution{{Depot, Depot}}
		cost, m := Evaluate(sol, in)
		return InsertionResult{Solution: sol, Cost: cost, Metrics: m}
	}
	customers := make([]int, 0, n-1)
	for c := 1; c < n; c++ {
		customers = append(customers, c)
	}
	shuffleInts(customers, rng)

	pop := func() int {
		c := customers[len(customers)-1]
		customers = customers[:len(customers)-1]
		return c
	}

	var forced []int
	first := pop()
	sol := Solution{{Depot, first, Depot}}
	if !in.Feasible(sol[0], mode) {
		forced = append(forced, first)
	}

	for len(customers) > 0 {
		c := pop()
		bestCost := math.Inf(1)
		var best Solution

		for ri, r := range sol {
			for pos := 1; pos < len(r); pos++ {
				nr := make(Route, 0, len(r)+1)
				nr = append(nr, r[:pos]...)
				nr = append(nr, c)
				nr = append(nr, r[pos:]...)
				if !in.Feasible(nr, mode) {
					continue
				}
				cand := make(Solution, len(sol))
				copy(cand, sol)
				cand[ri] = nr
				if cost, _ := Evaluate(cand, in); cost < bestCost {
					bestCost, best = cost, cand
				}
			}
		}

		single := Route{Depot, c, Depot}
		if in.Feasible(single, mode) {
			cand := append(append(make(Solution, 0, len(sol)+1), sol...), single)
			if cost, _ := Evaluate(cand, in); cost < bestCost {
				bestCost, best = cost, cand
			}
		}

		if best == nil {
			forced = append(forced, c)
			best = append(append(make(Solution, 0, len(sol)+1), sol...), single)
		}
		sol = best
	}

	sort.Ints(forced)
	cost, m := Evaluate(sol, in)
	return InsertionResult{Solution: sol.Clone(), Cost: cost, Metrics: m, Forced: forced}
}

// RunSummary is the per-run line of a multi-start.
type RunSummary struct {
	Run     int     `json:"run"`
	Seed    int64   `json:"seed"`
	Cost    float64 `json:"cost"`
	Routes  int     `json:"vehicles_used"`
	Forced  int     `json:"forced"`
	Elapsed float64 `json:"elapsed_sec"`
}

// MultiStartResult is the best run plus a summary of every run.
type MultiStartResult struct {
	Best InsertionResult `json:"best"`
	Runs []RunSummary    `json:"runs"`
}

// MultiStart runs repeats independent insertion runs, each with a seed derived
// from seed and its run index, on up to workers goroutines. The lowest-cost
// run wins; ties go to the lower run index.
func MultiStart(ctx context.Context, in *Instance, mode Mode, repeats int, seed int64, workers int, opts ...Option) (MultiStartResult, error) {
	o := buildOptions(opts)
	if repeats < 1 {
		repeats = 1
	}
	results := make([]InsertionResult, repeats)
	runs := make([]RunSummary, repeats)

	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i := 0; i < repeats; i++ {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s := DeriveSeed(seed, uint64(i))
			start := time.Now()
			res := GreedyInsertion(in, mode, NewRNG(s))
			res.Seed = s
			results[i] = res
			runs[i] = RunSummary{Run: i + 1, Seed: s, Cost: res.Cost, Routes: res.Metrics.VehiclesUsed, Forced: len(res.Forced), Elapsed: time.Since(start).Seconds()}
			o.logger.Debug().Int("run", i+1).Float64("cost", res.Cost).Int("forced", len(res.Forced)).Msg("insertion run finished")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return MultiStartResult{}, err
	}

	best := 0
	for i := 1; i < repeats; i++ {
		if results[i].Cost < results[best].Cost {
			best = i
		}
	}
	o.logger.Info().
		Int("repeats", repeats).
		Int("best_run", best+1).
		Float64("best_cost", results[best].Cost).
		Str("mode", mode.String()).
		Msg("multi-start insertion done")
	return MultiStartResult{Best: results[best], Runs: runs}, nil
}
