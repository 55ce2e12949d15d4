package opt

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"robustroute/internal/apperr"
)

// Grid is the cartesian parameter sweep of a batch run.
type Grid struct {
	TMax          []float64      `json:"t_max" yaml:"t_max"`
	Alpha         []float64      `json:"alpha" yaml:"alpha"`
	ItersPerTemp  []int          `json:"iters_per_temperature" yaml:"iters_per_temperature"`
	Neighborhoods []Neighborhood `json:"neighborhoods" yaml:"neighborhoods"`
	TMin          float64        `json:"t_min" yaml:"t_min"`
	SeedsPerCell  int            `json:"seeds_per_cell" yaml:"seeds_per_cell"`
	Seed          int64          `json:"seed" yaml:"seed"`
}

// Configs expands the grid into one AnnealConfig per run, seeds included.
func (g Grid) Configs() ([]AnnealConfig, error) {
	if len(g.TMax) == 0 || len(g.Alpha) == 0 || len(g.ItersPerTemp) == 0 || len(g.Neighborhoods) == 0 {
		return nil, apperr.New(apperr.CodeInvalidInput, "grid needs at least one value per axis")
	}
	tmin := g.TMin
	if tmin <= 0 {
		tmin = 1e-3
	}
	seeds := g.SeedsPerCell
	if seeds < 1 {
		seeds = 1
	}
	var out []AnnealConfig
	for _, tmax := range g.TMax {
		for _, a := range g.Alpha {
			for _, it := range g.ItersPerTemp {
				for _, nb := range g.Neighborhoods {
					for s := 0; s < seeds; s++ {
						cfg := AnnealConfig{
							TMax:         tmax,
							TMin:         tmin,
							Alpha:        a,
							ItersPerTemp: it,
							Neighborhood: nb,
							Seed:         DeriveSeed(g.Seed, uint64(len(out))),
						}
						if err := cfg.Validate(); err != nil {
							return nil, err
						}
						out = append(out, cfg)
					}
				}
			}
		}
	}
	return out, nil
}

// GridRow is the outcome of one batch run.
type GridRow struct {
	Index          int          `json:"index"`
	Config         AnnealConfig `json:"config"`
	InitialCost    float64      `json:"initial_cost"`
	BestCost       float64      `json:"best_cost"`
	ImprovementPct float64      `json:"improvement_pct"`
	Vehicles       int          `json:"vehicles_used"`
	Epochs         int          `json:"epochs"`
	Accepted       int          `json:"accepted_moves"`
	RejectedTotal  int          `json:"rejected_total"`
	RuntimeSec     float64      `json:"runtime_sec"`
}

// RunGrid anneals a copy of initial once per grid configuration using at most
// workers goroutines. Rows come back in configuration order.
func RunGrid(ctx context.Context, in *Instance, initial Solution, grid Grid, workers int, opts ...Option) ([]GridRow, error) {
	cfgs, err := grid.Configs()
	if err != nil {
		return nil, err
	}
	if err := initial.Validate(in.N()); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	rows := make([]GridRow, len(cfgs))

	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, cfg := range cfgs {
		i, cfg := i, cfg
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := Anneal(gctx, in, initial.Clone(), cfg, WithLogger(o.logger))
			if err != nil {
				return err
			}
			rows[i] = GridRow{
				Index:          i,
				Config:         cfg,
				InitialCost:    res.InitialCost,
				BestCost:       res.BestCost,
				ImprovementPct: res.ImprovementPct(),
				Vehicles:       res.Best.VehiclesUsed(),
				Epochs:         res.Stats.Epochs,
				Accepted:       res.Stats.Accepted,
				RejectedTotal:  res.Stats.RejectedTotal,
				RuntimeSec:     res.Stats.Runtime.Seconds(),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	o.logger.Info().Int("runs", len(rows)).Msg("batch grid finished")
	return rows, nil
}

// BestRow returns the row with the lowest best cost; ok is false for an empty slice.
func BestRow(rows []GridRow) (GridRow, bool) {
	if len(rows) == 0 {
		return GridRow{}, false
	}
	sorted := append([]GridRow(nil), rows...)
	sort.SliceStable(sorted, func(a, b int) bool { return sorted[a].BestCost < sorted[b].BestCost })
	return sorted[0], true
}
