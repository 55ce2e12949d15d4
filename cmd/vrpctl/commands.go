package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"robustroute/internal/dataset"
	"robustroute/internal/model"
	"robustroute/internal/opt"
)

// outputFlags control where a constructive result goes.
type outputFlags struct {
	export    string
	summary   string
	appendCSV string
}

func addOutputFlags(fs *flag.FlagSet) *outputFlags {
	o := &outputFlags{}
	fs.StringVar(&o.export, "export", "", "write the exchange object (.json, .yaml or .yml)")
	fs.StringVar(&o.summary, "summary", "", "write the key=value summary text ('-' for stdout)")
	fs.StringVar(&o.appendCSV, "append-csv", "", "append a metrics row to this comparison CSV")
	return o
}

func (o *outputFlags) write(ex model.Exchange, log zerolog.Logger) error {
	if o.export != "" {
		if err := dataset.SaveExchange(o.export, ex); err != nil {
			return err
		}
		log.Info().Str("path", o.export).Msg("exchange written")
	}
	if o.summary != "" {
		if err := writeTo(o.summary, func(w io.Writer) error { return dataset.WriteSummary(w, ex) }); err != nil {
			return err
		}
	}
	if o.appendCSV != "" && ex.Metrics != nil {
		row := dataset.ResultRow{
			Dataset:       ex.Dataset,
			Size:          ex.DatasetSize,
			WindowProfile: ex.WindowProfile,
			Algorithm:     ex.Algorithm,
			Metrics:       *ex.Metrics,
		}
		if err := dataset.AppendResults(o.appendCSV, []dataset.ResultRow{row}); err != nil {
			return err
		}
	}
	return nil
}

// writeTo opens path ("-" is stdout) and hands it to fn.
func writeTo(path string, fn func(io.Writer) error) error {
	if path == "-" {
		return fn(os.Stdout)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func tagExchange(ex *model.Exchange, src string) {
	tag, size, profile := dataset.DatasetTag(src)
	ex.Dataset, ex.Parameters.Dataset = tag, tag
	ex.DatasetSize, ex.WindowProfile = size, profile
}

func logMetrics(log zerolog.Logger, algorithm string, m opt.Metrics) {
	log.Info().
		Str("algorithm", algorithm).
		Float64("total_cost", m.TotalCost).
		Int("vehicles", m.VehiclesUsed).
		Float64("distance", m.TotalDistance).
		Float64("makespan_e", m.MakespanE).
		Float64("lateness_p_sum", m.LatenessPSum).
		Msg("solution")
}

const polishPasses = 50

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

type constructive struct {
	inst    *instanceFlags
	out     *outputFlags
	mode    string
	repeat  int
	seed    int64
	workers int
	best    bool
}

func parseConstructive(name string, args []string, withInsertion bool) (*constructive, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	c := &constructive{inst: addInstanceFlags(fs), out: addOutputFlags(fs)}
	fs.StringVar(&c.mode, "mode", "strict", "feasibility mode: strict, ignore-p or ignore-all")
	if withInsertion {
		fs.IntVar(&c.repeat, "repeat", 1, "independent insertion runs")
		fs.Int64Var(&c.seed, "seed", 1, "base seed; run i uses a seed derived from it")
		fs.IntVar(&c.workers, "workers", 4, "parallel insertion runs")
		fs.BoolVar(&c.best, "best-only", false, "log only the best run")
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return c, nil
}

func savingsCandidate(in *opt.Instance, mode opt.Mode) dataset.Candidate {
	sol := opt.Savings(in, mode)
	_, m := opt.Evaluate(sol, in)
	return dataset.Candidate{Algorithm: "savings", Solution: sol, Metrics: m}
}

func insertionCandidate(ctx context.Context, in *opt.Instance, c *constructive, mode opt.Mode, log zerolog.Logger) (dataset.Candidate, opt.InsertionResult, error) {
	res, err := opt.MultiStart(ctx, in, mode, c.repeat, c.seed, c.workers, opt.WithLogger(log))
	if err != nil {
		return dataset.Candidate{}, opt.InsertionResult{}, err
	}
	if !c.best {
		for _, r := range res.Runs {
			log.Info().Int("run", r.Run).Int64("seed", r.Seed).Float64("cost", r.Cost).Int("vehicles", r.Routes).Int("forced", r.Forced).Msg("insertion run")
		}
	}
	if len(res.Best.Forced) > 0 {
		log.Warn().Ints("forced", res.Best.Forced).Msg("customers without a feasible placement")
	}
	return dataset.Candidate{Algorithm: "insertion", Solution: res.Best.Solution, Metrics: res.Best.Metrics}, res.Best, nil
}

func runSavings(args []string, log zerolog.Logger) error {
	c, err := parseConstructive("savings", args, false)
	if err != nil {
		return err
	}
	mode, err := opt.ParseMode(c.mode)
	if err != nil {
		return err
	}
	_, in, err := c.inst.load(nil)
	if err != nil {
		return err
	}
	cand := savingsCandidate(in, mode)
	logMetrics(log, cand.Algorithm, cand.Metrics)
	ex := model.NewExchange("", cand.Algorithm, cand.Solution, cand.Metrics, in.Params, mode)
	tagExchange(&ex, c.inst.source())
	return c.out.write(ex, log)
}

func runInsertion(args []string, log zerolog.Logger) error {
	c, err := parseConstructive("insertion", args, true)
	if err != nil {
		return err
	}
	mode, err := opt.ParseMode(c.mode)
	if err != nil {
		return err
	}
	_, in, err := c.inst.load(nil)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()
	cand, best, err := insertionCandidate(ctx, in, c, mode, log)
	if err != nil {
		return err
	}
	logMetrics(log, cand.Algorithm, cand.Metrics)
	ex := model.NewExchange("", cand.Algorithm, cand.Solution, cand.Metrics, in.Params, mode)
	ex.Parameters.Seed, ex.Parameters.Repeat, ex.Parameters.Forced = best.Seed, c.repeat, best.Forced
	tagExchange(&ex, c.inst.source())
	return c.out.write(ex, log)
}

// runBest builds both constructive solutions and keeps the cheaper one.
func runBest(args []string, log zerolog.Logger) error {
	c, err := parseConstructive("best", args, true)
	if err != nil {
		return err
	}
	mode, err := opt.ParseMode(c.mode)
	if err != nil {
		return err
	}
	_, in, err := c.inst.load(nil)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()
	sv := savingsCandidate(in, mode)
	logMetrics(log, sv.Algorithm, sv.Metrics)
	ins, _, err := insertionCandidate(ctx, in, c, mode, log)
	if err != nil {
		return err
	}
	logMetrics(log, ins.Algorithm, ins.Metrics)
	best := dataset.PickBest(sv, ins)
	log.Info().Str("winner", best.Algorithm).Float64("total_cost", best.Metrics.TotalCost).Msg("best constructive")

	ex := model.NewExchange("", best.Algorithm, best.Solution, best.Metrics, in.Params, mode)
	tagExchange(&ex, c.inst.source())
	return c.out.write(ex, log)
}

// annealFlags select the initial solution of anneal and batch.
type annealFlags struct {
	routes         string
	strictBoundary bool
}

// loadInitial reads the starting routes. The returned params carry the
// exchange's schedule limits, or nil when it has none.
func loadInitial(af *annealFlags) (model.Exchange, opt.Solution, *opt.Params, error) {
	if af.routes == "" {
		return model.Exchange{}, nil, nil, errors.New("-routes is required")
	}
	policy := opt.BoundaryNormalize
	if af.strictBoundary {
		policy = opt.BoundaryStrict
	}
	ex, sol, err := dataset.LoadExchange(af.routes, policy)
	if err != nil {
		return ex, nil, nil, err
	}
	var base *opt.Params
	if ex.Parameters.DayHorizon > 0 {
		base = &opt.Params{DayHorizon: ex.Parameters.DayHorizon, ServiceTime: ex.Parameters.ServiceTime}
	}
	return ex, sol, base, nil
}

func runAnneal(args []string, log zerolog.Logger) error {
	fs := flag.NewFlagSet("anneal", flag.ContinueOnError)
	inst := addInstanceFlags(fs)
	out := addOutputFlags(fs)
	af := &annealFlags{}
	fs.StringVar(&af.routes, "routes", "", "initial solution exchange file (.json, .yaml or summary .txt)")
	fs.BoolVar(&af.strictBoundary, "strict-boundary", false, "reject routes without depot endpoints instead of adding them")
	tMax := fs.Float64("t-max", 0, "initial temperature (default from config)")
	tMin := fs.Float64("t-min", 0, "final temperature (default from config)")
	alpha := fs.Float64("alpha", 0, "cooling factor in (0,1) (default from config)")
	iters := fs.Int("iters", 0, "iterations per temperature (default from config)")
	nb := fs.String("neighborhood", "", "swap, relocate, two_opt or mixed (default from config)")
	seed := fs.Int64("seed", 0, "random seed (default from config)")
	polish := fs.Bool("polish", false, "apply 2-opt to the best solution afterwards")
	payloadPath := fs.String("out", "", "write the anneal payload JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ex, initial, base, err := loadInitial(af)
	if err != nil {
		return err
	}
	cfgAll, in, err := inst.load(base)
	if err != nil {
		return err
	}
	if err := initial.Validate(in.N()); err != nil {
		return err
	}

	cfg := cfgAll.Anneal
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["t-max"] {
		cfg.TMax = *tMax
	}
	if set["t-min"] {
		cfg.TMin = *tMin
	}
	if set["alpha"] {
		cfg.Alpha = *alpha
	}
	if set["iters"] {
		cfg.ItersPerTemp = *iters
	}
	if set["seed"] {
		cfg.Seed = *seed
	}
	if set["neighborhood"] {
		n, err := opt.ParseNeighborhood(*nb)
		if err != nil {
			return err
		}
		cfg.Neighborhood = n
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	log.Info().Int("epochs", cfg.Epochs()).Str("neighborhood", string(cfg.Neighborhood)).Int64("seed", cfg.Seed).Msg("annealing")
	observer := func(ev opt.EpochEvent) {
		log.Debug().Int("epoch", ev.Epoch).Float64("t", ev.Temperature).Float64("best", ev.BestCost).Int("vehicles", ev.Vehicles).Msg("epoch")
	}
	res, err := opt.Anneal(ctx, in, initial, cfg, opt.WithLogger(log), opt.WithObserver(observer))
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			return err
		}
		log.Warn().Msg("interrupted; keeping best so far")
	}
	if *polish {
		polished := opt.ImproveRoutes2Opt(in, res.Best, opt.ModeStrict, polishPasses)
		if c, m := opt.Evaluate(polished, in); c < res.BestCost {
			res.Best, res.BestCost, res.BestMetrics = polished, c, m
		}
	}
	log.Info().
		Float64("initial_cost", res.InitialCost).
		Float64("best_cost", res.BestCost).
		Float64("improvement_pct", res.ImprovementPct()).
		Int("accepted", res.Stats.Accepted).
		Int("rejected", res.Stats.RejectedTotal).
		Dur("runtime", res.Stats.Runtime).
		Msg("anneal finished")

	if *payloadPath != "" {
		payload := model.NewAnnealPayload(res, cfg, in.Params, af.routes, inst.source())
		if err := dataset.WriteFile(*payloadPath, payload); err != nil {
			return err
		}
	}
	best := model.NewExchange(ex.Dataset, "anneal", res.Best, res.BestMetrics, in.Params, opt.ModeStrict)
	best.Parameters.Seed = cfg.Seed
	if best.Dataset == "" {
		tagExchange(&best, inst.source())
	}
	return out.write(best, log)
}

func runBatch(args []string, log zerolog.Logger) error {
	fs := flag.NewFlagSet("batch", flag.ContinueOnError)
	inst := addInstanceFlags(fs)
	af := &annealFlags{}
	fs.StringVar(&af.routes, "routes", "", "initial solution exchange file")
	fs.BoolVar(&af.strictBoundary, "strict-boundary", false, "reject routes without depot endpoints")
	tMax := fs.String("t-max", "100,1000", "comma-separated initial temperatures")
	alpha := fs.String("alpha", "0.95,0.99", "comma-separated cooling factors")
	iters := fs.String("iters", "100", "comma-separated iterations per temperature")
	nbs := fs.String("neighborhoods", "mixed", "comma-separated operators")
	tMin := fs.Float64("t-min", 1e-3, "final temperature for every run")
	seeds := fs.Int("seeds-per-cell", 1, "runs per grid cell")
	seed := fs.Int64("seed", 1, "base seed")
	workers := fs.Int("workers", 4, "parallel runs")
	outPath := fs.String("out", "-", "CSV destination ('-' for stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	grid := opt.Grid{TMin: *tMin, SeedsPerCell: *seeds, Seed: *seed}
	var err error
	if grid.TMax, err = parseFloats(*tMax); err != nil {
		return err
	}
	if grid.Alpha, err = parseFloats(*alpha); err != nil {
		return err
	}
	if grid.ItersPerTemp, err = parseInts(*iters); err != nil {
		return err
	}
	if grid.Neighborhoods, err = parseNeighborhoods(*nbs); err != nil {
		return err
	}
	cfgs, err := grid.Configs()
	if err != nil {
		return err
	}

	_, initial, base, err := loadInitial(af)
	if err != nil {
		return err
	}
	_, in, err := inst.load(base)
	if err != nil {
		return err
	}
	if err := initial.Validate(in.N()); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	start := time.Now()
	log.Info().Int("runs", len(cfgs)).Int("workers", *workers).Msg("batch started")
	rows, err := opt.RunGrid(ctx, in, initial, grid, *workers, opt.WithLogger(log))
	if err != nil {
		return err
	}
	if best, ok := opt.BestRow(rows); ok {
		log.Info().Int("index", best.Index).Float64("best_cost", best.BestCost).Float64("improvement_pct", best.ImprovementPct).
			Dur("elapsed", time.Since(start)).Msg("batch finished")
	}
	return writeTo(*outPath, func(w io.Writer) error { return dataset.WriteGridCSV(w, rows) })
}

func runPerturb(args []string, log zerolog.Logger) error {
	fs := flag.NewFlagSet("perturb", flag.ContinueOnError)
	inPath := fs.String("in", "", "single-scenario edge-list CSV")
	outPath := fs.String("out", "-", "three-scenario CSV destination ('-' for stdout)")
	pess := fs.Float64("pessimistic", dataset.DefaultFactors.Pessimistic, "pessimistic factor")
	optim := fs.Float64("optimistic", dataset.DefaultFactors.Optimistic, "optimistic factor")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *inPath == "" {
		return errors.New("-in is required")
	}
	if *pess <= 0 || *optim <= 0 {
		return fmt.Errorf("factors must be > 0")
	}
	src, err := os.Open(*inPath)
	if err != nil {
		return err
	}
	defer src.Close()
	var st dataset.PerturbStats
	err = writeTo(*outPath, func(w io.Writer) error {
		var err error
		st, err = dataset.Perturb(src, w, dataset.Factors{Pessimistic: *pess, Optimistic: *optim}, log)
		return err
	})
	if err != nil {
		return err
	}
	log.Info().Int("rows", st.Rows).Int("failed", st.Failed).Str("source", *inPath).Msg("perturbed")
	return nil
}
