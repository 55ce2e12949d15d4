package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"robustroute/internal/apperr"
	"robustroute/internal/metrics"
	"robustroute/internal/model"
	"robustroute/internal/opt"
	"robustroute/internal/store"
	"robustroute/internal/webhooks"
)

// polishPasses bounds the 2-opt passes applied after an anneal when asked for.
const polishPasses = 50

// solveContext bounds a synchronous solve by the configured timeout.
func (s *Server) solveContext(r *http.Request) (context.Context, context.CancelFunc) {
	if d := s.Cfg.Server.SolveTimeout; d > 0 {
		return context.WithTimeout(r.Context(), d)
	}
	return context.WithCancel(r.Context())
}

func interrupted(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperr.Wrap(err, apperr.CodeTimeout, "solve interrupted")
	}
	return err
}

func runStatus(err error) string {
	switch {
	case err == nil:
		return model.RunSucceeded
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return model.RunCancelled
	default:
		return model.RunFailed
	}
}

// saveConstructive stores a constructive result and records its metrics.
func (s *Server) saveConstructive(ctx context.Context, dataset, algorithm string, sol opt.Solution, m opt.Metrics, in *opt.Instance, mode opt.Mode, elapsed time.Duration) (model.StoredSolution, error) {
	metrics.SolveDuration.WithLabelValues(algorithm).Observe(elapsed.Seconds())
	metrics.SolutionCost.WithLabelValues(algorithm).Observe(m.TotalCost)
	opt.RecordRun(opt.RunRecord{Dataset: dataset, Algorithm: algorithm, Cost: m.TotalCost, Metrics: m})
	return s.Store.SaveSolution(ctx, model.NewExchange(dataset, algorithm, sol, m, in.Params, mode))
}

// SavingsHandler handles POST /v1/solve/savings
func (s *Server) SavingsHandler(w http.ResponseWriter, r *http.Request) {
	var req model.SavingsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	mode, err := opt.ParseMode(req.Mode)
	if err != nil {
		writeError(w, r, err)
		return
	}
	in, err := buildInstance(req.Instance, s.Cfg.Cost)
	if err != nil {
		writeError(w, r, err)
		return
	}
	start := time.Now()
	sol := opt.Savings(in, mode)
	cost, m := opt.Evaluate(sol, in)
	stored, err := s.saveConstructive(r.Context(), req.Instance.Dataset, "savings", sol, m, in, mode, time.Since(start))
	if err != nil {
		writeError(w, r, err)
		return
	}
	loggerFrom(r).Info().Str("solution_id", stored.ID).Float64("cost", cost).Int("vehicles", m.VehiclesUsed).Msg("savings solved")
	writeJSON(w, http.StatusOK, model.SolveResponse{
		SolutionID: stored.ID,
		Algorithm:  "savings",
		Mode:       mode.String(),
		Routes:     sol,
		Cost:       cost,
		Metrics:    m,
	})
}

// InsertionHandler handles POST /v1/solve/insertion
func (s *Server) InsertionHandler(w http.ResponseWriter, r *http.Request) {
	var req model.InsertionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	mode, err := opt.ParseMode(req.Mode)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.Repeats < 0 {
		writeError(w, r, apperr.InvalidInput("repeats", "must be >= 0"))
		return
	}
	repeats := req.Repeats
	if repeats == 0 {
		repeats = s.Cfg.Insertion.Repeats
	}
	in, err := buildInstance(req.Instance, s.Cfg.Cost)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := s.solveContext(r)
	defer cancel()

	start := time.Now()
	res, err := opt.MultiStart(ctx, in, mode, repeats, req.Seed, s.Cfg.Insertion.Workers, opt.WithLogger(*loggerFrom(r)))
	if err != nil {
		writeError(w, r, interrupted(err))
		return
	}
	best := res.Best
	metrics.ForcedCustomers.Add(float64(len(best.Forced)))

	ex := model.NewExchange(req.Instance.Dataset, "insertion", best.Solution, best.Metrics, in.Params, mode)
	ex.Parameters.Seed = best.Seed
	ex.Parameters.Repeat = repeats
	ex.Parameters.Forced = best.Forced
	metrics.SolveDuration.WithLabelValues("insertion").Observe(time.Since(start).Seconds())
	metrics.SolutionCost.WithLabelValues("insertion").Observe(best.Cost)
	opt.RecordRun(opt.RunRecord{Dataset: req.Instance.Dataset, Algorithm: "insertion", Cost: best.Cost, Metrics: best.Metrics})
	stored, err := s.Store.SaveSolution(r.Context(), ex)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := model.SolveResponse{
		SolutionID: stored.ID,
		Algorithm:  "insertion",
		Mode:       mode.String(),
		Routes:     best.Solution,
		Cost:       best.Cost,
		Metrics:    best.Metrics,
		Forced:     best.Forced,
		Seed:       best.Seed,
	}
	if !req.BestOnly {
		resp.Runs = res.Runs
	}
	writeJSON(w, http.StatusOK, resp)
}

// EvaluateHandler handles POST /v1/evaluate
func (s *Server) EvaluateHandler(w http.ResponseWriter, r *http.Request) {
	var req model.EvaluateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := buildInstance(req.Instance, s.Cfg.Cost)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sol, _, err := s.resolveRoutes(r.Context(), in, req.Routes, "", req.StrictBoundary)
	if err != nil {
		writeError(w, r, err)
		return
	}
	cost, m := opt.Evaluate(sol, in)
	resp := model.EvaluateResponse{Cost: cost, Metrics: m, Feasible: true, Routes: make([]model.RouteCheck, len(sol))}
	for i, rt := range sol {
		c := in.Classify(rt)
		resp.Routes[i] = model.RouteCheck{Route: rt, Classification: c}
		resp.Feasible = resp.Feasible && c.OK
	}
	writeJSON(w, http.StatusOK, resp)
}

// startRun validates an optional client run id and records the run as running.
func (s *Server) startRun(ctx context.Context, runID, dataset, algorithm, solutionID string, initialCost float64) (model.Run, error) {
	if runID != "" {
		if _, err := uuid.Parse(runID); err != nil {
			return model.Run{}, apperr.InvalidInput("runId", "must be a UUID")
		}
	}
	return s.Store.CreateRun(ctx, model.Run{
		ID:          runID,
		Dataset:     dataset,
		Algorithm:   algorithm,
		SolutionID:  solutionID,
		InitialCost: initialCost,
	})
}

// finishRun persists the outcome, closes the progress stream and notifies.
// It uses a fresh context so a cancelled request still records its run.
func (s *Server) finishRun(log *zerolog.Logger, run model.Run, f store.RunFinish, event string) model.Run {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done, err := s.Store.FinishRun(ctx, run.ID, f)
	if err != nil {
		log.Error().Err(err).Str("run_id", run.ID).Msg("finish run")
		done = run
		done.Status = f.Status
	}
	s.Broker.Publish(run.ID, model.ProgressEvent{
		Type:  model.EventDone,
		RunID: run.ID,
		Done:  &model.RunDone{Status: f.Status, BestCost: f.BestCost, Error: f.Error},
	})
	s.Pub.Emit(ctx, event, done)
	return done
}

func (s *Server) progressObserver(runID string) opt.Observer {
	return func(ev opt.EpochEvent) {
		s.Broker.Publish(runID, model.ProgressEvent{Type: model.EventEpoch, RunID: runID, Epoch: &ev})
	}
}

// AnnealHandler handles POST /v1/anneal
func (s *Server) AnnealHandler(w http.ResponseWriter, r *http.Request) {
	var req model.AnnealRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := buildInstance(req.Instance, s.Cfg.Cost)
	if err != nil {
		writeError(w, r, err)
		return
	}
	cfg := req.Config.Apply(s.Cfg.Anneal)
	if err := cfg.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	initial, source, err := s.resolveRoutes(r.Context(), in, req.Routes, req.SolutionID, req.StrictBoundary)
	if err != nil {
		writeError(w, r, err)
		return
	}
	initialCost, _ := opt.Evaluate(initial, in)
	run, err := s.startRun(r.Context(), req.RunID, req.Instance.Dataset, "anneal", req.SolutionID, initialCost)
	if err != nil {
		writeError(w, r, err)
		return
	}
	log := loggerFrom(r).With().Str("run_id", run.ID).Logger()

	ctx, cancel := s.solveContext(r)
	defer cancel()
	metrics.RunsActive.Inc()
	res, err := opt.Anneal(ctx, in, initial, cfg, opt.WithLogger(log), opt.WithObserver(s.progressObserver(run.ID)))
	metrics.RunsActive.Dec()
	if err != nil {
		s.finishRun(&log, run, store.RunFinish{Status: runStatus(err), BestCost: res.BestCost, Error: err.Error()}, webhooks.EventRunFinished)
		writeError(w, r, interrupted(err))
		return
	}

	if req.Polish {
		polished := opt.ImproveRoutes2Opt(in, res.Best, opt.ModeStrict, polishPasses)
		if c, m := opt.Evaluate(polished, in); c < res.BestCost {
			log.Info().Float64("before", res.BestCost).Float64("after", c).Msg("2-opt polish improved best")
			res.Best, res.BestCost, res.BestMetrics = polished, c, m
		}
	}
	metrics.ObserveAnneal(res.Stats)
	metrics.SolveDuration.WithLabelValues("anneal").Observe(res.Stats.Runtime.Seconds())
	metrics.SolutionCost.WithLabelValues("anneal").Observe(res.BestCost)
	opt.RecordRun(opt.RunRecord{Dataset: req.Instance.Dataset, Algorithm: "anneal", Cost: res.BestCost, Metrics: res.BestMetrics})

	payload := model.NewAnnealPayload(res, cfg, in.Params, source, "request")
	ex := model.NewExchange(req.Instance.Dataset, "anneal", res.Best, res.BestMetrics, in.Params, opt.ModeStrict)
	ex.Parameters.Seed = cfg.Seed
	stored, err := s.Store.SaveSolution(r.Context(), ex)
	if err != nil {
		s.finishRun(&log, run, store.RunFinish{Status: model.RunFailed, BestCost: res.BestCost, Error: err.Error()}, webhooks.EventRunFinished)
		writeError(w, r, err)
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.finishRun(&log, run, store.RunFinish{
		Status:     model.RunSucceeded,
		SolutionID: stored.ID,
		BestCost:   res.BestCost,
		RouteEndE:  res.BestMetrics.RouteEndE,
		RouteEndP:  res.BestMetrics.RouteEndP,
		Result:     raw,
	}, webhooks.EventRunFinished)

	writeJSON(w, http.StatusOK, model.AnnealResponse{RunID: run.ID, SolutionID: stored.ID, Result: payload})
}

// BatchHandler handles POST /v1/batch
func (s *Server) BatchHandler(w http.ResponseWriter, r *http.Request) {
	var req model.BatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := buildInstance(req.Instance, s.Cfg.Cost)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := req.Grid.Configs(); err != nil {
		writeError(w, r, err)
		return
	}
	initial, _, err := s.resolveRoutes(r.Context(), in, req.Routes, req.SolutionID, req.StrictBoundary)
	if err != nil {
		writeError(w, r, err)
		return
	}
	initialCost, _ := opt.Evaluate(initial, in)
	run, err := s.startRun(r.Context(), req.RunID, req.Instance.Dataset, "batch", req.SolutionID, initialCost)
	if err != nil {
		writeError(w, r, err)
		return
	}
	log := loggerFrom(r).With().Str("run_id", run.ID).Logger()
	workers := req.Workers
	if workers <= 0 {
		workers = s.Cfg.Insertion.Workers
	}

	ctx, cancel := s.solveContext(r)
	defer cancel()
	metrics.RunsActive.Inc()
	start := time.Now()
	rows, err := opt.RunGrid(ctx, in, initial, req.Grid, workers, opt.WithLogger(log))
	metrics.RunsActive.Dec()
	if err != nil {
		s.finishRun(&log, run, store.RunFinish{Status: runStatus(err), BestCost: initialCost, Error: err.Error()}, webhooks.EventBatchFinished)
		writeError(w, r, interrupted(err))
		return
	}
	metrics.SolveDuration.WithLabelValues("batch").Observe(time.Since(start).Seconds())

	resp := model.BatchResponse{RunID: run.ID, Rows: rows}
	bestCost := initialCost
	if best, ok := opt.BestRow(rows); ok {
		resp.Best = &best
		bestCost = best.BestCost
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.finishRun(&log, run, store.RunFinish{Status: model.RunSucceeded, BestCost: bestCost, Result: raw}, webhooks.EventBatchFinished)
	writeJSON(w, http.StatusOK, resp)
}

// SolutionByIDHandler handles GET /v1/solutions/{id}
func (s *Server) SolutionByIDHandler(w http.ResponseWriter, r *http.Request) {
	sol, err := s.Store.GetSolution(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sol)
}

// RunsHandler handles GET /v1/runs?dataset=&algorithm=&limit=
func (s *Server) RunsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.RunFilter{Dataset: q.Get("dataset"), Algorithm: q.Get("algorithm")}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, r, apperr.InvalidInput("limit", "must be a positive integer"))
			return
		}
		f.Limit = n
	}
	runs, err := s.Store.ListRuns(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": runs})
}

// RunByIDHandler handles GET /v1/runs/{id}
func (s *Server) RunByIDHandler(w http.ResponseWriter, r *http.Request) {
	run, err := s.Store.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// OptimizerConfigHandler returns the configured solver defaults
func (s *Server) OptimizerConfigHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"cost":      s.Cfg.Cost,
		"anneal":    s.Cfg.Anneal,
		"epochs":    s.Cfg.Anneal.Epochs(),
		"insertion": map[string]int{"repeats": s.Cfg.Insertion.Repeats, "workers": s.Cfg.Insertion.Workers},
		"modes":     []string{opt.ModeStrict.String(), opt.ModeIgnorePessimistic.String(), opt.ModeIgnoreAll.String()},
		"neighborhoods": []opt.Neighborhood{
			opt.Swap, opt.Relocate, opt.TwoOpt, opt.Mixed,
		},
	})
}

// LatestRunsHandler returns the latest in-process result per dataset and algorithm.
func (s *Server) LatestRunsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": opt.Runs(r.URL.Query().Get("dataset"))})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
