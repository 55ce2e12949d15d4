package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"robustroute/internal/apperr"
	"robustroute/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu        sync.Mutex
	solutions map[string]model.StoredSolution // id -> solution
	runs      map[string]model.Run            // id -> run
	now       func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		solutions: map[string]model.StoredSolution{},
		runs:      map[string]model.Run{},
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) SaveSolution(ctx context.Context, ex model.Exchange) (model.StoredSolution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ex.Version == 0 {
		ex.Version = model.ExchangeVersion
	}
	s := model.StoredSolution{ID: uuid.New().String(), Exchange: ex, CreatedAt: m.now()}
	m.solutions[s.ID] = s
	return s, nil
}

func (m *Memory) GetSolution(ctx context.Context, id string) (model.StoredSolution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.solutions[id]
	if !ok {
		return model.StoredSolution{}, notFound("solution", id)
	}
	return s, nil
}

func (m *Memory) CreateRun(ctx context.Context, run model.Run) (model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if run.ID == "" {
		run.ID = uuid.New().String()
	} else if _, dup := m.runs[run.ID]; dup {
		return model.Run{}, apperr.InvalidInput("runId", "already used")
	}
	if run.Status == "" {
		run.Status = model.RunRunning
	}
	run.CreatedAt = m.now()
	run.FinishedAt = nil
	m.runs[run.ID] = run
	return run, nil
}

func (m *Memory) FinishRun(ctx context.Context, id string, f RunFinish) (model.Run, error) {
	if !validStatus(f.Status) {
		return model.Run{}, apperr.InvalidInput("status", "must be a terminal run status")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return model.Run{}, notFound("run", id)
	}
	now := m.now()
	r.Status = f.Status
	if f.SolutionID != "" {
		r.SolutionID = f.SolutionID
	}
	r.BestCost = f.BestCost
	r.RouteEndE = append([]float64(nil), f.RouteEndE...)
	r.RouteEndP = append([]float64(nil), f.RouteEndP...)
	r.Result = append([]byte(nil), f.Result...)
	r.Error = f.Error
	r.FinishedAt = &now
	m.runs[id] = r
	return r, nil
}

func (m *Memory) GetRun(ctx context.Context, id string) (model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return model.Run{}, notFound("run", id)
	}
	return r, nil
}

// ListRuns returns matching runs, newest first.
func (m *Memory) ListRuns(ctx context.Context, f RunFilter) ([]model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Run{}
	for _, r := range m.runs {
		if f.match(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if n := f.limit(); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (m *Memory) Ping(ctx context.Context) error { return ctx.Err() }
