package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"robustroute/internal/apperr"
	"robustroute/internal/model"
)

// Store is the persistence interface used by the API server.
type Store interface {
	// Solutions
	SaveSolution(ctx context.Context, ex model.Exchange) (model.StoredSolution, error)
	GetSolution(ctx context.Context, id string) (model.StoredSolution, error)

	// Runs
	CreateRun(ctx context.Context, run model.Run) (model.Run, error)
	FinishRun(ctx context.Context, id string, f RunFinish) (model.Run, error)
	GetRun(ctx context.Context, id string) (model.Run, error)
	ListRuns(ctx context.Context, f RunFilter) ([]model.Run, error)

	Ping(ctx context.Context) error
}

// RunFinish carries the terminal state of a run.
type RunFinish struct {
	Status     string
	SolutionID string
	BestCost   float64
	RouteEndE  []float64
	RouteEndP  []float64
	Result     json.RawMessage
	Error      string
}

// RunFilter narrows ListRuns. Empty fields match everything.
type RunFilter struct {
	Dataset   string
	Algorithm string
	Limit     int
}

func (f RunFilter) limit() int {
	if f.Limit <= 0 || f.Limit > 500 {
		return 100
	}
	return f.Limit
}

func (f RunFilter) match(r model.Run) bool {
	return (f.Dataset == "" || r.Dataset == f.Dataset) && (f.Algorithm == "" || r.Algorithm == f.Algorithm)
}

var ErrNotFound = errors.New("not found")

func notFound(resource, id string) error {
	return apperr.Wrap(ErrNotFound, apperr.CodeNotFound, fmt.Sprintf("%s %s not found", resource, id))
}

func validStatus(s string) bool {
	switch s {
	case model.RunSucceeded, model.RunFailed, model.RunCancelled:
		return true
	}
	return false
}
