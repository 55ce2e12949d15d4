package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"robustroute/internal/apperr"
	"robustroute/internal/model"
)

func TestMemorySolutions(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	s, err := m.SaveSolution(ctx, model.Exchange{Algorithm: "savings", Routes: [][]int{{0, 1, 0}}})
	require.NoError(t, err)
	require.NotEmpty(t, s.ID)
	require.Equal(t, model.ExchangeVersion, s.Exchange.Version)

	got, err := m.GetSolution(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, s, got)

	_, err = m.GetSolution(ctx, "missing")
	require.True(t, errors.Is(err, ErrNotFound))
	require.Equal(t, apperr.CodeNotFound, apperr.GetCode(err))
}

func TestMemoryRunLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	clock := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	m.now = func() time.Time { clock = clock.Add(time.Second); return clock }

	a, err := m.CreateRun(ctx, model.Run{Dataset: "d1", Algorithm: "anneal", InitialCost: 100})
	require.NoError(t, err)
	require.Equal(t, model.RunRunning, a.Status)
	b, err := m.CreateRun(ctx, model.Run{Dataset: "d2", Algorithm: "batch"})
	require.NoError(t, err)
	c, err := m.CreateRun(ctx, model.Run{Dataset: "d1", Algorithm: "anneal"})
	require.NoError(t, err)
	_, err = m.CreateRun(ctx, model.Run{ID: c.ID, Algorithm: "anneal"})
	require.Equal(t, apperr.CodeInvalidInput, apperr.GetCode(err))

	_, err = m.FinishRun(ctx, a.ID, RunFinish{Status: model.RunRunning})
	require.Equal(t, apperr.CodeInvalidInput, apperr.GetCode(err))

	done, err := m.FinishRun(ctx, a.ID, RunFinish{
		Status: model.RunSucceeded, SolutionID: "sol", BestCost: 80,
		RouteEndE: []float64{30, 40}, RouteEndP: []float64{35, 50}, Result: json.RawMessage(`{"best_cost":80}`),
	})
	require.NoError(t, err)
	require.NotNil(t, done.FinishedAt)
	require.Equal(t, "sol", done.SolutionID)
	require.Equal(t, 100.0, done.InitialCost)
	require.JSONEq(t, `{"best_cost":80}`, string(done.Result))

	runs, err := m.ListRuns(ctx, RunFilter{Dataset: "d1"})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, c.ID, runs[0].ID, "newest first")
	require.Equal(t, a.ID, runs[1].ID)

	runs, err = m.ListRuns(ctx, RunFilter{Algorithm: "batch"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, b.ID, runs[0].ID)

	runs, err = m.ListRuns(ctx, RunFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, runs, 1)

	_, err = m.FinishRun(ctx, "nope", RunFinish{Status: model.RunFailed})
	require.True(t, errors.Is(err, ErrNotFound))
	require.NoError(t, m.Ping(ctx))
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements(schemaSQL)
	require.Len(t, stmts, 3)
	require.Contains(t, stmts[1], "route_end_e")
	require.Nil(t, nullIfEmpty(""))
	require.Nil(t, nullJSON(nil))
}
