package opt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGridConfigs(t *testing.T) {
	g := Grid{
		TMax:          []float64{100, 500},
		Alpha:         []float64{0.9, 0.95},
		ItersPerTemp:  []int{10},
		Neighborhoods: []Neighborhood{Swap, Mixed},
		SeedsPerCell:  2,
		Seed:          7,
	}
	cfgs, err := g.Configs()
	require.NoError(t, err)
	require.Len(t, cfgs, 16)
	seen := map[int64]bool{}
	for _, c := range cfgs {
		require.Equal(t, 1e-3, c.TMin)
		require.False(t, seen[c.Seed], "duplicate seed")
		seen[c.Seed] = true
	}

	_, err = Grid{TMax: []float64{1}}.Configs()
	require.Error(t, err)

	_, err = Grid{TMax: []float64{1}, Alpha: []float64{1.5}, ItersPerTemp: []int{1}, Neighborhoods: []Neighborhood{Swap}}.Configs()
	require.Error(t, err)
}

func TestRunGrid(t *testing.T) {
	in := randomInstance(t, 9, 17, nil)
	initial := Savings(in, ModeStrict)
	snapshot := initial.Clone()
	g := Grid{
		TMax:          []float64{50, 200},
		Alpha:         []float64{0.8},
		ItersPerTemp:  []int{20},
		Neighborhoods: []Neighborhood{Relocate, TwoOpt},
		TMin:          1,
		Seed:          3,
	}
	rows, err := RunGrid(context.Background(), in, initial, g, 2)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	for i, r := range rows {
		require.Equal(t, i, r.Index)
		require.LessOrEqual(t, r.BestCost, r.InitialCost)
		require.GreaterOrEqual(t, r.ImprovementPct, 0.0)
		require.Equal(t, r.Config.Epochs(), r.Epochs)
	}
	require.Equal(t, snapshot, initial)

	// Same grid, different worker count: identical rows apart from runtime.
	again, err := RunGrid(context.Background(), in, initial, g, 1)
	require.NoError(t, err)
	for i := range rows {
		require.Equal(t, rows[i].BestCost, again[i].BestCost)
		require.Equal(t, rows[i].Config, again[i].Config)
	}

	best, ok := BestRow(rows)
	require.True(t, ok)
	for _, r := range rows {
		require.GreaterOrEqual(t, r.BestCost, best.BestCost)
	}
	_, ok = BestRow(nil)
	require.False(t, ok)
}
