package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"robustroute/internal/dataset"
	"robustroute/internal/opt"
)

func TestParseLists(t *testing.T) {
	f, err := parseFloats("100, 1000,,")
	require.NoError(t, err)
	require.Equal(t, []float64{100, 1000}, f)

	n, err := parseInts("10,20")
	require.NoError(t, err)
	require.Equal(t, []int{10, 20}, n)

	nb, err := parseNeighborhoods("swap,2opt")
	require.NoError(t, err)
	require.Equal(t, []opt.Neighborhood{opt.Swap, opt.TwoOpt}, nb)

	_, err = parseFloats("1,x")
	require.Error(t, err)
	_, err = parseNeighborhoods("teleport")
	require.Error(t, err)
}

func writeMatrices(t *testing.T, dir string) string {
	t.Helper()
	e := opt.Matrix{{0, 10, 10}, {10, 0, 5}, {10, 5, 0}}
	path := filepath.Join(dir, "app_final_3_tight.json")
	require.NoError(t, dataset.WriteFile(path, opt.Matrices{Expected: e, Pessimistic: e}))
	return path
}

func TestSavingsThenAnnealCommands(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ROBUSTROUTE_CONFIG", "")
	matrices := writeMatrices(t, dir)
	export := filepath.Join(dir, "savings.json")
	results := filepath.Join(dir, "results.csv")

	err := runSavings([]string{"-matrices", matrices, "-export", export, "-append-csv", results, "-day-horizon", "500"}, zerolog.Nop())
	require.NoError(t, err)

	ex, sol, err := dataset.LoadExchange(export, opt.BoundaryStrict)
	require.NoError(t, err)
	require.Equal(t, "app_final_3_tight", ex.Dataset)
	require.Equal(t, 3, ex.DatasetSize)
	require.Equal(t, "tight", ex.WindowProfile)
	require.Equal(t, 500.0, ex.Parameters.DayHorizon)
	require.NoError(t, sol.Validate(3))

	b, err := os.ReadFile(results)
	require.NoError(t, err)
	require.Contains(t, string(b), "app_final_3_tight,3,tight,savings")

	payload := filepath.Join(dir, "anneal.json")
	err = runAnneal([]string{
		"-matrices", matrices, "-routes", export, "-out", payload,
		"-t-max", "10", "-t-min", "1", "-alpha", "0.5", "-iters", "5",
	}, zerolog.Nop())
	require.NoError(t, err)
	_, err = os.Stat(payload)
	require.NoError(t, err)
}

func TestCommandErrors(t *testing.T) {
	t.Setenv("ROBUSTROUTE_CONFIG", "")
	require.Error(t, runSavings(nil, zerolog.Nop()))
	require.Error(t, runAnneal([]string{"-matrices", "x.json"}, zerolog.Nop()))
	require.Error(t, runPerturb(nil, zerolog.Nop()))
}
