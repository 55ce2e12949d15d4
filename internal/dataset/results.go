package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"robustroute/internal/opt"
)

var datasetName = regexp.MustCompile(`^app_final_(\d+)_(tight|medium|loose|very_loose)$`)

// DatasetTag derives the dataset name from an input path. Names of the form
// app_final_<size>_<profile> also yield the instance size and window profile.
func DatasetTag(path string) (tag string, size int, profile string) {
	if path == "" {
		return "base", 0, ""
	}
	tag = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if m := datasetName.FindStringSubmatch(tag); m != nil {
		size, _ = strconv.Atoi(m[1])
		profile = m[2]
	}
	return tag, size, profile
}

// ResultRow is one line of the comparison CSV.
type ResultRow struct {
	Dataset       string
	Size          int
	WindowProfile string
	Algorithm     string
	Metrics       opt.Metrics
}

var resultColumns = []string{
	"dataset", "size", "window_profile", "algorithm", "total_cost", "vehicles_used",
	"total_distance", "waiting_total", "avg_distance_per_route", "avg_wait_per_client",
	"lateness_p_sum", "horizon_excess", "makespan_e", "sum_route_time_e", "avg_route_time_e", "cost_time",
}

func (r ResultRow) record() []string {
	m := r.Metrics
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	avgDist, avgWait := 0.0, 0.0
	if m.VehiclesUsed > 0 {
		avgDist = m.TotalDistance / float64(m.VehiclesUsed)
	}
	if m.Visits > 0 {
		avgWait = m.WaitingTotal / float64(m.Visits)
	}
	size := ""
	if r.Size > 0 {
		size = strconv.Itoa(r.Size)
	}
	return []string{
		r.Dataset, size, r.WindowProfile, r.Algorithm, f(m.TotalCost), strconv.Itoa(m.VehiclesUsed),
		f(m.TotalDistance), f(m.WaitingTotal), f(avgDist), f(avgWait),
		f(m.LatenessPSum), f(m.HorizonExcess), f(m.MakespanE), f(m.SumRouteTimeE), f(m.AvgRouteTimeE), f(m.CostTime),
	}
}

// AppendResults appends rows to the CSV at path, writing the header first
// when the file is new or empty.
func AppendResults(path string, rows []ResultRow) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open results: %w", err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat results: %w", err)
	}
	return writeResults(f, rows, fi.Size() == 0)
}

func writeResults(w io.Writer, rows []ResultRow, header bool) error {
	cw := csv.NewWriter(w)
	if header {
		if err := cw.Write(resultColumns); err != nil {
			return err
		}
	}
	for _, r := range rows {
		if err := cw.Write(r.record()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Candidate is a finished constructive run competing for "best".
type Candidate struct {
	Algorithm string
	Solution  opt.Solution
	Metrics   opt.Metrics
}

// PickBest chooses the lower total cost. Ties go to fewer vehicles, then to
// shorter distance, then to b.
func PickBest(a, b Candidate) Candidate {
	ma, mb := a.Metrics, b.Metrics
	switch {
	case ma.TotalCost < mb.TotalCost:
		return a
	case mb.TotalCost < ma.TotalCost:
		return b
	case ma.VehiclesUsed != mb.VehiclesUsed:
		if ma.VehiclesUsed < mb.VehiclesUsed {
			return a
		}
		return b
	case ma.TotalDistance < mb.TotalDistance:
		return a
	}
	return b
}

var gridColumns = []string{
	"index", "t_max", "t_min", "alpha", "iters_per_temperature", "neighborhood", "seed",
	"initial_cost", "best_cost", "improvement_pct", "vehicles_used", "epochs", "accepted_moves", "rejected_total", "runtime_sec",
}

// WriteGridCSV writes batch rows with a header.
func WriteGridCSV(w io.Writer, rows []opt.GridRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(gridColumns); err != nil {
		return err
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	for _, r := range rows {
		c := r.Config
		rec := []string{
			strconv.Itoa(r.Index), f(c.TMax), f(c.TMin), f(c.Alpha), strconv.Itoa(c.ItersPerTemp), string(c.Neighborhood),
			strconv.FormatInt(c.Seed, 10), f(r.InitialCost), f(r.BestCost), f(r.ImprovementPct), strconv.Itoa(r.Vehicles),
			strconv.Itoa(r.Epochs), strconv.Itoa(r.Accepted), strconv.Itoa(r.RejectedTotal), f(r.RuntimeSec),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
