// Command vrpctl runs the constructive heuristics, annealing and batch grids
// against instance files, without the HTTP service.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"robustroute/internal/config"
	"robustroute/internal/dataset"
	"robustroute/internal/logger"
	"robustroute/internal/opt"
)

const usage = `usage: vrpctl <command> [flags]

commands:
  savings     Clarke-Wright savings construction
  insertion   multi-start greedy insertion
  best        run savings and insertion, keep the cheaper
  anneal      simulated annealing from an exchange file
  batch       annealing parameter grid, rows as CSV
  perturb     derive pessimistic and optimistic durations for an edge list

run "vrpctl <command> -h" for the flags of a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cmds := map[string]func([]string, zerolog.Logger) error{
		"savings":   runSavings,
		"insertion": runInsertion,
		"best":      runBest,
		"anneal":    runAnneal,
		"batch":     runBatch,
		"perturb":   runPerturb,
	}
	name := os.Args[1]
	run, ok := cmds[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", name, usage)
		os.Exit(2)
	}
	logger.Init(logger.Config{Level: envOr("LOG_LEVEL", "info"), Format: "console", Output: "stderr"})
	log := logger.Component("vrpctl").With().Str("cmd", name).Logger()
	if err := run(os.Args[2:], log); err != nil {
		log.Error().Err(err).Msg("failed")
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// instanceFlags are shared by every solving command.
type instanceFlags struct {
	csv         string
	matrices    string
	windows     string
	configPath  string
	dayHorizon  float64
	serviceTime float64
	fs          *flag.FlagSet
}

func addInstanceFlags(fs *flag.FlagSet) *instanceFlags {
	f := &instanceFlags{fs: fs}
	fs.StringVar(&f.csv, "csv", "", "edge-list CSV with expected and pessimistic durations")
	fs.StringVar(&f.matrices, "matrices", "", "matrix bundle JSON or YAML (alternative to -csv)")
	fs.StringVar(&f.windows, "windows", "", "time windows JSON or YAML (with -matrices)")
	fs.StringVar(&f.configPath, "config", "", "YAML config supplying cost and anneal defaults")
	fs.Float64Var(&f.dayHorizon, "day-horizon", 0, "route-end limit in minutes (default from config)")
	fs.Float64Var(&f.serviceTime, "service-time", 0, "service minutes per customer (default from config)")
	return f
}

func (f *instanceFlags) isSet(name string) bool {
	set := false
	f.fs.Visit(func(fl *flag.Flag) {
		if fl.Name == name {
			set = true
		}
	})
	return set
}

// source is the dataset tag of the input.
func (f *instanceFlags) source() string {
	if f.csv != "" {
		return f.csv
	}
	return f.matrices
}

// load reads the config and the instance. base overrides the configured
// schedule limits unless the corresponding flags were given.
func (f *instanceFlags) load(base *opt.Params) (config.Config, *opt.Instance, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return cfg, nil, err
	}
	p := cfg.Cost
	if base != nil {
		p.DayHorizon, p.ServiceTime = base.DayHorizon, base.ServiceTime
	}
	if f.isSet("day-horizon") {
		p.DayHorizon = f.dayHorizon
	}
	if f.isSet("service-time") {
		p.ServiceTime = f.serviceTime
	}

	var (
		m  opt.Matrices
		tw opt.Windows
	)
	switch {
	case f.csv != "":
		m, tw, err = dataset.LoadEdgeListFile(f.csv)
	case f.matrices != "":
		m, err = dataset.LoadMatrices(f.matrices)
		if err == nil && f.windows != "" {
			tw, err = dataset.LoadWindows(f.windows)
		}
	default:
		err = fmt.Errorf("one of -csv or -matrices is required")
	}
	if err != nil {
		return cfg, nil, err
	}
	in, err := opt.NewInstance(m, tw, p)
	return cfg, in, err
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseFloats(s string) ([]float64, error) {
	var out []float64
	for _, p := range splitList(s) {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", p)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseInts(s string) ([]int, error) {
	var out []int
	for _, p := range splitList(s) {
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("bad integer %q", p)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseNeighborhoods(s string) ([]opt.Neighborhood, error) {
	var out []opt.Neighborhood
	for _, p := range splitList(s) {
		nb, err := opt.ParseNeighborhood(p)
		if err != nil {
			return nil, err
		}
		out = append(out, nb)
	}
	return out, nil
}
