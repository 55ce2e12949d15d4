package dataset

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"robustroute/internal/apperr"
	"robustroute/internal/model"
	"robustroute/internal/opt"
)

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func decodeFile(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if isYAML(path) {
		err = yaml.Unmarshal(b, v)
	} else {
		err = json.Unmarshal(b, v)
	}
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInvalidInput, fmt.Sprintf("decode %s", filepath.Base(path)))
	}
	return nil
}

// WriteFile encodes v as YAML or indented JSON depending on the extension of path.
func WriteFile(path string, v any) error {
	var (
		b   []byte
		err error
	)
	if isYAML(path) {
		b, err = yaml.Marshal(v)
	} else {
		b, err = json.MarshalIndent(v, "", "  ")
		b = append(b, '\n')
	}
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return os.WriteFile(path, b, 0o644)
}

// LoadMatrices reads a matrix bundle and validates it.
func LoadMatrices(path string) (opt.Matrices, error) {
	var m opt.Matrices
	if err := decodeFile(path, &m); err != nil {
		return opt.Matrices{}, err
	}
	if err := m.Validate(); err != nil {
		return opt.Matrices{}, err
	}
	return m, nil
}

// LoadWindows reads a map from location index to either an "HH:MM-HH:MM"
// string or a {start, end} object in minutes.
func LoadWindows(path string) (opt.Windows, error) {
	var raw map[string]any
	if err := decodeFile(path, &raw); err != nil {
		return nil, err
	}
	tw := opt.Windows{}
	for k, v := range raw {
		idx, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil {
			return nil, apperr.InvalidInput("windows", fmt.Sprintf("bad location key %q", k))
		}
		switch val := v.(type) {
		case nil:
		case string:
			if w, ok := ParseWindow(val); ok {
				tw[idx] = w
			}
		case map[string]any:
			s, ok1 := toFloat(val["start"])
			e, ok2 := toFloat(val["end"])
			if !ok1 || !ok2 {
				return nil, apperr.InvalidInput("windows", fmt.Sprintf("location %d needs numeric start and end", idx))
			}
			tw[idx] = &opt.Window{Start: s, End: e}
		default:
			return nil, apperr.InvalidInput("windows", fmt.Sprintf("location %d has unsupported value %v", idx, v))
		}
	}
	return tw, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

// LoadExchange reads an exchange file. JSON and YAML are chosen by extension;
// .txt files are read as summary text with a "routes=" section. Routes are
// normalized or rejected according to policy.
func LoadExchange(path string, policy opt.BoundaryPolicy) (model.Exchange, opt.Solution, error) {
	var ex model.Exchange
	if strings.EqualFold(filepath.Ext(path), ".txt") {
		f, err := os.Open(path)
		if err != nil {
			return ex, nil, fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		if ex, err = ReadSummary(f); err != nil {
			return ex, nil, err
		}
	} else if err := decodeFile(path, &ex); err != nil {
		return ex, nil, err
	}
	sol, err := ex.Solution(policy)
	if err != nil {
		return ex, nil, err
	}
	return ex, sol, nil
}

// SaveExchange writes ex as JSON or YAML.
func SaveExchange(path string, ex model.Exchange) error {
	return WriteFile(path, ex)
}

// WriteSummary writes the key=value summary format followed by a routes= section.
func WriteSummary(w io.Writer, ex model.Exchange) error {
	var buf bytes.Buffer
	kv := func(k string, v any) { fmt.Fprintf(&buf, "%s=%v\n", k, v) }
	if ex.Dataset != "" {
		kv("dataset", ex.Dataset)
	}
	if ex.DatasetSize > 0 {
		kv("size", ex.DatasetSize)
	}
	if ex.WindowProfile != "" {
		kv("window_profile", ex.WindowProfile)
	}
	kv("algorithm", ex.Algorithm)
	if ex.Parameters.Repeat > 0 {
		kv("run_index", ex.Parameters.Repeat)
	}
	if m := ex.Metrics; m != nil {
		kv("total_cost", m.TotalCost)
		kv("vehicles_used", m.VehiclesUsed)
		kv("total_distance", m.TotalDistance)
		kv("waiting_total", m.WaitingTotal)
		kv("lateness_p_sum", m.LatenessPSum)
		kv("horizon_excess", m.HorizonExcess)
		kv("makespan_e", m.MakespanE)
		kv("sum_route_time_e", m.SumRouteTimeE)
		kv("avg_route_time_e", m.AvgRouteTimeE)
		kv("cost_time", m.CostTime)
		kv("cost_distance", m.CostDistance)
		kv("cost_horizon", m.CostHorizon)
		kv("cost_vehicle", m.CostVehicle)
		kv("route_distances", joinFloats(m.RouteDistance))
		kv("route_waiting", joinFloats(m.RouteWaiting))
	}
	buf.WriteString("routes=\n")
	for _, r := range ex.Routes {
		parts := make([]string, len(r))
		for i, v := range r {
			parts[i] = strconv.Itoa(v)
		}
		buf.WriteString(strings.Join(parts, ",") + "\n")
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func joinFloats(v []float64) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}

// ReadSummary parses the summary format. Only dataset, algorithm and the
// routes section are recovered; '#' lines inside the routes section are skipped.
func ReadSummary(r io.Reader) (model.Exchange, error) {
	ex := model.Exchange{Version: model.ExchangeVersion}
	sc := bufio.NewScanner(r)
	inRoutes := false
	found := false
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if !inRoutes {
			if line == "routes=" {
				inRoutes, found = true, true
				continue
			}
			if k, v, ok := strings.Cut(line, "="); ok {
				switch k {
				case "dataset":
					ex.Dataset = v
				case "algorithm":
					ex.Algorithm = v
				}
			}
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		var route []int
		for _, p := range strings.Split(line, ",") {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			v, err := strconv.Atoi(p)
			if err != nil {
				return ex, apperr.InvalidInput("routes", fmt.Sprintf("bad stop %q", p))
			}
			route = append(route, v)
		}
		if len(route) > 0 {
			ex.Routes = append(ex.Routes, route)
		}
	}
	if err := sc.Err(); err != nil {
		return ex, fmt.Errorf("read summary: %w", err)
	}
	if !found {
		return ex, apperr.New(apperr.CodeInvalidInput, "summary has no routes= section")
	}
	return ex, nil
}
