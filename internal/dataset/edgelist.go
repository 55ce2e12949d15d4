package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"robustroute/internal/apperr"
	"robustroute/internal/opt"
)

// Edge-list column names.
const (
	ColStart       = "StartIdx"
	ColEnd         = "EndIdx"
	ColExpected    = "Duration_time_expected"
	ColPessimistic = "Duration_time_pessimistic"
	ColOptimistic  = "Duration_time_optimistic"
	ColDuration    = "Duration_time"
	ColDistance    = "Distance_km"
	ColWindow      = "DeliveryTimeWindow"
)

type header map[string]int

func readHeader(r *csv.Reader) (header, error) {
	row, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, apperr.New(apperr.CodeInvalidInput, "edge list is empty")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	h := header{}
	for i, name := range row {
		h[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	return h, nil
}

func (h header) has(col string) bool {
	_, ok := h[col]
	return ok
}

func (h header) get(row []string, col string) string {
	i, ok := h[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (h header) require(cols ...string) error {
	for _, c := range cols {
		if !h.has(c) {
			return apperr.Newf(apperr.CodeMissingMatrixAxis, "edge list lacks column %s", c)
		}
	}
	return nil
}

type edge struct {
	i, j    int
	e, p, o float64
	dist    float64
	window  string
}

// LoadEdgeList reads a three-scenario edge list. N is the largest index plus
// one; self-loops are skipped. Durations must be finite and non-negative. An
// unparseable or non-finite distance counts as 0 and a missing distance column
// leaves DistanceKm nil. The window of node j comes from the first row ending
// in j.
func LoadEdgeList(r io.Reader) (opt.Matrices, opt.Windows, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	h, err := readHeader(cr)
	if err != nil {
		return opt.Matrices{}, nil, err
	}
	if err := h.require(ColStart, ColEnd, ColExpected, ColPessimistic); err != nil {
		return opt.Matrices{}, nil, err
	}
	hasOpt, hasDist := h.has(ColOptimistic), h.has(ColDistance)

	var edges []edge
	maxIdx := -1
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return opt.Matrices{}, nil, fmt.Errorf("read line %d: %w", line, err)
		}
		i, err1 := strconv.Atoi(h.get(row, ColStart))
		j, err2 := strconv.Atoi(h.get(row, ColEnd))
		if err := errors.Join(err1, err2); err != nil {
			return opt.Matrices{}, nil, apperr.Wrap(err, apperr.CodeInvalidInput, fmt.Sprintf("line %d: bad index", line))
		}
		if i < 0 || j < 0 {
			return opt.Matrices{}, nil, apperr.Newf(apperr.CodeInvalidInput, "line %d: negative index", line)
		}
		if i > maxIdx {
			maxIdx = i
		}
		if j > maxIdx {
			maxIdx = j
		}
		if i == j {
			continue
		}
		ed := edge{i: i, j: j, window: h.get(row, ColWindow)}
		if ed.e, err = parseDuration(h.get(row, ColExpected)); err != nil {
			return opt.Matrices{}, nil, apperr.Wrap(err, apperr.CodeInvalidInput, fmt.Sprintf("line %d: %s", line, ColExpected))
		}
		if ed.p, err = parseDuration(h.get(row, ColPessimistic)); err != nil {
			return opt.Matrices{}, nil, apperr.Wrap(err, apperr.CodeInvalidInput, fmt.Sprintf("line %d: %s", line, ColPessimistic))
		}
		if hasOpt {
			if ed.o, err = parseDuration(h.get(row, ColOptimistic)); err != nil {
				return opt.Matrices{}, nil, apperr.Wrap(err, apperr.CodeInvalidInput, fmt.Sprintf("line %d: %s", line, ColOptimistic))
			}
		}
		if hasDist {
			if v, err := strconv.ParseFloat(h.get(row, ColDistance), 64); err == nil && !math.IsInf(v, 0) && !math.IsNaN(v) {
				ed.dist = v
			}
		}
		edges = append(edges, ed)
	}
	if maxIdx < 0 {
		return opt.Matrices{}, nil, apperr.New(apperr.CodeInvalidInput, "edge list has no rows")
	}

	n := maxIdx + 1
	m := opt.Matrices{Expected: square(n), Pessimistic: square(n)}
	if hasOpt {
		m.Optimistic = square(n)
	}
	if hasDist {
		m.DistanceKm = square(n)
	}
	tw := opt.Windows{}
	seen := make([]bool, n)
	for _, ed := range edges {
		m.Expected[ed.i][ed.j] = ed.e
		m.Pessimistic[ed.i][ed.j] = ed.p
		if hasOpt {
			m.Optimistic[ed.i][ed.j] = ed.o
		}
		if hasDist {
			m.DistanceKm[ed.i][ed.j] = ed.dist
		}
		if !seen[ed.j] {
			seen[ed.j] = true
			if w, ok := ParseWindow(ed.window); ok && ed.j != opt.Depot {
				tw[ed.j] = w
			}
		}
	}
	return m, tw, nil
}

// LoadEdgeListFile opens path and calls LoadEdgeList.
func LoadEdgeListFile(path string) (opt.Matrices, opt.Windows, error) {
	f, err := os.Open(path)
	if err != nil {
		return opt.Matrices{}, nil, fmt.Errorf("open edge list: %w", err)
	}
	defer f.Close()
	return LoadEdgeList(f)
}

func parseDuration(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("duration %q is not finite", s)
	}
	if v < 0 {
		return 0, fmt.Errorf("negative duration %v", v)
	}
	return v, nil
}

func square(n int) opt.Matrix {
	m := make(opt.Matrix, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	return m
}
