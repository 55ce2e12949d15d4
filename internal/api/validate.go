package api

import (
	"context"
	"fmt"
	"math"

	"robustroute/internal/apperr"
	"robustroute/internal/dataset"
	"robustroute/internal/model"
	"robustroute/internal/opt"
)

// buildInstance converts a posted bundle into a validated instance, filling
// unset params from defaults.
func buildInstance(in model.InstanceIn, defaults opt.Params) (*opt.Instance, error) {
	n := in.Matrices.Size()
	tw := opt.Windows{}
	for idx, w := range in.TimeWindows {
		if idx == opt.Depot {
			continue
		}
		if idx < 0 || idx >= n {
			return nil, apperr.InvalidInput("timeWindows", fmt.Sprintf("location %d out of range", idx))
		}
		win, err := convertWindow(idx, w)
		if err != nil {
			return nil, err
		}
		if win != nil {
			tw[idx] = win
		}
	}
	return opt.NewInstance(in.Matrices, tw, in.Params.Apply(defaults))
}

func convertWindow(idx int, w model.WindowIn) (*opt.Window, error) {
	if w.Range != "" {
		win, ok := dataset.ParseWindow(w.Range)
		if !ok {
			return nil, apperr.InvalidInput("timeWindows", fmt.Sprintf("location %d: bad range %q", idx, w.Range))
		}
		return win, nil
	}
	if w.Start == nil && w.End == nil {
		return nil, nil
	}
	if w.Start == nil || w.End == nil {
		return nil, apperr.InvalidInput("timeWindows", fmt.Sprintf("location %d needs both start and end", idx))
	}
	if math.IsNaN(*w.Start) || math.IsNaN(*w.End) {
		return nil, apperr.InvalidInput("timeWindows", fmt.Sprintf("location %d is not a number", idx))
	}
	return &opt.Window{Start: *w.Start, End: *w.End}, nil
}

func boundaryPolicy(strict bool) opt.BoundaryPolicy {
	if strict {
		return opt.BoundaryStrict
	}
	return opt.BoundaryNormalize
}

// resolveRoutes returns the initial solution from inline routes or a stored
// solution id, checked against the instance size. source names where it came from.
func (s *Server) resolveRoutes(ctx context.Context, in *opt.Instance, routes [][]int, solutionID string, strict bool) (sol opt.Solution, source string, err error) {
	switch {
	case len(routes) > 0 && solutionID != "":
		return nil, "", apperr.InvalidInput("routes", "give either routes or solutionId, not both")
	case solutionID != "":
		stored, err := s.Store.GetSolution(ctx, solutionID)
		if err != nil {
			return nil, "", err
		}
		sol, err = stored.Exchange.Solution(boundaryPolicy(strict))
		if err != nil {
			return nil, "", err
		}
		source = "solution:" + solutionID
	case len(routes) > 0:
		sol, err = opt.NormalizeRoutes(routes, boundaryPolicy(strict))
		if err != nil {
			return nil, "", err
		}
		source = "request"
	default:
		return nil, "", apperr.InvalidInput("routes", "routes or solutionId required")
	}
	if err := sol.Validate(in.N()); err != nil {
		return nil, "", err
	}
	return sol, source, nil
}
