package opt

// Metrics is the diagnostic snapshot produced with every cost evaluation.
type Metrics struct {
	TotalCost     float64 `json:"total_cost" yaml:"total_cost"`
	TotalDistance float64 `json:"total_distance" yaml:"total_distance"`
	VehiclesUsed  int     `json:"vehicles_used" yaml:"vehicles_used"`
	Visits        int     `json:"visits" yaml:"visits"`

	WaitingTotal  float64 `json:"waiting_total" yaml:"waiting_total"`
	HorizonExcess float64 `json:"horizon_excess" yaml:"horizon_excess"`
	LatenessPSum  float64 `json:"lateness_p_sum" yaml:"lateness_p_sum"`

	RouteEndE     []float64 `json:"route_end_times_e" yaml:"route_end_times_e"`
	RouteEndP     []float64 `json:"route_end_times_p" yaml:"route_end_times_p"`
	RouteWaiting  []float64 `json:"route_waiting_e" yaml:"route_waiting_e"`
	RouteDistance []float64 `json:"route_distance" yaml:"route_distance"`

	MakespanE     float64 `json:"makespan_e" yaml:"makespan_e"`
	MaxEndP       float64 `json:"max_route_end_p" yaml:"max_route_end_p"`
	SumRouteTimeE float64 `json:"sum_route_time_e" yaml:"sum_route_time_e"`
	AvgRouteTimeE float64 `json:"avg_route_time_e" yaml:"avg_route_time_e"`

	ServiceTimePerVisit float64 `json:"service_time_per_visit" yaml:"service_time_per_visit"`
	TotalServiceTime    float64 `json:"total_service_time" yaml:"total_service_time"`

	CostDistance float64 `json:"cost_distance" yaml:"cost_distance"`
	CostVehicle  float64 `json:"cost_vehicle" yaml:"cost_vehicle"`
	CostHorizon  float64 `json:"cost_horizon" yaml:"cost_horizon"`
	CostTime     float64 `json:"cost_time" yaml:"cost_time"`
}

// MetricsDelta holds after-minus-before differences of the scalar metrics.
type MetricsDelta struct {
	TotalCost        float64 `json:"total_cost"`
	TotalDistance    float64 `json:"total_distance"`
	VehiclesUsed     int     `json:"vehicles_used"`
	WaitingTotal     float64 `json:"waiting_total"`
	HorizonExcess    float64 `json:"horizon_excess"`
	MakespanE        float64 `json:"makespan_e"`
	MaxEndP          float64 `json:"max_route_end_p"`
	SumRouteTimeE    float64 `json:"sum_route_time_e"`
	AvgRouteTimeE    float64 `json:"avg_route_time_e"`
	TotalServiceTime float64 `json:"total_service_time"`
	CostDistance     float64 `json:"cost_distance"`
	CostVehicle      float64 `json:"cost_vehicle"`
	CostHorizon      float64 `json:"cost_horizon"`
	CostTime         float64 `json:"cost_time"`
}

// Delta returns m minus before.
func (m Metrics) Delta(before Metrics) MetricsDelta {
	return MetricsDelta{
		TotalCost:        m.TotalCost - before.TotalCost,
		TotalDistance:    m.TotalDistance - before.TotalDistance,
		VehiclesUsed:     m.VehiclesUsed - before.VehiclesUsed,
		WaitingTotal:     m.WaitingTotal - before.WaitingTotal,
		HorizonExcess:    m.HorizonExcess - before.HorizonExcess,
		MakespanE:        m.MakespanE - before.MakespanE,
		MaxEndP:          m.MaxEndP - before.MaxEndP,
		SumRouteTimeE:    m.SumRouteTimeE - before.SumRouteTimeE,
		AvgRouteTimeE:    m.AvgRouteTimeE - before.AvgRouteTimeE,
		TotalServiceTime: m.TotalServiceTime - before.TotalServiceTime,
		CostDistance:     m.CostDistance - before.CostDistance,
		CostVehicle:      m.CostVehicle - before.CostVehicle,
		CostHorizon:      m.CostHorizon - before.CostHorizon,
		CostTime:         m.CostTime - before.CostTime,
	}
}

// Evaluate computes the objective of sol together with its metrics.
//
// Each non-empty route is walked on two parallel timelines. Distance comes from
// the distance matrix when present, otherwise from expected travel time.
// Waiting (expected axis) and lateness (pessimistic axis) are diagnostics only.
//
//	total = CostPerKm*distance + VehicleFixedCost*vehicles
//	      + PenaltyHorizonPerMin*horizonExcess + TimeWeight*sum(routeEndE)
func Evaluate(sol Solution, in *Instance) (float64, Metrics) {
	p := in.Params
	E, P, D := in.Matrices.Expected, in.Matrices.Pessimistic, in.Matrices.DistanceKm
	m := Metrics{
		RouteEndE:           []float64{},
		RouteEndP:           []float64{},
		RouteWaiting:        []float64{},
		RouteDistance:       []float64{},
		ServiceTimePerVisit: p.ServiceTime,
	}
	for _, r := range sol {
		if len(r) <= 2 {
			continue
		}
		tlE, tlP := 0.0, 0.0
		wait, dist := 0.0, 0.0
		for i := 0; i < len(r)-1; i++ {
			a, b := r[i], r[i+1]
			step := E[a][b]
			if D != nil {
				step = D[a][b]
			}
			dist += step
			arrE := tlE + E[a][b]
			arrP := tlP + P[a][b]
			if w, ok := in.Windows.lookup(b); ok {
				if arrE < w.Start {
					wait += w.Start - arrE
					arrE = w.Start
				}
				if arrP > w.End {
					m.LatenessPSum += arrP - w.End
				}
				if arrP < w.Start {
					arrP = w.Start
				}
			}
			if b != Depot {
				arrE += p.ServiceTime
				arrP += p.ServiceTime
				m.Visits++
			}
			tlE, tlP = arrE, arrP
		}
		m.RouteEndE = append(m.RouteEndE, tlE)
		m.RouteEndP = append(m.RouteEndP, tlP)
		m.RouteWaiting = append(m.RouteWaiting, wait)
		m.RouteDistance = append(m.RouteDistance, dist)
		m.TotalDistance += dist
		m.WaitingTotal += wait
		m.SumRouteTimeE += tlE
		if tlE > p.DayHorizon {
			m.HorizonExcess += tlE - p.DayHorizon
		}
		if tlE > m.MakespanE {
			m.MakespanE = tlE
		}
		if tlP > m.MaxEndP {
			m.MaxEndP = tlP
		}
	}
	m.VehiclesUsed = sol.VehiclesUsed()
	if n := len(m.RouteEndE); n > 0 {
		m.AvgRouteTimeE = m.SumRouteTimeE / float64(n)
	}
	m.TotalServiceTime = p.ServiceTime * float64(m.Visits)

	m.CostDistance = p.CostPerKm * m.TotalDistance
	m.CostVehicle = p.VehicleFixedCost * float64(m.VehiclesUsed)
	m.CostHorizon = p.PenaltyHorizonPerMin * m.HorizonExcess
	m.CostTime = p.TimeWeight * m.SumRouteTimeE
	m.TotalCost = m.CostDistance + m.CostVehicle + m.CostHorizon + m.CostTime
	return m.TotalCost, m
}
