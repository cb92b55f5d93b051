// Package analysis turns a solved investment model into a presentation
// independent report.
package analysis

import (
	"errors"
	"math"
	"strconv"

	"github.com/google/uuid"

	"github.com/ohowland/cgc_plan/internal/pkg/plan"
	"github.com/ohowland/cgc_plan/internal/pkg/solver"
)

// Report is the interpreted solution of one planning run.
type Report struct {
	RunID               uuid.UUID `json:"RunID"`
	Status              string    `json:"Status"`
	Objective           float64   `json:"Objective"`
	RecomputedObjective float64   `json:"RecomputedObjective"`
	PenaltyFactor       float64   `json:"PenaltyFactor"`

	// DisplayThreshold below which values were treated as zero.
	DisplayThreshold float64 `json:"DisplayThreshold"`

	// TotalInvestment over all sources and years, ₹.
	TotalInvestment float64         `json:"TotalInvestment"`
	Sources         []SourceReport  `json:"Sources"`
	Years           []YearReport    `json:"Years"`
	Renewables      RenewableReport `json:"Renewables"`
	Emissions       EmissionReport  `json:"Emissions"`
	Warnings        []Warning       `json:"Warnings"`
}

// SourceReport is the investment in one source.
type SourceReport struct {
	Source          string       `json:"Source"`
	Total           float64      `json:"Total"`
	RequiredFunding float64      `json:"RequiredFunding"`
	Shortfall       float64      `json:"Shortfall"`
	AddedCapacity   float64      `json:"AddedCapacity"` // MW
	Renewable       bool         `json:"Renewable"`
	MinPlants       int          `json:"MinPlants"`
	MaxPlants       int          `json:"MaxPlants"`
	Allocations     []Allocation `json:"Allocations"`
}

// Allocation is the investment in one source in one year.
type Allocation struct {
	Year          int     `json:"Year"`
	Amount        float64 `json:"Amount"`
	AddedCapacity float64 `json:"AddedCapacity"` // MW
	Emissions     float64 `json:"Emissions"`     // kg CO2
}

// YearReport is the investment across sources in one year.
type YearReport struct {
	Year         int     `json:"Year"`
	Total        float64 `json:"Total"`
	MinShortfall float64 `json:"MinShortfall"`
	MaxExceeded  float64 `json:"MaxExceeded"`
}

// RenewableReport compares renewable capacity and production to target.
type RenewableReport struct {
	CapacityAchieved  float64 `json:"CapacityAchieved"` // MW
	CapacityTarget    float64 `json:"CapacityTarget"`
	CapacityShortfall float64 `json:"CapacityShortfall"`

	ProductionAchieved  float64 `json:"ProductionAchieved"` // BU
	ProductionTarget    float64 `json:"ProductionTarget"`
	ProductionShortfall float64 `json:"ProductionShortfall"`
}

// EmissionReport compares produced emissions to the emission target.
type EmissionReport struct {
	Produced float64 `json:"Produced"` // kg CO2
	Target   float64 `json:"Target"`
	// Delta is Produced - Target; positive when the target is exceeded.
	Delta float64 `json:"Delta"`
	Slack float64 `json:"Slack"`
}

// Warning is a constraint the investments leave unmet by more than the
// display threshold. Magnitude is the smaller of the slack value and the
// violation recomputed from the investments; Relative is Magnitude over the
// row's right hand side, zero when that is zero.
type Warning struct {
	Family    plan.Family `json:"Family"`
	Subject   string      `json:"Subject,omitempty"`
	Magnitude float64     `json:"Magnitude"`
	Relative  float64     `json:"Relative"`
	Unit      string      `json:"Unit"`
}

// Exceeded reports whether emissions are over target.
func (e EmissionReport) Exceeded() bool { return e.Delta > 0 }

// Source returns the report of the named source.
func (r Report) Source(name string) (SourceReport, bool) {
	for _, s := range r.Sources {
		if s.Source == name {
			return s, true
		}
	}
	return SourceReport{}, false
}

// Year returns the report of year.
func (r Report) Year(year int) (YearReport, bool) {
	for _, y := range r.Years {
		if y.Year == year {
			return y, true
		}
	}
	return YearReport{}, false
}

// Analyze reads sol through the handles of m. Values at or below threshold
// are left out of allocations and warnings. A non-optimal solution yields a
// *plan.SolveError.
func Analyze(m *plan.Model, sol solver.Solution, threshold float64) (Report, error) {
	if m == nil || sol == nil {
		return Report{}, errors.New("analysis: nil model or solution")
	}
	if sol.Status() != solver.Optimal {
		return Report{}, &plan.SolveError{Status: sol.Status()}
	}

	cfg := m.Config()
	targets := m.Targets()
	years := m.Years()
	hours := cfg.HoursPerYear

	r := Report{
		RunID:            uuid.New(),
		Status:           sol.Status().String(),
		Objective:        sol.Objective(),
		PenaltyFactor:    cfg.PenaltyFactor,
		DisplayThreshold: threshold,
		Years:            make([]YearReport, len(years)),
		Renewables: RenewableReport{
			CapacityTarget:   targets.RenewableCapacity,
			ProductionTarget: targets.RenewableProduction,
		},
		Emissions: EmissionReport{Target: targets.Emissions},
	}
	for j, y := range years {
		r.Years[j].Year = y
	}

	for _, s := range m.Sources() {
		sr := SourceReport{
			Source:          s.Name,
			RequiredFunding: targets.RequiredFunding[s.Name],
			Renewable:       s.Renewable,
			MinPlants:       s.MinPlants,
			MaxPlants:       s.MaxPlants,
		}
		for j, y := range years {
			v, _ := m.Investment(s.Name, y)
			amount := sol.Value(v)
			added := s.AddedCapacity(amount)

			sr.Total += amount
			r.Years[j].Total += amount
			r.Emissions.Produced += added * s.EmissionFactor * hours
			if s.Renewable {
				r.Renewables.CapacityAchieved += added
				r.Renewables.ProductionAchieved += added * s.CapacityFactor * hours / 1e6
			}
			if amount > threshold {
				sr.Allocations = append(sr.Allocations, Allocation{
					Year:          y,
					Amount:        amount,
					AddedCapacity: added,
					Emissions:     added * s.EmissionFactor,
				})
			}
		}
		sr.AddedCapacity = s.AddedCapacity(sr.Total)
		r.TotalInvestment += sr.Total
		r.Sources = append(r.Sources, sr)
	}

	rows := slackRows(m)
	var slackSum float64
	for _, sl := range m.Slacks() {
		value := sol.Value(sl.Var)
		slackSum += value

		row, ok := rows[sl.Var]
		if ok {
			value = math.Min(value, unmet(row, sl.Var, sol.Value))
		}
		r.applySlack(sl, value)
		if value > threshold {
			w := Warning{
				Family:    sl.Family,
				Subject:   sl.Subject,
				Magnitude: value,
				Unit:      sl.Family.Unit(),
			}
			if ok && row.RHS != 0 {
				w.Relative = value / math.Abs(row.RHS)
			}
			r.Warnings = append(r.Warnings, w)
		}
	}
	r.RecomputedObjective = r.TotalInvestment + cfg.PenaltyFactor*slackSum
	r.Emissions.Delta = r.Emissions.Produced - r.Emissions.Target
	return r, nil
}

// slackRows maps each slack variable to the row it relaxes.
func slackRows(m *plan.Model) map[solver.Var]plan.Row {
	rows := make(map[solver.Var]plan.Row)
	for _, row := range m.Constraints() {
		for _, sl := range m.Slacks() {
			if row.Expr.Coef(sl.Var) != 0 {
				rows[sl.Var] = row
			}
		}
	}
	return rows
}

// unmet is how far the row misses its right hand side with slack removed.
func unmet(row plan.Row, slack solver.Var, value func(solver.Var) float64) float64 {
	lhs := row.Expr.Eval(func(v solver.Var) float64 {
		if v == slack {
			return 0
		}
		return value(v)
	})
	switch row.Cmp {
	case solver.GreaterEqual:
		return math.Max(row.RHS-lhs, 0)
	case solver.LessEqual:
		return math.Max(lhs-row.RHS, 0)
	default:
		return math.Abs(lhs - row.RHS)
	}
}

func (r *Report) applySlack(sl plan.Slack, value float64) {
	switch sl.Family {
	case plan.TargetShortfall:
		for i := range r.Sources {
			if r.Sources[i].Source == sl.Subject {
				r.Sources[i].Shortfall = value
			}
		}
	case plan.MinBudgetShortfall, plan.MaxBudgetOverage:
		for i := range r.Years {
			if strconv.Itoa(r.Years[i].Year) != sl.Subject {
				continue
			}
			if sl.Family == plan.MinBudgetShortfall {
				r.Years[i].MinShortfall = value
			} else {
				r.Years[i].MaxExceeded = value
			}
		}
	case plan.RenewableCapacityShortfall:
		r.Renewables.CapacityShortfall = value
	case plan.RenewableProductionShortfall:
		r.Renewables.ProductionShortfall = value / 1e6
	case plan.EmissionsOverage:
		r.Emissions.Slack = value
	}
}
