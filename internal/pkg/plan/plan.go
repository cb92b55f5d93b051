// Package plan builds the capital investment model: one investment variable
// per source and year, slack-relaxed target, budget, renewable and emission
// rows, and an objective that prices every slack unit above a rupee of
// investment.
package plan

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"go.uber.org/zap"

	"github.com/ohowland/cgc_plan/internal/pkg/config"
	"github.com/ohowland/cgc_plan/internal/pkg/params"
	"github.com/ohowland/cgc_plan/internal/pkg/solver"
)

// Constraint names.
const (
	RenewableCapacityRow   = "Renewable_Capacity"
	RenewableProductionRow = "Renewable_Production"
	EmissionsRow           = "Emissions"
)

// TargetRow names the funding target row of a source.
func TargetRow(source string) string { return "Target_" + source }

// MinBudgetRow names the minimum annual budget row of a year.
func MinBudgetRow(year int) string { return "Min_Budget_" + strconv.Itoa(year) }

// MaxBudgetRow names the maximum annual budget row of a year.
func MaxBudgetRow(year int) string { return "Max_Budget_" + strconv.Itoa(year) }

// SolveError is returned when the solver ends without an optimal point.
type SolveError struct {
	Status solver.Status
	Err    error
}

func (e *SolveError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model could not be solved to optimality: status %s: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("model could not be solved to optimality: status %s", e.Status)
}

func (e *SolveError) Unwrap() error { return e.Err }

// Row is a constraint as handed to the solver.
type Row struct {
	Name string
	Expr *solver.Expr
	Cmp  solver.Comparison
	RHS  float64
}

// Holds reports whether the row is satisfied by value within tol, scaled by
// the magnitude of the right hand side.
func (r Row) Holds(value func(solver.Var) float64, tol float64) bool {
	lhs := r.Expr.Eval(value)
	scale := 1.0
	if r.RHS > 1 || r.RHS < -1 {
		scale = r.RHS
		if scale < 0 {
			scale = -scale
		}
	}
	tol *= scale
	switch r.Cmp {
	case solver.LessEqual:
		return lhs <= r.RHS+tol
	case solver.GreaterEqual:
		return lhs >= r.RHS-tol
	default:
		return lhs-r.RHS <= tol && r.RHS-lhs <= tol
	}
}

// Targets are the right hand sides derived from the parameters.
type Targets struct {
	// RequiredFunding per source, ₹.
	RequiredFunding         map[string]float64
	AverageAnnualInvestment float64
	MinAnnualBudget         float64
	MaxAnnualBudget         float64
	// RenewableCapacity is the summed renewable target capacity, MW.
	RenewableCapacity float64
	// RenewableProduction is the production of the renewable capacity gap,
	// billion units.
	RenewableProduction float64
	// Emissions is the emission allowance, kg CO2.
	Emissions float64
	// EmissionContributions per source, kg CO2.
	EmissionContributions map[string]float64
}

// Model is one built investment problem. It is solved at most once.
type Model struct {
	cfg     config.Model
	years   []int
	sources []params.Source
	solver  solver.Solver
	logger  *zap.Logger

	investment [][]solver.Var // [source][year]
	slacks     []Slack
	objective  *solver.Expr
	rows       []Row
	targets    Targets
	solved     bool
}

// New creates the variables, objective and constraints of the model on s.
func New(p params.Parameters, cfg config.Model, s solver.Solver, logger *zap.Logger) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if s == nil {
		return nil, errors.New("plan: nil solver")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Model{
		cfg:     cfg,
		years:   cfg.Years(),
		sources: p.Sources(),
		solver:  s,
		logger:  logger.Named("plan"),
	}
	m.deriveTargets()

	if err := m.addVariables(); err != nil {
		return nil, fmt.Errorf("add variables: %w", err)
	}
	if err := m.setObjective(); err != nil {
		return nil, err
	}
	if err := m.addConstraints(); err != nil {
		return nil, fmt.Errorf("add constraints: %w", err)
	}

	m.logger.Info("model built",
		zap.Strings("sources", p.Names()),
		zap.Int("firstYear", m.years[0]),
		zap.Int("lastYear", m.years[len(m.years)-1]),
		zap.Int("variables", len(m.sources)*len(m.years)+len(m.slacks)),
		zap.Int("constraints", len(m.rows)),
	)
	return m, nil
}

func (m *Model) deriveTargets() {
	hours := m.cfg.HoursPerYear
	t := Targets{
		RequiredFunding:         make(map[string]float64, len(m.sources)),
		EmissionContributions:   make(map[string]float64, len(m.sources)),
		AverageAnnualInvestment: m.cfg.AverageAnnualInvestment(),
	}
	t.MinAnnualBudget = m.cfg.MinBudgetFraction * t.AverageAnnualInvestment
	t.MaxAnnualBudget = m.cfg.MaxBudgetFraction * t.AverageAnnualInvestment

	for _, s := range m.sources {
		t.RequiredFunding[s.Name] = s.RequiredFunding()
		if s.Renewable {
			t.RenewableCapacity += s.TargetCapacity
			t.RenewableProduction += s.CapacityGap() * s.CapacityFactor * hours / 1e6
		}
	}

	t.Emissions = m.cfg.EmissionDisplacement * t.RenewableProduction * 1e6
	for _, s := range m.sources {
		e := s.EmissionFactor * s.CapacityGap() * s.CapacityFactor * hours / 1e3
		t.EmissionContributions[s.Name] = e
		t.Emissions += e
		m.logger.Debug("emission target contribution", zap.String("source", s.Name), zap.Float64("kgCO2", e))
	}
	m.targets = t
}

func (m *Model) addVariables() error {
	m.investment = make([][]solver.Var, len(m.sources))
	for i, s := range m.sources {
		m.investment[i] = make([]solver.Var, len(m.years))
		for j, y := range m.years {
			v, err := m.nonNegative(fmt.Sprintf("Investment[%s,%d]", s.Name, y))
			if err != nil {
				return err
			}
			m.investment[i][j] = v
		}
	}

	add := func(f Family, subject string) error {
		v, err := m.nonNegative(f.varName(subject))
		if err != nil {
			return err
		}
		m.slacks = append(m.slacks, Slack{Family: f, Subject: subject, Var: v})
		return nil
	}
	for _, s := range m.sources {
		if err := add(TargetShortfall, s.Name); err != nil {
			return err
		}
	}
	for _, y := range m.years {
		if err := add(MinBudgetShortfall, strconv.Itoa(y)); err != nil {
			return err
		}
	}
	for _, y := range m.years {
		if err := add(MaxBudgetOverage, strconv.Itoa(y)); err != nil {
			return err
		}
	}
	for _, f := range []Family{RenewableCapacityShortfall, RenewableProductionShortfall, EmissionsOverage} {
		if err := add(f, ""); err != nil {
			return err
		}
	}
	return nil
}

func (m *Model) nonNegative(name string) (solver.Var, error) {
	return m.solver.NewVariable(name, 0, math.Inf(1))
}

func (m *Model) setObjective() error {
	obj := solver.NewExpr()
	for _, row := range m.investment {
		for _, v := range row {
			obj.Add(v, 1)
		}
	}
	for _, s := range m.slacks {
		obj.Add(s.Var, m.cfg.PenaltyFactor)
	}
	if err := m.solver.SetObjective(obj, solver.Minimize); err != nil {
		return fmt.Errorf("set objective: %w", err)
	}
	m.objective = obj
	return nil
}

func (m *Model) addConstraints() error {
	hours := m.cfg.HoursPerYear
	t := m.targets

	for i, s := range m.sources {
		e := solver.Sum(m.investment[i]...).Add(m.slack(TargetShortfall, s.Name), 1)
		if err := m.addRow(TargetRow(s.Name), e, solver.GreaterEqual, t.RequiredFunding[s.Name]); err != nil {
			return err
		}
	}

	for j, y := range m.years {
		subject := strconv.Itoa(y)
		lo := m.yearSum(j).Add(m.slack(MinBudgetShortfall, subject), 1)
		if err := m.addRow(MinBudgetRow(y), lo, solver.GreaterEqual, t.MinAnnualBudget); err != nil {
			return err
		}
		hi := m.yearSum(j).Add(m.slack(MaxBudgetOverage, subject), -1)
		if err := m.addRow(MaxBudgetRow(y), hi, solver.LessEqual, t.MaxAnnualBudget); err != nil {
			return err
		}
	}

	capacity := solver.NewExpr()
	production := solver.NewExpr()
	emissions := solver.NewExpr()
	for i, s := range m.sources {
		for _, v := range m.investment[i] {
			if s.Renewable {
				capacity.Add(v, 1/s.CapitalCost)
				production.Add(v, s.CapacityFactor*hours/s.CapitalCost)
			}
			emissions.Add(v, s.EmissionFactor/s.CapitalCost)
		}
	}
	capacity.Add(m.slack(RenewableCapacityShortfall, ""), 1)
	production.Add(m.slack(RenewableProductionShortfall, ""), 1)
	emissions.Add(m.slack(EmissionsOverage, ""), -1)

	if err := m.addRow(RenewableCapacityRow, capacity, solver.GreaterEqual, t.RenewableCapacity); err != nil {
		return err
	}
	if err := m.addRow(RenewableProductionRow, production, solver.GreaterEqual, t.RenewableProduction*1e6); err != nil {
		return err
	}
	return m.addRow(EmissionsRow, emissions, solver.LessEqual, t.Emissions)
}

func (m *Model) yearSum(j int) *solver.Expr {
	e := solver.NewExpr()
	for i := range m.sources {
		e.Add(m.investment[i][j], 1)
	}
	return e
}

func (m *Model) addRow(name string, e *solver.Expr, cmp solver.Comparison, rhs float64) error {
	if _, err := m.solver.AddConstraint(name, e, cmp, rhs); err != nil {
		return err
	}
	m.rows = append(m.rows, Row{Name: name, Expr: e, Cmp: cmp, RHS: rhs})
	m.logger.Debug("constraint added", zap.String("name", name), zap.Stringer("cmp", cmp), zap.Float64("rhs", rhs))
	return nil
}

func (m *Model) slack(f Family, subject string) solver.Var {
	for _, s := range m.slacks {
		if s.Family == f && s.Subject == subject {
			return s.Var
		}
	}
	panic(fmt.Sprintf("plan: no %s slack for %q", f, subject))
}

// Solve runs the solver once. A non-optimal status is returned as a
// *SolveError together with the solution the solver produced.
func (m *Model) Solve() (solver.Solution, error) {
	if m.solved {
		return nil, solver.ErrAlreadySolved
	}
	m.solved = true

	m.logger.Info("optimizing")
	sol, err := m.solver.Solve()
	if err != nil {
		return nil, fmt.Errorf("solve: %w", err)
	}
	if sol.Status() != solver.Optimal {
		serr := &SolveError{Status: sol.Status()}
		if c, ok := sol.(interface{ Err() error }); ok {
			serr.Err = c.Err()
		}
		m.logger.Warn("model could not be solved to optimality", zap.Stringer("status", sol.Status()), zap.Error(serr.Err))
		return sol, serr
	}
	m.logger.Info("optimal solution found", zap.Float64("objective", sol.Objective()))
	return sol, nil
}

// Sources are the modelled sources in table order.
func (m *Model) Sources() []params.Source {
	out := make([]params.Source, len(m.sources))
	copy(out, m.sources)
	return out
}

// Years is the planning horizon.
func (m *Model) Years() []int {
	out := make([]int, len(m.years))
	copy(out, m.years)
	return out
}

// Config returns the economic assumptions the model was built with.
func (m *Model) Config() config.Model { return m.cfg }

// Targets returns the derived right hand sides.
func (m *Model) Targets() Targets { return m.targets }

// Investment returns the variable of source in year.
func (m *Model) Investment(source string, year int) (solver.Var, bool) {
	for i, s := range m.sources {
		if s.Name != source {
			continue
		}
		for j, y := range m.years {
			if y == year {
				return m.investment[i][j], true
			}
		}
	}
	return solver.Var{}, false
}

// Slacks returns every slack variable in creation order.
func (m *Model) Slacks() []Slack {
	out := make([]Slack, len(m.slacks))
	copy(out, m.slacks)
	return out
}

// Slack returns the slack of family f for subject, "" for the single
// renewable and emission slacks.
func (m *Model) Slack(f Family, subject string) (Slack, bool) {
	for _, s := range m.slacks {
		if s.Family == f && s.Subject == subject {
			return s, true
		}
	}
	return Slack{}, false
}

// Constraints returns the rows in the order they were added.
func (m *Model) Constraints() []Row {
	out := make([]Row, len(m.rows))
	copy(out, m.rows)
	return out
}

// Objective is Σ investment + PenaltyFactor × Σ slack.
func (m *Model) Objective() *solver.Expr { return m.objective }
