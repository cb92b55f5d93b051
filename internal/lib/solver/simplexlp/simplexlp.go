// Package simplexlp is a solver.Solver backed by the gonum simplex
// implementation. Problems are converted to the standard form
//
//	minimize cᵀz  s.t.  A z = b, z >= 0
//
// by shifting finite lower bounds to zero, adding one slack column per
// inequality row and one row per finite upper bound. Rows, columns, rhs and
// cost are equilibrated before solving and the point is mapped back
// afterwards. Params.NumericFocus adds rescaled retries when the engine does
// not reach an optimum.
package simplexlp

import (
	"errors"
	"fmt"
	"math"

	"github.com/ohowland/cgc_plan/internal/pkg/solver"
)

// ErrUnsupportedBound is returned for variables without a finite lower bound.
var ErrUnsupportedBound = errors.New("simplexlp: lower bound must be finite")

type variable struct {
	name string
	lb   float64
	ub   float64
}

type row struct {
	name  string
	terms []solver.Term
	cmp   solver.Comparison
	rhs   float64
}

// Solver accumulates a problem and solves it once.
type Solver struct {
	params    solver.Params
	vars      []variable
	rows      []row
	objective []solver.Term
	sense     solver.Sense
	hasObj    bool
	solved    bool
}

// New returns an empty problem using params for the solve.
func New(params solver.Params) *Solver {
	return &Solver{params: params}
}

// NewVariable adds a column with bounds lb <= x <= ub. ub may be +Inf.
func (s *Solver) NewVariable(name string, lb, ub float64) (solver.Var, error) {
	if math.IsNaN(lb) || math.IsNaN(ub) || math.IsInf(ub, -1) {
		return solver.Var{}, fmt.Errorf("variable %s: invalid bounds [%g, %g]", name, lb, ub)
	}
	if math.IsInf(lb, 0) {
		return solver.Var{}, fmt.Errorf("variable %s: %w", name, ErrUnsupportedBound)
	}
	v := solver.NewVar(len(s.vars), name)
	s.vars = append(s.vars, variable{name, lb, ub})
	return v, nil
}

// AddConstraint adds the row expr cmp rhs.
func (s *Solver) AddConstraint(name string, expr *solver.Expr, cmp solver.Comparison, rhs float64) (solver.Constraint, error) {
	if math.IsNaN(rhs) || math.IsInf(rhs, 0) {
		return solver.Constraint{}, fmt.Errorf("constraint %s: rhs must be finite, got %g", name, rhs)
	}
	terms := expr.Terms()
	if err := s.checkTerms(terms); err != nil {
		return solver.Constraint{}, fmt.Errorf("constraint %s: %w", name, err)
	}
	c := solver.NewConstraint(len(s.rows), name)
	s.rows = append(s.rows, row{name, terms, cmp, rhs})
	return c, nil
}

// SetObjective replaces the objective.
func (s *Solver) SetObjective(expr *solver.Expr, sense solver.Sense) error {
	terms := expr.Terms()
	if err := s.checkTerms(terms); err != nil {
		return fmt.Errorf("objective: %w", err)
	}
	s.objective = terms
	s.sense = sense
	s.hasObj = true
	return nil
}

func (s *Solver) checkTerms(terms []solver.Term) error {
	for _, t := range terms {
		id := t.Var.ID()
		if id < 0 || id >= len(s.vars) || s.vars[id].name != t.Var.Name() {
			return fmt.Errorf("%s: %w", t.Var.Name(), solver.ErrUnknownVariable)
		}
		if math.IsNaN(t.Coef) || math.IsInf(t.Coef, 0) {
			return fmt.Errorf("%s: coefficient must be finite, got %g", t.Var.Name(), t.Coef)
		}
	}
	return nil
}

// Solve runs the simplex method. Terminal engine failures are reported
// through the Solution status; the error return is reserved for misuse.
func (s *Solver) Solve() (solver.Solution, error) {
	if s.solved {
		return nil, solver.ErrAlreadySolved
	}
	if !s.hasObj {
		return nil, solver.ErrNoObjective
	}
	if err := s.params.Validate(); err != nil {
		return nil, err
	}
	s.solved = true

	sol := &Solution{values: make([]float64, len(s.vars))}
	for j, v := range s.vars {
		if v.lb > v.ub {
			sol.status = solver.Infeasible
			sol.cause = fmt.Errorf("variable %s: lower bound %g exceeds upper bound %g", v.name, v.lb, v.ub)
			return sol, nil
		}
		sol.values[j] = v.lb
	}

	cost := make([]float64, len(s.vars))
	for _, t := range s.objective {
		cost[t.Var.ID()] += t.Coef
	}
	if s.sense == solver.Maximize {
		for j := range cost {
			cost[j] = -cost[j]
		}
	}

	p, status, err := s.standardize(cost, sol.values)
	if err != nil {
		sol.status = status
		sol.cause = err
		return sol, nil
	}

	// Every focus level solves the same scaled problem first; higher levels
	// retry with more scaling passes when the engine does not reach an optimum.
	var z []float64
	var solved *problem
	for attempt := 0; attempt <= s.params.NumericFocus; attempt++ {
		q := p.clone()
		q.equilibrate(scalingPasses + 2*attempt)
		x, status, err := q.solve(s.params.FeasibilityTol)
		if attempt == 0 || rank(status) > rank(sol.status) {
			z, solved = x, q
			sol.status, sol.cause = status, err
		}
		if status == solver.Optimal {
			break
		}
	}
	if z == nil {
		return sol, nil
	}
	solved.unscale(z, s.vars, sol.values)

	for _, t := range s.objective {
		sol.objective += t.Coef * sol.values[t.Var.ID()]
	}
	return sol, nil
}

// standardize shifts bounds, drops empty rows and fixes variables that no
// row references. values holds the lower bounds on entry and receives the
// values of the fixed variables.
func (s *Solver) standardize(cost []float64, values []float64) (*problem, solver.Status, error) {
	n := len(s.vars)
	tol := s.params.FeasibilityTol

	var dense [][]float64
	var b []float64
	var cmp []solver.Comparison

	addRow := func(name string, coefs []float64, c solver.Comparison, rhs float64) error {
		for _, a := range coefs {
			if a != 0 {
				dense = append(dense, coefs)
				b = append(b, rhs)
				cmp = append(cmp, c)
				return nil
			}
		}
		if !trivial(c, rhs, tol) {
			return fmt.Errorf("constraint %s: 0 %s %g cannot hold", name, c, rhs)
		}
		return nil
	}

	for _, r := range s.rows {
		coefs := make([]float64, n)
		rhs := r.rhs
		for _, t := range r.terms {
			j := t.Var.ID()
			coefs[j] += t.Coef
			rhs -= t.Coef * s.vars[j].lb
		}
		if err := addRow(r.name, coefs, r.cmp, rhs); err != nil {
			return nil, solver.Infeasible, err
		}
	}

	used := make([]bool, n)
	for _, coefs := range dense {
		for j, a := range coefs {
			if a != 0 {
				used[j] = true
			}
		}
	}

	for j, v := range s.vars {
		if !used[j] {
			switch {
			case cost[j] < 0 && math.IsInf(v.ub, 1):
				return nil, solver.Unbounded, fmt.Errorf("variable %s: improving direction without bound", v.name)
			case cost[j] < 0:
				values[j] = v.ub
			}
			continue
		}
		if !math.IsInf(v.ub, 1) {
			coefs := make([]float64, n)
			coefs[j] = 1
			dense = append(dense, coefs)
			b = append(b, v.ub-v.lb)
			cmp = append(cmp, solver.LessEqual)
		}
	}

	p := &problem{rhsScale: 1, costScale: 1}
	for j := range used {
		if used[j] {
			p.cols = append(p.cols, j)
			p.c = append(p.c, cost[j])
			p.colScale = append(p.colScale, 1)
		}
	}
	p.a = make([][]float64, len(dense))
	for i, coefs := range dense {
		p.a[i] = make([]float64, len(p.cols))
		for jj, j := range p.cols {
			p.a[i][jj] = coefs[j]
		}
	}
	p.b = b
	p.cmp = cmp
	return p, solver.Optimal, nil
}

// rank orders engine outcomes from least to most usable.
func rank(s solver.Status) int {
	switch s {
	case solver.Optimal:
		return 2
	case solver.Suboptimal:
		return 1
	default:
		return 0
	}
}

func trivial(c solver.Comparison, rhs, tol float64) bool {
	switch c {
	case solver.LessEqual:
		return 0 <= rhs+tol
	case solver.GreaterEqual:
		return 0 >= rhs-tol
	default:
		return math.Abs(rhs) <= tol
	}
}

// Solution is the result of a simplexlp solve.
type Solution struct {
	status    solver.Status
	objective float64
	values    []float64
	cause     error
}

func (s *Solution) Status() solver.Status { return s.status }

func (s *Solution) Objective() float64 { return s.objective }

func (s *Solution) Value(v solver.Var) float64 {
	if v.ID() < 0 || v.ID() >= len(s.values) {
		return math.NaN()
	}
	return s.values[v.ID()]
}

// Err is the engine failure behind a non-optimal status, if any.
func (s *Solution) Err() error { return s.cause }

var _ solver.Solver = (*Solver)(nil)
