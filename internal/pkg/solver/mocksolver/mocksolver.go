// Package mocksolver records the problem handed to it and returns a scripted
// status and values instead of solving.
package mocksolver

import (
	"fmt"

	"github.com/ohowland/cgc_plan/internal/pkg/solver"
)

// Variable is a recorded NewVariable call.
type Variable struct {
	Name string
	LB   float64
	UB   float64
}

// Row is a recorded AddConstraint call.
type Row struct {
	Name string
	Expr *solver.Expr
	Cmp  solver.Comparison
	RHS  float64
}

// Solver is a scripted solver.Solver.
type Solver struct {
	Vars      []Variable
	Rows      []Row
	Objective *solver.Expr
	Sense     solver.Sense
	Solves    int

	// Status returned by Solve.
	Status solver.Status
	// Values by variable name; missing names read as zero.
	Values map[string]float64
}

// New returns a Solver that reports status with all values zero.
func New(status solver.Status) *Solver {
	return &Solver{Status: status, Values: make(map[string]float64)}
}

func (s *Solver) NewVariable(name string, lb, ub float64) (solver.Var, error) {
	v := solver.NewVar(len(s.Vars), name)
	s.Vars = append(s.Vars, Variable{name, lb, ub})
	return v, nil
}

func (s *Solver) AddConstraint(name string, expr *solver.Expr, cmp solver.Comparison, rhs float64) (solver.Constraint, error) {
	for _, t := range expr.Terms() {
		if t.Var.ID() >= len(s.Vars) {
			return solver.Constraint{}, fmt.Errorf("%s: %w", t.Var.Name(), solver.ErrUnknownVariable)
		}
	}
	c := solver.NewConstraint(len(s.Rows), name)
	s.Rows = append(s.Rows, Row{name, expr, cmp, rhs})
	return c, nil
}

func (s *Solver) SetObjective(expr *solver.Expr, sense solver.Sense) error {
	s.Objective = expr
	s.Sense = sense
	return nil
}

func (s *Solver) Solve() (solver.Solution, error) {
	if s.Objective == nil {
		return nil, solver.ErrNoObjective
	}
	s.Solves++
	return Solution{s}, nil
}

// Row returns the recorded row with the given name.
func (s *Solver) Row(name string) (Row, bool) {
	for _, r := range s.Rows {
		if r.Name == name {
			return r, true
		}
	}
	return Row{}, false
}

// Var returns the handle of the recorded variable with the given name.
func (s *Solver) Var(name string) (solver.Var, bool) {
	for i, v := range s.Vars {
		if v.Name == name {
			return solver.NewVar(i, name), true
		}
	}
	return solver.Var{}, false
}

// Solution reads the scripted values.
type Solution struct {
	s *Solver
}

func (sol Solution) Status() solver.Status { return sol.s.Status }

func (sol Solution) Value(v solver.Var) float64 { return sol.s.Values[v.Name()] }

func (sol Solution) Objective() float64 {
	return sol.s.Objective.Eval(sol.Value)
}
