// Package solver is the narrow contract between the investment model and a
// linear programming engine. The model creates variables, adds linear
// constraints, sets an objective and calls Solve exactly once.
package solver

import (
	"errors"
	"fmt"
)

// ErrUnknownVariable is returned when an expression refers to a variable the
// solver did not create.
var ErrUnknownVariable = errors.New("solver: unknown variable")

// ErrAlreadySolved is returned when Solve is called more than once.
var ErrAlreadySolved = errors.New("solver: problem already solved")

// ErrNoObjective is returned when Solve is called before SetObjective.
var ErrNoObjective = errors.New("solver: objective not set")

// Solver is implemented by LP engines.
type Solver interface {
	NewVariable(name string, lb, ub float64) (Var, error)
	AddConstraint(name string, expr *Expr, cmp Comparison, rhs float64) (Constraint, error)
	SetObjective(expr *Expr, sense Sense) error
	Solve() (Solution, error)
}

// Solution is the terminal state of a solve call.
type Solution interface {
	Status() Status
	Objective() float64
	Value(Var) float64
}

// Var is a handle to a decision variable owned by a Solver.
type Var struct {
	id   int
	name string
}

// NewVar is used by Solver implementations to mint handles.
func NewVar(id int, name string) Var {
	return Var{id, name}
}

// ID is the solver-local column index.
func (v Var) ID() int { return v.id }

// Name is the diagnostic name given at creation.
func (v Var) Name() string { return v.name }

func (v Var) String() string { return v.name }

// Constraint is a handle to a constraint row owned by a Solver.
type Constraint struct {
	id   int
	name string
}

// NewConstraint is used by Solver implementations to mint handles.
func NewConstraint(id int, name string) Constraint {
	return Constraint{id, name}
}

// ID is the solver-local row index.
func (c Constraint) ID() int { return c.id }

// Name is the diagnostic name given at creation.
func (c Constraint) Name() string { return c.name }

// Comparison is the relation between a row expression and its right hand side.
type Comparison int

const (
	LessEqual Comparison = iota
	GreaterEqual
	Equal
)

func (c Comparison) String() string {
	switch c {
	case LessEqual:
		return "<="
	case GreaterEqual:
		return ">="
	case Equal:
		return "="
	default:
		return fmt.Sprintf("Comparison(%d)", int(c))
	}
}

// Sense is the optimization direction.
type Sense int

const (
	Minimize Sense = iota
	Maximize
)

func (s Sense) String() string {
	if s == Maximize {
		return "max"
	}
	return "min"
}

// Status is the terminal status reported by Solve.
type Status int

const (
	Optimal Status = iota
	Infeasible
	Unbounded
	Suboptimal
	Error
)

func (s Status) String() string {
	switch s {
	case Optimal:
		return "Optimal"
	case Infeasible:
		return "Infeasible"
	case Unbounded:
		return "Unbounded"
	case Suboptimal:
		return "Suboptimal"
	case Error:
		return "Error"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Params are engine tuning knobs. They affect numerical robustness only.
type Params struct {
	// FeasibilityTol bounds the reduced cost / residual accepted as optimal.
	FeasibilityTol float64 `json:"FeasibilityTol"`
	// NumericFocus 0..3; higher levels spend more effort on conditioning.
	NumericFocus int `json:"NumericFocus"`
}

// DefaultParams returns FeasibilityTol 1e-9 and the maximum NumericFocus.
func DefaultParams() Params {
	return Params{
		FeasibilityTol: 1e-9,
		NumericFocus:   MaxNumericFocus,
	}
}

// MaxNumericFocus is the most aggressive conditioning level.
const MaxNumericFocus = 3

// Validate checks the knob ranges.
func (p Params) Validate() error {
	if !(p.FeasibilityTol > 0) {
		return fmt.Errorf("FeasibilityTol must be > 0, got %g", p.FeasibilityTol)
	}
	if p.NumericFocus < 0 || p.NumericFocus > MaxNumericFocus {
		return fmt.Errorf("NumericFocus must be between 0 and %d, got %d", MaxNumericFocus, p.NumericFocus)
	}
	return nil
}
