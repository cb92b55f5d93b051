package simplexlp

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/ohowland/cgc_plan/internal/pkg/config"
	"github.com/ohowland/cgc_plan/internal/pkg/params"
	"github.com/ohowland/cgc_plan/internal/pkg/plan"
	"github.com/ohowland/cgc_plan/internal/pkg/solver"
)

var inf = math.Inf(1)

func approx(t *testing.T, got, want float64) {
	t.Helper()
	tol := 1e-6 * math.Max(1, math.Abs(want))
	assert.Assert(t, math.Abs(got-want) <= tol, "got %v, want %v", got, want)
}

func newVar(t *testing.T, s *Solver, name string, lb, ub float64) solver.Var {
	t.Helper()
	v, err := s.NewVariable(name, lb, ub)
	assert.NilError(t, err)
	return v
}

func addRow(t *testing.T, s *Solver, name string, e *solver.Expr, cmp solver.Comparison, rhs float64) {
	t.Helper()
	_, err := s.AddConstraint(name, e, cmp, rhs)
	assert.NilError(t, err)
}

func TestMaximizeWithUpperBound(t *testing.T) {
	for focus := 0; focus <= solver.MaxNumericFocus; focus++ {
		s := New(solver.Params{FeasibilityTol: 1e-9, NumericFocus: focus})
		x := newVar(t, s, "x", 0, 3)
		y := newVar(t, s, "y", 0, inf)
		addRow(t, s, "c1", solver.Sum(x, y), solver.LessEqual, 4)
		addRow(t, s, "c2", solver.NewExpr().Add(x, 1).Add(y, 3), solver.LessEqual, 6)
		assert.NilError(t, s.SetObjective(solver.NewExpr().Add(x, 3).Add(y, 2), solver.Maximize))

		sol, err := s.Solve()
		assert.NilError(t, err)
		assert.Equal(t, sol.Status(), solver.Optimal, "NumericFocus %d", focus)
		approx(t, sol.Value(x), 3)
		approx(t, sol.Value(y), 1)
		approx(t, sol.Objective(), 11)
	}
}

func TestMinimizeGreaterEqual(t *testing.T) {
	s := New(solver.DefaultParams())
	x := newVar(t, s, "x", 0, inf)
	y := newVar(t, s, "y", 0, inf)
	addRow(t, s, "cover", solver.Sum(x, y), solver.GreaterEqual, 2)
	addRow(t, s, "floor", solver.NewExpr().Add(x, 1), solver.GreaterEqual, 0.5)
	assert.NilError(t, s.SetObjective(solver.NewExpr().Add(x, 1).Add(y, 2), solver.Minimize))

	sol, err := s.Solve()
	assert.NilError(t, err)
	assert.Equal(t, sol.Status(), solver.Optimal)
	approx(t, sol.Value(x), 2)
	approx(t, sol.Value(y), 0)
	approx(t, sol.Objective(), 2)
}

func TestShiftedLowerBound(t *testing.T) {
	s := New(solver.DefaultParams())
	x := newVar(t, s, "x", 2, inf)
	y := newVar(t, s, "y", 0, 1)
	addRow(t, s, "sum", solver.Sum(x, y), solver.GreaterEqual, 5)
	assert.NilError(t, s.SetObjective(solver.NewExpr().Add(x, 1), solver.Minimize))

	sol, err := s.Solve()
	assert.NilError(t, err)
	assert.Equal(t, sol.Status(), solver.Optimal)
	approx(t, sol.Value(x), 4)
	approx(t, sol.Value(y), 1)
}

func TestEqualityRow(t *testing.T) {
	s := New(solver.DefaultParams())
	x := newVar(t, s, "x", 0, 1)
	y := newVar(t, s, "y", 0, inf)
	addRow(t, s, "balance", solver.Sum(x, y), solver.Equal, 3)
	assert.NilError(t, s.SetObjective(solver.NewExpr().Add(x, 1).Add(y, 2), solver.Minimize))

	sol, err := s.Solve()
	assert.NilError(t, err)
	assert.Equal(t, sol.Status(), solver.Optimal)
	approx(t, sol.Value(x), 1)
	approx(t, sol.Value(y), 2)
	approx(t, sol.Objective(), 5)
}

func TestBadlyScaledRow(t *testing.T) {
	s := New(solver.DefaultParams())
	inv := newVar(t, s, "inv", 0, inf)
	slack := newVar(t, s, "slack", 0, inf)
	addRow(t, s, "capacity", solver.NewExpr().Add(inv, 1e-8).Add(slack, 1), solver.GreaterEqual, 110)
	addRow(t, s, "funding", solver.NewExpr().Add(inv, 1), solver.GreaterEqual, 5e9)
	assert.NilError(t, s.SetObjective(solver.NewExpr().Add(inv, 1).Add(slack, 1.1), solver.Minimize))

	sol, err := s.Solve()
	assert.NilError(t, err)
	assert.Equal(t, sol.Status(), solver.Optimal)
	approx(t, sol.Value(inv), 5e9)
	approx(t, sol.Value(slack), 60)
	approx(t, sol.Objective(), 5e9+66)
}

func TestInfeasible(t *testing.T) {
	s := New(solver.DefaultParams())
	x := newVar(t, s, "x", 0, inf)
	addRow(t, s, "upper", solver.Sum(x), solver.LessEqual, 1)
	addRow(t, s, "lower", solver.Sum(x), solver.GreaterEqual, 2)
	assert.NilError(t, s.SetObjective(solver.Sum(x), solver.Minimize))

	sol, err := s.Solve()
	assert.NilError(t, err)
	assert.Equal(t, sol.Status(), solver.Infeasible)
}

func TestContradictoryBounds(t *testing.T) {
	s := New(solver.DefaultParams())
	x := newVar(t, s, "x", 2, 1)
	assert.NilError(t, s.SetObjective(solver.Sum(x), solver.Minimize))

	sol, err := s.Solve()
	assert.NilError(t, err)
	assert.Equal(t, sol.Status(), solver.Infeasible)
	assert.Assert(t, is.ErrorContains(sol.(*Solution).Err(), "exceeds upper bound"))
}

func TestUnbounded(t *testing.T) {
	s := New(solver.DefaultParams())
	x := newVar(t, s, "x", 0, inf)
	addRow(t, s, "floor", solver.Sum(x), solver.GreaterEqual, 1)
	assert.NilError(t, s.SetObjective(solver.Sum(x), solver.Maximize))

	sol, err := s.Solve()
	assert.NilError(t, err)
	assert.Equal(t, sol.Status(), solver.Unbounded)
}

func TestUnreferencedVariables(t *testing.T) {
	s := New(solver.DefaultParams())
	x := newVar(t, s, "x", 1, inf)
	y := newVar(t, s, "y", 0, 7)
	assert.NilError(t, s.SetObjective(solver.NewExpr().Add(x, 1).Add(y, -1), solver.Minimize))

	sol, err := s.Solve()
	assert.NilError(t, err)
	assert.Equal(t, sol.Status(), solver.Optimal)
	assert.Equal(t, sol.Value(x), 1.0)
	assert.Equal(t, sol.Value(y), 7.0)
	assert.Equal(t, sol.Objective(), -6.0)

	s = New(solver.DefaultParams())
	z := newVar(t, s, "z", 0, inf)
	assert.NilError(t, s.SetObjective(solver.NewExpr().Add(z, -1), solver.Minimize))
	sol, err = s.Solve()
	assert.NilError(t, err)
	assert.Equal(t, sol.Status(), solver.Unbounded)
}

func TestEmptyRowThatCannotHold(t *testing.T) {
	s := New(solver.DefaultParams())
	x := newVar(t, s, "x", 0, inf)
	addRow(t, s, "empty", solver.NewExpr(), solver.GreaterEqual, 1)
	assert.NilError(t, s.SetObjective(solver.Sum(x), solver.Minimize))

	sol, err := s.Solve()
	assert.NilError(t, err)
	assert.Equal(t, sol.Status(), solver.Infeasible)
}

func TestMisuse(t *testing.T) {
	s := New(solver.DefaultParams())

	_, err := s.NewVariable("free", math.Inf(-1), inf)
	assert.Assert(t, errors.Is(err, ErrUnsupportedBound))

	_, err = s.NewVariable("nan", math.NaN(), 1)
	assert.Assert(t, is.ErrorContains(err, "invalid bounds"))

	_, err = s.Solve()
	assert.Assert(t, errors.Is(err, solver.ErrNoObjective))

	foreign := solver.NewVar(4, "foreign")
	_, err = s.AddConstraint("c", solver.Sum(foreign), solver.LessEqual, 1)
	assert.Assert(t, errors.Is(err, solver.ErrUnknownVariable))

	x := newVar(t, s, "x", 0, inf)
	_, err = s.AddConstraint("c", solver.Sum(x), solver.LessEqual, math.Inf(1))
	assert.Assert(t, is.ErrorContains(err, "rhs must be finite"))

	assert.NilError(t, s.SetObjective(solver.Sum(x), solver.Minimize))
	_, err = s.Solve()
	assert.NilError(t, err)
	_, err = s.Solve()
	assert.Assert(t, errors.Is(err, solver.ErrAlreadySolved))
}

func TestGeometric(t *testing.T) {
	assert.Equal(t, geometric([]float64{0, 4, -1}), 2.0)
	assert.Equal(t, geometric([]float64{0, 0}), 0.0)
}

// toy builds the single row problem min x s.t. x >= 1.
func toy(t *testing.T, focus int) (*Solver, solver.Var) {
	t.Helper()
	s := New(solver.Params{FeasibilityTol: 1e-9, NumericFocus: focus})
	x := newVar(t, s, "x", 0, inf)
	addRow(t, s, "floor", solver.Sum(x), solver.GreaterEqual, 1)
	assert.NilError(t, s.SetObjective(solver.Sum(x), solver.Minimize))
	return s, x
}

func TestEnginePanic(t *testing.T) {
	old := simplex
	simplex = func(c []float64, A mat.Matrix, b []float64, tol float64, basic []int) (float64, []float64, error) {
		panic("lp: subcolumns of A for supplied initial basic singular")
	}
	defer func() { simplex = old }()

	s, _ := toy(t, solver.MaxNumericFocus)
	sol, err := s.Solve()
	assert.NilError(t, err)
	assert.Equal(t, sol.Status(), solver.Error)
	assert.Assert(t, is.ErrorContains(sol.(*Solution).Err(), "initial basic singular"))
}

func TestRetryAfterEngineFailure(t *testing.T) {
	old := simplex
	defer func() { simplex = old }()

	for focus := 0; focus <= solver.MaxNumericFocus; focus++ {
		calls := 0
		simplex = func(c []float64, A mat.Matrix, b []float64, tol float64, basic []int) (float64, []float64, error) {
			calls++
			if calls == 1 {
				return 0, nil, lp.ErrInfeasible
			}
			return old(c, A, b, tol, basic)
		}

		s, x := toy(t, focus)
		sol, err := s.Solve()
		assert.NilError(t, err)
		if focus == 0 {
			assert.Equal(t, sol.Status(), solver.Infeasible)
			assert.Equal(t, calls, 1)
			continue
		}
		assert.Equal(t, sol.Status(), solver.Optimal, "NumericFocus %d", focus)
		assert.Equal(t, calls, 2)
		approx(t, sol.Value(x), 1)
	}
}

// TestNationalDataAtEveryFocus solves the shipped national inputs. Every
// row carries an unbounded slack, so each focus level must reach the same
// optimum.
func TestNationalDataAtEveryFocus(t *testing.T) {
	tables, err := params.LoadFiles(config.Inputs{
		Emissions: "../../../../config/data/indian_electricity_sources_with_emissions.csv",
		Plants:    "../../../../config/data/potential_energy_plants_india.csv",
		Goals:     "../../../../config/data/final_government_goals_2030_with_percent.csv",
	})
	assert.NilError(t, err)
	p, err := params.New(tables)
	assert.NilError(t, err)

	var objectives []float64
	for focus := 0; focus <= solver.MaxNumericFocus; focus++ {
		s := New(solver.Params{FeasibilityTol: 1e-9, NumericFocus: focus})
		m, err := plan.New(p, config.Default().Model, s, nil)
		assert.NilError(t, err)

		sol, err := m.Solve()
		if err != nil {
			t.Fatalf("Solve(): FAILED. NumericFocus %d: %v", focus, err)
		}
		t.Logf("Solve(): PASSED. NumericFocus %d objective %g", focus, sol.Objective())
		assert.Equal(t, sol.Status(), solver.Optimal)
		objectives = append(objectives, sol.Objective())
	}
	for _, obj := range objectives[1:] {
		assert.Assert(t, math.Abs(obj-objectives[0]) <= 1e-9*math.Abs(objectives[0]),
			"objectives %v", objectives)
	}
}
