package solver

import (
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func TestExprMergesDuplicateTerms(t *testing.T) {
	x := NewVar(0, "x")
	y := NewVar(1, "y")

	e := NewExpr().Add(x, 1).Add(y, 2).Add(x, 3)

	assert.Equal(t, e.Len(), 2)
	assert.Equal(t, e.Coef(x), 4.0)
	assert.Equal(t, e.Coef(y), 2.0)

	terms := e.Terms()
	assert.Equal(t, len(terms), 2)
	assert.Equal(t, terms[0].Var, x)
	assert.Equal(t, terms[0].Coef, 4.0)
	assert.Equal(t, terms[1].Var, y)
	assert.Equal(t, terms[1].Coef, 2.0)
}

func TestExprZeroValue(t *testing.T) {
	var e Expr
	x := NewVar(0, "x")
	assert.Equal(t, e.Coef(x), 0.0)
	e.Add(x, 2)
	assert.Equal(t, e.Coef(x), 2.0)
}

func TestAddExprScales(t *testing.T) {
	x := NewVar(0, "x")
	y := NewVar(1, "y")

	e := Sum(x, y).AddExpr(NewExpr().Add(y, 2), 1.5)

	assert.Equal(t, e.Coef(x), 1.0)
	assert.Equal(t, e.Coef(y), 4.0)
}

func TestEval(t *testing.T) {
	x := NewVar(0, "x")
	y := NewVar(1, "y")
	values := map[Var]float64{x: 2, y: 5}

	e := NewExpr().Add(x, 3).Add(y, -1)
	assert.Equal(t, e.Eval(func(v Var) float64 { return values[v] }), 1.0)

	var nilExpr *Expr
	assert.Equal(t, nilExpr.Eval(func(Var) float64 { return 1 }), 0.0)
}

func TestParamsValidate(t *testing.T) {
	assert.NilError(t, DefaultParams().Validate())

	p := DefaultParams()
	p.FeasibilityTol = 0
	assert.Assert(t, is.ErrorContains(p.Validate(), "FeasibilityTol"))

	p = DefaultParams()
	p.NumericFocus = 4
	assert.Assert(t, is.ErrorContains(p.Validate(), "NumericFocus"))
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, Optimal.String(), "Optimal")
	assert.Equal(t, Infeasible.String(), "Infeasible")
	assert.Equal(t, Unbounded.String(), "Unbounded")
	assert.Equal(t, Suboptimal.String(), "Suboptimal")
	assert.Equal(t, Error.String(), "Error")
	assert.Equal(t, GreaterEqual.String(), ">=")
}
