package simplexlp

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/ohowland/cgc_plan/internal/pkg/solver"
)

// problem is the structural block of the standard form. Column jj holds
// x[cols[jj]] - lb, scaled: x - lb = colScale[jj] * rhsScale * z[jj].
type problem struct {
	cols      []int
	a         [][]float64
	b         []float64
	cmp       []solver.Comparison
	c         []float64
	colScale  []float64
	rhsScale  float64
	costScale float64
}

// scalingPasses is the number of alternating row/column passes every
// solve starts with.
const scalingPasses = 3

// clone copies the problem so a retry can scale from the unscaled data.
func (p *problem) clone() *problem {
	q := &problem{
		cols:      p.cols,
		a:         make([][]float64, len(p.a)),
		b:         append([]float64(nil), p.b...),
		cmp:       p.cmp,
		c:         append([]float64(nil), p.c...),
		colScale:  append([]float64(nil), p.colScale...),
		rhsScale:  p.rhsScale,
		costScale: p.costScale,
	}
	for i, r := range p.a {
		q.a[i] = append([]float64(nil), r...)
	}
	return q
}

// equilibrate applies passes of geometric row then column scaling and
// normalizes rhs and cost to a unit maximum.
func (p *problem) equilibrate(passes int) {
	if len(p.a) == 0 {
		return
	}
	for pass := 0; pass < passes; pass++ {
		for i, r := range p.a {
			f := geometric(r)
			if f == 0 {
				continue
			}
			for jj := range r {
				r[jj] /= f
			}
			p.b[i] /= f
		}
		for jj := range p.cols {
			col := make([]float64, len(p.a))
			for i := range p.a {
				col[i] = p.a[i][jj]
			}
			f := geometric(col)
			if f == 0 {
				continue
			}
			for i := range p.a {
				p.a[i][jj] /= f
			}
			p.c[jj] /= f
			p.colScale[jj] /= f
		}
	}
	if beta := maxAbs(p.b); beta > 0 {
		for i := range p.b {
			p.b[i] /= beta
		}
		p.rhsScale = beta
	}
	if gamma := maxAbs(p.c); gamma > 0 {
		for jj := range p.c {
			p.c[jj] /= gamma
		}
		p.costScale = gamma
	}
}

// simplex is the engine entry point; tests replace it to force failures.
var simplex = lp.Simplex

// solve appends slack columns and runs the simplex engine. A nil point
// means no usable solution. Engine panics are reported as solver.Error.
func (p *problem) solve(tol float64) (x []float64, status solver.Status, err error) {
	defer func() {
		if r := recover(); r != nil {
			x, status, err = nil, solver.Error, fmt.Errorf("simplex: %v", r)
		}
	}()

	m := len(p.a)
	nc := len(p.cols)
	if m == 0 {
		return make([]float64, nc), solver.Optimal, nil
	}

	k := 0
	for _, c := range p.cmp {
		if c != solver.Equal {
			k++
		}
	}
	total := nc + k
	if total < m {
		return nil, solver.Error, fmt.Errorf("standard form has %d rows but only %d columns", m, total)
	}

	data := make([]float64, m*total)
	slack := nc
	for i, r := range p.a {
		copy(data[i*total:], r)
		switch p.cmp[i] {
		case solver.LessEqual:
			data[i*total+slack] = 1
			slack++
		case solver.GreaterEqual:
			data[i*total+slack] = -1
			slack++
		}
	}
	c := make([]float64, total)
	copy(c, p.c)

	_, x, err = simplex(c, mat.NewDense(m, total, data), p.b, tol, nil)
	switch {
	case err == nil:
		return x, solver.Optimal, nil
	case errors.Is(err, lp.ErrInfeasible):
		return nil, solver.Infeasible, err
	case errors.Is(err, lp.ErrUnbounded):
		return nil, solver.Unbounded, err
	case x != nil:
		return x, solver.Suboptimal, err
	default:
		return nil, solver.Error, err
	}
}

// unscale maps the standard form point back onto the original variables.
func (p *problem) unscale(z []float64, vars []variable, values []float64) {
	for jj, j := range p.cols {
		shifted := z[jj] * p.colScale[jj] * p.rhsScale
		if shifted < 0 {
			shifted = 0
		}
		v := vars[j].lb + shifted
		if v > vars[j].ub {
			v = vars[j].ub
		}
		values[j] = v
	}
}

// geometric returns sqrt(min|a| * max|a|) over the nonzero entries.
func geometric(a []float64) float64 {
	lo, hi := math.Inf(1), 0.0
	for _, v := range a {
		v = math.Abs(v)
		if v == 0 {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi == 0 {
		return 0
	}
	return math.Sqrt(lo * hi)
}

func maxAbs(a []float64) float64 {
	var m float64
	for _, v := range a {
		m = math.Max(m, math.Abs(v))
	}
	return m
}
