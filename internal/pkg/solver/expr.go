package solver

// Term is a single coefficient * variable product.
type Term struct {
	Var  Var
	Coef float64
}

// Expr is a linear expression. Terms on the same variable are merged and
// insertion order is kept, so building the same model twice yields the same
// rows. The zero value is an empty expression.
type Expr struct {
	terms []Term
	index map[int]int
}

// NewExpr returns an empty expression.
func NewExpr() *Expr {
	return &Expr{}
}

// Sum returns the expression v1 + v2 + ... .
func Sum(vars ...Var) *Expr {
	e := NewExpr()
	for _, v := range vars {
		e.Add(v, 1)
	}
	return e
}

// Add appends coef*v and returns the receiver for chaining.
func (e *Expr) Add(v Var, coef float64) *Expr {
	if e.index == nil {
		e.index = make(map[int]int)
	}
	if i, ok := e.index[v.id]; ok {
		e.terms[i].Coef += coef
		return e
	}
	e.index[v.id] = len(e.terms)
	e.terms = append(e.terms, Term{v, coef})
	return e
}

// AddExpr appends scale*o.
func (e *Expr) AddExpr(o *Expr, scale float64) *Expr {
	if o == nil {
		return e
	}
	for _, t := range o.terms {
		e.Add(t.Var, scale*t.Coef)
	}
	return e
}

// Terms returns a copy of the merged terms.
func (e *Expr) Terms() []Term {
	if e == nil {
		return nil
	}
	out := make([]Term, len(e.terms))
	copy(out, e.terms)
	return out
}

// Len is the number of distinct variables.
func (e *Expr) Len() int {
	if e == nil {
		return 0
	}
	return len(e.terms)
}

// Coef returns the coefficient on v, zero if absent.
func (e *Expr) Coef(v Var) float64 {
	if e == nil || e.index == nil {
		return 0
	}
	if i, ok := e.index[v.id]; ok {
		return e.terms[i].Coef
	}
	return 0
}

// Eval evaluates the expression with the given variable values.
func (e *Expr) Eval(value func(Var) float64) float64 {
	if e == nil {
		return 0
	}
	var sum float64
	for _, t := range e.terms {
		sum += t.Coef * value(t.Var)
	}
	return sum
}
