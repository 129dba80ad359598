package godenest

import "math/big"

// ============================================================
// Depth analysis and algebraic classification
// ============================================================

// SqrtDepth reports the maximum number of square roots stacked inside
// one another. Only exponents of exactly +-1/2 count as a level; cube
// roots, fourth roots and other radicals contribute nothing.
func SqrtDepth(e Expr) int {
	switch v := e.(type) {
	case *Add:
		max := 0
		for _, t := range v.terms {
			if d := SqrtDepth(t); d > max {
				max = d
			}
		}
		return max
	case *Mul:
		max := 0
		for _, f := range v.factors {
			if d := SqrtDepth(f); d > max {
				max = d
			}
		}
		return max
	case *Pow:
		if isHalfExp(v.exp) {
			return SqrtDepth(v.base) + 1
		}
	}
	return 0
}

func isHalfExp(e Expr) bool {
	n, ok := e.(*Num)
	if !ok {
		return false
	}
	a := new(big.Rat).Abs(n.val)
	return a.Cmp(big.NewRat(1, 2)) == 0
}

func isSqrtNode(e Expr) (*Pow, bool) {
	p, ok := e.(*Pow)
	if !ok {
		return nil, false
	}
	n, ok := p.exp.(*Num)
	if !ok || n.val.Cmp(big.NewRat(1, 2)) != 0 {
		return nil, false
	}
	return p, true
}

// isAlgebraic reports whether e is built purely from rationals combined
// by addition, multiplication, square roots and reciprocals. Symbols and
// transcendental functions disqualify the whole expression.
func isAlgebraic(e Expr) bool {
	switch v := e.(type) {
	case *Num:
		return true
	case *Add:
		for _, t := range v.terms {
			if !isAlgebraic(t) {
				return false
			}
		}
		return true
	case *Mul:
		for _, f := range v.factors {
			if !isAlgebraic(f) {
				return false
			}
		}
		return true
	case *Pow:
		n, ok := v.exp.(*Num)
		if !ok {
			return false
		}
		if isHalfExp(v.exp) || n.IsNegOne() {
			return isAlgebraic(v.base)
		}
		return false
	}
	return false
}

// ============================================================
// Radical matching
// ============================================================

// sqrtMatch decomposes an expanded expression as a + b*sqrt(r). For a
// sum, the first term of maximal sqrt depth supplies the radical part;
// its shallower factors become b and the rest become r. A bare surd or
// coefficient-times-surd matches with a = 0. Rationals match with
// b = r = 0; depth-zero sums do not match.
func sqrtMatch(p Expr) (a, b, r Expr, ok bool) {
	p = Expand(p)
	if n, isn := p.(*Num); isn {
		return n, N(0), N(0), true
	}
	if add, isAdd := p.(*Add); isAdd {
		depth, idx := 0, -1
		for i, t := range add.terms {
			if d := SqrtDepth(t); d > depth {
				depth, idx = d, i
			}
		}
		if depth == 0 {
			return nil, nil, nil, false
		}
		p1 := add.terms[idx]
		rest := make([]Expr, 0, len(add.terms)-1)
		for i, t := range add.terms {
			if i != idx {
				rest = append(rest, t)
			}
		}
		a = AddOf(rest...)
		if m, isMul := p1.(*Mul); isMul {
			var bv, rv []Expr
			for _, f := range m.factors {
				if SqrtDepth(f) < depth {
					bv = append(bv, f)
				} else {
					rv = append(rv, f)
				}
			}
			b = mulOrOne(bv)
			r = mulOrOne(rv)
		} else {
			b, r = N(1), p1
		}
		return a, b, Expand(MulOf(r, r)), true
	}
	c, rest := splitCoeff(p)
	if isSqrtProduct(rest) {
		return N(0), numRat(c), Expand(MulOf(rest, rest)), true
	}
	return nil, nil, nil, false
}

func mulOrOne(fs []Expr) Expr {
	switch len(fs) {
	case 0:
		return N(1)
	case 1:
		return fs[0]
	}
	return MulOf(fs...)
}

// isSqrtProduct reports whether e is a square root or a product made
// entirely of square roots.
func isSqrtProduct(e Expr) bool {
	switch v := e.(type) {
	case *Pow:
		n, ok := v.exp.(*Num)
		return ok && n.val.Cmp(big.NewRat(1, 2)) == 0
	case *Mul:
		if len(v.factors) == 0 {
			return false
		}
		for _, f := range v.factors {
			if !isSqrtProduct(f) {
				return false
			}
		}
		return true
	}
	return false
}

// ============================================================
// Numeric denester
// ============================================================

// denestNumeric rewrites sqrt(a + b*sqrt(r)) given a rational
// discriminant d2 = a^2 - b^2*r >= 0. The first regime applies when
// a + sqrt(d2) collapses below the depth of r; otherwise matching
// content between a + sqrt(d2) and r is required.
func denestNumeric(a, b, r, d2 Expr) (Expr, bool) {
	depthr := SqrtDepth(r)
	d := sqrtExpr(d2)
	vad := Expand(AddOf(a, d))
	if isZeroExpr(vad) {
		return nil, false
	}
	sq := Expand(MulOf(vad, vad))
	if SqrtDepth(vad) < depthr+1 || isNum(sq) {
		vad1 := recipExpr(vad)
		s := signExpr(b)
		if s == 0 {
			return nil, false
		}
		z := Expand(AddOf(
			sqrtExpr(MulOf(vad, F(1, 2))),
			MulOf(N(int64(s)), sqrtExpr(Expand(MulOf(b, b, r, vad1, F(1, 2))))),
		))
		return z, true
	}
	vp0, vp1 := contentPrimitive(vad)
	rp0, rp1 := contentPrimitive(r)
	var q *big.Rat
	switch {
	case Expand(vp1).Equal(Expand(rp1)):
		q = big.NewRat(1, 1)
	case Expand(MulOf(N(-1), vp1)).Equal(Expand(rp1)):
		q = big.NewRat(-1, 1)
	default:
		return nil, false
	}
	k := new(big.Rat).Mul(q, rp0)
	k.Quo(k, new(big.Rat).Mul(big.NewRat(2, 1), vp0))
	c := Expand(MulOf(b, b, numRat(k)))
	depthc := SqrtDepth(c)
	if depthr > depthc || (depthr == 0 && depthc == 0) {
		s := signExpr(b)
		if s == 0 {
			return nil, false
		}
		half := new(big.Rat).Quo(vp0, big.NewRat(2, 1))
		z := Expand(AddOf(
			MulOf(sqrtExpr(numRat(half)), sqrtExpr(vp1)),
			MulOf(N(int64(s)), sqrtExpr(c)),
		))
		return z, true
	}
	return nil, false
}

// ============================================================
// Symbolic denester
// ============================================================

// denestSymbolic rewrites sqrt(a + b*sqrt(r)) when r itself matches
// ra + rb*sqrt(rr) with rb != 0. Substituting a fresh positive y for
// sqrt(rr) must turn a into a quadratic in y whose discriminant, after
// folding b into the linear coefficient, vanishes exactly.
func denestSymbolic(a, b, r Expr) (Expr, bool) {
	ra, rb, rr, ok := sqrtMatch(r)
	if !ok || isZeroExpr(rb) {
		return nil, false
	}
	taken := map[string]struct{}{}
	collectSymbols(a, taken)
	collectSymbols(b, taken)
	collectSymbols(r, taken)
	y := freshPosSym(taken)
	repl := MulOf(AddOf(PowOf(y, N(2)), MulOf(N(-1), ra)), recipExpr(rb))
	poly := Expand(replaceSqrt(a, rr, repl))
	ca, cb, cc, ok2 := quadCoeffs(poly, y.name)
	if !ok2 || isZeroExpr(ca) {
		return nil, false
	}
	cb = Expand(AddOf(cb, b))
	discr := Expand(AddOf(MulOf(cb, cb), MulOf(N(-4), ca, cc)))
	if !isZeroExpr(discr) {
		return nil, false
	}
	z := Expand(MulOf(sqrtExpr(ca), AddOf(sqrtExpr(r), MulOf(cb, recipExpr(Expand(MulOf(N(2), ca)))))))
	if signExpr(z) < 0 {
		z = Expand(MulOf(N(-1), z))
	}
	return z, true
}

// ============================================================
// Four-term denester
// ============================================================

// isSurdSum reports whether a sum has three or four terms whose squares
// are all rational.
func isSurdSum(add *Add) bool {
	n := len(add.terms)
	if n != 3 && n != 4 {
		return false
	}
	for _, t := range add.terms {
		if !isNum(Expand(MulOf(t, t))) {
			return false
		}
	}
	return true
}

// denestSurdSum handles sqrt of a sum of three or four rational-square
// surds by splitting the radicand into halves a and b, denesting
// d = sqrt(a^2 - b^2) and c = sqrt(a + d), and recombining as
// c/sqrt(2) + b/(sqrt(2)*c). A negative radicand is normalized through
// an explicit sqrt(-1) factor.
func denestSurdSum(base *Add) (Expr, bool) {
	n := len(base.terms)
	a := Expand(AddOf(base.terms[0], base.terms[1]))
	var b Expr
	if n == 4 {
		b = Expand(AddOf(base.terms[2], base.terms[3]))
	} else {
		b = base.terms[2]
	}
	imaginary := false
	if signExpr(Expand(AddOf(MulOf(a, a), MulOf(N(-1), b, b)))) < 0 {
		a, b = b, a
	}
	if signExpr(a) < 0 {
		a = Expand(MulOf(N(-1), a))
		b = Expand(MulOf(N(-1), b))
		imaginary = true
	}
	c2 := Expand(AddOf(MulOf(a, a), MulOf(N(-1), b, b)))
	if signExpr(c2) < 0 {
		return nil, false
	}
	d := denestWalk(sqrtExpr(c2))
	if SqrtDepth(d) > 1 {
		return nil, false
	}
	c := denestWalk(sqrtExpr(Expand(AddOf(a, d))))
	if SqrtDepth(c) > 1 {
		return nil, false
	}
	res := Expand(AddOf(
		MulOf(c, sqrtExpr(F(1, 2))),
		MulOf(b, sqrtExpr(F(1, 2)), recipExpr(c)),
	))
	if imaginary {
		res = MulOf(res, PowOf(N(-1), F(1, 2)))
	}
	return res, true
}

// ============================================================
// Orchestrator
// ============================================================

// Denest rewrites nested square roots in expr as un-nested combinations
// of square roots where an exact equivalent exists, leaving the
// expression unchanged otherwise. The traversal repeats until the
// output stabilizes, up to three passes.
func Denest(expr Expr) Expr {
	z := expr.Simplify()
	for i := 0; i < 3; i++ {
		w := denestWalk(z)
		if w.String() == z.String() {
			break
		}
		z = w
	}
	return z
}

// denestWalk performs one bottom-up denesting pass. Square roots of
// quotients are split into a denested numerator times a rationalized
// denested denominator.
func denestWalk(e Expr) Expr {
	if p, ok := isSqrtNode(e); ok {
		num, den := numerDenom(p.base)
		if !isOneExpr(den) {
			return MulOf(denestRoot(num), recipExpr(denestRoot(den)))
		}
		return denestRoot(p.base)
	}
	switch v := e.(type) {
	case *Add:
		out := make([]Expr, len(v.terms))
		for i, t := range v.terms {
			out[i] = denestWalk(t)
		}
		return AddOf(out...)
	case *Mul:
		out := make([]Expr, len(v.factors))
		changed := false
		for i, f := range v.factors {
			out[i] = denestWalk(f)
			if out[i].String() != f.String() {
				changed = true
			}
		}
		w := MulOf(out...)
		if changed {
			// A denested factor next to a surviving radical factor
			// must recombine, e.g. after content extraction under sqrt.
			w = Expand(w)
		}
		return w
	case *Pow:
		return PowOf(denestWalk(v.base), denestWalk(v.exp))
	case *Func:
		return funcOf(v.name, denestWalk(v.arg)).Simplify()
	}
	return e
}

// denestRoot denests sqrt(base): the four-term denester first, then the
// children, then the a + b*sqrt(r) pipeline.
func denestRoot(base Expr) Expr {
	base = base.Simplify()
	if add, ok := base.(*Add); ok && isNumberExpr(add) && isSurdSum(add) {
		if z, ok2 := denestSurdSum(add); ok2 {
			return z
		}
	}
	base = denestWalk(base)
	return denestPipeline(base)
}

// denestPipeline tries, in order: the numeric denester on a nonnegative
// rational discriminant, the fourth-root variant on a negative one, the
// symbolic denester on a symbolic discriminant, and finally the general
// subset search for purely algebraic numbers. Failure returns the sqrt
// unchanged.
func denestPipeline(base Expr) Expr {
	if isNum(base) {
		return sqrtExpr(base)
	}
	a, b, r, ok := sqrtMatch(base)
	if !ok {
		return sqrtExpr(base)
	}
	if isZeroExpr(b) {
		return sqrtExpr(a)
	}
	d2 := Expand(AddOf(MulOf(a, a), MulOf(N(-1), b, b, r)))
	if dn, numeric := d2.(*Num); numeric {
		if !dn.IsNegative() {
			if z, ok2 := denestNumeric(a, b, r, d2); ok2 {
				return z
			}
		} else {
			dr2 := Expand(MulOf(N(-1), d2, r))
			if isNum(sqrtExpr(dr2)) {
				if z, ok2 := denestNumeric(Expand(MulOf(b, r)), a, r, dr2); ok2 {
					return Expand(MulOf(z, PowOf(r, F(-1, 4))))
				}
			}
		}
	} else {
		if z, ok2 := denestSymbolic(a, b, r); ok2 {
			return z
		}
	}
	if !isNumberExpr(base) || !isAlgebraic(base) {
		return sqrtExpr(base)
	}
	maxDepth := SqrtDepth(base)
	if maxDepth < 1 {
		maxDepth = 1
	}
	st := &denestState{a: a, b: b, r: r, d2: d2, status: denestActive}
	if z, _, ok2 := denester([]Expr{Expand(base)}, st, 0, maxDepth); ok2 && z != nil {
		return z
	}
	return sqrtExpr(base)
}
