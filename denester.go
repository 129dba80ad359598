package godenest

// General denester for sums of square roots over a shared radicand,
// after Borodin, Fagin, Hopcroft and Tompa, "Decreasing the Nesting
// Depth of Expressions Involving Square Roots".

type denestStatus int

const (
	// denestActive: the precomputed match of the original radicand has
	// not been consumed yet.
	denestActive denestStatus = iota
	// denestSpent: the precomputed match was consumed; deeper levels
	// match their inputs themselves.
	denestSpent
	// denestFailed: some level could not be matched or the shared
	// radicand was inconsistent; the whole search is abandoned.
	denestFailed
)

type denestState struct {
	a, b, r, d2 Expr
	status      denestStatus
}

type surdPair struct{ a, b Expr }

// subsets enumerates the non-empty subsets of n elements as 0/1 masks,
// in an order that tries small subsets first.
func subsets(n int) [][]int {
	if n == 1 {
		return [][]int{{1}}
	}
	prev := subsets(n - 1)
	out := make([][]int, 0, 1<<n)
	for _, s := range prev {
		out = append(out, append(append([]int{}, s...), 0))
	}
	out = append(out, zeroOneMask(n))
	for _, s := range prev {
		out = append(out, append(append([]int{}, s...), 1))
	}
	return out
}

func zeroOneMask(n int) []int {
	m := make([]int, n)
	m[n-1] = 1
	return m
}

func zeroMask(n int) []int { return make([]int, n) }

func allNumeric(es []Expr) bool {
	for _, e := range es {
		if !isNum(e) {
			return false
		}
	}
	return true
}

func firstSet(f []int) int {
	for i, bit := range f {
		if bit == 1 {
			return i
		}
	}
	return len(f)
}

// denester searches for a subset of nested whose product is a perfect
// rational square, then unwinds that root back up the recursion. The
// returned mask is indexed against the nested slice it was produced
// for and may be longer than the caller's slice. A nil expression with
// ok=true means no level made progress.
func denester(nested []Expr, st *denestState, h, maxDepth int) (Expr, []int, bool) {
	if st.status == denestFailed || h > maxDepth {
		return nil, nil, false
	}
	if st.status != denestActive && allNumeric(nested) {
		for _, f := range subsets(len(nested)) {
			p := Expr(N(1))
			count := 0
			for i, bit := range f {
				if bit == 1 {
					p = MulOf(p, nested[i])
					count++
				}
			}
			p = Expand(p)
			// An odd number of negative entries with the last one
			// included flips the product's sign.
			if count > 1 && f[len(f)-1] == 1 {
				p = Expand(MulOf(N(-1), p))
			}
			if sq := sqrtExpr(p); isNum(sq) {
				return sq, f, true
			}
		}
		return sqrtExpr(nested[len(nested)-1]), zeroMask(len(nested)), true
	}

	var values []surdPair
	var R Expr
	var nested2 []Expr
	if st.status == denestActive {
		values = []surdPair{{st.a, st.b}}
		R = st.r
		nested2 = []Expr{st.d2, R}
		st.status = denestSpent
	} else {
		for _, e := range nested {
			a, b, r, ok := sqrtMatch(e)
			if !ok {
				st.status = denestFailed
				return nil, nil, false
			}
			values = append(values, surdPair{a: a, b: b})
			if isZeroExpr(r) {
				continue
			}
			if R == nil {
				R = r
			} else if !Expand(R).Equal(Expand(r)) {
				st.status = denestFailed
				return nil, nil, false
			}
		}
		if R == nil {
			// No radical part anywhere at this level.
			return sqrtExpr(nested[len(nested)-1]), zeroMask(len(nested)), true
		}
		for _, v := range values {
			nested2 = append(nested2, Expand(AddOf(MulOf(v.a, v.a), MulOf(N(-1), R, v.b, v.b))))
		}
		nested2 = append(nested2, R)
	}

	d, f, ok := denester(nested2, st, h+1, maxDepth)
	if !ok || f == nil {
		return nil, nil, false
	}
	selected := false
	for i := 0; i < len(nested); i++ {
		if f[i] == 1 {
			selected = true
			break
		}
	}
	if !selected {
		v := values[len(values)-1]
		return sqrtExpr(Expand(AddOf(v.a, MulOf(v.b, d)))), f, true
	}

	p := Expr(N(1))
	for i := 0; i < len(nested); i++ {
		if f[i] == 1 {
			p = MulOf(p, nested[i])
		}
	}
	va, vb, _, ok2 := sqrtMatch(Expand(p))
	if !ok2 {
		st.status = denestFailed
		return nil, nil, false
	}
	if firstSet(f) < len(nested)-1 && f[len(nested)-1] == 1 {
		va = Expand(MulOf(N(-1), va))
		vb = Expand(MulOf(N(-1), vb))
	}
	if f[len(nested)] == 0 {
		vad := Expand(AddOf(va, d))
		if isZeroExpr(vad) {
			return sqrtExpr(nested[len(nested)-1]), zeroMask(len(nested)), true
		}
		vad1 := recipExpr(vad)
		s := signExpr(vb)
		z := Expand(AddOf(
			sqrtExpr(MulOf(vad, F(1, 2))),
			MulOf(N(int64(s)), sqrtExpr(Expand(MulOf(vb, vb, R, vad1, F(1, 2))))),
		))
		return z, f, true
	}
	// The R slot itself was selected, so the denested value carries a
	// fourth root of R.
	s2 := Expand(AddOf(Expand(MulOf(vb, R)), d))
	if signExpr(s2) <= 0 {
		return sqrtExpr(nested[len(nested)-1]), zeroMask(len(nested)), true
	}
	fr := PowOf(R, F(1, 4))
	s := sqrtExpr(s2)
	z := Expand(AddOf(
		MulOf(s, sqrtExpr(F(1, 2)), PowOf(R, F(-1, 4))),
		MulOf(va, fr, sqrtExpr(F(1, 2)), recipExpr(s)),
	))
	return z, f, true
}
