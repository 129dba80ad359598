// Package godenest provides a deterministic symbolic kernel for exact
// denesting of nested square roots.
//
// Design goals:
//   - Exact rational arithmetic (math/big.Rat)
//   - Deterministic canonical forms and stable output
//   - Denesting never changes value, only surface form
//   - Embeddable in Go services, CLI tools, and agent backends
package godenest

import (
	"fmt"
	"math"
	"math/big"
	"sort"
	"strings"
)

// ============================================================
// Core Interface
// ============================================================

type Expr interface {
	Simplify() Expr
	String() string
	LaTeX() string
	Sub(varName string, value Expr) Expr
	Eval() (*Num, bool)
	Equal(other Expr) bool
	exprType() string
	toJSON() map[string]interface{}
}

// ============================================================
// Num — exact rational number
// ============================================================

type Num struct{ val *big.Rat }

func N(n int64) *Num { return &Num{val: new(big.Rat).SetInt64(n)} }
func F(p, q int64) *Num {
	if q == 0 {
		panic("godenest: denominator is zero")
	}
	return &Num{val: new(big.Rat).SetFrac(big.NewInt(p), big.NewInt(q))}
}

func numRat(r *big.Rat) *Num { return &Num{val: new(big.Rat).Set(r)} }
func ratOne() *big.Rat       { return big.NewRat(1, 1) }

func (n *Num) Simplify() Expr        { return n }
func (n *Num) Sub(string, Expr) Expr { return n }
func (n *Num) Eval() (*Num, bool)    { return n, true }
func (n *Num) Equal(other Expr) bool { o, ok := other.(*Num); return ok && n.val.Cmp(o.val) == 0 }
func (n *Num) exprType() string      { return "num" }
func (n *Num) Float64() float64      { f, _ := n.val.Float64(); return f }
func (n *Num) IsZero() bool          { return n.val.Sign() == 0 }
func (n *Num) IsOne() bool           { return n.val.Cmp(ratOne()) == 0 }
func (n *Num) IsNegOne() bool        { return n.val.Cmp(big.NewRat(-1, 1)) == 0 }
func (n *Num) IsInteger() bool       { return n.val.IsInt() }
func (n *Num) IsPositive() bool      { return n.val.Sign() > 0 }
func (n *Num) IsNegative() bool      { return n.val.Sign() < 0 }
func (n *Num) Sign() int             { return n.val.Sign() }
func (n *Num) Rat() *big.Rat         { return new(big.Rat).Set(n.val) }

func (n *Num) String() string {
	if n.val.IsInt() {
		return n.val.Num().String()
	}
	return n.val.RatString()
}

func (n *Num) LaTeX() string {
	if n.val.IsInt() {
		return n.val.Num().String()
	}
	sign := ""
	v := new(big.Rat).Set(n.val)
	if v.Sign() < 0 {
		sign = "-"
		v.Neg(v)
	}
	return fmt.Sprintf("%s\\frac{%s}{%s}", sign, v.Num().String(), v.Denom().String())
}

func (n *Num) toJSON() map[string]interface{} {
	return map[string]interface{}{"type": "num", "value": n.String()}
}

func numAdd(a, b *Num) *Num { return &Num{val: new(big.Rat).Add(a.val, b.val)} }
func numMul(a, b *Num) *Num { return &Num{val: new(big.Rat).Mul(a.val, b.val)} }
func numNeg(a *Num) *Num    { return &Num{val: new(big.Rat).Neg(a.val)} }
func numRecip(a *Num) *Num {
	if a.IsZero() {
		panic("godenest: division by zero")
	}
	return &Num{val: new(big.Rat).Inv(a.val)}
}

// ============================================================
// Sym — symbolic variable, optionally constrained positive
// ============================================================

type Sym struct {
	name     string
	positive bool
}

func S(name string) *Sym { return &Sym{name: name} }

// SPos returns a symbol carrying a positivity constraint. The constraint
// is consulted only where it keeps a principal square root well-defined,
// e.g. when collapsing (y^2)^(1/2) during polynomial substitution.
func SPos(name string) *Sym { return &Sym{name: name, positive: true} }

func (s *Sym) Simplify() Expr     { return s }
func (s *Sym) String() string     { return s.name }
func (s *Sym) LaTeX() string      { return s.name }
func (s *Sym) Eval() (*Num, bool) { return nil, false }
func (s *Sym) Equal(other Expr) bool {
	o, ok := other.(*Sym)
	return ok && s.name == o.name
}
func (s *Sym) exprType() string { return "sym" }
func (s *Sym) Name() string     { return s.name }
func (s *Sym) Positive() bool   { return s.positive }
func (s *Sym) toJSON() map[string]interface{} {
	m := map[string]interface{}{"type": "sym", "name": s.name}
	if s.positive {
		m["positive"] = true
	}
	return m
}
func (s *Sym) Sub(varName string, value Expr) Expr {
	if s.name == varName {
		return value
	}
	return s
}

// ============================================================
// Add — sum of terms
// ============================================================

type Add struct{ terms []Expr }

func AddOf(terms ...Expr) Expr { return (&Add{terms: terms}).Simplify() }

func (a *Add) Simplify() Expr {
	flat := make([]Expr, 0, len(a.terms))
	for _, t := range a.terms {
		s := t.Simplify()
		if inner, ok := s.(*Add); ok {
			flat = append(flat, inner.terms...)
		} else {
			flat = append(flat, s)
		}
	}
	numAccum := new(big.Rat)
	type entry struct {
		coeff *big.Rat
		rest  Expr
	}
	merged := map[string]*entry{}
	var order []string
	for _, t := range flat {
		if n, ok := t.(*Num); ok {
			numAccum.Add(numAccum, n.val)
			continue
		}
		c, rest := splitCoeff(t)
		k := rest.String()
		if e, seen := merged[k]; seen {
			e.coeff = new(big.Rat).Add(e.coeff, c)
		} else {
			merged[k] = &entry{coeff: new(big.Rat).Set(c), rest: rest}
			order = append(order, k)
		}
	}
	result := make([]Expr, 0, len(order)+1)
	for _, k := range order {
		e := merged[k]
		if e.coeff.Sign() == 0 {
			continue
		}
		if e.coeff.Cmp(ratOne()) == 0 {
			result = append(result, e.rest)
		} else {
			result = append(result, MulOf(numRat(e.coeff), e.rest))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].String() < result[j].String() })
	if numAccum.Sign() != 0 {
		result = append(result, numRat(numAccum))
	}
	if len(result) == 0 {
		return N(0)
	}
	if len(result) == 1 {
		return result[0]
	}
	return &Add{terms: result}
}

func (a *Add) String() string {
	if len(a.terms) == 0 {
		return "0"
	}
	parts := make([]string, len(a.terms))
	for i, t := range a.terms {
		parts[i] = t.String()
	}
	return strings.Join(parts, " + ")
}

func (a *Add) LaTeX() string {
	parts := make([]string, len(a.terms))
	for i, t := range a.terms {
		parts[i] = t.LaTeX()
	}
	return strings.Join(parts, " + ")
}

func (a *Add) Sub(varName string, value Expr) Expr {
	newTerms := make([]Expr, len(a.terms))
	for i, t := range a.terms {
		newTerms[i] = t.Sub(varName, value)
	}
	return AddOf(newTerms...)
}

func (a *Add) Eval() (*Num, bool) {
	acc := N(0)
	for _, t := range a.terms {
		v, ok := t.Eval()
		if !ok {
			return nil, false
		}
		acc = numAdd(acc, v)
	}
	return acc, true
}

func (a *Add) Equal(other Expr) bool {
	o, ok := other.(*Add)
	if !ok || len(a.terms) != len(o.terms) {
		return false
	}
	for i := range a.terms {
		if !a.terms[i].Equal(o.terms[i]) {
			return false
		}
	}
	return true
}

func (a *Add) exprType() string { return "add" }
func (a *Add) toJSON() map[string]interface{} {
	ts := make([]map[string]interface{}, len(a.terms))
	for i, t := range a.terms {
		ts[i] = t.toJSON()
	}
	return map[string]interface{}{"type": "add", "terms": ts}
}
func (a *Add) Terms() []Expr { return a.terms }

// ============================================================
// Mul — product of factors
// ============================================================

type Mul struct{ factors []Expr }

func MulOf(factors ...Expr) Expr { return (&Mul{factors: factors}).Simplify() }

func (m *Mul) Simplify() Expr {
	flat := make([]Expr, 0, len(m.factors))
	for _, f := range m.factors {
		s := f.Simplify()
		if inner, ok := s.(*Mul); ok {
			flat = append(flat, inner.factors...)
		} else {
			flat = append(flat, s)
		}
	}
	coeff := ratOne()
	type entry struct {
		base Expr
		exp  *big.Rat
	}
	merged := map[string]*entry{}
	var order []string
	var opaque []Expr
	for _, f := range flat {
		if n, ok := f.(*Num); ok {
			coeff.Mul(coeff, n.val)
			continue
		}
		base, exp := f, ratOne()
		if p, ok := f.(*Pow); ok {
			if en, ok2 := p.exp.(*Num); ok2 {
				base, exp = p.base, en.val
			} else {
				opaque = append(opaque, f)
				continue
			}
		}
		k := base.String()
		if e, seen := merged[k]; seen {
			e.exp = new(big.Rat).Add(e.exp, exp)
		} else {
			merged[k] = &entry{base: base, exp: new(big.Rat).Set(exp)}
			order = append(order, k)
		}
	}
	if coeff.Sign() == 0 {
		return N(0)
	}
	rebuilt := make([]Expr, 0, len(order)+len(opaque))
	changed := false
	for _, k := range order {
		e := merged[k]
		if e.exp.Sign() == 0 {
			changed = true
			continue
		}
		var f Expr
		if e.exp.Cmp(ratOne()) == 0 {
			f = e.base
		} else {
			f = PowOf(e.base, numRat(e.exp))
		}
		switch f.(type) {
		case *Mul, *Num:
			changed = true
		}
		rebuilt = append(rebuilt, f)
	}
	rebuilt = append(rebuilt, opaque...)
	if changed {
		all := make([]Expr, 0, len(rebuilt)+1)
		all = append(all, numRat(coeff))
		all = append(all, rebuilt...)
		return (&Mul{factors: all}).Simplify()
	}
	sort.Slice(rebuilt, func(i, j int) bool { return rebuilt[i].String() < rebuilt[j].String() })
	if len(rebuilt) == 0 {
		return numRat(coeff)
	}
	if coeff.Cmp(ratOne()) == 0 {
		if len(rebuilt) == 1 {
			return rebuilt[0]
		}
		return &Mul{factors: rebuilt}
	}
	return &Mul{factors: append([]Expr{numRat(coeff)}, rebuilt...)}
}

func (m *Mul) String() string {
	if len(m.factors) == 0 {
		return "1"
	}
	parts := make([]string, len(m.factors))
	for i, f := range m.factors {
		if _, isAdd := f.(*Add); isAdd {
			parts[i] = "(" + f.String() + ")"
		} else {
			parts[i] = f.String()
		}
	}
	return strings.Join(parts, "*")
}

func (m *Mul) LaTeX() string {
	parts := make([]string, len(m.factors))
	for i, f := range m.factors {
		if _, isAdd := f.(*Add); isAdd {
			parts[i] = "\\left(" + f.LaTeX() + "\\right)"
		} else {
			parts[i] = f.LaTeX()
		}
	}
	return strings.Join(parts, " ")
}

func (m *Mul) Sub(varName string, value Expr) Expr {
	newFactors := make([]Expr, len(m.factors))
	for i, f := range m.factors {
		newFactors[i] = f.Sub(varName, value)
	}
	return MulOf(newFactors...)
}

func (m *Mul) Eval() (*Num, bool) {
	acc := N(1)
	for _, f := range m.factors {
		v, ok := f.Eval()
		if !ok {
			return nil, false
		}
		acc = numMul(acc, v)
	}
	return acc, true
}

func (m *Mul) Equal(other Expr) bool {
	o, ok := other.(*Mul)
	if !ok || len(m.factors) != len(o.factors) {
		return false
	}
	for i := range m.factors {
		if !m.factors[i].Equal(o.factors[i]) {
			return false
		}
	}
	return true
}

func (m *Mul) exprType() string { return "mul" }
func (m *Mul) toJSON() map[string]interface{} {
	fs := make([]map[string]interface{}, len(m.factors))
	for i, f := range m.factors {
		fs[i] = f.toJSON()
	}
	return map[string]interface{}{"type": "mul", "factors": fs}
}
func (m *Mul) Factors() []Expr { return m.factors }

// ============================================================
// Pow — base^exponent
// ============================================================

type Pow struct{ base, exp Expr }

func PowOf(base, exp Expr) Expr { return (&Pow{base: base, exp: exp}).Simplify() }

// SqrtOf builds a canonical square root. Rational radicands normalize to
// coefficient times prime-power factors, so SqrtOf(N(8)) is 2*2^(1/2).
func SqrtOf(arg Expr) Expr { return PowOf(arg, F(1, 2)) }

func (p *Pow) Simplify() Expr {
	base := p.base.Simplify()
	exp := p.exp.Simplify()

	if en, ok := exp.(*Num); ok {
		if bn, ok2 := base.(*Num); ok2 && bn.IsZero() {
			// 0^0 is indeterminate; 0^negative is division by zero.
			if en.IsZero() || en.IsNegative() {
				return &Pow{base: base, exp: exp}
			}
			return N(0)
		}
		if en.IsZero() {
			return N(1)
		}
		if en.IsOne() {
			return base
		}
		if bn, ok2 := base.(*Num); ok2 {
			return ratPow(bn.val, en.val)
		}
		if bp, ok2 := base.(*Pow); ok2 {
			if ie, ok3 := bp.exp.(*Num); ok3 {
				if en.IsInteger() || isPositiveBase(bp.base) {
					return PowOf(bp.base, numRat(new(big.Rat).Mul(ie.val, en.val)))
				}
			}
		}
		if bm, ok2 := base.(*Mul); ok2 {
			if en.IsInteger() {
				out := make([]Expr, len(bm.factors))
				for i, f := range bm.factors {
					out[i] = PowOf(f, en)
				}
				return MulOf(out...)
			}
			var outer, inner []Expr
			for _, f := range bm.factors {
				if n, ok3 := f.(*Num); ok3 {
					if n.IsPositive() {
						outer = append(outer, n)
					} else if !n.IsNegOne() {
						outer = append(outer, numNeg(n))
						inner = append(inner, N(-1))
					} else {
						inner = append(inner, n)
					}
					continue
				}
				if isPositiveBase(f) {
					outer = append(outer, f)
				} else {
					inner = append(inner, f)
				}
			}
			if len(outer) > 0 {
				res := make([]Expr, 0, len(outer)+1)
				for _, f := range outer {
					res = append(res, PowOf(f, en))
				}
				if len(inner) == 1 {
					res = append(res, PowOf(inner[0], en))
				} else if len(inner) > 1 {
					res = append(res, &Pow{base: MulOf(inner...), exp: en})
				}
				return MulOf(res...)
			}
		}
		if _, ok2 := base.(*Add); ok2 && !en.IsInteger() {
			c, prim := contentPrimitive(base)
			if c.Cmp(ratOne()) != 0 {
				return MulOf(ratPow(c, en.val), PowOf(prim, en))
			}
		}
	}
	if bn, ok := base.(*Num); ok && bn.IsOne() {
		return N(1)
	}
	return &Pow{base: base, exp: exp}
}

// isPositiveBase reports whether e is known positive from its structure
// alone: a positive rational, a positively-constrained symbol, or powers
// and products of those.
func isPositiveBase(e Expr) bool {
	switch v := e.(type) {
	case *Num:
		return v.IsPositive()
	case *Sym:
		return v.positive
	case *Pow:
		return isPositiveBase(v.base)
	case *Mul:
		for _, f := range v.factors {
			if !isPositiveBase(f) {
				return false
			}
		}
		return len(v.factors) > 0
	}
	return false
}

func (p *Pow) String() string {
	baseStr := p.base.String()
	switch b := p.base.(type) {
	case *Add, *Mul, *Pow:
		baseStr = "(" + baseStr + ")"
	case *Num:
		if b.IsNegative() || !b.IsInteger() {
			baseStr = "(" + baseStr + ")"
		}
	}
	expStr := p.exp.String()
	if n, ok := p.exp.(*Num); !ok || !n.IsInteger() || n.IsNegative() {
		expStr = "(" + expStr + ")"
	}
	return baseStr + "^" + expStr
}

func (p *Pow) LaTeX() string {
	if n, ok := p.exp.(*Num); ok && n.val.Cmp(big.NewRat(1, 2)) == 0 {
		return "\\sqrt{" + p.base.LaTeX() + "}"
	}
	baseStr := p.base.LaTeX()
	switch p.base.(type) {
	case *Add, *Mul, *Pow:
		baseStr = "\\left(" + baseStr + "\\right)"
	}
	return baseStr + "^{" + p.exp.LaTeX() + "}"
}

func (p *Pow) Sub(varName string, value Expr) Expr {
	return PowOf(p.base.Sub(varName, value), p.exp.Sub(varName, value))
}

func (p *Pow) Eval() (*Num, bool) {
	b, ok1 := p.base.Eval()
	e, ok2 := p.exp.Eval()
	if !ok1 || !ok2 {
		return nil, false
	}
	bf, _ := b.val.Float64()
	ef, _ := e.val.Float64()
	pf := math.Pow(bf, ef)
	if math.IsNaN(pf) || math.IsInf(pf, 0) {
		return nil, false
	}
	r := new(big.Rat).SetFloat64(pf)
	if r == nil {
		return nil, false
	}
	return &Num{val: r}, true
}

func (p *Pow) Equal(other Expr) bool {
	o, ok := other.(*Pow)
	return ok && p.base.Equal(o.base) && p.exp.Equal(o.exp)
}

func (p *Pow) exprType() string { return "pow" }
func (p *Pow) toJSON() map[string]interface{} {
	return map[string]interface{}{"type": "pow", "base": p.base.toJSON(), "exp": p.exp.toJSON()}
}
func (p *Pow) Base() Expr    { return p.base }
func (p *Pow) ExpExpr() Expr { return p.exp }

// ============================================================
// Func — opaque function application
// ============================================================

type Func struct {
	name string
	arg  Expr
}

func funcOf(name string, arg Expr) *Func { return &Func{name: name, arg: arg} }

func SinOf(arg Expr) Expr { return funcOf("sin", arg).Simplify() }
func CosOf(arg Expr) Expr { return funcOf("cos", arg).Simplify() }
func ExpOf(arg Expr) Expr { return funcOf("exp", arg).Simplify() }
func LnOf(arg Expr) Expr  { return funcOf("ln", arg).Simplify() }

func (f *Func) Simplify() Expr { return &Func{name: f.name, arg: f.arg.Simplify()} }
func (f *Func) String() string { return f.name + "(" + f.arg.String() + ")" }
func (f *Func) LaTeX() string {
	switch f.name {
	case "sin", "cos", "exp", "ln":
		return "\\" + f.name + "\\left(" + f.arg.LaTeX() + "\\right)"
	}
	return "\\operatorname{" + f.name + "}\\left(" + f.arg.LaTeX() + "\\right)"
}
func (f *Func) Sub(varName string, value Expr) Expr {
	return funcOf(f.name, f.arg.Sub(varName, value)).Simplify()
}
func (f *Func) Eval() (*Num, bool) {
	n, ok := f.arg.Eval()
	if !ok {
		return nil, false
	}
	v, _ := n.val.Float64()
	var out float64
	switch f.name {
	case "sin":
		out = math.Sin(v)
	case "cos":
		out = math.Cos(v)
	case "exp":
		out = math.Exp(v)
	case "ln":
		if v <= 0 {
			return nil, false
		}
		out = math.Log(v)
	default:
		return nil, false
	}
	r := new(big.Rat).SetFloat64(out)
	if r == nil {
		return nil, false
	}
	return &Num{val: r}, true
}
func (f *Func) Equal(other Expr) bool {
	o, ok := other.(*Func)
	return ok && f.name == o.name && f.arg.Equal(o.arg)
}
func (f *Func) exprType() string { return "func" }
func (f *Func) toJSON() map[string]interface{} {
	return map[string]interface{}{"type": "func", "name": f.name, "arg": f.arg.toJSON()}
}
func (f *Func) FuncName() string { return f.name }
func (f *Func) Arg() Expr        { return f.arg }

// ============================================================
// Rational powers of rationals
// ============================================================

type primeExp struct {
	p *big.Int
	e int
}

// factorBig factors n > 1 by trial division. Divisors are capped at
// 2^20; a surviving cofactor is kept as an opaque base, which only
// limits how much of a huge radicand gets simplified.
func factorBig(n *big.Int) []primeExp {
	var out []primeExp
	rest := new(big.Int).Set(n)
	limit := big.NewInt(1 << 20)
	d := big.NewInt(2)
	one := big.NewInt(1)
	sq := new(big.Int)
	for rest.Cmp(one) > 0 {
		sq.Mul(d, d)
		if sq.Cmp(rest) > 0 || d.Cmp(limit) > 0 {
			break
		}
		if new(big.Int).Mod(rest, d).Sign() == 0 {
			e := 0
			for new(big.Int).Mod(rest, d).Sign() == 0 {
				rest.Div(rest, d)
				e++
			}
			out = append(out, primeExp{p: new(big.Int).Set(d), e: e})
		}
		if d.Cmp(big.NewInt(2)) == 0 {
			d = big.NewInt(3)
		} else {
			d = new(big.Int).Add(d, big.NewInt(2))
		}
	}
	if rest.Cmp(one) > 0 {
		out = append(out, primeExp{p: rest, e: 1})
	}
	return out
}

func ratIntPow(r *big.Rat, n *big.Int) *big.Rat {
	e := new(big.Int).Abs(n).Int64()
	out := ratOne()
	for i := int64(0); i < e; i++ {
		out.Mul(out, r)
	}
	if n.Sign() < 0 {
		out.Inv(out)
	}
	return out
}

// ratPow normalizes r^e for rationals r, e. Fractional exponents are
// pushed down to prime bases with exponents in (0,1); the integer parts
// come out as an exact rational coefficient. A negative r contributes an
// opaque (-1)^e factor with e reduced mod 2.
func ratPow(r, e *big.Rat) Expr {
	if r.Sign() == 0 {
		if e.Sign() > 0 {
			return N(0)
		}
		return &Pow{base: N(0), exp: numRat(e)}
	}
	if e.IsInt() {
		return numRat(ratIntPow(r, e.Num()))
	}
	neg := r.Sign() < 0
	abs := new(big.Rat).Abs(r)
	coeff := ratOne()
	type part struct {
		p *big.Int
		e *big.Rat
	}
	var parts []part
	accum := func(n *big.Int, inverse bool) {
		for _, f := range factorBig(n) {
			mult := big.NewRat(int64(f.e), 1)
			if inverse {
				mult.Neg(mult)
			}
			te := new(big.Rat).Mul(mult, e)
			fl := new(big.Int).Div(te.Num(), te.Denom())
			fr := new(big.Rat).Sub(te, new(big.Rat).SetInt(fl))
			coeff.Mul(coeff, ratIntPow(new(big.Rat).SetInt(f.p), fl))
			if fr.Sign() != 0 {
				parts = append(parts, part{p: f.p, e: fr})
			}
		}
	}
	accum(abs.Num(), false)
	accum(abs.Denom(), true)
	sort.Slice(parts, func(i, j int) bool { return parts[i].p.Cmp(parts[j].p) < 0 })
	factors := make([]Expr, 0, len(parts)+2)
	if coeff.Cmp(ratOne()) != 0 {
		factors = append(factors, numRat(coeff))
	}
	for _, q := range parts {
		factors = append(factors, &Pow{base: numRat(new(big.Rat).SetInt(q.p)), exp: numRat(q.e)})
	}
	if neg {
		two := big.NewRat(2, 1)
		em := new(big.Rat).Set(e)
		fl := new(big.Int).Div(em.Num(), new(big.Int).Mul(em.Denom(), big.NewInt(2)))
		em.Sub(em, new(big.Rat).Mul(two, new(big.Rat).SetInt(fl)))
		factors = append(factors, &Pow{base: N(-1), exp: numRat(em)})
	}
	switch len(factors) {
	case 0:
		return N(1)
	case 1:
		return factors[0]
	}
	return MulOf(factors...)
}

// ============================================================
// Expansion to sum-of-products normal form
// ============================================================

// Expand distributes products over sums and small integer powers of
// sums, then re-simplifies. Expanded canonical strings are the engine's
// equality oracle.
func Expand(e Expr) Expr { return expandExpr(e.Simplify()).Simplify() }

func expandExpr(e Expr) Expr {
	switch v := e.(type) {
	case *Mul:
		res := Expr(N(1))
		for _, f := range v.factors {
			res = expandProduct(res, expandExpr(f))
		}
		return res
	case *Add:
		newTerms := make([]Expr, len(v.terms))
		for i, t := range v.terms {
			newTerms[i] = expandExpr(t)
		}
		return AddOf(newTerms...)
	case *Pow:
		if n, ok := v.exp.(*Num); ok && n.IsInteger() {
			e64 := n.val.Num().Int64()
			if e64 >= 2 && e64 <= 10 {
				b := expandExpr(v.base)
				res := Expr(N(1))
				for i := int64(0); i < e64; i++ {
					res = expandProduct(res, b)
				}
				return res
			}
		}
		return PowOf(expandExpr(v.base), expandExpr(v.exp))
	}
	return e
}

// expandProduct multiplies two expanded expressions termwise, so equal
// sum factors never collapse back into an unexpanded power.
func expandProduct(a, b Expr) Expr {
	at := termsOf(a)
	bt := termsOf(b)
	if len(at) == 1 && len(bt) == 1 {
		p := MulOf(at[0], bt[0])
		if m, ok := p.(*Mul); ok {
			// Exponent merging can surface a sum factor, as in
			// x*sqrt(A) times y*sqrt(A) giving x*y*A; distribute it.
			for _, f := range m.factors {
				if _, isAdd := f.(*Add); isAdd {
					return expandExpr(p)
				}
			}
			return p
		}
		return expandExpr(p)
	}
	out := make([]Expr, 0, len(at)*len(bt))
	for _, x := range at {
		for _, y := range bt {
			out = append(out, expandExpr(MulOf(x, y)))
		}
	}
	return AddOf(out...)
}

func termsOf(e Expr) []Expr {
	if a, ok := e.(*Add); ok {
		return a.terms
	}
	return []Expr{e}
}

// ============================================================
// Structural helpers
// ============================================================

// splitCoeff splits a term into its rational coefficient and the rest.
func splitCoeff(e Expr) (*big.Rat, Expr) {
	if m, ok := e.(*Mul); ok && len(m.factors) > 0 {
		if n, ok2 := m.factors[0].(*Num); ok2 {
			rest := m.factors[1:]
			if len(rest) == 1 {
				return n.val, rest[0]
			}
			return n.val, &Mul{factors: rest}
		}
	}
	if n, ok := e.(*Num); ok {
		return n.val, N(1)
	}
	return ratOne(), e
}

func isZeroExpr(e Expr) bool {
	n, ok := Expand(e).(*Num)
	return ok && n.IsZero()
}

func isOneExpr(e Expr) bool {
	n, ok := e.(*Num)
	return ok && n.IsOne()
}

func isNum(e Expr) bool {
	_, ok := e.(*Num)
	return ok
}

// signExpr reports the numeric sign of e: exact when e expands to a
// rational, a float estimate otherwise, 0 when undecidable.
func signExpr(e Expr) int {
	x := Expand(e)
	if n, ok := x.(*Num); ok {
		return n.Sign()
	}
	if v, ok := x.Eval(); ok {
		f, _ := v.val.Float64()
		switch {
		case f > 1e-12:
			return 1
		case f < -1e-12:
			return -1
		}
		return 0
	}
	return 0
}

func isNumberExpr(e Expr) bool { return len(FreeSymbols(e)) == 0 }

func gcdRat(a, b *big.Rat) *big.Rat {
	num := new(big.Int).GCD(nil, nil, new(big.Int).Abs(a.Num()), new(big.Int).Abs(b.Num()))
	g := new(big.Int).GCD(nil, nil, a.Denom(), b.Denom())
	lcm := new(big.Int).Div(new(big.Int).Mul(a.Denom(), b.Denom()), g)
	return new(big.Rat).SetFrac(num, lcm)
}

// contentPrimitive splits e into a positive rational content factor and
// the primitive remainder, so e == content * primitive.
func contentPrimitive(e Expr) (*big.Rat, Expr) {
	switch v := e.(type) {
	case *Num:
		if v.IsZero() {
			return ratOne(), e
		}
		c := new(big.Rat).Abs(v.val)
		if v.IsNegative() {
			return c, N(-1)
		}
		return c, N(1)
	case *Mul:
		c, rest := splitCoeff(v)
		if c.Sign() < 0 {
			return new(big.Rat).Abs(c), MulOf(N(-1), rest)
		}
		return new(big.Rat).Set(c), rest
	case *Add:
		var g *big.Rat
		for _, t := range v.terms {
			c, _ := splitCoeff(t)
			ac := new(big.Rat).Abs(c)
			if g == nil {
				g = ac
			} else {
				g = gcdRat(g, ac)
			}
		}
		if g == nil || g.Cmp(ratOne()) == 0 || g.Sign() == 0 {
			return ratOne(), e
		}
		inv := new(big.Rat).Inv(g)
		terms := make([]Expr, len(v.terms))
		for i, t := range v.terms {
			terms[i] = MulOf(numRat(inv), t)
		}
		return g, AddOf(terms...)
	}
	return ratOne(), e
}

// numerDenom splits an expression into numerator and denominator parts.
// Sums are not placed over a common denominator.
func numerDenom(e Expr) (Expr, Expr) {
	switch v := e.(type) {
	case *Num:
		return numRat(new(big.Rat).SetInt(v.val.Num())), numRat(new(big.Rat).SetInt(v.val.Denom()))
	case *Pow:
		if n, ok := v.exp.(*Num); ok && n.IsNegative() {
			return N(1), PowOf(v.base, numNeg(n))
		}
	case *Mul:
		nf := []Expr{}
		df := []Expr{}
		for _, f := range v.factors {
			if n, ok := f.(*Num); ok {
				nf = append(nf, numRat(new(big.Rat).SetInt(n.val.Num())))
				df = append(df, numRat(new(big.Rat).SetInt(n.val.Denom())))
				continue
			}
			if p, ok := f.(*Pow); ok {
				if n, ok2 := p.exp.(*Num); ok2 && n.IsNegative() {
					df = append(df, PowOf(p.base, numNeg(n)))
					continue
				}
			}
			nf = append(nf, f)
		}
		return MulOf(nf...), MulOf(df...)
	}
	return e, N(1)
}

// recipSurd rationalizes 1/e for a numeric e built from square roots, by
// repeated conjugation against the deepest radical term.
func recipSurd(e Expr) (Expr, bool) {
	e = Expand(e)
	if !isNumberExpr(e) {
		return nil, false
	}
	num := Expr(N(1))
	for i := 0; i < 8; i++ {
		if n, ok := e.(*Num); ok {
			if n.IsZero() {
				return nil, false
			}
			return Expand(MulOf(num, numRecip(n))), true
		}
		a, b, r, ok := sqrtMatch(e)
		if !ok || isZeroExpr(b) {
			return nil, false
		}
		conj := AddOf(a, MulOf(N(-1), b, sqrtExpr(r)))
		num = Expand(MulOf(num, conj))
		e = Expand(AddOf(MulOf(a, a), MulOf(N(-1), b, b, r)))
	}
	return nil, false
}

func recipExpr(e Expr) Expr {
	if z, ok := recipSurd(e); ok {
		return z
	}
	return PowOf(e, N(-1))
}

func sqrtExpr(e Expr) Expr { return PowOf(e, F(1, 2)) }

// ============================================================
// Free symbols, substitution
// ============================================================

func FreeSymbols(e Expr) map[string]struct{} {
	result := map[string]struct{}{}
	collectSymbols(e, result)
	return result
}

func collectSymbols(e Expr, out map[string]struct{}) {
	switch v := e.(type) {
	case *Sym:
		out[v.name] = struct{}{}
	case *Add:
		for _, t := range v.terms {
			collectSymbols(t, out)
		}
	case *Mul:
		for _, f := range v.factors {
			collectSymbols(f, out)
		}
	case *Pow:
		collectSymbols(v.base, out)
		collectSymbols(v.exp, out)
	case *Func:
		collectSymbols(v.arg, out)
	}
}

func freshPosSym(taken map[string]struct{}) *Sym {
	if _, used := taken["y"]; !used {
		return SPos("y")
	}
	for i := 1; ; i++ {
		name := fmt.Sprintf("y%d", i)
		if _, used := taken[name]; !used {
			return SPos(name)
		}
	}
}

// replaceSqrt substitutes sub for the canonical square root of rr inside
// e. A rational rr spells as a product of prime square roots, so product
// nodes are searched for the whole factor set, not just a single node.
func replaceSqrt(e, rr, sub Expr) Expr {
	return replaceSqrtIn(e, sqrtExpr(rr), sub)
}

func replaceSqrtIn(e, target, sub Expr) Expr {
	if e.Equal(target) {
		return sub
	}
	switch v := e.(type) {
	case *Add:
		out := make([]Expr, len(v.terms))
		for i, t := range v.terms {
			out[i] = replaceSqrtIn(t, target, sub)
		}
		return AddOf(out...)
	case *Mul:
		if tm, ok := target.(*Mul); ok {
			if rest, ok2 := extractFactors(v, tm.factors); ok2 {
				out := []Expr{sub}
				for _, f := range rest {
					out = append(out, replaceSqrtIn(f, target, sub))
				}
				return MulOf(out...)
			}
		}
		out := make([]Expr, len(v.factors))
		for i, f := range v.factors {
			out[i] = replaceSqrtIn(f, target, sub)
		}
		return MulOf(out...)
	case *Pow:
		return PowOf(replaceSqrtIn(v.base, target, sub), replaceSqrtIn(v.exp, target, sub))
	case *Func:
		return funcOf(v.name, replaceSqrtIn(v.arg, target, sub)).Simplify()
	}
	return e
}

// extractFactors removes one occurrence of each wanted factor from m,
// returning the leftovers, or false if any factor is missing.
func extractFactors(m *Mul, want []Expr) ([]Expr, bool) {
	rest := append([]Expr(nil), m.factors...)
	for _, w := range want {
		if _, ok := w.(*Num); ok {
			return nil, false
		}
		found := -1
		for i, f := range rest {
			if f.Equal(w) {
				found = i
				break
			}
		}
		if found < 0 {
			return nil, false
		}
		rest = append(rest[:found], rest[found+1:]...)
	}
	return rest, true
}

// ============================================================
// Quadratic coefficient extraction
// ============================================================

// quadCoeffs reads e as a polynomial of degree at most two in the symbol
// named y, returning the coefficients of y^2, y^1, y^0. It fails when y
// occurs non-polynomially or the degree exceeds two.
func quadCoeffs(e Expr, y string) (ca, cb, cc Expr, ok bool) {
	e = Expand(e)
	acc := [3][]Expr{}
	for _, t := range termsOf(e) {
		d, coeff, valid := termDegree(t, y)
		if !valid || d > 2 {
			return nil, nil, nil, false
		}
		acc[d] = append(acc[d], coeff)
	}
	sum := func(ts []Expr) Expr {
		if len(ts) == 0 {
			return N(0)
		}
		return AddOf(ts...)
	}
	return sum(acc[2]), sum(acc[1]), sum(acc[0]), true
}

func termDegree(t Expr, y string) (int, Expr, bool) {
	switch v := t.(type) {
	case *Num:
		return 0, v, true
	case *Sym:
		if v.name == y {
			return 1, N(1), true
		}
		return 0, v, true
	case *Pow:
		if s, ok := v.base.(*Sym); ok && s.name == y {
			if n, ok2 := v.exp.(*Num); ok2 && n.IsInteger() && !n.IsNegative() {
				return int(n.val.Num().Int64()), N(1), true
			}
		}
		if _, has := FreeSymbols(t)[y]; has {
			return 0, nil, false
		}
		return 0, t, true
	case *Mul:
		deg := 0
		var coeffs []Expr
		for _, f := range v.factors {
			d, c, ok := termDegree(f, y)
			if !ok {
				return 0, nil, false
			}
			deg += d
			coeffs = append(coeffs, c)
		}
		return deg, MulOf(coeffs...), true
	}
	if _, has := FreeSymbols(t)[y]; has {
		return 0, nil, false
	}
	return 0, t, true
}

// ============================================================
// Top-level convenience functions
// ============================================================

func Simplify(e Expr) Expr { return e.Simplify() }
func String(e Expr) string { return e.String() }
func LaTeX(e Expr) string  { return e.LaTeX() }

func Sub(expr Expr, varName string, value Expr) Expr {
	return expr.Sub(varName, value).Simplify()
}
