package godenest_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	godenest "github.com/njchilds90/godenest"
)

func TestSqrtOf_RationalNormalization(t *testing.T) {
	// Radicands split into prime square roots with square parts pulled out.
	assert.Equal(t, "2^(1/2)*3^(1/2)", godenest.SqrtOf(godenest.N(6)).String())
	assert.Equal(t, "2*2^(1/2)", godenest.SqrtOf(godenest.N(8)).String())
	assert.Equal(t, "3", godenest.SqrtOf(godenest.N(9)).String())
	assert.Equal(t, "3/2*2^(1/2)", godenest.SqrtOf(godenest.F(9, 2)).String())
	assert.Equal(t, "1", godenest.SqrtOf(godenest.N(1)).String())
	assert.Equal(t, "0", godenest.SqrtOf(godenest.N(0)).String())
}

func TestSqrtOf_NegativeRadicand(t *testing.T) {
	// sqrt(-4) = 2*sqrt(-1), kept as an opaque (-1)^(1/2) factor.
	assert.Equal(t, "2*(-1)^(1/2)", godenest.SqrtOf(godenest.N(-4)).String())
}

func TestSqrtOf_ContentExtraction(t *testing.T) {
	// sqrt(55-10*sqrt(29)) = sqrt(5)*sqrt(11-2*sqrt(29))
	e := godenest.SqrtOf(godenest.AddOf(
		godenest.N(55),
		godenest.MulOf(godenest.N(-10), godenest.SqrtOf(godenest.N(29))),
	))
	assert.Equal(t, "(-2*29^(1/2) + 11)^(1/2)*5^(1/2)", e.String())
}

func TestMul_MergesEqualBases(t *testing.T) {
	sqrt2 := godenest.SqrtOf(godenest.N(2))
	assert.Equal(t, "2", godenest.MulOf(sqrt2, sqrt2).String())
	x := godenest.S("x")
	assert.Equal(t, "x^3", godenest.MulOf(x, godenest.PowOf(x, godenest.N(2))).String())
	assert.Equal(t, "1", godenest.MulOf(x, godenest.PowOf(x, godenest.N(-1))).String())
}

func TestAdd_CombinesLikeTerms(t *testing.T) {
	sqrt2 := godenest.SqrtOf(godenest.N(2))
	assert.Equal(t, "2*2^(1/2)", godenest.AddOf(sqrt2, sqrt2).String())
	x := godenest.S("x")
	assert.Equal(t, "3*x + 2", godenest.AddOf(x, x, x, godenest.N(2)).String())
	assert.Equal(t, "0", godenest.AddOf(sqrt2, godenest.MulOf(godenest.N(-1), sqrt2)).String())
}

func TestExpand_SquaresBinomial(t *testing.T) {
	sum := godenest.AddOf(godenest.SqrtOf(godenest.N(2)), godenest.SqrtOf(godenest.N(3)))
	got := godenest.Expand(godenest.MulOf(sum, sum))
	assert.Equal(t, "2*2^(1/2)*3^(1/2) + 5", got.String())

	x := godenest.S("x")
	got = godenest.Expand(godenest.PowOf(godenest.AddOf(x, godenest.N(1)), godenest.N(2)))
	assert.Equal(t, "2*x + x^2 + 1", got.String())
}

func TestExpand_RecoversRadicand(t *testing.T) {
	// Expanding the square of sqrt(5+2*sqrt(6)) recovers the radicand.
	e := godenest.SqrtOf(godenest.AddOf(
		godenest.N(5),
		godenest.MulOf(godenest.N(2), godenest.SqrtOf(godenest.N(6))),
	))
	got := godenest.Expand(godenest.MulOf(e, e))
	assert.Equal(t, "2*2^(1/2)*3^(1/2) + 5", got.String())
}

func TestPow_Canonicalization(t *testing.T) {
	x := godenest.S("x")
	assert.Equal(t, "1", godenest.PowOf(x, godenest.N(0)).String())
	assert.Equal(t, "x", godenest.PowOf(x, godenest.N(1)).String())
	assert.Equal(t, "1", godenest.PowOf(godenest.N(1), x).String())
	// (x^(1/2))^(-1) folds; (x^2)^(1/2) must not for unconstrained x.
	assert.Equal(t, "x^(-1/2)", godenest.PowOf(godenest.SqrtOf(x), godenest.N(-1)).String())
	assert.Equal(t, "(x^2)^(1/2)", godenest.SqrtOf(godenest.PowOf(x, godenest.N(2))).String())
	// With a positivity constraint it does fold.
	p := godenest.SPos("p")
	assert.Equal(t, "p", godenest.SqrtOf(godenest.PowOf(p, godenest.N(2))).String())
}

func TestSub(t *testing.T) {
	x := godenest.S("x")
	e := godenest.AddOf(godenest.MulOf(godenest.N(2), x), godenest.N(3))
	assert.Equal(t, "13", godenest.Sub(e, "x", godenest.N(5)).String())
	assert.Equal(t, "2", godenest.Sub(godenest.SqrtOf(x), "x", godenest.N(4)).String())
}

func TestEval(t *testing.T) {
	v, ok := godenest.SqrtOf(godenest.N(2)).Eval()
	require.True(t, ok)
	assert.InDelta(t, 1.4142135, v.Float64(), 1e-6)

	_, ok = godenest.SqrtOf(godenest.S("x")).Eval()
	assert.False(t, ok)
}

func TestFreeSymbols(t *testing.T) {
	e := godenest.AddOf(
		godenest.MulOf(godenest.S("x"), godenest.S("y")),
		godenest.SinOf(godenest.S("z")),
	)
	syms := godenest.FreeSymbols(e)
	assert.Len(t, syms, 3)
	for _, name := range []string{"x", "y", "z"} {
		_, ok := syms[name]
		assert.True(t, ok, name)
	}
}

func TestLaTeX(t *testing.T) {
	x := godenest.S("x")
	assert.Equal(t, "\\sqrt{x}", godenest.LaTeX(godenest.SqrtOf(x)))
	assert.Equal(t, "\\frac{1}{2}", godenest.LaTeX(godenest.F(1, 2)))
	assert.Equal(t, "-\\frac{1}{2}", godenest.LaTeX(godenest.F(-1, 2)))
}

func TestJSONRoundTrip(t *testing.T) {
	e := godenest.SqrtOf(godenest.AddOf(
		godenest.N(5),
		godenest.MulOf(godenest.N(2), godenest.SqrtOf(godenest.N(6))),
	))
	js, err := godenest.ToJSON(e)
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(js), &m))
	back, err := godenest.FromJSON(m)
	require.NoError(t, err)
	assert.Equal(t, e.String(), back.String())
}

func TestFromJSON_Errors(t *testing.T) {
	_, err := godenest.FromJSON(nil)
	assert.Error(t, err)
	_, err = godenest.FromJSON(map[string]interface{}{"value": "3"})
	assert.Error(t, err)
	_, err = godenest.FromJSON(map[string]interface{}{"type": "num", "value": "not-a-number"})
	assert.Error(t, err)
	_, err = godenest.FromJSON(map[string]interface{}{"type": "starship"})
	assert.Error(t, err)
}

func TestFromJSON_PositiveSym(t *testing.T) {
	e, err := godenest.FromJSON(map[string]interface{}{"type": "sym", "name": "p", "positive": true})
	require.NoError(t, err)
	s, ok := e.(*godenest.Sym)
	require.True(t, ok)
	assert.True(t, s.Positive())
}
