package godenest_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	godenest "github.com/njchilds90/godenest"
)

func jnum(v string) map[string]interface{} {
	return map[string]interface{}{"type": "num", "value": v}
}

func jsqrt(arg interface{}) map[string]interface{} {
	return map[string]interface{}{"type": "sqrt", "arg": arg}
}

// sqrt(5+2*sqrt(6)) as a tool-call payload.
func nestedPayload() map[string]interface{} {
	return jsqrt(map[string]interface{}{
		"type": "add",
		"terms": []interface{}{
			jnum("5"),
			map[string]interface{}{
				"type":    "mul",
				"factors": []interface{}{jnum("2"), jsqrt(jnum("6"))},
			},
		},
	})
}

func TestHandleToolCall_Denest(t *testing.T) {
	resp := godenest.HandleToolCall(godenest.ToolRequest{
		Tool:   "denest",
		Params: map[string]interface{}{"expr": nestedPayload()},
	})
	require.Empty(t, resp.Error)
	assert.Equal(t, "2^(1/2) + 3^(1/2)", resp.String)
	assert.Equal(t, "\\sqrt{2} + \\sqrt{3}", resp.LaTeX)
}

func TestHandleToolCall_SqrtDepth(t *testing.T) {
	resp := godenest.HandleToolCall(godenest.ToolRequest{
		Tool:   "sqrt_depth",
		Params: map[string]interface{}{"expr": nestedPayload()},
	})
	require.Empty(t, resp.Error)
	assert.Equal(t, 2, resp.Result)
}

func TestHandleToolCall_FreeSymbols(t *testing.T) {
	resp := godenest.HandleToolCall(godenest.ToolRequest{
		Tool: "free_symbols",
		Params: map[string]interface{}{"expr": map[string]interface{}{
			"type": "mul",
			"factors": []interface{}{
				map[string]interface{}{"type": "sym", "name": "y"},
				map[string]interface{}{"type": "sym", "name": "x"},
			},
		}},
	})
	require.Empty(t, resp.Error)
	assert.Equal(t, []string{"x", "y"}, resp.Result)
}

func TestHandleToolCall_Substitute(t *testing.T) {
	resp := godenest.HandleToolCall(godenest.ToolRequest{
		Tool: "substitute",
		Params: map[string]interface{}{
			"expr":  jsqrt(map[string]interface{}{"type": "sym", "name": "x"}),
			"var":   "x",
			"value": jnum("4"),
		},
	})
	require.Empty(t, resp.Error)
	assert.Equal(t, "2", resp.String)
}

func TestHandleToolCall_Errors(t *testing.T) {
	resp := godenest.HandleToolCall(godenest.ToolRequest{Tool: "warp_drive"})
	assert.NotEmpty(t, resp.Error)

	resp = godenest.HandleToolCall(godenest.ToolRequest{Tool: "denest", Params: map[string]interface{}{}})
	assert.NotEmpty(t, resp.Error)

	resp = godenest.HandleToolCall(godenest.ToolRequest{
		Tool:   "denest",
		Params: map[string]interface{}{"expr": "not an object"},
	})
	assert.NotEmpty(t, resp.Error)
}

func TestMCPToolSpec(t *testing.T) {
	spec := godenest.MCPToolSpec()
	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(spec), &parsed))
	tools, ok := parsed["tools"].([]interface{})
	require.True(t, ok)
	names := map[string]bool{}
	for _, tl := range tools {
		m := tl.(map[string]interface{})
		names[m["name"].(string)] = true
	}
	for _, want := range []string{"denest", "simplify", "expand", "sqrt_depth", "free_symbols"} {
		assert.True(t, names[want], want)
	}
}
