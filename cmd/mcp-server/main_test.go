package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	godenest "github.com/njchilds90/godenest"
)

func TestToolEndpoint_Denest(t *testing.T) {
	// sqrt(5+2*sqrt(6)) over the wire comes back as sqrt(2)+sqrt(3).
	payload := `{"tool":"denest","params":{"expr":{"type":"sqrt","arg":{"type":"add","terms":[` +
		`{"type":"num","value":"5"},` +
		`{"type":"mul","factors":[{"type":"num","value":"2"},{"type":"sqrt","arg":{"type":"num","value":"6"}}]}]}}}}`
	req := httptest.NewRequest(http.MethodPost, "/tool", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	newMux().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp godenest.ToolResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Error)
	assert.Equal(t, "2^(1/2) + 3^(1/2)", resp.String)
	assert.Equal(t, "\\sqrt{2} + \\sqrt{3}", resp.LaTeX)
}

func TestToolEndpoint_MethodAndBodyChecks(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/tool", nil)
	rec := httptest.NewRecorder()
	newMux().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/tool", strings.NewReader(`{"tool":"denest"} trailing`))
	rec = httptest.NewRecorder()
	newMux().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSchemaEndpoint(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/schema", nil)
	rec := httptest.NewRecorder()
	newMux().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"denest"`)
	assert.Contains(t, rec.Body.String(), `"sqrt_depth"`)
}
