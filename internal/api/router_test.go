package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Harshitk-cp/bayesd/internal/cache"
	"github.com/Harshitk-cp/bayesd/internal/telemetry"
)

func newTestApp(t *testing.T) (*App, *miniredis.Miniredis) {
	t.Helper()
	t.Setenv("API_KEYS", "")
	t.Setenv("RATE_LIMIT_RPS", "1000")
	t.Setenv("RATE_LIMIT_BURST", "1000")

	mr := miniredis.RunT(t)
	c := cache.NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	app := NewApp(Deps{Cache: c, Metrics: telemetry.New()}, zap.NewNop())
	t.Cleanup(app.Close)
	return app, mr
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

const inferBody = `{
	"hypotheses": [{"id": "h1", "prior": 0.5}, {"id": "h2", "prior": 0.5}],
	"evidence": [{"likelihoods": {"h1": 0.9, "h2": 0.3}}]
}`

func TestInferEndpoint_CachesResponses(t *testing.T) {
	app, mr := newTestApp(t)

	rec, body := do(t, app.Router, http.MethodPost, "/v1/infer", inferBody)
	require.Equal(t, http.StatusOK, rec.Code)
	result := body["result"].(map[string]any)
	posteriors := result["posteriors"].(map[string]any)
	assert.InDelta(t, 0.75, posteriors["h1"], 1e-9)
	assert.NotNil(t, body["uncertainty"])
	assert.Equal(t, false, body["server_status"].(map[string]any)["cached"])
	assert.Len(t, mr.Keys(), 1)

	rec, body = do(t, app.Router, http.MethodPost, "/v1/infer", inferBody)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["server_status"].(map[string]any)["cached"])
}

func TestInferEndpoint_Errors(t *testing.T) {
	app, _ := newTestApp(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed", `{`, http.StatusBadRequest},
		{"no hypotheses", `{"hypotheses": []}`, http.StatusBadRequest},
		{"bad weight", `{"hypotheses": [{"id": "a", "prior": 1}], "evidence": [{"likelihoods": {"a": 1}, "weight": 3}]}`, http.StatusBadRequest},
		{"missing model", `{"hypotheses": [{"id": "a", "prior": 1}], "config": {"model_type": "markov_chain"}, "evidence": [{"type": "sequence", "observation": {"symbols": ["x"]}}]}`, http.StatusNotFound},
		{"unknown method", `{"hypotheses": [{"id": "a", "prior": 1}], "quantification": {"method": "tarot"}}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := do(t, app.Router, http.MethodPost, "/v1/infer", tt.body)
			assert.Equal(t, tt.want, rec.Code)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestBeliefEndpoints(t *testing.T) {
	app, _ := newTestApp(t)

	rec, _ := do(t, app.Router, http.MethodPost, "/v1/beliefs/coin",
		`{"hypotheses": [{"id": "fair", "prior": 0.5}, {"id": "biased", "prior": 0.5}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, body := do(t, app.Router, http.MethodPost, "/v1/beliefs/coin/updates",
		`{"evidence": {"likelihoods": {"fair": 0.5, "biased": 0.9}}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["sequence"])

	rec, _ = do(t, app.Router, http.MethodPost, "/v1/beliefs/coin/updates",
		`{"evidence": {"likelihoods": {"fair": 0.5}}, "strategy": "sideways"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, body = do(t, app.Router, http.MethodGet, "/v1/beliefs/coin", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 0.9/1.4, body["beliefs"].(map[string]any)["biased"], 1e-9)

	rec, body = do(t, app.Router, http.MethodGet, "/v1/beliefs/coin/history?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])

	rec, _ = do(t, app.Router, http.MethodGet, "/v1/beliefs/coin/history?limit=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = do(t, app.Router, http.MethodGet, "/v1/beliefs/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"coin"}, body["subjects"])

	rec, _ = do(t, app.Router, http.MethodDelete, "/v1/beliefs/coin", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, _ = do(t, app.Router, http.MethodGet, "/v1/beliefs/coin", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestModelEndpoints(t *testing.T) {
	app, _ := newTestApp(t)

	spec := `{"type": "markov_chain", "states": ["a", "b"], "transition": [[0.5, 0.5], [0.5, 0.5]]}`
	rec, body := do(t, app.Router, http.MethodPut, "/v1/models/chain", spec)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "chain", body["name"])

	rec, body = do(t, app.Router, http.MethodPost, "/v1/models/chain/fit", `{"sequences": [["a", "a", "b", "a", "b"]]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["fitted"])

	rec, body = do(t, app.Router, http.MethodPost, "/v1/models/chain/evaluate", `{"symbols": ["a", "b"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Greater(t, body["likelihood"].(float64), 0.0)

	rec, body = do(t, app.Router, http.MethodGet, "/v1/models/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])

	rec, _ = do(t, app.Router, http.MethodPut, "/v1/models/bad", `{"type": "oracle"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, app.Router, http.MethodPost, "/v1/models/missing/fit", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, app.Router, http.MethodDelete, "/v1/models/chain", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestDecideQuantifyCalibrateEndpoints(t *testing.T) {
	app, _ := newTestApp(t)

	decide := `{
		"beliefs": {"rain": 0.3, "dry": 0.7},
		"tree": {"label": "umbrella?", "type": "decision", "children": [
			{"label": "take", "type": "terminal", "utilities": {"rain": 8, "dry": 6}},
			{"label": "leave", "type": "terminal", "utilities": {"rain": -10, "dry": 10}}
		]}
	}`
	rec, body := do(t, app.Router, http.MethodPost, "/v1/decide", decide)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 6.6, body["path"].(map[string]any)["value"], 1e-9)

	rec, _ = do(t, app.Router, http.MethodPost, "/v1/decide", `{"beliefs": {"a": 1}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	quantify := `{"result": {"posteriors": {"a": 0.8, "b": 0.2}, "evidence_count": 20}, "method": "analytic", "levels": [0.95]}`
	rec, body = do(t, app.Router, http.MethodPost, "/v1/quantify", quantify)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a", body["hypothesis"])
	assert.Len(t, body["intervals"], 1)

	rec, _ = do(t, app.Router, http.MethodPost, "/v1/quantify", `{"result": {"posteriors": {"a": 3, "b": 1}}, "method": "analytic"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = do(t, app.Router, http.MethodPost, "/v1/calibrate", `{"predictions": [0.9, 0.1], "outcomes": [true, false]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 0.01, body["brier_score"], 1e-9)

	rec, _ = do(t, app.Router, http.MethodPost, "/v1/calibrate", `{"predictions": [], "outcomes": []}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestOperationalEndpoints(t *testing.T) {
	app, mr := newTestApp(t)

	rec, body := do(t, app.Router, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	checks := body["checks"].(map[string]any)
	assert.Equal(t, "disabled", checks["database"])
	assert.Equal(t, "ok", checks["cache"])

	rec, body = do(t, app.Router, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.GreaterOrEqual(t, body["request_count"].(float64), 2.0)

	rec, _ = do(t, app.Router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bayesd_http_requests_total")

	mr.Close()
	rec, body = do(t, app.Router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "error", body["status"])
}

func TestAuthRequiredWhenKeysConfigured(t *testing.T) {
	t.Setenv("API_KEYS", "k1")
	app := NewApp(Deps{}, zap.NewNop())
	defer app.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/infer", bytes.NewBufferString(inferBody))
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/infer", bytes.NewBufferString(inferBody))
	req.Header.Set("Authorization", "Bearer k1")
	rec = httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	app.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
