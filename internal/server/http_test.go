package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/MyraWang0406/ADX-Mirix-1.15/internal/engine"
	"github.com/MyraWang0406/ADX-Mirix-1.15/internal/storage"
)

var testNow = time.Date(2026, 10, 16, 15, 30, 0, 0, time.UTC)

type testEnv struct {
	server  *Server
	logPath string
}

func newTestEnv(t *testing.T, cfg Config, lines ...string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	logPath := filepath.Join(dir, "whitebox.log")
	if len(lines) > 0 {
		require.NoError(t, os.WriteFile(logPath, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	}

	src, err := storage.NewSource(logPath, filepath.Join(dir, "archive"), 0)
	require.NoError(t, err)
	t.Cleanup(src.Close)

	w, err := storage.NewWriter(logPath, filepath.Join(dir, "archive"), time.UTC)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	opts := engine.DefaultOptions()
	opts.Location = time.UTC
	qe := engine.NewQueryEngine(engine.Config{Options: opts}, src.Read, src.Recent, nil, zerolog.Nop())
	qe.Now = func() time.Time { return testNow }

	return &testEnv{server: New(cfg, qe, w, nil, zerolog.Nop()), logPath: logPath}
}

func (e *testEnv) do(t *testing.T, method, target, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func traceJSON(id, node, decision, reason string, at time.Time, loss float64) string {
	return fmt.Sprintf(`{"request_id":%q,"timestamp":%q,"node":%q,"action":"FINAL_DECISION","decision":%q,"reason_code":%q,"internal_variables":{"region":"br","potential_loss":%g}}`,
		id, at.Format(time.RFC3339), node, decision, reason, loss)
}

func sampleLines() []string {
	at := time.Date(2026, 10, 16, 14, 0, 0, 0, time.UTC)
	return []string{
		traceJSON("r1", "ADX", "REJECT", "LATENCY_TIMEOUT", at.Add(time.Minute), 0.1),
		"{not json",
		traceJSON("r2", "ADX", "REJECT", "LATENCY_TIMEOUT", at.Add(3*time.Minute), 0.3),
		traceJSON("r3", "ADX", "PASS", "ALL_FILTERS_PASSED", at.Add(4*time.Minute), 0),
	}
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) engine.Result {
	t.Helper()
	var res engine.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func TestHistory_NoData(t *testing.T) {
	env := newTestEnv(t, Config{})

	rec := env.do(t, http.MethodPost, "/api/history-logs", `{"currentPattern":"14h_br_LATENCY_TIMEOUT","hoursBack":24}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"matches":[]`)

	res := decodeResult(t, rec)
	assert.Equal(t, engine.StatusNoData, res.Status)
	assert.Equal(t, engine.NoDataSummary, res.Summary)
}

func TestHistory_Matches(t *testing.T) {
	env := newTestEnv(t, Config{}, sampleLines()...)

	rec := env.do(t, http.MethodPost, "/api/history-logs", `{"currentPattern":"14h_br_LATENCY_TIMEOUT","hoursBack":24}`)
	require.Equal(t, http.StatusOK, rec.Code)

	res := decodeResult(t, rec)
	assert.Equal(t, engine.StatusOK, res.Status)
	assert.NotEmpty(t, res.AnalysisID)
	require.NotEmpty(t, res.Matches)
	assert.Equal(t, "14h_br_LATENCY_TIMEOUT", res.Matches[0].PatternType)
	assert.Equal(t, 2, res.Matches[0].Frequency)
	assert.InDelta(t, 0.2, res.Matches[0].AvgLoss, 1e-9)
	assert.Equal(t, 3, res.RecentLogsCount)
	assert.Contains(t, res.Summary, "2026/10/16 14:00")
}

func TestHistory_BadRequest(t *testing.T) {
	env := newTestEnv(t, Config{})

	rec := env.do(t, http.MethodPost, "/api/history-logs", `{"currentPattern":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	res := decodeResult(t, rec)
	assert.Equal(t, engine.StatusError, res.Status)
	assert.NotNil(t, res.Matches)

	rec = env.do(t, http.MethodGet, "/api/history-logs", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

type logsBody struct {
	Logs []struct {
		RequestID string `json:"request_id"`
		Decision  string `json:"decision"`
	} `json:"logs"`
	Total int `json:"total"`
}

func logIDs(body logsBody) []string {
	ids := make([]string, 0, len(body.Logs))
	for _, l := range body.Logs {
		ids = append(ids, l.RequestID)
	}
	return ids
}

func TestLogs(t *testing.T) {
	env := newTestEnv(t, Config{}, sampleLines()...)

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"newest first", "", []string{"r3", "r2", "r1"}},
		{"limit", "?limit=2", []string{"r3", "r2"}},
		{"decision filter", "?decision=REJECT", []string{"r2", "r1"}},
		{"node filter", "?node=DSP", []string{}},
		{"query", "?q=" + url.QueryEscape("decision:REJECT AND potential_loss>0.2"), []string{"r2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/api/logs"+tt.query, "")
			require.Equal(t, http.StatusOK, rec.Code)

			var body logsBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.want, logIDs(body))
			assert.Equal(t, len(tt.want), body.Total)
		})
	}

	rec := env.do(t, http.MethodGet, "/api/logs?limit=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/logs?q="+url.QueryEscape("(node:ADX"), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogs_MissingStore(t *testing.T) {
	env := newTestEnv(t, Config{})

	rec := env.do(t, http.MethodGet, "/api/logs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"logs":[]`)
	assert.Contains(t, rec.Body.String(), `"total":0`)
}

func TestIngest(t *testing.T) {
	env := newTestEnv(t, Config{})
	at := testNow.Add(-30 * time.Minute)

	batch := "[" + traceJSON("a1", "ADX", "REJECT", "SIZE_MISMATCH", at, 0) + "," +
		traceJSON("a2", "ADX", "REJECT", "SIZE_MISMATCH", at.Add(time.Minute), 0) + "]"
	rec := env.do(t, http.MethodPost, "/api/ingest", batch)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"accepted":2}`, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/ingest", traceJSON("a3", "DSP", "PASS", "BID_SUBMITTED", at.Add(2*time.Minute), 0))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/logs", "")
	var body logsBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"a3", "a2", "a1"}, logIDs(body))

	rec = env.do(t, http.MethodGet, "/api/current-pattern", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"currentPattern":"15h_SIZE_MISMATCH"}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/stats", "")
	assert.Contains(t, rec.Body.String(), `"ingested":3`)
}

func TestIngest_RejectsWholeBatch(t *testing.T) {
	env := newTestEnv(t, Config{})

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `[{"request_id":`},
		{"missing timestamp", `[{"request_id":"ok","timestamp":"2026-10-16T10:00:00Z"},{"request_id":"x"}]`},
		{"not an object", `[1]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/ingest", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	_, err := os.Stat(env.logPath)
	assert.True(t, os.IsNotExist(err))
}

func TestFunnel(t *testing.T) {
	env := newTestEnv(t, Config{}, sampleLines()...)

	rec := env.do(t, http.MethodGet, "/api/funnel", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Request       int      `json:"request"`
		Win           int      `json:"win"`
		FailedIDs     []string `json:"failed_request_ids"`
		RejectReasons []struct {
			Code  string `json:"code"`
			Label string `json:"label"`
			Count int    `json:"count"`
		} `json:"reject_reasons"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Request)
	assert.Equal(t, 1, body.Win)
	assert.Equal(t, []string{"r2", "r1"}, body.FailedIDs)
	require.Len(t, body.RejectReasons, 1)
	assert.Equal(t, "Response timed out", body.RejectReasons[0].Label)
	assert.Equal(t, 2, body.RejectReasons[0].Count)
}

func TestHistogram(t *testing.T) {
	env := newTestEnv(t, Config{}, sampleLines()...)

	rec := env.do(t, http.MethodGet, "/api/histogram?hours=24&interval=3600", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var points []engine.HistogramPoint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &points))
	require.Len(t, points, 1)
	assert.Equal(t, 3, points[0].Count)
	assert.Equal(t, 2, points[0].Rejected)

	rec = env.do(t, http.MethodGet, "/api/histogram?interval=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReasonCodes(t *testing.T) {
	env := newTestEnv(t, Config{})

	rec := env.do(t, http.MethodGet, "/api/reason-codes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"LATENCY_TIMEOUT"`)
}

func TestAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	env := newTestEnv(t, Config{TokenHash: string(hash)})

	tests := []struct {
		name   string
		header []string
		want   int
	}{
		{"missing", nil, http.StatusUnauthorized},
		{"wrong", []string{"Authorization", "Bearer nope"}, http.StatusUnauthorized},
		{"basic scheme", []string{"Authorization", "Basic s3cret"}, http.StatusUnauthorized},
		{"valid", []string{"Authorization", "Bearer s3cret"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/api/stats", "", tt.header...)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	rec := env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, Config{RateLimit: 0.001, RateBurst: 2})

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/stats", "").Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/stats", "").Code)
	rec := env.do(t, http.MethodGet, "/api/stats", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// Health checks are not limited.
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", "").Code)
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t, Config{RequestTimeout: time.Second})

	rec := env.do(t, http.MethodGet, "/healthz", "")
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	rec = env.do(t, http.MethodGet, "/healthz", "", RequestIDHeader, "abc-123")
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestRecoverMiddleware(t *testing.T) {
	env := newTestEnv(t, Config{})
	s := env.server
	h := s.recoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", bytes.NewReader(nil)))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
