package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/valyala/fastjson"

	"github.com/MyraWang0406/ADX-Mirix-1.15/internal/engine"
	"github.com/MyraWang0406/ADX-Mirix-1.15/internal/model"
	"github.com/MyraWang0406/ADX-Mirix-1.15/internal/pkg/traceql"
	"github.com/MyraWang0406/ADX-Mirix-1.15/internal/reasoncode"
)

// maxIngestBody bounds one ingest request.
const maxIngestBody = 4 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// handleHistory runs one correlation. Missing history is a 200 with
// status no_data; any failure is a 500 with status error.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	var req engine.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		res := engine.EmptyResult(engine.StatusError)
		res.Error = "invalid JSON: " + err.Error()
		writeJSON(w, r, http.StatusBadRequest, res)
		return
	}

	res := s.queryEngine.History(r.Context(), req)
	code := http.StatusOK
	if res.Status == engine.StatusError {
		code = http.StatusInternalServerError
	}
	writeJSON(w, r, code, res)
}

type logsResponse struct {
	Logs      []model.TraceRecord `json:"logs"`
	Total     int                 `json:"total"`
	Timestamp string              `json:"timestamp"`
}

// handleLogs returns the live slice, newest first, optionally filtered
// by decision, node and a traceql expression in q.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter, err := traceql.Parse(q.Get("q"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, r, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	records, err := s.queryEngine.Recent(r.Context(), limit)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Failed to read recent traces")
		writeJSON(w, r, http.StatusInternalServerError, map[string]any{
			"error": "failed to read trace log",
			"logs":  []model.TraceRecord{},
			"total": 0,
		})
		return
	}

	decision, node := q.Get("decision"), q.Get("node")
	if decision != "" || node != "" {
		filtered := make([]model.TraceRecord, 0, len(records))
		for _, rec := range records {
			if decision != "" && rec.Decision != decision {
				continue
			}
			if node != "" && rec.Node != node {
				continue
			}
			filtered = append(filtered, rec)
		}
		records = filtered
	}
	records = traceql.Filter(filter, records)

	writeJSON(w, r, http.StatusOK, logsResponse{
		Logs:      records,
		Total:     len(records),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

type labeledReason struct {
	Code  string `json:"code"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

type funnelResponse struct {
	engine.Funnel
	RejectReasons []labeledReason `json:"reject_reasons"`
}

func (s *Server) handleFunnel(w http.ResponseWriter, r *http.Request) {
	f, err := s.queryEngine.Funnel(r.Context())
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Failed to compute funnel")
		writeError(w, r, http.StatusInternalServerError, "failed to compute funnel")
		return
	}

	reasons := make([]labeledReason, 0, len(f.RejectReasons))
	for _, rc := range f.RejectReasons {
		reasons = append(reasons, labeledReason{Code: rc.Code, Label: s.catalog.Label(rc.Code), Count: rc.Count})
	}
	writeJSON(w, r, http.StatusOK, funnelResponse{Funnel: f, RejectReasons: reasons})
}

func (s *Server) handleCurrentPattern(w http.ResponseWriter, r *http.Request) {
	pattern, err := s.queryEngine.CurrentPattern(r.Context())
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Failed to derive current pattern")
		writeError(w, r, http.StatusInternalServerError, "failed to derive current pattern")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"currentPattern": pattern})
}

// handleHistogram buckets the window. hours defaults to the configured
// window; interval is in seconds and defaults to one hour.
func (s *Server) handleHistogram(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	hours := 0
	if v := q.Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid hours")
			return
		}
		hours = n
	}
	interval := time.Hour
	if v := q.Get("interval"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, "invalid interval")
			return
		}
		interval = time.Duration(n) * time.Second
	}

	points, err := s.queryEngine.ComputeHistogram(r.Context(), hours, interval)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Failed to compute histogram")
		writeError(w, r, http.StatusInternalServerError, "failed to compute histogram")
		return
	}
	writeJSON(w, r, http.StatusOK, points)
}

type statsResponse struct {
	engine.SystemStats
	Ingested int64 `json:"ingested"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, statsResponse{
		SystemStats: s.queryEngine.GetStats(),
		Ingested:    s.ingested.Load(),
	})
}

func (s *Server) handleReasonCodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string][]reasoncode.Entry{"codes": s.catalog.Entries()})
}

// handleIngest appends a single trace object or an array of them to the
// active log. The batch is all-or-nothing.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.writer == nil {
		writeError(w, r, http.StatusServiceUnavailable, "ingestion disabled")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIngestBody))
	if err != nil {
		writeError(w, r, http.StatusRequestEntityTooLarge, "failed to read body")
		return
	}

	p := s.parser.Get()
	defer s.parser.Put(p)

	v, err := p.ParseBytes(body)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	var items []*fastjson.Value
	if v.Type() == fastjson.TypeArray {
		items, _ = v.Array()
	} else {
		items = []*fastjson.Value{v}
	}

	lines := make([][]byte, 0, len(items))
	for i, item := range items {
		if item.Type() != fastjson.TypeObject {
			writeError(w, r, http.StatusBadRequest, "item "+strconv.Itoa(i)+": not an object")
			return
		}
		if len(item.GetStringBytes("request_id")) == 0 || len(item.GetStringBytes("timestamp")) == 0 {
			writeError(w, r, http.StatusBadRequest, "item "+strconv.Itoa(i)+": request_id and timestamp are required")
			return
		}
		lines = append(lines, item.MarshalTo(nil))
	}

	if err := s.writer.WriteLines(lines); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Failed to append traces")
		writeError(w, r, http.StatusInternalServerError, "failed to append traces")
		return
	}

	s.ingested.Add(int64(len(lines)))
	writeJSON(w, r, http.StatusOK, map[string]int{"accepted": len(lines)})
}
