package engine

import (
	"context"
	"time"

	"github.com/MyraWang0406/ADX-Mirix-1.15/internal/model"
)

// Result statuses.
const (
	StatusOK     = "ok"
	StatusNoData = "no_data"
	StatusError  = "error"
)

// NoDataSummary is returned when the backing store does not exist yet.
const NoDataSummary = "No historical data yet"

// Request asks which past patterns resemble CurrentPattern.
type Request struct {
	CurrentPattern string `json:"currentPattern"`
	HoursBack      int    `json:"hoursBack"`
}

// Result is the response shape of every correlation call, including
// failures, so callers never branch on transport errors.
type Result struct {
	Status          string              `json:"status"`
	AnalysisID      string              `json:"analysis_id,omitempty"`
	Matches         []HistoricalPattern `json:"matches"`
	Summary         string              `json:"summary"`
	TotalPatterns   int                 `json:"total_patterns"`
	RecentLogsCount int                 `json:"recent_logs_count"`
	Error           string              `json:"error,omitempty"`
}

// EmptyResult returns a well-formed result with no matches.
func EmptyResult(status string) Result {
	return Result{Status: status, Matches: make([]HistoricalPattern, 0)}
}

// Correlator runs the aggregation and matching pipeline. It holds only
// immutable options and is safe for concurrent use.
type Correlator struct {
	opts Options
}

// NewCorrelator creates a Correlator; zero option fields take defaults.
func NewCorrelator(opts Options) *Correlator {
	return &Correlator{opts: opts.withDefaults()}
}

// Options returns the effective options.
func (c *Correlator) Options() Options {
	return c.opts
}

// Analyze matches req against records as of now.
func (c *Correlator) Analyze(ctx context.Context, req Request, records []model.TraceRecord, now time.Time) (Result, error) {
	hours := req.HoursBack
	if hours <= 0 {
		hours = c.opts.HoursBack
	}

	w, err := Aggregate(ctx, records, hours, now, c.opts.Location)
	if err != nil {
		return Result{}, err
	}

	mr, err := Match(ctx, w, req.CurrentPattern, c.opts)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Status:          StatusOK,
		Matches:         mr.Matches,
		Summary:         Summarize(mr.Matches, c.opts),
		TotalPatterns:   mr.TotalPatterns,
		RecentLogsCount: mr.RecentLogsCount,
	}, nil
}
