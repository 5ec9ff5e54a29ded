package engine

import (
	"sync/atomic"
	"time"
)

// counters are process-lifetime totals; they are reset on restart.
type counters struct {
	linesScanned   atomic.Int64
	linesSkipped   atomic.Int64
	analyses       atomic.Int64
	analysisErrors atomic.Int64
	segmentsPurged atomic.Int64
}

// SystemStats contains engine counters for the API response.
type SystemStats struct {
	LinesScanned   int64   `json:"lines_scanned"`
	LinesSkipped   int64   `json:"lines_skipped"`
	Analyses       int64   `json:"analyses"`
	AnalysisErrors int64   `json:"analysis_errors"`
	SegmentsPurged int64   `json:"segments_purged"`
	Threshold      float64 `json:"threshold"`
	TopN           int     `json:"top_n"`
	HoursBack      int     `json:"hours_back"`
	Retention      string  `json:"retention"`
	Timestamp      string  `json:"timestamp"`
}

// GetStats returns a snapshot of the engine counters and policy.
func (qe *QueryEngine) GetStats() SystemStats {
	opts := qe.Options()
	return SystemStats{
		LinesScanned:   qe.stats.linesScanned.Load(),
		LinesSkipped:   qe.stats.linesSkipped.Load(),
		Analyses:       qe.stats.analyses.Load(),
		AnalysisErrors: qe.stats.analysisErrors.Load(),
		SegmentsPurged: qe.stats.segmentsPurged.Load(),
		Threshold:      opts.Threshold,
		TopN:           opts.TopN,
		HoursBack:      opts.HoursBack,
		Retention:      qe.Retention.String(),
		Timestamp:      qe.Now().Format(time.RFC3339),
	}
}
