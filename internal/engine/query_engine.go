package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/MyraWang0406/ADX-Mirix-1.15/internal/metrics"
	"github.com/MyraWang0406/ADX-Mirix-1.15/internal/model"
)

// WindowReaderFunc reads the bounded history window, oldest first.
// This keeps the engine package independent of the storage package.
type WindowReaderFunc func(ctx context.Context) ([]model.TraceRecord, model.ScanStats, error)

// RecentReaderFunc reads the newest limit records, newest first.
type RecentReaderFunc func(ctx context.Context, limit int) ([]model.TraceRecord, model.ScanStats, error)

// PurgeFunc removes archived data older than before and returns what it removed.
type PurgeFunc func(before time.Time) ([]string, error)

// DefaultRecentLimit is the size of the live slice.
const DefaultRecentLimit = 100

// Config holds QueryEngine settings.
type Config struct {
	Options     Options
	RecentLimit int
	Retention   time.Duration
}

// QueryEngine serves correlation, live-slice and funnel queries over the
// trace store. Every call re-reads the store; nothing is cached between
// calls.
type QueryEngine struct {
	readWindow WindowReaderFunc
	readRecent RecentReaderFunc
	purge      PurgeFunc

	correlator  *Correlator
	recentLimit int
	Retention   time.Duration

	// Now is the clock; tests replace it.
	Now func() time.Time

	logger zerolog.Logger
	stats  counters
}

// NewQueryEngine wires the engine to its store. purge may be nil when
// there is no archive to clean.
func NewQueryEngine(cfg Config, readWindow WindowReaderFunc, readRecent RecentReaderFunc, purge PurgeFunc, logger zerolog.Logger) *QueryEngine {
	limit := cfg.RecentLimit
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	return &QueryEngine{
		readWindow:  readWindow,
		readRecent:  readRecent,
		purge:       purge,
		correlator:  NewCorrelator(cfg.Options),
		recentLimit: limit,
		Retention:   cfg.Retention,
		Now:         time.Now,
		logger:      logger.With().Str("component", "query_engine").Logger(),
	}
}

// Options returns the effective correlation options.
func (qe *QueryEngine) Options() Options {
	return qe.correlator.Options()
}

// History runs one correlation request. It never returns an error: a
// missing store yields StatusNoData, and any failure (including a panic)
// yields StatusError with an empty match list.
func (qe *QueryEngine) History(ctx context.Context, req Request) (res Result) {
	start := time.Now()
	id := uuid.NewString()
	log := qe.logger.With().Str("analysis_id", id).Str("pattern", req.CurrentPattern).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Correlation panicked")
			res = qe.failed(id, fmt.Errorf("%w: %v", ErrUnexpected, r))
		}
		qe.stats.analyses.Add(1)
		if res.Status == StatusError {
			qe.stats.analysisErrors.Add(1)
		}
		elapsed := time.Since(start)
		metrics.ObserveAnalysis(res.Status, res.RecentLogsCount, elapsed)
		log.Debug().Str("status", res.Status).Int("matches", len(res.Matches)).
			Int("recent_logs", res.RecentLogsCount).Dur("elapsed", elapsed).Msg("Correlation finished")
	}()

	records, scan, err := qe.readWindow(ctx)
	qe.observeScan(scan)
	if err != nil {
		if errors.Is(err, model.ErrSourceUnavailable) {
			log.Debug().Err(err).Msg("No trace history available")
			res = EmptyResult(StatusNoData)
			res.AnalysisID = id
			res.Summary = NoDataSummary
			return res
		}
		log.Error().Err(err).Msg("Failed to read trace window")
		return qe.failed(id, err)
	}

	res, err = qe.correlator.Analyze(ctx, req, records, qe.Now())
	if err != nil {
		log.Error().Err(err).Msg("Correlation failed")
		return qe.failed(id, err)
	}
	res.AnalysisID = id
	return res
}

func (qe *QueryEngine) failed(id string, err error) Result {
	res := EmptyResult(StatusError)
	res.AnalysisID = id
	res.Error = err.Error()
	return res
}

// Recent returns the live slice, newest first. A missing store is an
// empty slice.
func (qe *QueryEngine) Recent(ctx context.Context, limit int) ([]model.TraceRecord, error) {
	if limit <= 0 {
		limit = qe.recentLimit
	}
	records, scan, err := qe.readRecent(ctx, limit)
	qe.observeScan(scan)
	if err != nil {
		if errors.Is(err, model.ErrSourceUnavailable) {
			return []model.TraceRecord{}, nil
		}
		return nil, err
	}
	return records, nil
}

// Funnel computes the funnel view over the live slice.
func (qe *QueryEngine) Funnel(ctx context.Context) (Funnel, error) {
	records, err := qe.Recent(ctx, 0)
	if err != nil {
		return Funnel{}, err
	}
	return ComputeFunnel(records), nil
}

// CurrentPattern derives the query signature from the live slice.
// It returns "" when the slice holds no rejections.
func (qe *QueryEngine) CurrentPattern(ctx context.Context) (string, error) {
	records, err := qe.Recent(ctx, 0)
	if err != nil {
		return "", err
	}
	return CurrentPattern(records, qe.Now(), qe.Options().Location), nil
}

func (qe *QueryEngine) observeScan(scan model.ScanStats) {
	qe.stats.linesScanned.Add(int64(scan.Lines))
	qe.stats.linesSkipped.Add(int64(scan.Skipped))
	metrics.ObserveScan(scan.Lines, scan.Skipped)
}
