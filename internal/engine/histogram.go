package engine

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/MyraWang0406/ADX-Mirix-1.15/internal/model"
)

// HistogramPoint is one time bucket; Time is the bucket start in Unix ms.
type HistogramPoint struct {
	Time     int64   `json:"time"`
	Count    int     `json:"count"`
	Rejected int     `json:"rejected"`
	Rate     float64 `json:"reject_rate"`
}

// ComputeHistogram buckets the records of the last hoursBack hours by
// interval and counts rejections per bucket. Bursts of rejections show
// up as buckets with a high reject rate.
func (qe *QueryEngine) ComputeHistogram(ctx context.Context, hoursBack int, interval time.Duration) ([]HistogramPoint, error) {
	if hoursBack <= 0 {
		hoursBack = qe.Options().HoursBack
	}
	if interval <= 0 {
		interval = time.Hour
	}

	records, scan, err := qe.readWindow(ctx)
	qe.observeScan(scan)
	if err != nil {
		if errors.Is(err, model.ErrSourceUnavailable) {
			return []HistogramPoint{}, nil
		}
		return nil, err
	}

	return BucketRejections(records, qe.Now(), hoursBack, interval, qe.Options().Location), nil
}

// BucketRejections is the pure part of ComputeHistogram.
func BucketRejections(records []model.TraceRecord, now time.Time, hoursBack int, interval time.Duration, loc *time.Location) []HistogramPoint {
	start := windowStart(now, hoursBack)
	step := interval.Milliseconds()
	if step <= 0 {
		step = time.Hour.Milliseconds()
	}

	buckets := make(map[int64]*HistogramPoint)
	for i := range records {
		t, err := records[i].Time(loc)
		if err != nil || t.Before(start) || t.After(now) {
			continue
		}
		ms := t.UnixMilli()
		key := ms - ((ms%step)+step)%step
		p, ok := buckets[key]
		if !ok {
			p = &HistogramPoint{Time: key}
			buckets[key] = p
		}
		p.Count++
		if records[i].IsRejected() {
			p.Rejected++
		}
	}

	points := make([]HistogramPoint, 0, len(buckets))
	for _, p := range buckets {
		p.Rate = float64(p.Rejected) / float64(p.Count)
		points = append(points, *p)
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].Time < points[j].Time
	})
	return points
}
