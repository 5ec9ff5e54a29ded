package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Archived segments are named trace_{minTs}_{maxTs}.jsonl.zst, with
// Unix-nanosecond bounds of the timestamps they contain. Later segments
// with the same bounds get a sequence suffix: trace_{minTs}_{maxTs}_{seq}.
const (
	segmentPrefix = "trace_"
	segmentSuffix = ".jsonl.zst"
)

var ErrInvalidSegmentName = errors.New("invalid segment file name")

// Segment is one archived, zstd-compressed slice of the trace log.
type Segment struct {
	Path  string
	MinTs int64
	MaxTs int64
	Seq   int
}

func segmentName(minTs, maxTs int64, seq int) string {
	if seq == 0 {
		return fmt.Sprintf("%s%d_%d%s", segmentPrefix, minTs, maxTs, segmentSuffix)
	}
	return fmt.Sprintf("%s%d_%d_%d%s", segmentPrefix, minTs, maxTs, seq, segmentSuffix)
}

// parseSegmentName extracts the bounds and sequence from a segment name.
func parseSegmentName(name string) (minTs, maxTs int64, seq int, err error) {
	if !strings.HasPrefix(name, segmentPrefix) || !strings.HasSuffix(name, segmentSuffix) {
		return 0, 0, 0, ErrInvalidSegmentName
	}
	base := strings.TrimSuffix(strings.TrimPrefix(name, segmentPrefix), segmentSuffix)
	parts := strings.Split(base, "_")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, 0, 0, ErrInvalidSegmentName
	}

	if minTs, err = strconv.ParseInt(parts[0], 10, 64); err != nil {
		return 0, 0, 0, ErrInvalidSegmentName
	}
	if maxTs, err = strconv.ParseInt(parts[1], 10, 64); err != nil {
		return 0, 0, 0, ErrInvalidSegmentName
	}
	if len(parts) == 3 {
		if seq, err = strconv.Atoi(parts[2]); err != nil || seq <= 0 {
			return 0, 0, 0, ErrInvalidSegmentName
		}
	}
	return minTs, maxTs, seq, nil
}

// ListSegments returns the segments in dir, oldest first. A missing
// directory has no segments.
func ListSegments(dir string) ([]Segment, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var segs []Segment
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		minTs, maxTs, seq, err := parseSegmentName(entry.Name())
		if err != nil {
			continue
		}
		segs = append(segs, Segment{
			Path:  filepath.Join(dir, entry.Name()),
			MinTs: minTs,
			MaxTs: maxTs,
			Seq:   seq,
		})
	}

	sort.Slice(segs, func(i, j int) bool {
		if segs[i].MinTs != segs[j].MinTs {
			return segs[i].MinTs < segs[j].MinTs
		}
		if segs[i].MaxTs != segs[j].MaxTs {
			return segs[i].MaxTs < segs[j].MaxTs
		}
		return segs[i].Seq < segs[j].Seq
	})
	return segs, nil
}

// PurgeSegments removes every segment in dir whose newest record is older
// than before, returning the removed file names.
func PurgeSegments(dir string, before time.Time) ([]string, error) {
	segs, err := ListSegments(dir)
	if err != nil {
		return nil, err
	}

	threshold := before.UnixNano()
	var removed []string
	var errs []error
	for _, seg := range segs {
		if seg.MaxTs >= threshold {
			continue
		}
		if err := os.Remove(seg.Path); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", filepath.Base(seg.Path), err))
			continue
		}
		removed = append(removed, filepath.Base(seg.Path))
	}
	return removed, errors.Join(errs...)
}
