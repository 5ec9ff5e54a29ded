package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/MyraWang0406/ADX-Mirix-1.15/internal/model"
	"github.com/klauspost/compress/zstd"
)

// Source reads the trace log: archived segments first, then the active
// file. It holds no per-request state and is safe for concurrent use.
type Source struct {
	path       string
	archiveDir string
	maxLines   int

	decoder *Decoder
	zdec    *zstd.Decoder
}

// NewSource creates a Source over the active log at path and the
// segments in archiveDir. maxLines caps Read to the newest lines; zero or
// less reads everything.
func NewSource(path, archiveDir string, maxLines int) (*Source, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &Source{
		path:       path,
		archiveDir: archiveDir,
		maxLines:   maxLines,
		decoder:    NewDecoder(),
		zdec:       dec,
	}, nil
}

// Close releases the zstd decoder.
func (s *Source) Close() {
	s.zdec.Close()
}

// Path returns the active log path.
func (s *Source) Path() string {
	return s.path
}

// Read decodes the newest maxLines lines in file order (oldest first).
func (s *Source) Read(ctx context.Context) ([]model.TraceRecord, model.ScanStats, error) {
	return s.ReadTail(ctx, s.maxLines)
}

// Recent decodes the newest limit lines, newest first. Malformed lines
// among them are dropped, so fewer than limit records may be returned.
func (s *Source) Recent(ctx context.Context, limit int) ([]model.TraceRecord, model.ScanStats, error) {
	recs, stats, err := s.ReadTail(ctx, limit)
	if err != nil {
		return nil, stats, err
	}
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	return recs, stats, nil
}

// ReadTail decodes the last limit non-blank lines across all files.
// It returns model.ErrSourceUnavailable when neither the active log nor
// any segment exists, or when one of them cannot be read.
func (s *Source) ReadTail(ctx context.Context, limit int) ([]model.TraceRecord, model.ScanStats, error) {
	var stats model.ScanStats

	segs, err := ListSegments(s.archiveDir)
	if err != nil {
		return nil, stats, fmt.Errorf("%w: %v", model.ErrSourceUnavailable, err)
	}

	activeExists := true
	if _, err := os.Stat(s.path); err != nil {
		if !os.IsNotExist(err) {
			return nil, stats, fmt.Errorf("%w: %v", model.ErrSourceUnavailable, err)
		}
		activeExists = false
	}
	if !activeExists && len(segs) == 0 {
		return nil, stats, fmt.Errorf("%w: %s not found", model.ErrSourceUnavailable, s.path)
	}

	ring := newLineRing(limit)
	for _, seg := range segs {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		data, err := s.readSegment(seg.Path)
		if err != nil {
			return nil, stats, fmt.Errorf("%w: segment %s: %v", model.ErrSourceUnavailable, seg.Path, err)
		}
		ring.collect(data)
		stats.Files++
	}

	if activeExists {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		data, err := os.ReadFile(s.path)
		if err != nil {
			return nil, stats, fmt.Errorf("%w: %v", model.ErrSourceUnavailable, err)
		}
		ring.collect(data)
		stats.Files++
	}

	lines := ring.lines()
	recs := make([]model.TraceRecord, 0, len(lines))
	for _, line := range lines {
		stats.Lines++
		rec, err := s.decoder.Decode(line)
		if err != nil {
			stats.Skipped++
			continue
		}
		stats.Decoded++
		recs = append(recs, rec)
	}
	return recs, stats, nil
}

// readSegment reads and decompresses an archived segment.
func (s *Source) readSegment(path string) ([]byte, error) {
	compressed, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return s.zdec.DecodeAll(compressed, nil)
}

// lineRing keeps the last n non-blank lines it is fed; n <= 0 keeps all.
type lineRing struct {
	n     int
	buf   [][]byte
	start int
}

func newLineRing(n int) *lineRing {
	return &lineRing{n: n}
}

func (r *lineRing) push(line []byte) {
	if r.n <= 0 || len(r.buf) < r.n {
		r.buf = append(r.buf, line)
		return
	}
	r.buf[r.start] = line
	r.start = (r.start + 1) % r.n
}

// collect splits data into lines. Slices alias data, which stays alive
// for as long as the ring references it.
func (r *lineRing) collect(data []byte) {
	for len(data) > 0 {
		var line []byte
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			line, data = data[:i], data[i+1:]
		} else {
			line, data = data, nil
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		r.push(line)
	}
}

func (r *lineRing) lines() [][]byte {
	if r.start == 0 {
		return r.buf
	}
	out := make([][]byte, 0, len(r.buf))
	out = append(out, r.buf[r.start:]...)
	return append(out, r.buf[:r.start]...)
}
