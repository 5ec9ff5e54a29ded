package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/MyraWang0406/ADX-Mirix-1.15/internal/model"
	"github.com/klauspost/compress/zstd"
)

// Writer appends trace records to the active log, one JSON object per
// line, and rotates the log into compressed segments.
type Writer struct {
	mu         sync.Mutex
	path       string
	archiveDir string
	loc        *time.Location

	encoder *zstd.Encoder
	decoder *Decoder

	// afterRead runs between reading and removing an archived file.
	afterRead func()
}

// archivingSuffix marks the active log while it is being archived.
const archivingSuffix = ".archiving"

// maxSegmentSeq bounds the search for a free segment name.
const maxSegmentSeq = 10000

// NewWriter creates a Writer. loc interprets zone-less timestamps when a
// segment's bounds are computed.
func NewWriter(path, archiveDir string, loc *time.Location) (*Writer, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.Local
	}
	return &Writer{
		path:       path,
		archiveDir: archiveDir,
		loc:        loc,
		encoder:    enc,
		decoder:    NewDecoder(),
	}, nil
}

// Close releases the zstd encoder.
func (w *Writer) Close() error {
	return w.encoder.Close()
}

// Append writes one record.
func (w *Writer) Append(rec model.TraceRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return w.WriteLines([][]byte{data})
}

// WriteLines appends already encoded records and syncs once.
// Lines must not contain newlines.
func (w *Writer) WriteLines(lines [][]byte) error {
	if len(lines) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, line := range lines {
		buf.Write(line)
		buf.WriteByte('\n')
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if dir := filepath.Dir(w.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Archive moves the active log into a compressed segment and leaves an
// empty active log behind. It returns the segment path, or "" when there
// was nothing to archive.
//
// The active log is renamed aside before it is read, so appenders that
// open the log per write land in a fresh file. Bytes that reach the
// renamed file through an already open handle after the read are copied
// back to the active log. A leftover file from an interrupted archive is
// archived first.
func (w *Writer) Archive() (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	aside := w.path + archivingSuffix
	var seg string
	if _, err := os.Stat(aside); err == nil {
		if seg, err = w.archiveFile(aside); err != nil {
			return "", err
		}
	}

	info, err := os.Stat(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			return seg, nil
		}
		return "", err
	}
	if info.Size() == 0 {
		return seg, nil
	}
	if err := os.Rename(w.path, aside); err != nil {
		return "", err
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return "", err
	}
	f.Close()
	return w.archiveFile(aside)
}

// archiveFile compresses src into a new segment and removes src.
func (w *Writer) archiveFile(src string) (string, error) {
	info, err := os.Stat(src)
	if err != nil {
		return "", err
	}
	raw, err := os.ReadFile(src)
	if err != nil {
		return "", err
	}
	if w.afterRead != nil {
		w.afterRead()
	}

	var path string
	if len(raw) > 0 {
		minTs, maxTs := w.bounds(raw)
		if minTs == 0 && maxTs == 0 {
			minTs = info.ModTime().UnixNano()
			maxTs = minTs
		}
		compressed := w.encoder.EncodeAll(raw, make([]byte, 0, len(raw)/4))
		if path, err = w.writeSegment(minTs, maxTs, compressed); err != nil {
			return "", err
		}
	}

	if err := w.requeueTail(src, int64(len(raw))); err != nil {
		return path, err
	}
	return path, os.Remove(src)
}

// writeSegment stores data under the first free segment name for the
// bounds. Existing segments are never replaced.
func (w *Writer) writeSegment(minTs, maxTs int64, data []byte) (string, error) {
	if err := os.MkdirAll(w.archiveDir, 0755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(w.archiveDir, "segment-*.tmp")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	for seq := 0; seq < maxSegmentSeq; seq++ {
		path := filepath.Join(w.archiveDir, segmentName(minTs, maxTs, seq))
		err := os.Link(tmpPath, path)
		if err == nil {
			return path, nil
		}
		if !os.IsExist(err) {
			return "", err
		}
	}
	return "", fmt.Errorf("no free segment name for bounds %d_%d", minTs, maxTs)
}

// requeueTail appends whatever src gained past offset to the active log.
func (w *Writer) requeueTail(src string, offset int64) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	tail, err := io.ReadAll(f)
	if err != nil || len(tail) == 0 {
		return err
	}

	out, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := out.Write(tail); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// bounds returns the smallest and largest parseable timestamps in raw.
func (w *Writer) bounds(raw []byte) (int64, int64) {
	var minTs, maxTs int64
	_, _ = w.decoder.DecodeStream(bytes.NewReader(raw), func(rec model.TraceRecord) {
		t, err := rec.Time(w.loc)
		if err != nil {
			return
		}
		ts := t.UnixNano()
		if minTs == 0 || ts < minTs {
			minTs = ts
		}
		if ts > maxTs {
			maxTs = ts
		}
	})
	return minTs, maxTs
}
