// Package emitter ships trace records to a remote whitebox server in
// batches over POST /api/ingest.
package emitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/MyraWang0406/ADX-Mirix-1.15/internal/model"
)

// ErrQueueFull is returned by Emit when the queue cannot take more records.
var ErrQueueFull = errors.New("emitter queue full")

// ErrClosed is returned by Emit after Close.
var ErrClosed = errors.New("emitter closed")

// Options configures an Emitter.
type Options struct {
	ServerURL     string
	Token         string
	BatchSize     int
	FlushInterval time.Duration
	QueueSize     int
	Client        *http.Client
	Logger        zerolog.Logger
}

// Stats counts shipped and lost records.
type Stats struct {
	Sent    int64 `json:"sent"`
	Dropped int64 `json:"dropped"`
	Failed  int64 `json:"failed"`
}

// Emitter queues records and sends them from a single background loop.
type Emitter struct {
	opts  Options
	url   string
	queue chan []byte
	done  chan struct{}
	wg    sync.WaitGroup

	// mu orders sends against Close: once closed is set under the write
	// lock, no record can enter the queue behind the final drain.
	mu     sync.RWMutex
	closed bool

	sent    atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

// New starts an Emitter.
func New(opts Options) *Emitter {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = time.Second
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 10000
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 5 * time.Second}
	}

	e := &Emitter{
		opts:  opts,
		url:   strings.TrimRight(opts.ServerURL, "/") + "/api/ingest",
		queue: make(chan []byte, opts.QueueSize),
		done:  make(chan struct{}),
	}
	e.wg.Add(1)
	go e.runLoop()
	return e
}

// Emit queues one record. It never blocks.
func (e *Emitter) Emit(rec model.TraceRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return e.EmitRaw(data)
}

// EmitRaw queues an already encoded record.
func (e *Emitter) EmitRaw(data []byte) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrClosed
	}
	select {
	case e.queue <- data:
		return nil
	default:
		e.dropped.Add(1)
		return ErrQueueFull
	}
}

// Stats returns the current counters.
func (e *Emitter) Stats() Stats {
	return Stats{Sent: e.sent.Load(), Dropped: e.dropped.Load(), Failed: e.failed.Load()}
}

// Close flushes the queue and stops the loop. It returns ctx.Err() if
// the flush does not finish in time.
func (e *Emitter) Close(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.done)
	}
	e.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Emitter) runLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.opts.FlushInterval)
	defer ticker.Stop()

	var batch [][]byte
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := e.send(batch); err != nil {
			e.failed.Add(int64(len(batch)))
			e.opts.Logger.Warn().Err(err).Int("records", len(batch)).Msg("Failed to ship traces")
		} else {
			e.sent.Add(int64(len(batch)))
		}
		batch = nil
	}

	for {
		select {
		case data := <-e.queue:
			batch = append(batch, data)
			if len(batch) >= e.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-e.done:
			for {
				select {
				case data := <-e.queue:
					batch = append(batch, data)
					if len(batch) >= e.opts.BatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

// send posts batch as one JSON array.
func (e *Emitter) send(batch [][]byte) error {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, b := range batch {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(b)
	}
	buf.WriteByte(']')

	req, err := http.NewRequest(http.MethodPost, e.url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if e.opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+e.opts.Token)
	}

	resp, err := e.opts.Client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ingest: HTTP %d", resp.StatusCode)
	}
	return nil
}
