package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MyraWang0406/ADX-Mirix-1.15/internal/model"
)

type ingestRecorder struct {
	mu      sync.Mutex
	batches [][]map[string]any
	auth    []string
	status  int
}

func (r *ingestRecorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	body, _ := io.ReadAll(req.Body)
	var batch []map[string]any
	_ = json.Unmarshal(body, &batch)

	r.mu.Lock()
	r.batches = append(r.batches, batch)
	r.auth = append(r.auth, req.Header.Get("Authorization"))
	status := r.status
	r.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
}

func (r *ingestRecorder) snapshot() ([][]map[string]any, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]map[string]any(nil), r.batches...), append([]string(nil), r.auth...)
}

func (r *ingestRecorder) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.batches {
		n += len(b)
	}
	return n
}

func TestEmitter_BatchesAndFlushesOnClose(t *testing.T) {
	rec := &ingestRecorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	e := New(Options{
		ServerURL:     srv.URL + "/",
		Token:         "s3cret",
		BatchSize:     2,
		FlushInterval: time.Hour,
		Logger:        zerolog.Nop(),
	})

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, e.Emit(model.TraceRecord{RequestID: id, Timestamp: "2026-10-16T10:00:00Z"}))
	}
	require.NoError(t, e.Close(context.Background()))

	batches, auth := rec.snapshot()
	assert.Equal(t, 3, rec.total())
	require.Len(t, batches, 2)
	assert.Equal(t, "a", batches[0][0]["request_id"])
	assert.Equal(t, "Bearer s3cret", auth[0])
	assert.Equal(t, Stats{Sent: 3}, e.Stats())

	assert.ErrorIs(t, e.Emit(model.TraceRecord{RequestID: "late"}), ErrClosed)
}

func TestEmitter_FlushInterval(t *testing.T) {
	rec := &ingestRecorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	e := New(Options{ServerURL: srv.URL, FlushInterval: 10 * time.Millisecond, Logger: zerolog.Nop()})
	defer e.Close(context.Background())

	require.NoError(t, e.EmitRaw([]byte(`{"request_id":"x","timestamp":"2026-10-16T10:00:00Z"}`)))
	assert.Eventually(t, func() bool { return rec.total() == 1 }, time.Second, 5*time.Millisecond)
}

func TestEmitter_CountsFailures(t *testing.T) {
	rec := &ingestRecorder{status: http.StatusUnauthorized}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	e := New(Options{ServerURL: srv.URL, FlushInterval: time.Hour, Logger: zerolog.Nop()})
	require.NoError(t, e.Emit(model.TraceRecord{RequestID: "a"}))
	require.NoError(t, e.Close(context.Background()))

	assert.Equal(t, Stats{Failed: 1}, e.Stats())
}

func TestEmitter_QueueFull(t *testing.T) {
	e := &Emitter{queue: make(chan []byte, 1)}
	require.NoError(t, e.EmitRaw([]byte(`{}`)))
	assert.ErrorIs(t, e.EmitRaw([]byte(`{}`)), ErrQueueFull)
	assert.EqualValues(t, 1, e.Stats().Dropped)
}

func TestEmitter_EmitRacingCloseIsAccounted(t *testing.T) {
	rec := &ingestRecorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	e := New(Options{ServerURL: srv.URL, BatchSize: 16, FlushInterval: time.Hour, Logger: zerolog.Nop()})

	var (
		wg       sync.WaitGroup
		accepted atomic.Int64
	)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				err := e.EmitRaw([]byte(`{"request_id":"r","timestamp":"2026-10-16T10:00:00Z"}`))
				if err == nil {
					accepted.Add(1)
				}
				if errors.Is(err, ErrClosed) {
					return
				}
			}
		}()
	}
	require.NoError(t, e.Close(context.Background()))
	wg.Wait()

	st := e.Stats()
	assert.Equal(t, accepted.Load(), st.Sent+st.Failed)
	assert.EqualValues(t, rec.total(), st.Sent)
}
