package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

var expvarSeq atomic.Uint64

// opStats accumulates the outcomes of one service operation.
type opStats struct {
	totalMS          float64
	success, failure int64
	created, failed  int64
}

// ExpvarMetricsRecorder keeps per-operation latency totals, outcome counts
// and bulk record counts, and publishes them as one expvar variable.
type ExpvarMetricsRecorder struct {
	name string
	mu   sync.Mutex
	ops  map[string]*opStats
}

// ExpvarMetricsSnapshot is the published form of an ExpvarMetricsRecorder.
// Results is keyed by operation then "success"/"error"; Records by operation
// then "created"/"failed".
type ExpvarMetricsSnapshot struct {
	DurationsMS map[string]float64          `json:"durations_ms_total"`
	Results     map[string]map[string]int64 `json:"results_total"`
	Records     map[string]map[string]int64 `json:"batch_records_total"`
	RecordedAt  time.Time                   `json:"recorded_at"`
}

// NewExpvarMetricsRecorder publishes a recorder under name, or under
// crm_service_metrics_<n> when name is empty.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = fmt.Sprintf("crm_service_metrics_%d", expvarSeq.Add(1))
	}
	rec := &ExpvarMetricsRecorder{name: name, ops: make(map[string]*opStats)}
	expvar.Publish(name, expvar.Func(func() any { return rec.Snapshot() }))
	return rec
}

// Name is the expvar variable name.
func (r *ExpvarMetricsRecorder) Name() string { return r.name }

// stats returns the accumulator for op. Callers hold r.mu.
func (r *ExpvarMetricsRecorder) stats(op string) *opStats {
	st, ok := r.ops[op]
	if !ok {
		st = &opStats{}
		r.ops[op] = st
	}
	return st
}

// Observe implements MetricsRecorder.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.stats(operation)
	st.totalMS += float64(duration) / float64(time.Millisecond)
	if success {
		st.success++
	} else {
		st.failure++
	}
}

// ObserveBatch implements BatchMetricsRecorder.
func (r *ExpvarMetricsRecorder) ObserveBatch(_ context.Context, operation string, created, failed int) {
	if operation == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.stats(operation)
	st.created += int64(created)
	st.failed += int64(failed)
}

// Snapshot copies the current totals. Operations without batch activity are
// left out of Records, and batch-only operations out of Results.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := ExpvarMetricsSnapshot{
		DurationsMS: make(map[string]float64, len(r.ops)),
		Results:     make(map[string]map[string]int64, len(r.ops)),
		Records:     make(map[string]map[string]int64),
		RecordedAt:  time.Now().UTC(),
	}
	for op, st := range r.ops {
		if st.success+st.failure > 0 {
			snap.DurationsMS[op] = st.totalMS
			snap.Results[op] = map[string]int64{"success": st.success, "error": st.failure}
		}
		if st.created+st.failed > 0 {
			snap.Records[op] = map[string]int64{"created": st.created, "failed": st.failed}
		}
	}
	return snap
}

// JSONTraceEntry is one finished span.
type JSONTraceEntry struct {
	Operation  string    `json:"operation"`
	Status     string    `json:"status"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// JSONTraceTracer writes each finished span as a JSON line and keeps it in
// memory. A nil writer only keeps entries.
type JSONTraceTracer struct {
	mu      sync.Mutex
	out     *json.Encoder
	entries []JSONTraceEntry
}

// NewJSONTracer returns a tracer writing to w.
func NewJSONTracer(w io.Writer) *JSONTraceTracer {
	t := &JSONTraceTracer{}
	if w != nil {
		t.out = json.NewEncoder(w)
	}
	return t
}

// Entries returns the finished spans in end order.
func (t *JSONTraceTracer) Entries() []JSONTraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]JSONTraceEntry(nil), t.entries...)
}

// Start implements Tracer.
func (t *JSONTraceTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &jsonSpan{tracer: t, operation: operation, started: time.Now().UTC()}
}

func (t *JSONTraceTracer) record(e JSONTraceEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, e)
	if t.out != nil {
		_ = t.out.Encode(e)
	}
}

type jsonSpan struct {
	tracer    *JSONTraceTracer
	operation string
	started   time.Time
}

func (s *jsonSpan) End(err error) {
	ended := time.Now().UTC()
	e := JSONTraceEntry{
		Operation:  s.operation,
		Status:     string(AuditStatusSuccess),
		DurationMS: float64(ended.Sub(s.started)) / float64(time.Millisecond),
		StartedAt:  s.started,
		EndedAt:    ended,
	}
	if err != nil {
		e.Status = string(AuditStatusError)
		e.Error = err.Error()
	}
	s.tracer.record(e)
}
