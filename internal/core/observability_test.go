package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestExpvarMetricsRecorder(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	rec.Observe(context.Background(), "[Hero] add-one", true, 2*time.Millisecond)
	rec.Observe(context.Background(), "[Hero] add-one", false, 4*time.Millisecond)
	rec.Observe(context.Background(), "", true, time.Millisecond)

	stats := rec.Snapshot().Actions["[Hero] add-one"]
	if stats.Dispatched != 2 || stats.Failed != 1 || stats.MaxMS != 4 || stats.TotalMS != 6 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if len(rec.Snapshot().Actions) != 1 {
		t.Fatalf("empty operation should be ignored")
	}
	v := expvar.Get(rec.Name())
	if v == nil || !strings.Contains(v.String(), `"dispatched":2`) {
		t.Fatalf("expvar export missing or stale: %v", v)
	}
}

func TestJSONTracer(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	tick := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tracer.now = func() time.Time {
		tick = tick.Add(time.Millisecond)
		return tick
	}
	_, span := tracer.Start(context.Background(), "[Hero] query-all")
	span.End(errors.New("offline"))
	span.End(nil)

	entries := tracer.Entries()
	if len(entries) != 1 {
		t.Fatalf("span should end once, got %d entries", len(entries))
	}
	if entries[0].Status != "error" || entries[0].Error != "offline" || entries[0].DurationMS != 1 {
		t.Fatalf("unexpected entry %+v", entries[0])
	}
	var line JSONTraceEntry
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil || line.Operation != "[Hero] query-all" {
		t.Fatalf("json line %q: %v", buf.String(), err)
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("NewPrometheusMetricsRecorder: %v", err)
	}
	rec.Observe(context.Background(), "[Hero] add-one", true, time.Millisecond)
	rec.Observe(context.Background(), "[Hero] add-one", false, time.Millisecond)
	if got := testutil.ToFloat64(rec.dispatched.WithLabelValues("[Hero] add-one", "success")); got != 1 {
		t.Fatalf("success count=%v", got)
	}
	if got := testutil.CollectAndCount(rec.duration); got != 1 {
		t.Fatalf("histogram series=%d", got)
	}
	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

func TestMultiRecorderFansOut(t *testing.T) {
	a, b := &captureMetricsRecorder{}, &captureMetricsRecorder{}
	MultiRecorder{a, nil, b}.Observe(context.Background(), "x", true, 0)
	if len(a.calls) != 1 || len(b.calls) != 1 {
		t.Fatalf("expected both recorders called")
	}
}
