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

type captureMetricsRecorder struct{ calls []string }

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	status := "error"
	if success {
		status = "success"
	}
	c.calls = append(c.calls, op+":"+status)
}

type captureTracer struct{ spans []string }

type captureSpan struct {
	t  *captureTracer
	op string
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	return ctx, captureSpan{t: c, op: op}
}

func (s captureSpan) End(err error) {
	if err != nil {
		s.t.spans = append(s.t.spans, s.op+":err")
		return
	}
	s.t.spans = append(s.t.spans, s.op+":ok")
}

func TestServiceObservabilityHooks(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	tracer := &captureTracer{}
	log := &captureLogger{}
	svc := NewInMemoryService(nil, WithLogger(log), WithMetricsRecorder(metrics), WithTracer(tracer), WithClock(stubClock{t: testNow}))
	ctx := context.Background()

	if _, _, err := svc.AddCategory(ctx, Category{Name: "Tools", Color: "#000000"}); err != nil {
		t.Fatalf("add category: %v", err)
	}
	if _, err := svc.DeleteCategory(ctx, UncategorizedCategoryID); err == nil {
		t.Fatalf("expected sentinel delete to fail")
	}
	if len(metrics.calls) != 2 || metrics.calls[0] != "add_category:success" || metrics.calls[1] != "delete_category:error" {
		t.Fatalf("unexpected metrics calls %v", metrics.calls)
	}
	if len(tracer.spans) != 2 || tracer.spans[0] != "add_category:ok" || tracer.spans[1] != "delete_category:err" {
		t.Fatalf("unexpected spans %v", tracer.spans)
	}
	if !log.has("d:operation committed") || !log.has("w:operation rejected") {
		t.Fatalf("unexpected log calls %v", log.calls)
	}
}

func TestInMemoryServiceUsesClockForTimestamps(t *testing.T) {
	svc := NewInMemoryService(nil, WithClock(ClockFunc(func() time.Time { return testNow.Add(1500 * time.Microsecond) })))
	key, _, err := svc.AddProductKey(context.Background(), ProductKey{Key: "K-1"})
	if err != nil {
		t.Fatalf("add key: %v", err)
	}
	if want := testNow.Add(time.Millisecond); !key.CreatedAt.Equal(want) {
		t.Fatalf("expected createdAt truncated to %s, got %s", want, key.CreatedAt)
	}
	if svc.RulesEngine() == nil || svc.Store() == nil {
		t.Fatalf("expected store and engine exposed")
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	svc := NewInMemoryService(nil, WithMetricsRecorder(rec))
	ctx := context.Background()
	_, _, _ = svc.AddCustomer(ctx, Customer{Name: "Ada", Email: "ada@example.com"})
	_, _, _ = svc.AddCustomer(ctx, Customer{Name: "Bob", Email: "bob@example.com"})
	_, _, _ = svc.AllocateKey(ctx, AllocationRequest{ProductKeyID: "missing", CustomerID: "missing"})

	if got := testutil.ToFloat64(rec.operations.WithLabelValues("add_customer", "success")); got != 2 {
		t.Fatalf("expected 2 successful add_customer, got %v", got)
	}
	if got := testutil.ToFloat64(rec.operations.WithLabelValues("allocate_key", "error")); got != 1 {
		t.Fatalf("expected 1 failed allocate_key, got %v", got)
	}
	if n := testutil.CollectAndCount(rec.latency); n != 2 {
		t.Fatalf("expected 2 latency series, got %d", n)
	}
	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}

func TestExpvarMetricsRecorder(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	if !strings.HasPrefix(rec.Name(), "keyledger_service_metrics_") {
		t.Fatalf("unexpected name %s", rec.Name())
	}
	ctx := context.Background()
	rec.Observe(ctx, "record_usage", true, 2*time.Millisecond)
	rec.Observe(ctx, "record_usage", false, time.Millisecond)
	rec.Observe(ctx, "add_customer", true, 0)
	rec.Observe(ctx, "", true, 0)

	if ops := rec.Operations(); len(ops) != 2 || ops[0] != "add_customer" || ops[1] != "record_usage" {
		t.Fatalf("unexpected operations %v", ops)
	}
	stats := rec.Snapshot().Operations["record_usage"]
	if stats.Success != 1 || stats.Error != 1 || stats.LastStatus != "error" || stats.TotalMS != 3 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	published := expvar.Get(rec.Name())
	if published == nil {
		t.Fatalf("expected expvar publication")
	}
	var decoded ExpvarMetricsSnapshot
	if err := json.Unmarshal([]byte(published.String()), &decoded); err != nil {
		t.Fatalf("decode expvar: %v", err)
	}
	if decoded.Operations["add_customer"].Success != 1 {
		t.Fatalf("unexpected published snapshot %+v", decoded)
	}
}

func TestJSONTracer(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	ticks := []time.Time{testNow, testNow.Add(5 * time.Millisecond), testNow, testNow.Add(time.Millisecond)}
	tracer.now = func() time.Time {
		next := ticks[0]
		ticks = ticks[1:]
		return next
	}
	_, span := tracer.Start(context.Background(), "add_customer")
	span.End(nil)
	span.End(errors.New("ignored"))
	_, span = tracer.Start(context.Background(), "allocate_key")
	span.End(errors.New("boom"))

	entries := tracer.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Status != "success" || entries[0].DurationMS != 5 {
		t.Fatalf("unexpected first entry %+v", entries[0])
	}
	if entries[1].Status != "error" || entries[1].Error != "boom" {
		t.Fatalf("unexpected second entry %+v", entries[1])
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || !strings.Contains(lines[1], `"operation":"allocate_key"`) {
		t.Fatalf("unexpected json lines %q", buf.String())
	}

	quiet := NewJSONTracer(nil)
	_, span = quiet.Start(context.Background(), "noop")
	span.End(nil)
	if len(quiet.Entries()) != 1 {
		t.Fatalf("expected entries retained without writer")
	}
}
