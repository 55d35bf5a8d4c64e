package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegistryRecordsOperations(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	r.Observe(ctx, "create_order", true, 20*time.Millisecond)
	r.Observe(ctx, "create_order", false, time.Millisecond)
	r.Observe(ctx, "create_order", true, time.Millisecond)
	r.ObserveBatch(ctx, "bulk_create_customers", 3, 2)
	r.ObserveJob("heartbeat", true, time.Unix(1700000000, 0))
	r.ObserveJob("heartbeat", false, time.Unix(1700000100, 0))

	if got := testutil.ToFloat64(r.Operations.WithLabelValues("create_order", "success")); got != 2 {
		t.Fatalf("expected 2 successes, got %v", got)
	}
	if got := testutil.ToFloat64(r.Operations.WithLabelValues("create_order", "error")); got != 1 {
		t.Fatalf("expected 1 error, got %v", got)
	}
	if got := testutil.ToFloat64(r.BatchRecords.WithLabelValues("bulk_create_customers", "failed")); got != 2 {
		t.Fatalf("expected 2 failed records, got %v", got)
	}
	if got := testutil.ToFloat64(r.JobLastSuccess.WithLabelValues("heartbeat")); got != 1700000000 {
		t.Fatalf("expected last success timestamp, got %v", got)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	r := NewRegistry()
	r.Observe(context.Background(), "create_customer", true, time.Millisecond)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		`crm_operations_total{operation="create_customer",status="success"} 1`,
		"crm_operation_duration_seconds_bucket",
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("expected %q in metrics output:\n%s", want, body)
		}
	}
}
