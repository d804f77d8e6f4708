package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMustRegister(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("MustRegister() panicked: %v", r)
		}
	}()

	reg := prometheus.NewRegistry()
	MustRegister(reg)

	// Touch every collector so it shows up in the gather
	RecordEventTriggered("order.completed")
	RecordDelivery("success", 120*time.Millisecond)
	RecordRetry("http_5xx")
	RecordDLQ()
	RecordSweep(3)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}

	expected := map[string]bool{
		"payhula_webhook_events_total":             false,
		"payhula_webhook_deliveries_total":         false,
		"payhula_webhook_retries_total":            false,
		"payhula_webhook_dlq_total":                false,
		"payhula_webhook_delivery_latency_seconds": false,
		"payhula_webhook_sweeps_total":             false,
		"payhula_webhook_sweep_due_rows":           false,
	}
	for _, mf := range families {
		if _, ok := expected[mf.GetName()]; ok {
			expected[mf.GetName()] = true
		}
	}
	for name, found := range expected {
		if !found {
			t.Errorf("metric family %s not registered", name)
		}
	}
}

func TestRecordEventTriggered(t *testing.T) {
	before := testutil.ToFloat64(EventsTriggeredTotal.WithLabelValues("stock.adjusted"))
	RecordEventTriggered("stock.adjusted")
	after := testutil.ToFloat64(EventsTriggeredTotal.WithLabelValues("stock.adjusted"))

	if after != before+1 {
		t.Errorf("events counter = %v, want %v", after, before+1)
	}
}

func TestRecordDelivery(t *testing.T) {
	before := testutil.ToFloat64(DeliveriesTotal.WithLabelValues("retrying"))
	RecordDelivery("retrying", 50*time.Millisecond)
	after := testutil.ToFloat64(DeliveriesTotal.WithLabelValues("retrying"))

	if after != before+1 {
		t.Errorf("deliveries counter = %v, want %v", after, before+1)
	}
}

func TestRecordRetry(t *testing.T) {
	before := testutil.ToFloat64(RetriesTotal.WithLabelValues("timeout"))
	RecordRetry("timeout")
	after := testutil.ToFloat64(RetriesTotal.WithLabelValues("timeout"))

	if after != before+1 {
		t.Errorf("retries counter = %v, want %v", after, before+1)
	}
}

func TestRecordDLQ(t *testing.T) {
	before := testutil.ToFloat64(DLQTotal)
	RecordDLQ()
	after := testutil.ToFloat64(DLQTotal)

	if after != before+1 {
		t.Errorf("dlq counter = %v, want %v", after, before+1)
	}
}

func TestRecordSweep(t *testing.T) {
	before := testutil.ToFloat64(SweepsTotal)
	RecordSweep(7)
	after := testutil.ToFloat64(SweepsTotal)

	if after != before+1 {
		t.Errorf("sweeps counter = %v, want %v", after, before+1)
	}
}
