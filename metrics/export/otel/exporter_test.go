package otel

import (
	"context"
	"sync"
	"testing"

	goCred "github.com/MrEthical07/goCred"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot goCred.MetricsSnapshot
	audit    goCred.AuditStats
}

func (f *fakeSource) MetricsSnapshot() goCred.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := goCred.MetricsSnapshot{
		Counters:   make(map[goCred.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[goCred.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		next := make([]uint64, len(buckets))
		copy(next, buckets)
		out.Histograms[k] = next
	}
	return out
}

func (f *fakeSource) AuditStats() goCred.AuditStats {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.audit
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("gocred-test")

	src := &fakeSource{
		snapshot: goCred.MetricsSnapshot{
			Counters: map[goCred.MetricID]uint64{
				goCred.MetricSignInSuccess: 3,
			},
			Histograms: map[goCred.MetricID][]uint64{
				goCred.MetricVerifyLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		audit: goCred.AuditStats{Dropped: 1},
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(rm.ScopeMetrics) == 0 {
		t.Fatal("expected collected metrics, got none")
	}
}

func TestExporterRejectsNilSource(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("gocred-test")

	if _, err := NewOTelExporterFromSource(meter, nil); err == nil {
		t.Fatal("expected error for nil source")
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("gocred-test")

	src := &fakeSource{
		snapshot: goCred.MetricsSnapshot{
			Counters: map[goCred.MetricID]uint64{
				goCred.MetricSignInSuccess: 1,
			},
			Histograms: map[goCred.MetricID][]uint64{
				goCred.MetricVerifyLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[goCred.MetricSignInSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}

func TestExporterObservesCounterValues(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("gocred-test")

	src := &fakeSource{
		snapshot: goCred.MetricsSnapshot{
			Counters: map[goCred.MetricID]uint64{
				goCred.MetricRefreshSuccess: 6,
				goCred.MetricVerifyStale:    4,
				goCred.MetricVerifyRevoked:  2,
			},
			Histograms: map[goCred.MetricID][]uint64{
				goCred.MetricVerifyLatency: {2, 1, 0, 0, 0, 0, 0, 0},
			},
		},
		audit: goCred.AuditStats{Delivered: 7, Dropped: 3},
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer exp.Close()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	plain := map[string]int64{"gocred_refresh_success_total": 6}
	labeled := map[string]int64{
		"gocred_verify_failures_total/reason=stale":     4,
		"gocred_verify_failures_total/reason=revoked":   2,
		"gocred_verify_failures_total/reason=signature": 0,
		"gocred_audit_events_total/outcome=delivered":   7,
		"gocred_audit_events_total/outcome=dropped":     3,
		"gocred_verify_latency_seconds_bucket/le=0.005": 2,
		"gocred_verify_latency_seconds_bucket/le=0.01":  3,
		"gocred_verify_latency_seconds_bucket/le=+Inf":  3,
	}

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			for _, dp := range dataPoints(m.Data) {
				if dp.Attributes.Len() == 0 {
					if want, ok := plain[m.Name]; ok {
						if dp.Value != want {
							t.Fatalf("%s: got %d, want %d", m.Name, dp.Value, want)
						}
						delete(plain, m.Name)
					}
					continue
				}
				kv := dp.Attributes.ToSlice()[0]
				key := m.Name + "/" + string(kv.Key) + "=" + kv.Value.AsString()
				if want, ok := labeled[key]; ok {
					if dp.Value != want {
						t.Fatalf("%s: got %d, want %d", key, dp.Value, want)
					}
					delete(labeled, key)
				}
			}
			if m.Name == "gocred_verify_stale_total" {
				t.Fatal("verify failures must only be exported with a reason attribute")
			}
		}
	}
	if len(plain) != 0 || len(labeled) != 0 {
		t.Fatalf("series not collected: %v %v", plain, labeled)
	}
}

func dataPoints(data metricdata.Aggregation) []metricdata.DataPoint[int64] {
	switch d := data.(type) {
	case metricdata.Sum[int64]:
		return d.DataPoints
	case metricdata.Gauge[int64]:
		return d.DataPoints
	default:
		return nil
	}
}
