package otel

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	goToken "github.com/MrEthical07/goToken"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot goToken.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() goToken.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := goToken.MetricsSnapshot{
		Counters:   make(map[goToken.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[goToken.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		out.Histograms[k] = append([]uint64(nil), buckets...)
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newReader() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					out[m.Name] = dp.Value
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					out[m.Name] = dp.Value
				}
			}
		}
	}
	return out
}

func TestExporterCollectsSnapshot(t *testing.T) {
	reader, provider := newReader()

	src := &fakeSource{
		snapshot: goToken.MetricsSnapshot{
			Counters: map[goToken.MetricID]uint64{
				goToken.MetricRefreshReuseDetected: 3,
			},
			Histograms: map[goToken.MetricID][]uint64{
				goToken.MetricValidateLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 1,
	}

	exp, err := NewExporterFromSource(provider.Meter("gotoken-test"), src)
	require.NoError(t, err)
	defer func() { require.NoError(t, exp.Close()) }()

	got := collect(t, reader)
	assert.Equal(t, int64(3), got["gotoken_refresh_reuse_detected_total"])
	assert.Equal(t, int64(0), got["gotoken_issue_success_total"])
	assert.Equal(t, int64(1), got["gotoken_validate_latency_seconds_bucket_le_0_005"])
	assert.Equal(t, int64(8), got["gotoken_validate_latency_seconds_bucket_le_inf"])
	assert.Equal(t, int64(8), got["gotoken_validate_latency_seconds_count"])
	assert.Equal(t, int64(1), got["gotoken_audit_dropped_total"])
}

func TestExporterRejectsNilArguments(t *testing.T) {
	_, provider := newReader()

	_, err := NewExporterFromSource(provider.Meter("gotoken-test"), nil)
	assert.ErrorIs(t, err, ErrNilSource)

	_, err = NewExporterFromSource(nil, &fakeSource{})
	assert.ErrorIs(t, err, ErrNilMeter)

	_, err = NewExporter(provider.Meter("gotoken-test"), nil)
	assert.ErrorIs(t, err, ErrNilSource)
}

func TestExporterConcurrentCollect(t *testing.T) {
	reader, provider := newReader()

	src := &fakeSource{
		snapshot: goToken.MetricsSnapshot{
			Counters:   map[goToken.MetricID]uint64{goToken.MetricValidateSuccess: 1},
			Histograms: map[goToken.MetricID][]uint64{},
		},
	}

	exp, err := NewExporterFromSource(provider.Meter("gotoken-test"), src)
	require.NoError(t, err)
	defer func() { require.NoError(t, exp.Close()) }()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[goToken.MetricValidateSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
