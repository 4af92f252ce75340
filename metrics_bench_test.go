package tokenlife

import (
	"sync/atomic"
	"testing"
	"time"
)

func BenchmarkMetricsInc(b *testing.B) {
	for _, enabled := range []bool{true, false} {
		name := "enabled"
		if !enabled {
			name = "disabled"
		}
		b.Run(name, func(b *testing.B) {
			m := NewMetrics(MetricsConfig{Enabled: enabled})
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				m.Inc(MetricValidateSuccess)
			}
		})
	}
}

func BenchmarkMetricsIncParallel(b *testing.B) {
	for _, enabled := range []bool{true, false} {
		name := "enabled"
		if !enabled {
			name = "disabled"
		}
		b.Run(name, func(b *testing.B) {
			m := NewMetrics(MetricsConfig{Enabled: enabled})
			b.ReportAllocs()
			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				for pb.Next() {
					m.Inc(MetricValidateSuccess)
				}
			})
		})
	}
}

func BenchmarkMetricsObserveLatencyParallel(b *testing.B) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})
	d := 12 * time.Millisecond
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Observe(MetricValidateLatency, d)
		}
	})
}

// packedBenchmarkMetrics is the layout the padded counters replaced: adjacent
// uint64s sharing cache lines. The contention benchmarks below compare both
// layouts under the same access patterns.
type packedBenchmarkMetrics struct {
	counters [metricIDCount]uint64
}

func (m *packedBenchmarkMetrics) Inc(id MetricID) {
	atomic.AddUint64(&m.counters[id], 1)
}

// hotPathMetricIDs is the counter set a busy engine touches constantly.
var hotPathMetricIDs = [...]MetricID{
	MetricIssueSuccess,
	MetricIssueFailure,
	MetricValidateSuccess,
	MetricValidateFailure,
	MetricRefreshSuccess,
	MetricRefreshFailure,
	MetricSessionCreated,
	MetricSessionRevoked,
}

type metricSink interface {
	Inc(MetricID)
}

func benchmarkMixedRoundRobin(b *testing.B, sink metricSink) {
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		idx := 0
		for pb.Next() {
			sink.Inc(hotPathMetricIDs[idx])
			idx++
			if idx == len(hotPathMetricIDs) {
				idx = 0
			}
		}
	})
}

func benchmarkMixedPseudoRandom(b *testing.B, sink metricSink) {
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		var s uint64 = 0x9e3779b97f4a7c15
		for pb.Next() {
			// xorshift64*
			s ^= s >> 12
			s ^= s << 25
			s ^= s >> 27
			i := (s * 2685821657736338717) % uint64(len(hotPathMetricIDs))
			sink.Inc(hotPathMetricIDs[i])
		}
	})
}

func BenchmarkMetricsContention(b *testing.B) {
	padded := func() metricSink { return NewMetrics(MetricsConfig{Enabled: true}) }
	packed := func() metricSink { return &packedBenchmarkMetrics{} }

	cases := []struct {
		name string
		sink func() metricSink
		run  func(*testing.B, metricSink)
	}{
		{"padded/round-robin", padded, benchmarkMixedRoundRobin},
		{"packed/round-robin", packed, benchmarkMixedRoundRobin},
		{"padded/pseudo-random", padded, benchmarkMixedPseudoRandom},
		{"packed/pseudo-random", packed, benchmarkMixedPseudoRandom},
	}

	for _, tc := range cases {
		b.Run(tc.name, func(b *testing.B) {
			tc.run(b, tc.sink())
		})
	}
}
