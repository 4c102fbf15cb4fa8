package rsm

import (
	"testing"
	"time"
)

func TestMetrics(t *testing.T) {
	m := NewMetrics()

	snap := m.Snapshot()
	if snap.DispatchOps != 0 {
		t.Errorf("Expected 0 initial dispatches, got %d", snap.DispatchOps)
	}

	m.RecordDispatch(1_000_000) // 1ms
	m.RecordDispatch(2_000_000) // 2ms
	m.RecordDrop(false)         // one normal-class drop

	snap = m.Snapshot()

	if snap.DispatchOps != 2 {
		t.Errorf("Expected 2 dispatches, got %d", snap.DispatchOps)
	}
	if snap.NormalDrops != 1 {
		t.Errorf("Expected 1 normal drop, got %d", snap.NormalDrops)
	}
	if snap.PriorityDrops != 0 {
		t.Errorf("Expected 0 priority drops, got %d", snap.PriorityDrops)
	}

	expectedDropRate := float64(1) / float64(3) * 100.0 // 1 drop out of 3 attempts
	if snap.DropRate < expectedDropRate-0.1 || snap.DropRate > expectedDropRate+0.1 {
		t.Errorf("Expected drop rate ~%.1f%%, got %.1f%%", expectedDropRate, snap.DropRate)
	}
}

func TestMetricsQueueDepth(t *testing.T) {
	m := NewMetrics()

	m.RecordQueueDepth(10)
	m.RecordQueueDepth(20)
	m.RecordQueueDepth(15)

	snap := m.Snapshot()

	if snap.MaxQueueDepth != 20 {
		t.Errorf("Expected max queue depth 20, got %d", snap.MaxQueueDepth)
	}

	expectedAvg := float64(10+20+15) / 3.0
	if snap.AvgQueueDepth < expectedAvg-0.1 || snap.AvgQueueDepth > expectedAvg+0.1 {
		t.Errorf("Expected avg queue depth %.1f, got %.1f", expectedAvg, snap.AvgQueueDepth)
	}
}

func TestMetricsLatency(t *testing.T) {
	m := NewMetrics()

	m.RecordDispatch(1_000_000) // 1ms
	m.RecordDispatch(2_000_000) // 2ms

	snap := m.Snapshot()

	expectedAvgNs := uint64(1_500_000) // 1.5ms
	if snap.AvgLatencyNs != expectedAvgNs {
		t.Errorf("Expected avg latency %d ns, got %d ns", expectedAvgNs, snap.AvgLatencyNs)
	}
}

func TestMetricsUptime(t *testing.T) {
	m := NewMetrics()

	time.Sleep(10 * time.Millisecond)

	snap := m.Snapshot()
	if snap.UptimeNs < 10*1_000_000 {
		t.Errorf("Expected uptime >= 10ms, got %d ns", snap.UptimeNs)
	}

	m.Stop()
	time.Sleep(5 * time.Millisecond)

	snap2 := m.Snapshot()
	if snap2.UptimeNs > snap.UptimeNs+2*1_000_000 { // allow 2ms tolerance
		t.Errorf("Uptime increased too much after stop: %d -> %d", snap.UptimeNs, snap2.UptimeNs)
	}
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics()

	m.RecordDispatch(1_000_000)
	m.RecordDrop(true)
	m.RecordQueueDepth(10)

	snap := m.Snapshot()
	if snap.DispatchOps == 0 {
		t.Error("Expected some dispatches before reset")
	}

	m.Reset()

	snap = m.Snapshot()
	if snap.DispatchOps != 0 {
		t.Errorf("Expected 0 dispatches after reset, got %d", snap.DispatchOps)
	}
	if snap.PriorityDrops != 0 {
		t.Errorf("Expected 0 priority drops after reset, got %d", snap.PriorityDrops)
	}
	if snap.MaxQueueDepth != 0 {
		t.Errorf("Expected 0 max queue depth after reset, got %d", snap.MaxQueueDepth)
	}
}

func TestObserver(t *testing.T) {
	observer := NoOpObserver{}
	observer.ObserveDispatch(1, 1_000_000)
	observer.ObserveDrop(false)
	observer.ObserveTimerFire()
	observer.ObserveQueueDepth(10)

	m := NewMetrics()
	metricsObserver := NewMetricsObserver(m)

	metricsObserver.ObserveDispatch(1, 1_000_000)
	metricsObserver.ObserveDispatch(2, 2_000_000)
	metricsObserver.ObserveTimerFire()

	snap := m.Snapshot()
	if snap.DispatchOps != 2 {
		t.Errorf("Expected 2 dispatches from observer, got %d", snap.DispatchOps)
	}
	if snap.TimerFires != 1 {
		t.Errorf("Expected 1 timer fire from observer, got %d", snap.TimerFires)
	}
}

func TestMetricsRates(t *testing.T) {
	m := NewMetrics()

	startTime := time.Now()
	m.StartTime.Store(startTime.UnixNano())

	m.RecordDispatch(1_000_000)
	m.RecordDispatch(2_000_000)

	stopTime := startTime.Add(1 * time.Second)
	m.StopTime.Store(stopTime.UnixNano())

	snap := m.Snapshot()

	if snap.DispatchRate < 1.9 || snap.DispatchRate > 2.1 {
		t.Errorf("Expected DispatchRate ~2.0, got %.2f", snap.DispatchRate)
	}
}

func TestMetricsHistogram(t *testing.T) {
	m := NewMetrics()

	for i := 0; i < 50; i++ {
		m.RecordDispatch(500_000) // 500us
	}
	for i := 0; i < 49; i++ {
		m.RecordDispatch(5_000_000) // 5ms
	}
	m.RecordDispatch(50_000_000) // 50ms, the single slowest dispatch

	snap := m.Snapshot()

	if snap.DispatchOps != 100 {
		t.Errorf("Expected 100 total dispatches, got %d", snap.DispatchOps)
	}

	if snap.LatencyP50Ns < 100_000 || snap.LatencyP50Ns > 1_000_000 {
		t.Errorf("Expected P50 in 100us-1ms range, got %d ns", snap.LatencyP50Ns)
	}

	if snap.LatencyP99Ns < 5_000_000 || snap.LatencyP99Ns > 100_000_000 {
		t.Errorf("Expected P99 in 5ms-100ms range, got %d ns", snap.LatencyP99Ns)
	}

	totalInBuckets := uint64(0)
	for i := 0; i < len(snap.LatencyHistogram); i++ {
		totalInBuckets += snap.LatencyHistogram[i]
	}
	if totalInBuckets == 0 {
		t.Error("Expected histogram buckets to be populated")
	}
}
