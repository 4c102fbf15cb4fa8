package rsm

import (
	"sync/atomic"
	"time"

	"github.com/wang-russell/rsm/internal/interfaces"
)

// LatencyBuckets defines the dispatch-latency histogram buckets in
// nanoseconds. Buckets cover from 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Metrics tracks runtime-wide dispatch and queueing statistics across
// every registered task.
type Metrics struct {
	// Dispatch counters
	DispatchOps atomic.Uint64 // Total OnMessage/OnTimer/OnSocketEvent dispatches

	// Drop counters, split by the priority the dropped push attempted
	NormalDrops   atomic.Uint64 // PushBack drops (queue full)
	PriorityDrops atomic.Uint64 // PushFront drops (queue full)

	// Timer counters
	TimerFires atomic.Uint64 // Total timer callbacks delivered

	// Queue statistics
	QueueDepthTotal atomic.Uint64 // Cumulative queue depth samples
	QueueDepthCount atomic.Uint64 // Number of queue depth measurements
	MaxQueueDepth   atomic.Uint32 // Maximum observed queue depth

	// Performance tracking
	TotalLatencyNs atomic.Uint64 // Cumulative dispatch latency in nanoseconds

	// Latency histogram buckets (cumulative)
	// Each bucket[i] contains the count of dispatches with latency <= LatencyBuckets[i]
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	// Runtime lifecycle
	StartTime atomic.Int64 // Runtime start timestamp (UnixNano)
	StopTime  atomic.Int64 // Runtime stop timestamp (UnixNano)
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordDispatch records one completed dispatch (OnInit/OnTimer/
// OnSocketEvent/OnMessage) and its latency.
func (m *Metrics) RecordDispatch(latencyNs uint64) {
	m.DispatchOps.Add(1)
	m.recordLatency(latencyNs)
}

// RecordDrop records one message dropped because its destination
// task's queue was full. priority distinguishes a PushFront (priority
// class) drop from a PushBack (normal class) drop.
func (m *Metrics) RecordDrop(priority bool) {
	if priority {
		m.PriorityDrops.Add(1)
	} else {
		m.NormalDrops.Add(1)
	}
}

// RecordTimerFire records one delivered timer callback.
func (m *Metrics) RecordTimerFire() {
	m.TimerFires.Add(1)
}

// RecordQueueDepth records a task's queue depth sample.
func (m *Metrics) RecordQueueDepth(depth uint32) {
	m.QueueDepthTotal.Add(uint64(depth))
	m.QueueDepthCount.Add(1)

	for {
		current := m.MaxQueueDepth.Load()
		if depth <= current {
			break
		}
		if m.MaxQueueDepth.CompareAndSwap(current, depth) {
			break
		}
	}
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)

	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the runtime as stopped.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time snapshot of Metrics.
type MetricsSnapshot struct {
	DispatchOps   uint64
	NormalDrops   uint64
	PriorityDrops uint64
	TimerFires    uint64

	AvgQueueDepth float64
	MaxQueueDepth uint32

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64

	DispatchRate float64 // dispatches per second
	DropRate     float64 // percentage of dispatch+drop attempts that dropped
}

// Snapshot creates a point-in-time snapshot of metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		DispatchOps:   m.DispatchOps.Load(),
		NormalDrops:   m.NormalDrops.Load(),
		PriorityDrops: m.PriorityDrops.Load(),
		TimerFires:    m.TimerFires.Load(),
		MaxQueueDepth: m.MaxQueueDepth.Load(),
	}

	queueDepthTotal := m.QueueDepthTotal.Load()
	queueDepthCount := m.QueueDepthCount.Load()
	if queueDepthCount > 0 {
		snap.AvgQueueDepth = float64(queueDepthTotal) / float64(queueDepthCount)
	}

	totalLatencyNs := m.TotalLatencyNs.Load()
	if snap.DispatchOps > 0 {
		snap.AvgLatencyNs = totalLatencyNs / snap.DispatchOps
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	if snap.UptimeNs > 0 {
		uptimeSeconds := float64(snap.UptimeNs) / 1e9
		snap.DispatchRate = float64(snap.DispatchOps) / uptimeSeconds
	}

	totalDrops := snap.NormalDrops + snap.PriorityDrops
	if attempts := snap.DispatchOps + totalDrops; attempts > 0 {
		snap.DropRate = float64(totalDrops) / float64(attempts) * 100.0
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	if snap.DispatchOps > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile
// (0.0-1.0) using linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.DispatchOps.Load()
	if totalOps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset resets all metrics counters. Useful for testing.
func (m *Metrics) Reset() {
	m.DispatchOps.Store(0)
	m.NormalDrops.Store(0)
	m.PriorityDrops.Store(0)
	m.TimerFires.Store(0)
	m.QueueDepthTotal.Store(0)
	m.QueueDepthCount.Store(0)
	m.MaxQueueDepth.Store(0)
	m.TotalLatencyNs.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// NoOpObserver is a no-op implementation of interfaces.Observer, used
// when a runtime is started without metrics collection.
type NoOpObserver struct{}

func (NoOpObserver) ObserveDispatch(uint32, uint64) {}
func (NoOpObserver) ObserveDrop(bool)               {}
func (NoOpObserver) ObserveTimerFire()              {}
func (NoOpObserver) ObserveQueueDepth(uint32)       {}

// MetricsObserver implements interfaces.Observer using a built-in
// Metrics instance. The msgID argument to ObserveDispatch is not
// currently broken out per-message; only aggregate runtime counters
// are kept.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveDispatch(_ uint32, latencyNs uint64) {
	o.metrics.RecordDispatch(latencyNs)
}

func (o *MetricsObserver) ObserveDrop(priority bool) {
	o.metrics.RecordDrop(priority)
}

func (o *MetricsObserver) ObserveTimerFire() {
	o.metrics.RecordTimerFire()
}

func (o *MetricsObserver) ObserveQueueDepth(depth uint32) {
	o.metrics.RecordQueueDepth(depth)
}

var _ interfaces.Observer = (*MetricsObserver)(nil)
var _ interfaces.Observer = (NoOpObserver{})
