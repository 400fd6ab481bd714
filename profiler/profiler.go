// Package profiler - Runtime profiling of evaluation runs: operation timings, custom metrics
// and process statistics, reported periodically through the logger.
package profiler

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// MetricsCollector defines the interface for collecting custom metrics.
type MetricsCollector interface {
	CollectMetrics() map[string]float64
}

// RuntimeProfiler tracks operation timings and custom metrics and emits periodic reports.
//
// All methods are safe for concurrent use. A nil *RuntimeProfiler is not valid; callers that
// make profiling optional keep a nil pointer and skip the calls.
type RuntimeProfiler struct {
	reportInterval time.Duration
	sampleInterval time.Duration
	maxSamples     int
	statsd         statsd.ClientInterface

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.RWMutex
	startTime time.Time
	running   bool

	memStats    runtime.MemStats
	lastGCCount uint32

	customMetrics  map[string]*MetricTracker
	collectors     []MetricsCollector
	operationTimes map[string]*TimeTracker
}

// MetricTracker tracks statistics for a custom metric over a window of samples.
type MetricTracker struct {
	values   []float64
	sum      float64
	min      float64
	max      float64
	count    int64
	lastTime time.Time
}

// TimeTracker tracks operation timing statistics over a window of samples.
type TimeTracker struct {
	durations []time.Duration
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	count     int64
}

// OperationStats summarizes the timings of one operation.
type OperationStats struct {
	Name  string
	Count int64
	Avg   time.Duration
	Min   time.Duration
	Max   time.Duration
}

// ProfilingOptions configures the runtime profiler.
type ProfilingOptions struct {
	// ReportInterval specifies how often to emit status reports (default: 30s).
	ReportInterval time.Duration
	// SampleInterval specifies how often collectors are polled (default: 1s).
	SampleInterval time.Duration
	// MaxSamples specifies the window of samples kept per metric (default: 600).
	MaxSamples int
	// Statsd receives every report as gauges and timings when set.
	Statsd statsd.ClientInterface
}

// NewRuntimeProfiler creates a new runtime profiler with the specified options.
//
// Arguments:
//   - opts: Configuration options for the profiler.
//
// Returns:
//   - *RuntimeProfiler: The profiler, not yet started.
func NewRuntimeProfiler(opts ProfilingOptions) *RuntimeProfiler {
	if opts.ReportInterval <= 0 {
		opts.ReportInterval = 30 * time.Second
	}
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = time.Second
	}
	if opts.MaxSamples <= 0 {
		opts.MaxSamples = 600
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &RuntimeProfiler{
		reportInterval: opts.ReportInterval,
		sampleInterval: opts.SampleInterval,
		maxSamples:     opts.MaxSamples,
		statsd:         opts.Statsd,
		ctx:            ctx,
		cancel:         cancel,
		startTime:      time.Now(),
		customMetrics:  make(map[string]*MetricTracker),
		operationTimes: make(map[string]*TimeTracker),
	}
}

// Start begins sampling and periodic reporting. Calling Start on a running profiler does
// nothing.
func (rp *RuntimeProfiler) Start() {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	if rp.running {
		return
	}
	rp.running = true
	rp.startTime = time.Now()

	rp.wg.Add(2)
	go rp.loop(rp.sampleInterval, rp.sample)
	go rp.loop(rp.reportInterval, func() { rp.Report(zerolog.DebugLevel) })
}

// Stop stops the background goroutines and waits for them to exit.
func (rp *RuntimeProfiler) Stop() {
	rp.mu.Lock()
	if !rp.running {
		rp.mu.Unlock()
		return
	}
	rp.running = false
	rp.mu.Unlock()

	rp.cancel()
	rp.wg.Wait()
}

func (rp *RuntimeProfiler) loop(interval time.Duration, fn func()) {
	defer rp.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-rp.ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// AddMetricsCollector registers a collector polled on every sample.
//
// Arguments:
//   - collector: An implementation of MetricsCollector.
func (rp *RuntimeProfiler) AddMetricsCollector(collector MetricsCollector) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.collectors = append(rp.collectors, collector)
}

// RecordMetric records a custom metric value.
//
// Arguments:
//   - name: The name of the metric.
//   - value: The metric value to record.
func (rp *RuntimeProfiler) RecordMetric(name string, value float64) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.recordMetric(name, value)
}

func (rp *RuntimeProfiler) recordMetric(name string, value float64) {
	tracker, exists := rp.customMetrics[name]
	if !exists {
		tracker = &MetricTracker{
			values: make([]float64, 0, rp.maxSamples),
			min:    value,
			max:    value,
		}
		rp.customMetrics[name] = tracker
	}

	tracker.values = append(tracker.values, value)
	tracker.sum += value
	if len(tracker.values) > rp.maxSamples {
		tracker.sum -= tracker.values[0]
		tracker.values = tracker.values[1:]
	}

	tracker.count++
	tracker.lastTime = time.Now()
	tracker.min = min(tracker.min, value)
	tracker.max = max(tracker.max, value)
}

// StartOperation begins timing an operation.
//
// Arguments:
//   - name: The name of the operation to track.
//
// Returns:
//   - func(): Call it when the operation completes.
func (rp *RuntimeProfiler) StartOperation(name string) func() {
	start := time.Now()
	return func() {
		rp.recordOperationTime(name, time.Since(start))
	}
}

func (rp *RuntimeProfiler) recordOperationTime(name string, duration time.Duration) {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	tracker, exists := rp.operationTimes[name]
	if !exists {
		tracker = &TimeTracker{
			minTime: duration,
			maxTime: duration,
		}
		rp.operationTimes[name] = tracker
	}

	tracker.durations = append(tracker.durations, duration)
	tracker.totalTime += duration
	if len(tracker.durations) > rp.maxSamples {
		tracker.totalTime -= tracker.durations[0]
		tracker.durations = tracker.durations[1:]
	}

	tracker.count++
	tracker.minTime = min(tracker.minTime, duration)
	tracker.maxTime = max(tracker.maxTime, duration)
}

// sample reads memory statistics and polls the collectors.
func (rp *RuntimeProfiler) sample() {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	runtime.ReadMemStats(&rp.memStats)
	for _, collector := range rp.collectors {
		for name, value := range collector.CollectMetrics() {
			rp.recordMetric(name, value)
		}
	}
}

// Operations returns the timing summary of every operation, sorted by name.
func (rp *RuntimeProfiler) Operations() []OperationStats {
	rp.mu.RLock()
	defer rp.mu.RUnlock()

	stats := make([]OperationStats, 0, len(rp.operationTimes))
	for name, tracker := range rp.operationTimes {
		if len(tracker.durations) == 0 {
			continue
		}
		stats = append(stats, OperationStats{
			Name:  name,
			Count: tracker.count,
			Avg:   tracker.totalTime / time.Duration(len(tracker.durations)),
			Min:   tracker.minTime,
			Max:   tracker.maxTime,
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}

// Metric returns the windowed average of a custom metric and whether it was recorded.
func (rp *RuntimeProfiler) Metric(name string) (float64, bool) {
	rp.mu.RLock()
	defer rp.mu.RUnlock()

	tracker, ok := rp.customMetrics[name]
	if !ok || len(tracker.values) == 0 {
		return 0, false
	}
	return tracker.sum / float64(len(tracker.values)), true
}

// Report logs the current statistics at the given level, one event per operation and
// metric.
func (rp *RuntimeProfiler) Report(level zerolog.Level) {
	rp.sample()
	operations := rp.Operations()

	rp.mu.Lock()
	defer rp.mu.Unlock()

	newGC := rp.memStats.NumGC - rp.lastGCCount
	rp.lastGCCount = rp.memStats.NumGC

	log.WithLevel(level).
		Dur("uptime", time.Since(rp.startTime).Truncate(time.Millisecond)).
		Int("goroutines", runtime.NumGoroutine()).
		Int64("cgo_calls", runtime.NumCgoCall()).
		Uint64("heap_alloc", rp.memStats.HeapAlloc).
		Uint64("sys", rp.memStats.Sys).
		Uint32("gc_cycles", rp.memStats.NumGC).
		Uint32("gc_new", newGC).
		Msg("runtime profile")
	rp.gauge("runtime.heap_alloc", float64(rp.memStats.HeapAlloc))
	rp.gauge("runtime.goroutines", float64(runtime.NumGoroutine()))

	for _, op := range operations {
		log.WithLevel(level).
			Str("operation", op.Name).
			Int64("count", op.Count).
			Dur("avg", op.Avg).
			Dur("min", op.Min).
			Dur("max", op.Max).
			Msg("operation timing")
		rp.timing("operation."+op.Name, op.Avg)
	}

	names := make([]string, 0, len(rp.customMetrics))
	for name := range rp.customMetrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		tracker := rp.customMetrics[name]
		if len(tracker.values) == 0 {
			continue
		}
		log.WithLevel(level).
			Str("metric", name).
			Float64("avg", tracker.sum/float64(len(tracker.values))).
			Float64("min", tracker.min).
			Float64("max", tracker.max).
			Int("samples", len(tracker.values)).
			Msg("custom metric")
		rp.gauge("metric."+name, tracker.sum/float64(len(tracker.values)))
	}
}

func (rp *RuntimeProfiler) gauge(name string, value float64) {
	if rp.statsd == nil {
		return
	}
	if err := rp.statsd.Gauge(name, value, nil, 1); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("error sending statsd gauge")
	}
}

func (rp *RuntimeProfiler) timing(name string, value time.Duration) {
	if rp.statsd == nil {
		return
	}
	if err := rp.statsd.Timing(name, value, nil, 1); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("error sending statsd timing")
	}
}
