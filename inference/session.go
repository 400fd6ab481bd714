package inference

import (
	"sync"
	"time"

	"github.com/nvr-ai/go-ml-eval/inference/providers"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// ProfiledSession wraps a dynamic-shape ONNX session with performance counters.
//
// The session accepts any batch size at call time. Counters are exposed through
// CollectMetrics so the session can be registered with the runtime profiler.
type ProfiledSession struct {
	session          *ort.DynamicAdvancedSession
	config           providers.OptimizationConfig
	inputNames       []string
	outputNames      []string
	inferenceCount   int64
	sampleCount      int64
	totalTime        float64
	lastTime         float64
	mu               sync.RWMutex
	profilingEnabled bool
}

// NewProfiledSession creates a new profiled ONNX session.
//
// Arguments:
//   - modelPath: Path to the ONNX model file.
//   - inputNames: Names of input tensors.
//   - outputNames: Names of output tensors.
//   - provider: The execution provider.
//   - config: Optimization configuration.
//
// Returns:
//   - *ProfiledSession: Configured profiled session.
//   - error: Session creation error if any.
func NewProfiledSession(
	modelPath string,
	inputNames []string,
	outputNames []string,
	provider providers.ExecutionProvider,
	config providers.OptimizationConfig,
) (*ProfiledSession, error) {
	options, err := providers.NewSessionOptions(provider, config)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create session options")
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, outputNames, options)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create ONNX session for %s", modelPath)
	}

	return &ProfiledSession{
		session:          session,
		config:           config,
		inputNames:       inputNames,
		outputNames:      outputNames,
		profilingEnabled: config.UseProfilingOptions,
	}, nil
}

// Run executes the model with performance tracking.
//
// Nil entries in outputs are allocated by onnxruntime and must be destroyed by the caller.
//
// Arguments:
//   - inputs: One value per input name.
//   - outputs: One value per output name.
//   - samples: The batch size of the call, used for throughput.
//
// Returns:
//   - error: Execution error if any.
func (ps *ProfiledSession) Run(inputs, outputs []ort.Value, samples int) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.session == nil {
		return errors.New("session is closed")
	}

	start := time.Now()
	err := ps.session.Run(inputs, outputs)
	if err != nil {
		return errors.Wrap(err, "error running ONNX session")
	}

	if ps.profilingEnabled {
		duration := float64(time.Since(start).Nanoseconds()) / 1e6

		ps.inferenceCount++
		ps.sampleCount += int64(samples)
		ps.totalTime += duration
		ps.lastTime = duration
	}

	return nil
}

// CollectMetrics returns the counters in the form the runtime profiler consumes.
//
// Returns:
//   - map[string]float64: Metric values keyed by name.
func (ps *ProfiledSession) CollectMetrics() map[string]float64 {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	metrics := map[string]float64{
		"inference_count":   float64(ps.inferenceCount),
		"inference_samples": float64(ps.sampleCount),
		"inference_last_ms": ps.lastTime,
	}

	if ps.inferenceCount > 0 {
		metrics["inference_avg_ms"] = ps.totalTime / float64(ps.inferenceCount)
	}
	if ps.totalTime > 0 {
		metrics["inference_samples_per_sec"] = float64(ps.sampleCount) / (ps.totalTime / 1000)
	}

	return metrics
}

// GetPerformanceMetrics returns comprehensive performance statistics.
//
// Returns:
//   - map[string]interface{}: Performance metrics and statistics.
func (ps *ProfiledSession) GetPerformanceMetrics() map[string]interface{} {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	metrics := map[string]interface{}{
		"inference_count":    ps.inferenceCount,
		"sample_count":       ps.sampleCount,
		"total_time_ms":      ps.totalTime,
		"profiling_enabled":  ps.profilingEnabled,
		"optimization_level": ps.config.GraphOptimizationLevel,
		"inputs":             ps.inputNames,
		"outputs":            ps.outputNames,
	}

	if ps.inferenceCount > 0 {
		metrics["average_time_ms"] = ps.totalTime / float64(ps.inferenceCount)
	}

	return metrics
}

// ResetMetrics clears all performance counters.
func (ps *ProfiledSession) ResetMetrics() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	ps.inferenceCount = 0
	ps.sampleCount = 0
	ps.totalTime = 0
	ps.lastTime = 0
}

// Destroy releases all session resources.
func (ps *ProfiledSession) Destroy() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.session == nil {
		return nil
	}
	err := ps.session.Destroy()
	ps.session = nil
	return err
}
