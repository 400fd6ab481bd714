// Package providers - onnxruntime session optimization settings.
package providers

import (
	"runtime"

	ort "github.com/yalue/onnxruntime_go"
)

// OptimizationConfig contains the onnxruntime session tuning knobs.
type OptimizationConfig struct {
	// GraphOptimizationLevel controls the level of graph optimization.
	GraphOptimizationLevel ort.GraphOptimizationLevel `json:"graph_optimization_level" yaml:"graph_optimization_level"`

	// ExecutionMode controls sequential vs parallel execution.
	ExecutionMode ort.ExecutionMode `json:"execution_mode" yaml:"execution_mode"`

	// IntraOpNumThreads sets threads for parallelizing ops. 0 lets onnxruntime decide.
	IntraOpNumThreads int `json:"intra_op_num_threads" yaml:"intra_op_num_threads"`

	// InterOpNumThreads sets threads for parallelizing independent ops. 0 lets onnxruntime
	// decide.
	InterOpNumThreads int `json:"inter_op_num_threads" yaml:"inter_op_num_threads"`

	// UseProfilingOptions enables per-run timing in the profiled session.
	UseProfilingOptions bool `json:"use_profiling_options" yaml:"use_profiling_options"`
}

// DefaultOptimizationConfig returns the optimization configuration used when none is given.
//
// Inference calls are issued one chunk at a time, so intra-op threads get most of the CPUs.
func DefaultOptimizationConfig() OptimizationConfig {
	numCPU := runtime.NumCPU()

	return OptimizationConfig{
		GraphOptimizationLevel: ort.GraphOptimizationLevelEnableExtended,
		ExecutionMode:          ort.ExecutionModeSequential,
		IntraOpNumThreads:      max(1, numCPU/2),
		InterOpNumThreads:      1,
		UseProfilingOptions:    true,
	}
}
