// Package providers - Execution providers for the onnxruntime session.
package providers

import (
	"github.com/pkg/errors"
)

// ProviderBackend names an onnxruntime execution provider.
type ProviderBackend string

// ProviderOptions is a marker interface for provider-specific config.
type ProviderOptions interface {
	isProviderOptions()
}

// ExecutionProvider represents the contract that all execution providers must implement.
type ExecutionProvider interface {
	Backend() ProviderBackend
	Options() ProviderOptions
}

// Config selects an execution provider and how the session is tuned.
type Config struct {
	// Options contains provider-specific configuration options. The concrete type selects the
	// backend.
	Options ProviderOptions `json:"options" yaml:"options"`

	// Optimization overrides DefaultOptimizationConfig when set.
	Optimization *OptimizationConfig `json:"optimization,omitempty" yaml:"optimization,omitempty"`
}

// ForDevice returns the provider config for a device index.
//
// A negative index selects the CPU provider, any other index the CUDA device with that id.
// Which device to use is left to the caller.
//
// Arguments:
//   - device: The device index.
//
// Returns:
//   - Config: The provider configuration.
func ForDevice(device int) Config {
	if device < 0 {
		return Config{Options: CPUOptions{}}
	}
	return Config{Options: CUDAOptions{DeviceID: device}}
}

// NewProvider creates a new provider based on the concrete options type.
//
// Arguments:
//   - options: The options for the provider.
//
// Returns:
//   - ExecutionProvider: The new provider.
//   - error: An error if the options type is not supported.
func NewProvider(options ProviderOptions) (ExecutionProvider, error) {
	switch opts := options.(type) {
	case nil:
		return NewCPUProvider(CPUOptions{}), nil
	case CPUOptions:
		return NewCPUProvider(opts), nil
	case CoreMLOptions:
		return NewCoreMLProvider(opts), nil
	case CUDAOptions:
		return NewCUDAProvider(opts), nil
	case OpenVINOOptions:
		return NewOpenVINOProvider(opts), nil
	default:
		return nil, errors.Errorf("unsupported provider options type: %T", opts)
	}
}
