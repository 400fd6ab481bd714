package inference

import (
	"github.com/nvr-ai/go-ml-eval/inference/providers"
	"github.com/pkg/errors"
)

// EngineBuilder assembles an ONNXModel with a fluent API.
//
//	model, err := inference.NewEngineBuilder().
//		WithProvider(providers.ForDevice(gpu)).
//		WithModel(inference.ModelConfig{Path: "inception.onnx"}).
//		WithHead("softmax_w.npy").
//		Build()
type EngineBuilder struct {
	provider     providers.ExecutionProvider
	optimization providers.OptimizationConfig
	model        *ModelConfig
	head         *SoftmaxHead
	err          error
}

// NewEngineBuilder creates a new engine builder.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func NewEngineBuilder() *EngineBuilder {
	return &EngineBuilder{optimization: providers.DefaultOptimizationConfig()}
}

// WithProvider sets the execution provider.
//
// Arguments:
//   - args: The provider configuration.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithProvider(args providers.Config) *EngineBuilder {
	if b.HasError() {
		return b
	}

	provider, err := providers.NewProvider(args.Options)
	if err != nil {
		b.err = err
		return b
	}
	b.provider = provider
	if args.Optimization != nil {
		b.optimization = *args.Optimization
	}
	return b
}

// WithModel sets the graph to load.
//
// Arguments:
//   - args: The model configuration.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithModel(args ModelConfig) *EngineBuilder {
	if b.HasError() {
		return b
	}
	if args.Path == "" {
		b.err = errors.New("model path is required")
		return b
	}
	b.model = &args
	return b
}

// WithHead loads a softmax head from a .npy weights file. An empty path is ignored.
//
// Arguments:
//   - path: The weights file.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithHead(path string) *EngineBuilder {
	if b.HasError() || path == "" {
		return b
	}

	head, err := LoadSoftmaxHead(path)
	if err != nil {
		b.err = err
		return b
	}
	b.head = head
	return b
}

// HasError checks if the engine builder has errors.
//
// Returns:
//   - bool: True if there are errors, false otherwise.
func (b *EngineBuilder) HasError() bool {
	return b.err != nil
}

// Build creates the model.
//
// Returns:
//   - *ONNXModel: The loaded model.
//   - error: The first error recorded by the builder, or the model creation error.
func (b *EngineBuilder) Build() (*ONNXModel, error) {
	if b.HasError() {
		return nil, b.err
	}
	if b.model == nil {
		return nil, errors.New("no model configured")
	}
	if b.provider == nil {
		b.provider = providers.NewCPUProvider(providers.CPUOptions{})
	}

	return NewONNXModel(b.provider, *b.model, b.optimization, b.head)
}
