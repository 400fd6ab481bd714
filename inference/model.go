// Package inference - Frozen classification network used to extract embeddings and class
// probabilities from image batches.
package inference

import (
	"context"

	"gorgonia.org/tensor"
)

// Model is a frozen classification network.
//
// Infer accepts an (n, height, width, 3) float32 batch of any n and returns, per image, an
// embedding and a class-probability vector. Implementations must be safe for sequential
// use; callers never issue overlapping calls.
type Model interface {
	Infer(ctx context.Context, batch *tensor.Dense) (*Output, error)
	Close() error
}

// Output is the result of one inference call.
type Output struct {
	// Embeddings has n as its leading dimension. Trailing dimensions may include singleton
	// spatial axes, e.g. (n, 1, 1, 2048).
	Embeddings *tensor.Dense
	// Probabilities is (n, classes), each row summing to one.
	Probabilities *tensor.Dense
}

// ModelFunc adapts a function to the Model interface.
type ModelFunc func(ctx context.Context, batch *tensor.Dense) (*Output, error)

// Infer calls f.
func (f ModelFunc) Infer(ctx context.Context, batch *tensor.Dense) (*Output, error) {
	return f(ctx, batch)
}

// Close does nothing.
func (f ModelFunc) Close() error {
	return nil
}
