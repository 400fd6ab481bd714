package images

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrEmptyBatch is returned for a batch without images.
	ErrEmptyBatch = errors.New("image batch is empty")
	// ErrInvalidDepth is returned when images are not 3-channel.
	ErrInvalidDepth = errors.New("images must have depth 3")
	// ErrNotScaled is returned when the batch maximum does not exceed ScaleThreshold,
	// which usually means the pixels were normalized to [0, 1].
	ErrNotScaled = errors.New("images must be scaled to [0, 255]")
	// ErrNegativeValue is returned when a pixel is below zero.
	ErrNegativeValue = errors.New("images must not contain negative values")
)

// ValidationError reports a batch that violates the input contract.
type ValidationError struct {
	// Err is one of the sentinel errors of this package.
	Err error
	// Value is the offending depth, maximum or minimum.
	Value float64
}

// Error implements error.
func (e *ValidationError) Error() string {
	switch e.Err {
	case ErrInvalidDepth:
		return fmt.Sprintf("%v (got %g)", e.Err, e.Value)
	case ErrNotScaled:
		return fmt.Sprintf("%v (max value %g <= %d)", e.Err, e.Value, ScaleThreshold)
	case ErrNegativeValue:
		return fmt.Sprintf("%v (min value %g)", e.Err, e.Value)
	default:
		return e.Err.Error()
	}
}

// Unwrap returns the sentinel error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}
