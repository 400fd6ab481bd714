package inference

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

// Softmax32 applies a numerically stable softmax to every row of a row-major logits
// buffer.
//
// Arguments:
//   - logits: The logits, len(logits) must be a multiple of classes.
//   - classes: The number of classes per row.
//
// Returns:
//   - []float32: The probabilities, same layout as logits.
//   - error: An error if the buffer cannot be split into rows.
func Softmax32(logits []float32, classes int) ([]float32, error) {
	if classes <= 0 || len(logits)%classes != 0 {
		return nil, errors.Errorf("cannot split %d logits into rows of %d classes", len(logits), classes)
	}

	out := make([]float32, len(logits))
	for start := 0; start < len(logits); start += classes {
		row := logits[start : start+classes]
		dst := out[start : start+classes]

		peak := math32.Inf(-1)
		for _, v := range row {
			peak = math32.Max(peak, v)
		}

		var sum float32
		for i, v := range row {
			dst[i] = math32.Exp(v - peak)
			sum += dst[i]
		}
		for i := range dst {
			dst[i] /= sum
		}
	}
	return out, nil
}
