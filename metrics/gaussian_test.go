package metrics

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// normalSamples draws n samples of N(shift, I) in d dimensions.
func normalSamples(rng *rand.Rand, n, d int, shift float64) *mat.Dense {
	data := make([]float64, n*d)
	for i := range data {
		data[i] = rng.NormFloat64() + shift
	}
	return mat.NewDense(n, d, data)
}

func TestFitGaussian(t *testing.T) {
	x := mat.NewDense(4, 2, []float64{
		1, 2,
		2, 4,
		3, 6,
		6, 0,
	})

	g, err := FitGaussian(x)
	require.NoError(t, err)
	assert.Equal(t, 2, g.Dim())
	assert.InDeltaSlice(t, []float64{3, 3}, g.Mean, 1e-12)

	// Unbiased estimate, normalized by N-1.
	assert.InDelta(t, 14.0/3, g.Cov.At(0, 0), 1e-12)
	assert.InDelta(t, 20.0/3, g.Cov.At(1, 1), 1e-12)
	assert.InDelta(t, -8.0/3, g.Cov.At(0, 1), 1e-12)
	assert.Equal(t, g.Cov.At(0, 1), g.Cov.At(1, 0))
}

func TestFitGaussianNeedsTwoSamples(t *testing.T) {
	_, err := FitGaussian(mat.NewDense(1, 3, []float64{1, 2, 3}))
	assert.ErrorIs(t, err, ErrTooFewSamples)
}
