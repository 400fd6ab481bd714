package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func repeatRows(n int, row []float64) *mat.Dense {
	data := make([]float64, 0, n*len(row))
	for i := 0; i < n; i++ {
		data = append(data, row...)
	}
	return mat.NewDense(n, len(row), data)
}

func TestSplitBoundsPartition(t *testing.T) {
	bounds := SplitBounds(97, 10)
	require.Len(t, bounds, 10)

	seen := make([]int, 97)
	next := 0
	for _, b := range bounds {
		assert.Equal(t, next, b[0], "groups must be contiguous")
		assert.GreaterOrEqual(t, b[1]-b[0], 9)
		assert.LessOrEqual(t, b[1]-b[0], 10)
		for i := b[0]; i < b[1]; i++ {
			seen[i]++
		}
		next = b[1]
	}
	assert.Equal(t, 97, next)
	for i, count := range seen {
		assert.Equal(t, 1, count, "index %d", i)
	}
	assert.Equal(t, [2]int{0, 9}, bounds[0])
	assert.Equal(t, [2]int{87, 97}, bounds[9])
}

func TestInceptionScoreIdenticalPeakedVectors(t *testing.T) {
	probs := repeatRows(200, []float64{0.97, 0.01, 0.01, 0.01})

	mean, std, err := InceptionScore(probs, DefaultSplits)
	require.NoError(t, err)
	assert.InDelta(t, 1, mean, 1e-9)
	assert.InDelta(t, 0, std, 1e-9)
}

func TestInceptionScoreSingleSplitHasNoSpread(t *testing.T) {
	data := make([]float64, 0, 100*2)
	for i := 0; i < 100; i++ {
		if i%2 == 0 {
			data = append(data, 0.9, 0.1)
		} else {
			data = append(data, 0.1, 0.9)
		}
	}
	probs := mat.NewDense(100, 2, data)

	mean, std, err := InceptionScore(probs, 1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, std)

	kl := 0.9*math.Log(0.9/0.5) + 0.1*math.Log(0.1/0.5)
	assert.InDelta(t, math.Exp(kl), mean, 1e-12)
}

func TestInceptionScoreUnequalGroups(t *testing.T) {
	// 97 rows over 10 splits: the group scores differ only through rounding, since every
	// group holds the same alternating pattern of confident predictions.
	data := make([]float64, 0, 97*3)
	for i := 0; i < 97; i++ {
		row := []float64{0.02, 0.02, 0.02}
		row[i%3] = 0.96
		data = append(data, row...)
	}

	mean, std, err := InceptionScore(mat.NewDense(97, 3, data), 10)
	require.NoError(t, err)
	assert.Greater(t, mean, 1.0)
	assert.Less(t, mean, 3.0)
	assert.Greater(t, std, 0.0)
}

func TestInceptionScoreRejectsZeroSplits(t *testing.T) {
	_, _, err := InceptionScore(repeatRows(4, []float64{0.5, 0.5}), 0)
	assert.Error(t, err)
}

func TestInceptionScoreMoreSplitsThanSamplesIsDegenerate(t *testing.T) {
	mean, _, err := InceptionScore(repeatRows(3, []float64{0.5, 0.5}), 5)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(mean))
}
