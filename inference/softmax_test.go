package inference

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSoftmax32(t *testing.T) {
	probs, err := Softmax32([]float32{0, 0, 0, 1000, 1000, 1000, 1, 2, 3}, 3)
	require.NoError(t, err)
	require.Len(t, probs, 9)

	for row := 0; row < 3; row++ {
		var sum float32
		for _, p := range probs[row*3 : row*3+3] {
			assert.False(t, math32.IsNaN(p))
			sum += p
		}
		assert.InDelta(t, 1, sum, 1e-6)
	}
	assert.InDelta(t, 1.0/3, probs[0], 1e-6)
	assert.InDelta(t, 1.0/3, probs[3], 1e-6)
	assert.Greater(t, probs[8], probs[7])
	assert.Greater(t, probs[7], probs[6])
}

func TestSoftmax32RejectsRaggedRows(t *testing.T) {
	_, err := Softmax32([]float32{1, 2, 3}, 2)
	assert.Error(t, err)

	_, err = Softmax32([]float32{1, 2}, 0)
	assert.Error(t, err)
}
