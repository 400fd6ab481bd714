package inference

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/sbinet/npyio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"
)

func TestSoftmaxHeadForward(t *testing.T) {
	weights := tensor.New(
		tensor.WithShape(2, 3),
		tensor.WithBacking([]float32{
			1, 0, 1,
			0, 1, 1,
		}),
	)
	head, err := NewSoftmaxHead(weights)
	require.NoError(t, err)
	assert.Equal(t, 2, head.Dim())
	assert.Equal(t, 3, head.Classes())

	embeddings := tensor.New(
		tensor.WithShape(2, 1, 1, 2),
		tensor.WithBacking([]float32{
			1, 0,
			0, 0,
		}),
	)

	probs, err := head.Forward(embeddings)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, []int(probs.Shape()))

	data := probs.Data().([]float32)
	// Row 0 logits (1, 0, 1), row 1 logits (0, 0, 0).
	e := math.E
	assert.InDelta(t, e/(2*e+1), data[0], 1e-5)
	assert.InDelta(t, 1/(2*e+1), data[1], 1e-5)
	assert.InDelta(t, e/(2*e+1), data[2], 1e-5)
	for i := 3; i < 6; i++ {
		assert.InDelta(t, 1.0/3, data[i], 1e-5)
	}

	// Forward must not reshape the caller's tensor.
	assert.Equal(t, []int{2, 1, 1, 2}, []int(embeddings.Shape()))
}

func TestSoftmaxHeadRejectsMismatchedEmbeddings(t *testing.T) {
	head, err := NewSoftmaxHead(tensor.New(tensor.WithShape(4, 2), tensor.Of(tensor.Float32)))
	require.NoError(t, err)

	_, err = head.Forward(tensor.New(tensor.WithShape(2, 3), tensor.Of(tensor.Float32)))
	assert.Error(t, err)

	_, err = head.Forward(tensor.New(tensor.WithShape(2, 4), tensor.Of(tensor.Float64)))
	assert.Error(t, err)
}

func TestNewSoftmaxHeadRejectsVector(t *testing.T) {
	_, err := NewSoftmaxHead(tensor.New(tensor.WithShape(4), tensor.Of(tensor.Float32)))
	assert.Error(t, err)
}

func TestLoadSoftmaxHead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "softmax_w.npy")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, npyio.Write(f, mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})))
	require.NoError(t, f.Close())

	head, err := LoadSoftmaxHead(path)
	require.NoError(t, err)
	assert.Equal(t, 2, head.Dim())
	assert.Equal(t, 3, head.Classes())
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, head.weights.Data())

	_, err = LoadSoftmaxHead(filepath.Join(t.TempDir(), "missing.npy"))
	assert.Error(t, err)
}
