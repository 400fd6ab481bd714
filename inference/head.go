package inference

import (
	"os"

	"github.com/pkg/errors"
	"github.com/sbinet/npyio"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// SoftmaxHead is the classification layer of the network: softmax(embeddings · W).
//
// It is used with graphs that expose only the pooled embedding output, so the class
// probabilities are computed here from the exported logits weights.
type SoftmaxHead struct {
	// weights is a (dim, classes) float32 matrix.
	weights *tensor.Dense
}

// NewSoftmaxHead creates a head from a (dim, classes) weights matrix.
//
// Arguments:
//   - weights: The logits weights. float64 weights are converted to float32.
//
// Returns:
//   - *SoftmaxHead: The head.
//   - error: An error if the weights are not a matrix.
func NewSoftmaxHead(weights *tensor.Dense) (*SoftmaxHead, error) {
	if weights == nil || weights.Dims() != 2 {
		return nil, errors.New("softmax head weights must be a 2-D matrix")
	}

	switch data := weights.Data().(type) {
	case []float32:
		return &SoftmaxHead{weights: weights}, nil
	case []float64:
		converted := make([]float32, len(data))
		for i, v := range data {
			converted[i] = float32(v)
		}
		shape := weights.Shape()
		return &SoftmaxHead{weights: tensor.New(
			tensor.WithShape(shape[0], shape[1]),
			tensor.WithBacking(converted),
		)}, nil
	default:
		return nil, errors.Errorf("unsupported softmax head weights type %v", weights.Dtype())
	}
}

// LoadSoftmaxHead reads a (dim, classes) weights matrix from a .npy file.
func LoadSoftmaxHead(path string) (*SoftmaxHead, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "error opening softmax head weights")
	}
	defer f.Close()

	r, err := npyio.NewReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading npy header of %s", path)
	}

	shape := r.Header.Descr.Shape
	if len(shape) != 2 {
		return nil, errors.Errorf("softmax head weights in %s have shape %v, want (dim, classes)", path, shape)
	}

	var weights *tensor.Dense
	switch r.Header.Descr.Type {
	case "<f4":
		data := make([]float32, shape[0]*shape[1])
		if err := r.Read(&data); err != nil {
			return nil, errors.Wrapf(err, "error reading %s", path)
		}
		weights = tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
	case "<f8":
		data := make([]float64, shape[0]*shape[1])
		if err := r.Read(&data); err != nil {
			return nil, errors.Wrapf(err, "error reading %s", path)
		}
		weights = tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
	default:
		return nil, errors.Errorf("unsupported dtype %q in %s", r.Header.Descr.Type, path)
	}

	return NewSoftmaxHead(weights)
}

// Dim returns the embedding dimension the head expects.
func (h *SoftmaxHead) Dim() int {
	return h.weights.Shape()[0]
}

// Classes returns the number of output classes.
func (h *SoftmaxHead) Classes() int {
	return h.weights.Shape()[1]
}

// Forward computes class probabilities for a batch of embeddings.
//
// Arguments:
//   - embeddings: A float32 tensor with n as its leading dimension and Dim() values per row,
//     e.g. (n, 1, 1, 2048).
//
// Returns:
//   - *tensor.Dense: The (n, classes) probabilities.
//   - error: An error if the shapes do not line up or the graph fails to run.
func (h *SoftmaxHead) Forward(embeddings *tensor.Dense) (*tensor.Dense, error) {
	if embeddings.Dims() == 0 {
		return nil, errors.New("embeddings must have a batch dimension")
	}
	if embeddings.Dtype() != tensor.Float32 {
		return nil, errors.Errorf("embeddings must be float32, got %v", embeddings.Dtype())
	}

	n := embeddings.Shape()[0]
	if n == 0 || embeddings.Shape().TotalSize() != n*h.Dim() {
		return nil, errors.Errorf("embeddings of shape %v do not flatten to (%d, %d)",
			embeddings.Shape(), n, h.Dim())
	}

	x := embeddings.Clone().(*tensor.Dense)
	if err := x.Reshape(n, h.Dim()); err != nil {
		return nil, errors.Wrap(err, "error flattening embeddings")
	}

	g := G.NewGraph()
	pool := G.NewMatrix(g, tensor.Float32, G.WithShape(n, h.Dim()), G.WithName("pool3"), G.WithValue(x))
	w := G.NewMatrix(g, tensor.Float32, G.WithShape(h.Dim(), h.Classes()), G.WithName("w"), G.WithValue(h.weights))

	logits, err := G.Mul(pool, w)
	if err != nil {
		return nil, errors.Wrap(err, "error building logits")
	}
	prob, err := G.SoftMax(logits)
	if err != nil {
		return nil, errors.Wrap(err, "error building softmax")
	}

	vm := G.NewTapeMachine(g)
	defer vm.Close()

	if err := vm.RunAll(); err != nil {
		return nil, errors.Wrap(err, "error running softmax head")
	}

	probs, ok := prob.Value().(*tensor.Dense)
	if !ok {
		return nil, errors.Errorf("unexpected softmax head output %T", prob.Value())
	}
	return probs.Clone().(*tensor.Dense), nil
}
