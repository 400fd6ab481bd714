// Package features - Batched embedding and class-probability extraction through a frozen
// classification network.
package features

import (
	"context"

	"github.com/nvr-ai/go-ml-eval/images"
	"github.com/nvr-ai/go-ml-eval/inference"
	"github.com/nvr-ai/go-ml-eval/profiler"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"
)

const (
	// DefaultChunkSize is the nominal number of images per inference call.
	DefaultChunkSize = 100
	// DefaultEmbeddingDim is the width of the pooled Inception embedding.
	DefaultEmbeddingDim = 2048
)

// ErrShapeMismatch is returned when the model output does not line up with its input.
var ErrShapeMismatch = errors.New("model output shape mismatch")

// Features holds the per-image network outputs of a batch, in input order.
type Features struct {
	// Probabilities is N x classes.
	Probabilities *mat.Dense
	// Embeddings is N x EmbeddingDim.
	Embeddings *mat.Dense
}

// Extractor runs image batches through a Model chunk by chunk.
type Extractor struct {
	// Model is the frozen network.
	Model inference.Model
	// ChunkSize is the nominal chunk size.
	ChunkSize int
	// EmbeddingDim is the number of values each image's embedding flattens to.
	EmbeddingDim int
	// Profiler records per-chunk timings when set.
	Profiler *profiler.RuntimeProfiler
}

// NewExtractor creates an extractor with the default chunk size and embedding width.
func NewExtractor(model inference.Model) *Extractor {
	return &Extractor{
		Model:        model,
		ChunkSize:    DefaultChunkSize,
		EmbeddingDim: DefaultEmbeddingDim,
	}
}

// Extract returns the class probabilities and embeddings of every image in the batch.
//
// The batch is validated first and a validation error is returned unchanged, so callers can
// test it with errors.Is against the images sentinel errors. The batch is then split with
// images.Batch.Split and the chunks are sent to the model strictly in order, one call at a
// time. Each chunk's embeddings are flattened to (n, EmbeddingDim) whatever spatial shape the
// model emits.
//
// Arguments:
//   - ctx: Checked between chunks.
//   - batch: The images, NHWC in [0, 255].
//
// Returns:
//   - *Features: The outputs, row i belonging to image i.
//   - error: A validation error, a model error, ErrShapeMismatch or the context error.
func (e *Extractor) Extract(ctx context.Context, batch *images.Batch) (*Features, error) {
	if err := batch.Validate(); err != nil {
		return nil, err
	}
	if e.Model == nil {
		return nil, errors.New("extractor has no model")
	}

	chunkSize := e.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	dim := e.EmbeddingDim
	if dim <= 0 {
		dim = DefaultEmbeddingDim
	}

	chunks := batch.Split(chunkSize)
	embeddings := make([]float64, 0, batch.N*dim)
	var probabilities []float64
	classes := 0

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		out, err := e.infer(ctx, chunk)
		if err != nil {
			return nil, errors.Wrapf(err, "inference failed on chunk %d/%d", i+1, len(chunks))
		}

		emb, err := flatten(out.Embeddings, chunk.N, dim)
		if err != nil {
			return nil, errors.Wrapf(err, "embeddings of chunk %d", i+1)
		}

		if out.Probabilities == nil {
			return nil, errors.Wrapf(ErrShapeMismatch, "chunk %d has no probabilities", i+1)
		}
		rowWidth := 0
		if chunk.N > 0 {
			rowWidth = out.Probabilities.Shape().TotalSize() / chunk.N
		}
		if classes == 0 {
			classes = rowWidth
			probabilities = make([]float64, 0, batch.N*classes)
		}
		if rowWidth == 0 || rowWidth != classes {
			return nil, errors.Wrapf(ErrShapeMismatch, "chunk %d has probabilities of shape %v, want (%d, %d)",
				i+1, out.Probabilities.Shape(), chunk.N, classes)
		}
		prob, err := flatten(out.Probabilities, chunk.N, classes)
		if err != nil {
			return nil, errors.Wrapf(err, "probabilities of chunk %d", i+1)
		}

		embeddings = append(embeddings, emb...)
		probabilities = append(probabilities, prob...)

		log.Debug().Int("chunk", i+1).Int("chunks", len(chunks)).Int("images", chunk.N).Msg("chunk extracted")
	}

	return &Features{
		Probabilities: mat.NewDense(batch.N, classes, probabilities),
		Embeddings:    mat.NewDense(batch.N, dim, embeddings),
	}, nil
}

func (e *Extractor) infer(ctx context.Context, chunk *images.Batch) (*inference.Output, error) {
	if e.Profiler != nil {
		defer e.Profiler.StartOperation("extract_chunk")()
		e.Profiler.RecordMetric("chunk_size", float64(chunk.N))
	}
	return e.Model.Infer(ctx, chunk.Tensor())
}

// flatten reshapes a model output to (n, width) and widens it to float64.
func flatten(t *tensor.Dense, n, width int) ([]float64, error) {
	if t == nil {
		return nil, errors.Wrap(ErrShapeMismatch, "missing output")
	}
	if t.Shape().TotalSize() != n*width || (t.Dims() > 0 && t.Shape()[0] != n) {
		return nil, errors.Wrapf(ErrShapeMismatch, "output of shape %v does not reshape to (%d, %d)",
			t.Shape(), n, width)
	}

	flat := t.ShallowClone()
	if err := flat.Reshape(n, width); err != nil {
		return nil, errors.Wrap(err, "error reshaping output")
	}

	switch data := flat.Data().(type) {
	case []float32:
		out := make([]float64, len(data))
		for i, v := range data {
			out[i] = float64(v)
		}
		return out, nil
	case []float64:
		out := make([]float64, len(data))
		copy(out, data)
		return out, nil
	default:
		return nil, errors.Errorf("unsupported output type %v", t.Dtype())
	}
}
