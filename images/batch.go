// Package images - Image batch definition and validation for metric evaluation.
package images

import (
	"math"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

const (
	// Depth is the number of channels every evaluated image must carry (RGB).
	Depth = 3
	// ScaleThreshold is the value the batch maximum must exceed. It is a best-effort check
	// that pixels are scaled to [0, 255] and not [0, 1].
	ScaleThreshold = 10
)

// Batch is an ordered sequence of images stored contiguously in NHWC order.
//
// The batch is owned by the caller; the evaluation pipeline only reads it.
type Batch struct {
	// N is the number of images.
	N int `json:"n" yaml:"n"`
	// Height of every image in pixels.
	Height int `json:"height" yaml:"height"`
	// Width of every image in pixels.
	Width int `json:"width" yaml:"width"`
	// Channels per pixel.
	Channels int `json:"channels" yaml:"channels"`
	// Data holds N*Height*Width*Channels values, image-major.
	Data []float32 `json:"-" yaml:"-"`
}

// NewBatch wraps a float32 NHWC buffer.
//
// Arguments:
//   - data: The pixel values, image-major in NHWC order.
//   - n: Number of images.
//   - height: Image height.
//   - width: Image width.
//   - channels: Channels per pixel.
//
// Returns:
//   - *Batch: The batch, sharing data.
//   - error: An error if the buffer size does not match the shape.
func NewBatch(data []float32, n, height, width, channels int) (*Batch, error) {
	if n < 0 || height <= 0 || width <= 0 || channels <= 0 {
		return nil, errors.Errorf("invalid batch shape (%d, %d, %d, %d)", n, height, width, channels)
	}
	if want := n * height * width * channels; len(data) != want {
		return nil, errors.Errorf("batch data holds %d values, shape (%d, %d, %d, %d) needs %d",
			len(data), n, height, width, channels, want)
	}
	return &Batch{N: n, Height: height, Width: width, Channels: channels, Data: data}, nil
}

// FromUint8 converts 8-bit pixels into a float32 batch.
func FromUint8(data []uint8, n, height, width, channels int) (*Batch, error) {
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = float32(v)
	}
	return NewBatch(out, n, height, width, channels)
}

// FromFloat64 converts float64 pixels into a float32 batch.
func FromFloat64(data []float64, n, height, width, channels int) (*Batch, error) {
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = float32(v)
	}
	return NewBatch(out, n, height, width, channels)
}

// ImageSize returns the number of values per image.
func (b *Batch) ImageSize() int {
	return b.Height * b.Width * b.Channels
}

// Validate checks the caller contract of a batch: RGB depth and pixels in [0, 255].
//
// The maximum check only rejects batches that look normalized to [0, 1]; it does not prove
// the data is in [0, 255].
//
// Returns:
//   - error: A *ValidationError wrapping ErrEmptyBatch, ErrInvalidDepth, ErrNotScaled or
//     ErrNegativeValue, or nil.
func (b *Batch) Validate() error {
	if b == nil || b.N == 0 || len(b.Data) == 0 {
		return &ValidationError{Err: ErrEmptyBatch}
	}
	if b.Channels != Depth {
		return &ValidationError{Err: ErrInvalidDepth, Value: float64(b.Channels)}
	}

	lo, hi := math32.Inf(1), math32.Inf(-1)
	for _, v := range b.Data {
		lo = math32.Min(lo, v)
		hi = math32.Max(hi, v)
	}
	if !(hi > ScaleThreshold) {
		return &ValidationError{Err: ErrNotScaled, Value: float64(hi)}
	}
	if !(lo >= 0) {
		return &ValidationError{Err: ErrNegativeValue, Value: float64(lo)}
	}
	return nil
}

// Slice returns the images in [start, end) sharing the backing data.
func (b *Batch) Slice(start, end int) *Batch {
	size := b.ImageSize()
	return &Batch{
		N:        end - start,
		Height:   b.Height,
		Width:    b.Width,
		Channels: b.Channels,
		Data:     b.Data[start*size : end*size],
	}
}

// Split partitions the batch into consecutive chunks of roughly chunkSize images.
//
// The number of chunks is round(N / chunkSize), rounding half to even, and never less than
// one. Chunk sizes follow numpy.array_split: with k chunks the first N%k chunks hold one
// extra image. A chunk can therefore be larger than chunkSize when N is not a multiple of
// it.
//
// Arguments:
//   - chunkSize: The nominal number of images per chunk.
//
// Returns:
//   - []*Batch: The chunks in input order.
func (b *Batch) Split(chunkSize int) []*Batch {
	bounds := ChunkBounds(b.N, chunkSize)
	chunks := make([]*Batch, 0, len(bounds))
	for _, bound := range bounds {
		chunks = append(chunks, b.Slice(bound[0], bound[1]))
	}
	return chunks
}

// ChunkBounds returns the [start, end) index ranges used by Split.
func ChunkBounds(n, chunkSize int) [][2]int {
	if chunkSize <= 0 {
		chunkSize = 1
	}
	k := int(math.RoundToEven(float64(n) / float64(chunkSize)))
	if k < 1 {
		k = 1
	}

	base, extra := n/k, n%k
	bounds := make([][2]int, 0, k)
	start := 0
	for i := 0; i < k; i++ {
		size := base
		if i < extra {
			size++
		}
		bounds = append(bounds, [2]int{start, start + size})
		start += size
	}
	return bounds
}

// Tensor returns an (N, Height, Width, Channels) float32 tensor backed by the batch data.
func (b *Batch) Tensor() *tensor.Dense {
	return tensor.New(
		tensor.WithShape(b.N, b.Height, b.Width, b.Channels),
		tensor.Of(tensor.Float32),
		tensor.WithBacking(b.Data),
	)
}
