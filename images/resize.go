package images

import (
	"image"
	"image/color"
	"math"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// Resize returns a copy of the batch with every image resized to width x height using
// bilinear interpolation.
//
// Pixel values are clamped to [0, 255] on the way through the 8-bit image path, which is
// the range the batch contract requires anyway.
//
// Arguments:
//   - width: Target width in pixels.
//   - height: Target height in pixels.
//
// Returns:
//   - *Batch: The resized batch.
//   - error: An error if the batch is not RGB or the size is invalid.
func (b *Batch) Resize(width, height int) (*Batch, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid resize target %dx%d", width, height)
	}
	if b.Channels != Depth {
		return nil, &ValidationError{Err: ErrInvalidDepth, Value: float64(b.Channels)}
	}
	if b.Width == width && b.Height == height {
		return b, nil
	}

	size := width * height * Depth
	out := make([]float32, b.N*size)
	for n := 0; n < b.N; n++ {
		src := b.toRGBA(n)
		dst := resize.Resize(uint(width), uint(height), src, resize.Bilinear)

		i := n * size
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				r, g, bl, _ := dst.At(x, y).RGBA()
				out[i] = float32(r >> 8)
				out[i+1] = float32(g >> 8)
				out[i+2] = float32(bl >> 8)
				i += Depth
			}
		}
	}

	return NewBatch(out, b.N, height, width, Depth)
}

// toRGBA converts image n of the batch into an *image.RGBA.
func (b *Batch) toRGBA(n int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, b.Width, b.Height))
	base := n * b.ImageSize()
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			p := base + (y*b.Width+x)*Depth
			img.SetRGBA(x, y, color.RGBA{
				R: clamp8(b.Data[p]),
				G: clamp8(b.Data[p+1]),
				B: clamp8(b.Data[p+2]),
				A: 255,
			})
		}
	}
	return img
}

func clamp8(v float32) uint8 {
	return uint8(math.Max(0, math.Min(255, math.Round(float64(v)))))
}
