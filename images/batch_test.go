package images

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filledBatch(t *testing.T, n, h, w, c int, value float32) *Batch {
	t.Helper()
	data := make([]float32, n*h*w*c)
	for i := range data {
		data[i] = value
	}
	b, err := NewBatch(data, n, h, w, c)
	require.NoError(t, err)
	return b
}

func TestNewBatchRejectsMismatchedBuffer(t *testing.T) {
	_, err := NewBatch(make([]float32, 10), 1, 2, 2, 3)
	require.Error(t, err)

	_, err = NewBatch(nil, 1, 0, 2, 3)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		batch   func(t *testing.T) *Batch
		wantErr error
	}{
		{
			name:  "valid 8-bit range",
			batch: func(t *testing.T) *Batch { b := filledBatch(t, 2, 4, 4, 3, 0); b.Data[5] = 255; return b },
		},
		{
			name:    "empty",
			batch:   func(t *testing.T) *Batch { return filledBatch(t, 0, 4, 4, 3, 0) },
			wantErr: ErrEmptyBatch,
		},
		{
			name:    "grayscale",
			batch:   func(t *testing.T) *Batch { return filledBatch(t, 2, 4, 4, 1, 128) },
			wantErr: ErrInvalidDepth,
		},
		{
			name:    "normalized to unit range",
			batch:   func(t *testing.T) *Batch { return filledBatch(t, 2, 4, 4, 3, 0.9) },
			wantErr: ErrNotScaled,
		},
		{
			name:    "maximum exactly at threshold",
			batch:   func(t *testing.T) *Batch { return filledBatch(t, 1, 2, 2, 3, ScaleThreshold) },
			wantErr: ErrNotScaled,
		},
		{
			name:    "negative pixel",
			batch:   func(t *testing.T) *Batch { b := filledBatch(t, 2, 4, 4, 3, 100); b.Data[3] = -1; return b },
			wantErr: ErrNegativeValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.batch(t).Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			var verr *ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestChunkBounds(t *testing.T) {
	tests := []struct {
		name      string
		n         int
		chunkSize int
		sizes     []int
	}{
		{name: "exact multiple", n: 300, chunkSize: 100, sizes: []int{100, 100, 100}},
		{name: "round half to even down", n: 250, chunkSize: 100, sizes: []int{125, 125}},
		{name: "round half to even up", n: 150, chunkSize: 100, sizes: []int{75, 75}},
		{name: "chunk larger than nominal", n: 140, chunkSize: 100, sizes: []int{140}},
		{name: "uneven array_split", n: 1049, chunkSize: 100, sizes: []int{105, 105, 105, 105, 105, 105, 105, 105, 105, 104}},
		{name: "small batch gets one chunk", n: 30, chunkSize: 100, sizes: []int{30}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bounds := ChunkBounds(tt.n, tt.chunkSize)
			require.Len(t, bounds, len(tt.sizes))

			next := 0
			for i, b := range bounds {
				assert.Equal(t, next, b[0], "chunk %d must start where the previous ended", i)
				assert.Equal(t, tt.sizes[i], b[1]-b[0], "chunk %d size", i)
				next = b[1]
			}
			assert.Equal(t, tt.n, next)
		})
	}
}

func TestSplitPreservesOrder(t *testing.T) {
	n, h, w, c := 5, 1, 1, 3
	data := make([]float32, n*h*w*c)
	for i := range data {
		data[i] = float32(i / c)
	}
	b, err := NewBatch(data, n, h, w, c)
	require.NoError(t, err)

	chunks := b.Split(2)
	require.Len(t, chunks, 2)
	assert.Equal(t, 3, chunks[0].N)
	assert.Equal(t, 2, chunks[1].N)
	assert.Equal(t, float32(0), chunks[0].Data[0])
	assert.Equal(t, float32(3), chunks[1].Data[0])
	assert.Equal(t, float32(4), chunks[1].Data[len(chunks[1].Data)-1])
}

func TestTensorShape(t *testing.T) {
	b := filledBatch(t, 2, 5, 4, 3, 7)
	tt := b.Tensor()
	assert.Equal(t, []int{2, 5, 4, 3}, []int(tt.Shape()))
	assert.Equal(t, b.Data, tt.Data())
}

func TestResizeKeepsConstantImage(t *testing.T) {
	b := filledBatch(t, 2, 2, 2, 3, 200)

	out, err := b.Resize(4, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, out.N)
	assert.Equal(t, 3, out.Height)
	assert.Equal(t, 4, out.Width)
	require.Len(t, out.Data, 2*3*4*3)
	for _, v := range out.Data {
		assert.InDelta(t, 200, v, 1)
	}

	same, err := b.Resize(2, 2)
	require.NoError(t, err)
	assert.Same(t, b, same)
}
