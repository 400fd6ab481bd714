package controller

import (
	"context"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/nvr-ai/go-ml-eval/features"
	"github.com/nvr-ai/go-ml-eval/images"
	"github.com/nvr-ai/go-ml-eval/metrics"
	"github.com/nvr-ai/go-ml-eval/util"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

const testDim = 3

// randomExtractor returns normal embeddings and normalized random probabilities, and records
// the height of every batch it sees.
type randomExtractor struct {
	rng     *rand.Rand
	heights []int
	err     error
}

func (r *randomExtractor) Extract(_ context.Context, batch *images.Batch) (*features.Features, error) {
	r.heights = append(r.heights, batch.Height)
	if r.err != nil {
		return nil, r.err
	}

	emb := mat.NewDense(batch.N, testDim, nil)
	prob := mat.NewDense(batch.N, 4, nil)
	for i := 0; i < batch.N; i++ {
		for j := 0; j < testDim; j++ {
			emb.Set(i, j, r.rng.NormFloat64())
		}
		sum := 0.0
		for j := 0; j < 4; j++ {
			v := r.rng.Float64() + 0.1
			prob.Set(i, j, v)
			sum += v
		}
		for j := 0; j < 4; j++ {
			prob.Set(i, j, prob.At(i, j)/sum)
		}
	}
	return &features.Features{Embeddings: emb, Probabilities: prob}, nil
}

func constantBatch(n int) (*images.Batch, error) {
	data := make([]float32, n*2*2*3)
	for i := range data {
		data[i] = 200
	}
	return images.NewBatch(data, n, 2, 2, 3)
}

func newTestController(t *testing.T, extractor *randomExtractor) (*Controller, *[]string) {
	t.Helper()
	var loaded []string
	c := New(extractor)
	c.LoadCheckpoint = func(path string) (*images.Batch, error) {
		loaded = append(loaded, path)
		return constantBatch(200)
	}
	c.LoadDataset = func(string) (*images.Batch, error) {
		return constantBatch(500)
	}
	return c, &loaded
}

func TestEvaluate(t *testing.T) {
	c, loaded := newTestController(t, &randomExtractor{rng: rand.New(rand.NewSource(1))})
	require.NoError(t, c.LoadReference(context.Background(), ReferenceSource{Dataset: "cifar"}))

	checkpoints := []util.Checkpoint{
		{Iteration: 1000, Path: "iter1000.npy"},
		{Iteration: 2000, Path: "iter2000.npy"},
	}
	table, err := c.Evaluate(context.Background(), checkpoints)
	require.NoError(t, err)

	assert.Equal(t, []string{"iter1000.npy", "iter2000.npy"}, *loaded)
	rows := table.Rows()
	require.Len(t, rows, 2)
	for i, row := range rows {
		assert.Equal(t, checkpoints[i].Iteration, row.Iteration)
		assert.Greater(t, row.InceptionMean, 1.0)
		assert.False(t, math.IsNaN(row.FID))
		assert.Less(t, row.FID, 1.0)
	}
}

func TestEvaluateRequiresReference(t *testing.T) {
	extractor := &randomExtractor{rng: rand.New(rand.NewSource(1))}
	c, _ := newTestController(t, extractor)

	_, err := c.Evaluate(context.Background(), []util.Checkpoint{{Iteration: 1000, Path: "iter1000.npy"}})
	require.ErrorIs(t, err, metrics.ErrReferenceUninitialized)
	assert.Contains(t, err.Error(), "iteration 1000")
	assert.Empty(t, extractor.heights)
}

func TestEvaluateAbortsOnLoadError(t *testing.T) {
	c, _ := newTestController(t, &randomExtractor{rng: rand.New(rand.NewSource(1))})
	require.NoError(t, c.LoadReference(context.Background(), ReferenceSource{Dataset: "cifar"}))

	boom := errors.New("truncated file")
	c.LoadCheckpoint = func(string) (*images.Batch, error) { return nil, boom }

	_, err := c.Evaluate(context.Background(), []util.Checkpoint{{Iteration: 3000, Path: "iter3000.npy"}})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "iteration 3000")
}

func TestEvaluateCancelled(t *testing.T) {
	c, loaded := newTestController(t, &randomExtractor{rng: rand.New(rand.NewSource(1))})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Evaluate(ctx, []util.Checkpoint{{Iteration: 1000, Path: "iter1000.npy"}})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, *loaded)
}

func TestEvaluateResizes(t *testing.T) {
	extractor := &randomExtractor{rng: rand.New(rand.NewSource(2))}
	c, _ := newTestController(t, extractor)
	c.ResizeTo = 4

	require.NoError(t, c.LoadReference(context.Background(), ReferenceSource{Dataset: "cifar"}))
	_, err := c.Evaluate(context.Background(), []util.Checkpoint{{Iteration: 1000, Path: "iter1000.npy"}})
	require.NoError(t, err)

	assert.Equal(t, []int{4, 4}, extractor.heights)
}

func TestLoadReferenceCache(t *testing.T) {
	cache := filepath.Join(t.TempDir(), "stats")

	first, _ := newTestController(t, &randomExtractor{rng: rand.New(rand.NewSource(3))})
	require.NoError(t, first.LoadReference(context.Background(), ReferenceSource{Dataset: "cifar", Cache: cache}))
	want, err := first.Scorer.Reference.Get()
	require.NoError(t, err)

	extractor := &randomExtractor{rng: rand.New(rand.NewSource(4))}
	second, _ := newTestController(t, extractor)
	second.LoadDataset = func(string) (*images.Batch, error) {
		t.Fatal("dataset must not be loaded when the cache exists")
		return nil, nil
	}
	require.NoError(t, second.LoadReference(context.Background(), ReferenceSource{Dataset: "cifar", Cache: cache}))

	got, err := second.Scorer.Reference.Get()
	require.NoError(t, err)
	assert.InDeltaSlice(t, want.Mean, got.Mean, 1e-12)
	assert.True(t, mat.EqualApprox(want.Cov, got.Cov, 1e-12))
	assert.Empty(t, extractor.heights)
}

func TestLoadReferenceErrors(t *testing.T) {
	c, _ := newTestController(t, &randomExtractor{rng: rand.New(rand.NewSource(1))})
	err := c.LoadReference(context.Background(), ReferenceSource{Cache: t.TempDir()})
	require.Error(t, err)
	assert.False(t, c.Scorer.Reference.Initialized())

	boom := errors.New("model failed")
	failing, _ := newTestController(t, &randomExtractor{rng: rand.New(rand.NewSource(1)), err: boom})
	err = failing.LoadReference(context.Background(), ReferenceSource{Dataset: "cifar"})
	require.ErrorIs(t, err, boom)
	assert.False(t, failing.Scorer.Reference.Initialized())
}

func TestCheckpoints(t *testing.T) {
	dir := t.TempDir()
	gen := filepath.Join(dir, util.GeneratedDir)
	require.NoError(t, os.MkdirAll(gen, 0o755))
	for _, name := range []string{"iter2000.npy", "iter500.npy", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(gen, name), []byte("x"), 0o644))
	}

	scheduled, err := Checkpoints(dir, util.Schedule{Start: 1000, End: 3000, Step: 1000}, false)
	require.NoError(t, err)
	require.Len(t, scheduled, 1)
	assert.Equal(t, 2000, scheduled[0].Iteration)

	scanned, err := Checkpoints(dir, util.Schedule{}, true)
	require.NoError(t, err)
	require.Len(t, scanned, 2)
	assert.Equal(t, 500, scanned[0].Iteration)
	assert.Equal(t, 2000, scanned[1].Iteration)

	_, err = Checkpoints(filepath.Join(dir, "missing"), util.Schedule{}, true)
	require.Error(t, err)
}
