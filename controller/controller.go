// Package controller - Drives an evaluation run: reference statistics, then every checkpoint
// through the scorer into the score table.
package controller

import (
	"context"
	"os"
	"path/filepath"

	"github.com/nvr-ai/go-ml-eval/dataset"
	"github.com/nvr-ai/go-ml-eval/images"
	"github.com/nvr-ai/go-ml-eval/metrics"
	"github.com/nvr-ai/go-ml-eval/results"
	"github.com/nvr-ai/go-ml-eval/util"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Loader reads an image array from disk.
type Loader func(path string) (*images.Batch, error)

// ReferenceSource locates the reference population.
type ReferenceSource struct {
	// Dataset is a CIFAR-10 binary directory or a .npy image array.
	Dataset string
	// Cache is a directory with mu.npy and sigma.npy. It takes precedence over Dataset when
	// both files exist, and receives the statistics computed from Dataset otherwise.
	Cache string
}

// Controller evaluates checkpoints in iteration order.
type Controller struct {
	// Extractor produces features for the reference population.
	Extractor metrics.FeatureExtractor
	// Scorer scores every checkpoint.
	Scorer *metrics.Scorer
	// ResizeTo resizes every batch to ResizeTo x ResizeTo when positive.
	ResizeTo int
	// LoadCheckpoint reads a checkpoint; dataset.LoadNPY by default.
	LoadCheckpoint Loader
	// LoadDataset reads the reference population; dataset.LoadReference by default.
	LoadDataset Loader
}

// New creates a controller scoring against a fresh reference tracker.
//
// Arguments:
//   - extractor: The feature extractor shared by the reference and the scorer.
//
// Returns:
//   - *Controller: The controller.
func New(extractor metrics.FeatureExtractor) *Controller {
	return &Controller{
		Extractor:      extractor,
		Scorer:         metrics.NewScorer(extractor, metrics.NewReferenceStatistics()),
		LoadCheckpoint: dataset.LoadNPY,
		LoadDataset:    dataset.LoadReference,
	}
}

// LoadReference initializes the reference statistics.
//
// Order of operations:
//  1. Cache: loads mu.npy and sigma.npy when both exist.
//  2. Dataset: otherwise extracts the reference population and fits its Gaussian.
//  3. Save: writes the fitted Gaussian to the cache directory when one is configured.
//
// Arguments:
//   - ctx: Passed to the extractor.
//   - src: The reference source.
//
// Returns:
//   - error: An error if neither source yields statistics.
func (c *Controller) LoadReference(ctx context.Context, src ReferenceSource) error {
	if src.Cache != "" && cacheExists(src.Cache) {
		g, err := metrics.LoadGaussian(src.Cache)
		if err != nil {
			return err
		}
		c.Scorer.Reference.Set(g)
		log.Info().Str("cache", src.Cache).Int("dim", g.Dim()).Msg("reference statistics loaded from cache")
		return nil
	}

	if src.Dataset == "" {
		return errors.New("no reference dataset configured and no cached statistics found")
	}

	g, err := c.ComputeReference(ctx, src.Dataset)
	if err != nil {
		return err
	}
	if src.Cache == "" {
		return nil
	}
	if err := metrics.SaveGaussian(src.Cache, g); err != nil {
		return err
	}
	log.Info().Str("cache", src.Cache).Msg("reference statistics cached")
	return nil
}

// ComputeReference extracts the reference dataset and replaces the reference statistics
// with its Gaussian, ignoring any cache.
//
// Arguments:
//   - ctx: Passed to the extractor.
//   - path: A CIFAR-10 binary directory or a .npy image array.
//
// Returns:
//   - *metrics.Gaussian: The fitted statistics.
//   - error: A load or extraction error; the previous statistics are kept.
func (c *Controller) ComputeReference(ctx context.Context, path string) (*metrics.Gaussian, error) {
	batch, err := c.load(c.LoadDataset, dataset.LoadReference, path)
	if err != nil {
		return nil, errors.Wrapf(err, "error loading reference dataset %s", path)
	}
	if err := c.Scorer.Reference.Update(ctx, c.Extractor, batch); err != nil {
		return nil, err
	}
	return c.Scorer.Reference.Get()
}

// Evaluate scores every checkpoint and collects the rows.
//
// Any failure aborts the run; rows scored before it are discarded with the table.
//
// Arguments:
//   - ctx: Checked before each checkpoint.
//   - checkpoints: The checkpoints in ascending iteration order.
//
// Returns:
//   - *results.Table: One row per checkpoint.
//   - error: A load, scoring or context error naming the failing iteration.
func (c *Controller) Evaluate(ctx context.Context, checkpoints []util.Checkpoint) (*results.Table, error) {
	table := results.NewTable()
	for _, cp := range checkpoints {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		log.Info().Int("iteration", cp.Iteration).Str("path", cp.Path).Msg("run iteration")

		batch, err := c.load(c.LoadCheckpoint, dataset.LoadNPY, cp.Path)
		if err != nil {
			return nil, errors.Wrapf(err, "error loading iteration %d", cp.Iteration)
		}

		score, err := c.Scorer.Score(ctx, batch)
		if err != nil {
			return nil, errors.Wrapf(err, "error scoring iteration %d", cp.Iteration)
		}

		table.Add(results.Row{
			Iteration:     cp.Iteration,
			InceptionMean: score.InceptionMean,
			InceptionStd:  score.InceptionStd,
			FID:           score.FID,
		})

		log.Info().
			Int("iteration", cp.Iteration).
			Float64("inception_mean", score.InceptionMean).
			Float64("inception_std", score.InceptionStd).
			Float64("fid", score.FID).
			Bool("degraded", score.Degraded).
			Msg("iteration scored")
	}
	return table, nil
}

// Checkpoints lists the checkpoints of a results directory.
//
// Arguments:
//   - resultsDir: The results directory.
//   - schedule: The iterations to look for.
//   - scan: Lists every iter<N>.npy instead of following the schedule.
//
// Returns:
//   - []util.Checkpoint: The checkpoints in ascending iteration order.
//   - error: A directory read error when scanning.
func Checkpoints(resultsDir string, schedule util.Schedule, scan bool) ([]util.Checkpoint, error) {
	if scan {
		return util.ScanCheckpoints(resultsDir)
	}
	return util.DiscoverCheckpoints(resultsDir, schedule), nil
}

func (c *Controller) load(loader, fallback Loader, path string) (*images.Batch, error) {
	if loader == nil {
		loader = fallback
	}
	batch, err := loader(path)
	if err != nil {
		return nil, err
	}
	if c.ResizeTo > 0 {
		return batch.Resize(c.ResizeTo, c.ResizeTo)
	}
	return batch, nil
}

func cacheExists(dir string) bool {
	for _, name := range []string{metrics.MeanFile, metrics.CovarianceFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return false
		}
	}
	return true
}
