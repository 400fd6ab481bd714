package metrics

import (
	"context"

	"github.com/nvr-ai/go-ml-eval/images"
	"github.com/nvr-ai/go-ml-eval/profiler"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Score is the evaluation of one image batch.
type Score struct {
	// InceptionMean is the mean Inception Score over the splits.
	InceptionMean float64 `json:"inception_mean"`
	// InceptionStd is the population standard deviation over the splits.
	InceptionStd float64 `json:"inception_std"`
	// FID is the Fréchet Inception Distance to the reference statistics.
	FID float64 `json:"fid"`
	// Degraded is set when the FID needed the regularized square root.
	Degraded bool `json:"degraded"`
	// Samples is the number of images scored.
	Samples int `json:"samples"`
}

// Scorer computes Inception Score and FID of image batches against reference statistics.
type Scorer struct {
	// Extractor produces probabilities and embeddings.
	Extractor FeatureExtractor
	// Reference holds the statistics FID is measured against.
	Reference *ReferenceStatistics
	// Splits is the number of Inception Score groups.
	Splits int
	// Eps is the regularization offset of the Fréchet distance.
	Eps float64
	// Profiler records timings when set.
	Profiler *profiler.RuntimeProfiler
}

// NewScorer creates a scorer with the default splits and eps.
func NewScorer(extractor FeatureExtractor, reference *ReferenceStatistics) *Scorer {
	return &Scorer{
		Extractor: extractor,
		Reference: reference,
		Splits:    DefaultSplits,
		Eps:       DefaultEps,
	}
}

// Score evaluates a batch.
//
// The reference statistics are checked before any inference is done.
//
// Arguments:
//   - ctx: Passed to the extractor.
//   - batch: The generated images.
//
// Returns:
//   - *Score: The scores.
//   - error: ErrReferenceUninitialized, an extraction error or a Fréchet distance error.
func (s *Scorer) Score(ctx context.Context, batch *images.Batch) (*Score, error) {
	if s.Reference == nil {
		return nil, ErrReferenceUninitialized
	}
	ref, err := s.Reference.Get()
	if err != nil {
		return nil, err
	}

	if s.Profiler != nil {
		defer s.Profiler.StartOperation("score")()
	}

	f, err := s.Extractor.Extract(ctx, batch)
	if err != nil {
		return nil, err
	}

	splits := s.Splits
	if splits == 0 {
		splits = DefaultSplits
	}
	mean, std, err := InceptionScore(f.Probabilities, splits)
	if err != nil {
		return nil, err
	}

	current, err := FitGaussian(f.Embeddings)
	if err != nil {
		return nil, errors.Wrap(err, "error fitting batch statistics")
	}

	eps := s.Eps
	if eps == 0 {
		eps = DefaultEps
	}
	dist, err := s.frechet(ref, current, eps)
	if err != nil {
		return nil, err
	}

	score := &Score{
		InceptionMean: mean,
		InceptionStd:  std,
		FID:           dist.Value,
		Degraded:      dist.Degraded,
		Samples:       batch.N,
	}
	log.Debug().
		Int("samples", score.Samples).
		Float64("inception_mean", score.InceptionMean).
		Float64("inception_std", score.InceptionStd).
		Float64("fid", score.FID).
		Bool("degraded", score.Degraded).
		Msg("batch scored")

	return score, nil
}

func (s *Scorer) frechet(ref, current *Gaussian, eps float64) (*Distance, error) {
	if s.Profiler != nil {
		defer s.Profiler.StartOperation("sqrtm")()
	}

	dist, err := FrechetDistance(ref.Mean, ref.Cov, current.Mean, current.Cov, eps)
	if err != nil {
		return nil, errors.Wrap(err, "error computing frechet distance")
	}
	if s.Profiler != nil {
		s.Profiler.RecordMetric("fid_max_imag", dist.MaxImag)
	}
	return dist, nil
}
