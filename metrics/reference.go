package metrics

import (
	"context"
	"sync"

	"github.com/nvr-ai/go-ml-eval/features"
	"github.com/nvr-ai/go-ml-eval/images"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrReferenceUninitialized is returned when scoring before the reference statistics are set.
var ErrReferenceUninitialized = errors.New("reference statistics uninitialized")

// FeatureExtractor produces the network outputs of an image batch.
type FeatureExtractor interface {
	Extract(ctx context.Context, batch *images.Batch) (*features.Features, error)
}

// ReferenceStatistics holds the Gaussian fitted to the embeddings of the reference
// population.
//
// It is written once, typically at startup, and read by every scoring call. Writes and
// reads are serialized so a reader never observes a mean from one update paired with a
// covariance from another.
type ReferenceStatistics struct {
	mu       sync.RWMutex
	gaussian *Gaussian
}

// NewReferenceStatistics returns an empty tracker.
func NewReferenceStatistics() *ReferenceStatistics {
	return &ReferenceStatistics{}
}

// Update extracts the embeddings of the reference batch and replaces the stored statistics
// with their mean and covariance. Earlier statistics are discarded, not merged.
func (r *ReferenceStatistics) Update(ctx context.Context, extractor FeatureExtractor, batch *images.Batch) error {
	f, err := extractor.Extract(ctx, batch)
	if err != nil {
		return errors.Wrap(err, "error extracting reference features")
	}

	g, err := FitGaussian(f.Embeddings)
	if err != nil {
		return errors.Wrap(err, "error fitting reference statistics")
	}

	r.Set(g)
	log.Info().Int("samples", batch.N).Int("dim", g.Dim()).Msg("reference statistics updated")
	return nil
}

// Set replaces the stored statistics.
func (r *ReferenceStatistics) Set(g *Gaussian) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gaussian = g
}

// Get returns the stored statistics.
//
// Returns:
//   - *Gaussian: The reference Gaussian. It must not be modified.
//   - error: ErrReferenceUninitialized before the first Update or Set.
func (r *ReferenceStatistics) Get() (*Gaussian, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.gaussian == nil {
		return nil, ErrReferenceUninitialized
	}
	return r.gaussian, nil
}

// Initialized reports whether statistics have been stored.
func (r *ReferenceStatistics) Initialized() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gaussian != nil
}
