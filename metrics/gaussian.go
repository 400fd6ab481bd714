// Package metrics - Inception Score, Fréchet Inception Distance and the reference
// statistics they are computed against.
package metrics

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrTooFewSamples is returned when a Gaussian is fitted to fewer than two embeddings.
var ErrTooFewSamples = errors.New("at least two samples are required to estimate a covariance")

// Gaussian is a multivariate Gaussian summarized by its mean and covariance.
type Gaussian struct {
	// Mean is the per-feature sample mean.
	Mean []float64
	// Cov is the sample covariance matrix.
	Cov *mat.SymDense
}

// Dim returns the number of features.
func (g *Gaussian) Dim() int {
	return len(g.Mean)
}

// FitGaussian estimates the mean and covariance of a set of embeddings.
//
// Rows are observations and columns are features. The covariance is the unbiased sample
// covariance (normalized by N-1).
//
// Arguments:
//   - embeddings: An N x D matrix of embeddings.
//
// Returns:
//   - *Gaussian: The fitted statistics.
//   - error: ErrTooFewSamples if N < 2.
func FitGaussian(embeddings mat.Matrix) (*Gaussian, error) {
	n, d := embeddings.Dims()
	if n < 2 {
		return nil, errors.Wrapf(ErrTooFewSamples, "got %d", n)
	}
	if d == 0 {
		return nil, errors.New("embeddings have no features")
	}

	mean := make([]float64, d)
	col := make([]float64, n)
	for j := 0; j < d; j++ {
		mat.Col(col, j, embeddings)
		mean[j] = stat.Mean(col, nil)
	}

	cov := mat.NewSymDense(d, nil)
	stat.CovarianceMatrix(cov, embeddings, nil)

	return &Gaussian{Mean: mean, Cov: cov}, nil
}
