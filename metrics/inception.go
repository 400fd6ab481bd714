package metrics

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// DefaultSplits is the number of groups the Inception Score is averaged over.
const DefaultSplits = 10

// SplitBounds returns the [start, end) row ranges of the Inception Score groups.
//
// Group i spans floor(i*n/splits) to floor((i+1)*n/splits). Groups differ in size by at most
// one when n is not divisible by splits, and are empty when splits > n.
func SplitBounds(n, splits int) [][2]int {
	bounds := make([][2]int, splits)
	for i := 0; i < splits; i++ {
		bounds[i] = [2]int{i * n / splits, (i + 1) * n / splits}
	}
	return bounds
}

// InceptionScore computes the Inception Score of a set of class-probability vectors.
//
// For every group the score is exp(mean over samples of KL(p || mean p)). The result is the
// mean and the population standard deviation of the group scores. Degenerate inputs (empty
// groups, zero probabilities) propagate as NaN or Inf.
//
// Arguments:
//   - probs: An N x classes matrix of probability vectors.
//   - splits: The number of groups, at least one.
//
// Returns:
//   - float64: The mean score.
//   - float64: The standard deviation of the group scores.
//   - error: An error if splits < 1.
func InceptionScore(probs mat.Matrix, splits int) (float64, float64, error) {
	if splits < 1 {
		return 0, 0, errors.Errorf("splits must be at least 1, got %d", splits)
	}

	n, classes := probs.Dims()
	scores := make([]float64, splits)
	marginal := make([]float64, classes)

	for g, bound := range SplitBounds(n, splits) {
		size := bound[1] - bound[0]

		for c := range marginal {
			marginal[c] = 0
		}
		for i := bound[0]; i < bound[1]; i++ {
			for c := 0; c < classes; c++ {
				marginal[c] += probs.At(i, c)
			}
		}
		for c := range marginal {
			marginal[c] /= float64(size)
		}

		var kl float64
		for i := bound[0]; i < bound[1]; i++ {
			for c := 0; c < classes; c++ {
				p := probs.At(i, c)
				kl += p * (math.Log(p) - math.Log(marginal[c]))
			}
		}
		scores[g] = math.Exp(kl / float64(size))
	}

	mean := stat.Mean(scores, nil)
	std := math.Sqrt(stat.MomentAbout(2, scores, mean, nil))
	return mean, std, nil
}
