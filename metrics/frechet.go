package metrics

import (
	"fmt"
	"math"
	"time"

	"github.com/nvr-ai/go-ml-eval/linalg"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	// DefaultEps is added to the covariance diagonals when the product is singular.
	DefaultEps = 1e-6
	// ImagTolerance is the largest imaginary diagonal component of the square root that is
	// treated as rounding noise.
	ImagTolerance = 1e-3
)

var (
	// ErrShapeMismatch is returned when the two Gaussians have different dimensions.
	ErrShapeMismatch = errors.New("gaussian shapes do not match")
	// ErrNonFinite is returned when the square root is not finite even after regularization.
	ErrNonFinite = errors.New("matrix square root is not finite after regularization")
)

// ImaginaryComponentError reports a square root with a significant imaginary part.
type ImaginaryComponentError struct {
	// Max is the largest absolute imaginary component over the whole square root.
	Max float64
}

// Error implements error.
func (e *ImaginaryComponentError) Error() string {
	return fmt.Sprintf("imaginary component %g", e.Max)
}

// Distance is the result of a Fréchet distance computation.
type Distance struct {
	// Value is the squared Fréchet distance.
	Value float64
	// Degraded is set when the regularized product had to be used.
	Degraded bool
	// MaxImag is the largest absolute imaginary component that was discarded.
	MaxImag float64
}

// FrechetDistance computes the squared Fréchet distance between N(mu1, sigma1) and
// N(mu2, sigma2):
//
//	|mu1 - mu2|² + tr(sigma1) + tr(sigma2) - 2 tr(sqrt(sigma1 sigma2))
//
// The square root is computed in two stages. If either covariance is numerically singular
// or the square root of the raw product is not finite, a warning is logged and the square
// root of (sigma1 + eps I)(sigma2 + eps I) is used instead, with Degraded set on the result.
//
// Arguments:
//   - mu1: The first mean.
//   - sigma1: The first covariance.
//   - mu2: The second mean.
//   - sigma2: The second covariance.
//   - eps: The diagonal offset of the regularized stage.
//
// Returns:
//   - *Distance: The distance.
//   - error: ErrShapeMismatch, ErrNonFinite, *ImaginaryComponentError or a linalg error.
func FrechetDistance(mu1 []float64, sigma1 mat.Matrix, mu2 []float64, sigma2 mat.Matrix, eps float64) (*Distance, error) {
	if len(mu1) != len(mu2) {
		return nil, errors.Wrapf(ErrShapeMismatch, "mean vectors have lengths %d and %d", len(mu1), len(mu2))
	}
	r1, c1 := sigma1.Dims()
	r2, c2 := sigma2.Dims()
	if r1 != r2 || c1 != c2 {
		return nil, errors.Wrapf(ErrShapeMismatch, "covariances have dimensions %dx%d and %dx%d", r1, c1, r2, c2)
	}
	if r1 != c1 {
		return nil, errors.Wrapf(ErrShapeMismatch, "covariance is not square (%dx%d)", r1, c1)
	}
	if r1 != len(mu1) {
		return nil, errors.Wrapf(ErrShapeMismatch, "mean length %d does not match covariance dimension %d", len(mu1), r1)
	}

	diff := make([]float64, len(mu1))
	floats.SubTo(diff, mu1, mu2)

	var product mat.Dense
	product.Mul(sigma1, sigma2)

	var (
		dist    = &Distance{}
		covmean *linalg.CDense
		err     error
	)
	if wellConditioned(sigma1) && wellConditioned(sigma2) {
		covmean, err = sqrtm(&product, false)
		if err != nil {
			return nil, errors.Wrap(err, "error computing sqrt of covariance product")
		}
	}

	if covmean == nil || !covmean.IsFinite() {
		log.Warn().Msgf("fid calculation produces singular product; adding %g to diagonal of cov estimates", eps)

		s1, s2 := offsetDiagonal(sigma1, eps), offsetDiagonal(sigma2, eps)
		product.Mul(s1, s2)

		covmean, err = sqrtm(&product, true)
		if err != nil {
			return nil, errors.Wrap(err, "error computing sqrt of regularized covariance product")
		}
		if !covmean.IsFinite() {
			return nil, ErrNonFinite
		}
		dist.Degraded = true
	}

	if covmean.MaxDiagImag() > ImagTolerance {
		return nil, &ImaginaryComponentError{Max: covmean.MaxImag()}
	}
	dist.MaxImag = covmean.MaxImag()

	dist.Value = floats.Dot(diff, diff) + mat.Trace(sigma1) + mat.Trace(sigma2) - 2*real(covmean.Trace())
	return dist, nil
}

// sqrtm wraps linalg.Sqrtm with a timing log. The Schur decomposition is cubic in the
// embedding dimension and dominates a scoring call at 2048 dimensions.
func sqrtm(product *mat.Dense, regularized bool) (*linalg.CDense, error) {
	start := time.Now()
	root, err := linalg.Sqrtm(product)
	n, _ := product.Dims()
	log.Info().
		Int("dim", n).
		Bool("regularized", regularized).
		Dur("elapsed", time.Since(start)).
		Msg("covariance product square root computed")
	return root, err
}

// wellConditioned reports whether the covariance factorizes as positive definite with a
// condition number below 1/(n*eps). Rank deficient covariances, such as those fitted from
// fewer samples than dimensions, fail this check.
func wellConditioned(sigma mat.Matrix) bool {
	n, _ := sigma.Dims()
	sym, ok := sigma.(mat.Symmetric)
	if !ok {
		data := make([]float64, n*n)
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				data[i*n+j] = (sigma.At(i, j) + sigma.At(j, i)) / 2
			}
		}
		sym = mat.NewSymDense(n, data)
	}

	var chol mat.Cholesky
	if !chol.Factorize(sym) {
		return false
	}
	return chol.Cond() < 1/(float64(n)*(math.Nextafter(1, 2)-1))
}

// offsetDiagonal returns a + eps*I.
func offsetDiagonal(a mat.Matrix, eps float64) *mat.Dense {
	n, _ := a.Dims()
	out := mat.DenseCopyOf(a)
	for i := 0; i < n; i++ {
		out.Set(i, i, out.At(i, i)+eps)
	}
	return out
}
