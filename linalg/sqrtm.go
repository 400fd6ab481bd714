package linalg

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

// Sqrtm computes the principal square root X of a real square matrix A, so that X*X = A.
//
// The square root is found with the Schur method: A = Z*T*Zᴴ, the upper triangular root
// R of T is built column by column from
//
//	R[i][i] = sqrt(T[i][i])
//	R[i][j] = (T[i][j] - Σ_{i<k<j} R[i][k]*R[k][j]) / (R[i][i] + R[j][j])
//
// and X = Z*R*Zᴴ. A denominator that vanishes relative to the largest diagonal root means
// the recurrence is undetermined (A has a repeated zero eigenvalue, which rounding turns
// into a cluster of tiny eigenvalues of either sign). The root is then returned filled with
// NaN so that callers can detect the singular product with IsFinite.
//
// Arguments:
//   - a: The real square matrix.
//
// Returns:
//   - *CDense: The principal square root. The imaginary part is zero up to rounding when
//     A has no eigenvalues on the negative real axis.
//   - error: ErrNotSquare, ErrEmpty or ErrNoConvergence.
func Sqrtm(a mat.Matrix) (*CDense, error) {
	t, z, err := Schur(a)
	if err != nil {
		return nil, err
	}

	r, ok := sqrtUpperTriangular(t)
	if !ok {
		n, _ := a.Dims()
		x := NewCDense(n, n, nil)
		x.Fill(cmplx.NaN())
		return x, nil
	}

	return Mul(Mul(z, r), z.ConjTranspose()), nil
}

// sqrtUpperTriangular returns the upper triangular square root of the upper triangular
// matrix t, or false when a diagonal pair sums to zero within n*eps of the largest
// diagonal root.
func sqrtUpperTriangular(t *CDense) (*CDense, bool) {
	n, _ := t.Dims()
	r := NewCDense(n, n, nil)
	var scale float64
	for i := 0; i < n; i++ {
		r.Set(i, i, cmplx.Sqrt(t.At(i, i)))
		scale = math.Max(scale, cmplx.Abs(r.At(i, i)))
	}
	tol := float64(n) * (math.Nextafter(1, 2) - 1) * scale

	for j := 1; j < n; j++ {
		for i := j - 1; i >= 0; i-- {
			var s complex128
			for k := i + 1; k < j; k++ {
				s += r.At(i, k) * r.At(k, j)
			}
			denom := r.At(i, i) + r.At(j, j)
			if denom == 0 || cmplx.Abs(denom) <= tol {
				return nil, false
			}
			r.Set(i, j, (t.At(i, j)-s)/denom)
		}
	}
	return r, true
}
