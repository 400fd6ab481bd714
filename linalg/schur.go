package linalg

import (
	"math"
	"math/cmplx"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/lapack"
	"gonum.org/v1/gonum/lapack/gonum"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNotSquare is returned when a square matrix is required.
	ErrNotSquare = errors.New("linalg: matrix is not square")
	// ErrEmpty is returned for zero-sized input.
	ErrEmpty = errors.New("linalg: matrix is empty")
	// ErrNoConvergence is returned when the QR iteration fails to converge.
	ErrNoConvergence = errors.New("linalg: schur decomposition did not converge")
)

// Schur computes the complex Schur decomposition A = Z*T*Zᴴ of a real square matrix.
//
// The real Schur form is computed with LAPACK (Hessenberg reduction followed by the
// Francis QR iteration) and its 2x2 diagonal blocks are then split with complex Givens
// rotations so that T is upper triangular.
//
// Arguments:
//   - a: The real square matrix to decompose.
//
// Returns:
//   - *CDense: T, upper triangular with the eigenvalues of A on its diagonal.
//   - *CDense: Z, unitary.
//   - error: ErrNotSquare, ErrEmpty or ErrNoConvergence.
func Schur(a mat.Matrix) (*CDense, *CDense, error) {
	t, z, err := realSchur(a)
	if err != nil {
		return nil, nil, err
	}
	ct, cz := toComplexSchur(t, z)
	return ct, cz, nil
}

// realSchur returns the quasi upper triangular real Schur form T and the orthogonal
// Schur vectors Z, both as n x n matrices.
func realSchur(a mat.Matrix) (*mat.Dense, *mat.Dense, error) {
	r, c := a.Dims()
	if r != c {
		return nil, nil, errors.Wrapf(ErrNotSquare, "got %dx%d", r, c)
	}
	n := r
	if n == 0 {
		return nil, nil, ErrEmpty
	}
	if n == 1 {
		return mat.NewDense(1, 1, []float64{a.At(0, 0)}), mat.NewDense(1, 1, []float64{1}), nil
	}

	h := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			h[i*n+j] = a.At(i, j)
		}
	}

	impl := gonum.Implementation{}
	tau := make([]float64, n-1)

	// Reduce to upper Hessenberg form.
	work := make([]float64, 1)
	impl.Dgehrd(n, 0, n-1, h, n, tau, work, -1)
	work = make([]float64, int(work[0]))
	impl.Dgehrd(n, 0, n-1, h, n, tau, work, len(work))

	// Accumulate the reflectors into the orthogonal matrix Q.
	q := make([]float64, n*n)
	copy(q, h)
	work = make([]float64, 1)
	impl.Dorghr(n, 0, n-1, q, n, tau, work, -1)
	work = make([]float64, int(work[0]))
	impl.Dorghr(n, 0, n-1, q, n, tau, work, len(work))

	// Dgehrd leaves the reflectors below the subdiagonal.
	for i := 2; i < n; i++ {
		for j := 0; j < i-1; j++ {
			h[i*n+j] = 0
		}
	}

	wr := make([]float64, n)
	wi := make([]float64, n)
	work = make([]float64, 1)
	impl.Dhseqr(lapack.EigenvaluesAndSchur, lapack.SchurOrig, n, 0, n-1, h, n, wr, wi, q, n, work, -1)
	work = make([]float64, max(n, int(work[0])))
	if unconverged := impl.Dhseqr(lapack.EigenvaluesAndSchur, lapack.SchurOrig, n, 0, n-1, h, n, wr, wi, q, n, work, len(work)); unconverged > 0 {
		return nil, nil, errors.Wrapf(ErrNoConvergence, "%d eigenvalues unconverged", unconverged)
	}

	return mat.NewDense(n, n, h), mat.NewDense(n, n, q), nil
}

// toComplexSchur converts a real Schur form into a complex one, sweeping the
// subdiagonal from the bottom up and eliminating each nonzero entry of a 2x2 block.
func toComplexSchur(rt, rz *mat.Dense) (*CDense, *CDense) {
	t := FromReal(rt)
	z := FromReal(rz)
	n, _ := t.Dims()
	eps := math.Nextafter(1, 2) - 1

	for m := n - 1; m > 0; m-- {
		sub := t.At(m, m-1)
		if cmplx.Abs(sub) > eps*(cmplx.Abs(t.At(m-1, m-1))+cmplx.Abs(t.At(m, m))) {
			mu := blockEigenvalue(t.At(m-1, m-1), t.At(m-1, m), sub, t.At(m, m)) - t.At(m, m)
			r := math.Hypot(cmplx.Abs(mu), cmplx.Abs(sub))
			c := mu / complex(r, 0)
			s := sub / complex(r, 0)

			// Rows m-1 and m: G * T with G = [[conj(c), s], [-s, c]].
			for j := m - 1; j < n; j++ {
				x, y := t.At(m-1, j), t.At(m, j)
				t.Set(m-1, j, cmplx.Conj(c)*x+s*y)
				t.Set(m, j, -s*x+c*y)
			}
			// Columns m-1 and m: T * Gᴴ and Z * Gᴴ.
			for i := 0; i <= m; i++ {
				x, y := t.At(i, m-1), t.At(i, m)
				t.Set(i, m-1, x*c+y*cmplx.Conj(s))
				t.Set(i, m, -x*cmplx.Conj(s)+y*cmplx.Conj(c))
			}
			for i := 0; i < n; i++ {
				x, y := z.At(i, m-1), z.At(i, m)
				z.Set(i, m-1, x*c+y*cmplx.Conj(s))
				z.Set(i, m, -x*cmplx.Conj(s)+y*cmplx.Conj(c))
			}
		}
		t.Set(m, m-1, 0)
	}
	return t, z
}

// blockEigenvalue returns one eigenvalue of the 2x2 matrix [[a, b], [c, d]].
func blockEigenvalue(a, b, c, d complex128) complex128 {
	half := (a + d) / 2
	disc := cmplx.Sqrt((a-d)*(a-d)/4 + b*c)
	return half + disc
}
