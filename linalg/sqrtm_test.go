package linalg

import (
	"math"
	"math/rand"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// randomSPD builds a symmetric positive definite n x n matrix B*Bᵀ + I.
func randomSPD(rng *rand.Rand, n int) *mat.Dense {
	b := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			b.Set(i, j, rng.NormFloat64())
		}
	}
	var a mat.Dense
	a.Mul(b, b.T())
	for i := 0; i < n; i++ {
		a.Set(i, i, a.At(i, i)+1)
	}
	return &a
}

func assertSquareRoot(t *testing.T, a mat.Matrix, x *CDense, tol float64) {
	t.Helper()
	sq := Mul(x, x)
	n, _ := a.Dims()
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			assert.InDelta(t, a.At(i, j), real(sq.At(i, j)), tol, "X*X[%d][%d] real part", i, j)
			assert.InDelta(t, 0, imag(sq.At(i, j)), tol, "X*X[%d][%d] imaginary part", i, j)
		}
	}
}

func TestSqrtmDiagonal(t *testing.T) {
	a := mat.NewDense(3, 3, []float64{
		4, 0, 0,
		0, 9, 0,
		0, 0, 16,
	})

	x, err := Sqrtm(a)
	require.NoError(t, err)
	require.True(t, x.IsFinite())

	expected := []float64{2, 3, 4}
	for i, v := range expected {
		assert.InDelta(t, v, real(x.At(i, i)), 1e-12)
	}
	assert.InDelta(t, 0, x.MaxImag(), 1e-12)
}

func TestSqrtmSymmetricPositiveDefinite(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	a := randomSPD(rng, 6)

	x, err := Sqrtm(a)
	require.NoError(t, err)
	require.True(t, x.IsFinite())

	assertSquareRoot(t, a, x, 1e-8)
	assert.Less(t, x.MaxImag(), 1e-8, "root of an SPD matrix should be real")
}

func TestSqrtmProductOfCovariances(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	s1 := randomSPD(rng, 5)
	s2 := randomSPD(rng, 5)
	var p mat.Dense
	p.Mul(s1, s2)

	x, err := Sqrtm(&p)
	require.NoError(t, err)
	require.True(t, x.IsFinite())

	assertSquareRoot(t, &p, x, 1e-7)
	assert.Less(t, x.MaxDiagImag(), 1e-8)
}

// TestSqrtmComplexEigenvalues exercises the 2x2 block conversion of the real Schur form.
// The square root of a quarter turn is the eighth turn.
func TestSqrtmComplexEigenvalues(t *testing.T) {
	a := mat.NewDense(2, 2, []float64{
		0, -1,
		1, 0,
	})

	x, err := Sqrtm(a)
	require.NoError(t, err)
	require.True(t, x.IsFinite())

	h := math.Sqrt2 / 2
	expected := mat.NewDense(2, 2, []float64{
		h, -h,
		h, h,
	})
	assert.True(t, mat.EqualApprox(expected, x.Real(), 1e-10), "got %v", mat.Formatted(x.Real()))
	assert.InDelta(t, 0, x.MaxImag(), 1e-10)
	assertSquareRoot(t, a, x, 1e-10)
}

func TestSqrtmRepeatedZeroEigenvalueIsNotFinite(t *testing.T) {
	a := mat.NewDense(3, 3, []float64{
		1, 1, 0,
		0, 0, 0,
		0, 0, 0,
	})

	x, err := Sqrtm(a)
	require.NoError(t, err)
	assert.False(t, x.IsFinite())
}

func TestSqrtmNotSquare(t *testing.T) {
	_, err := Sqrtm(mat.NewDense(2, 3, nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotSquare)
}

func TestSqrtmScalar(t *testing.T) {
	x, err := Sqrtm(mat.NewDense(1, 1, []float64{2.25}))
	require.NoError(t, err)
	assert.InDelta(t, 1.5, real(x.At(0, 0)), 1e-15)
}

func TestSchurReconstruction(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	n := 7
	a := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			a.Set(i, j, rng.NormFloat64())
		}
	}

	tt, z, err := Schur(a)
	require.NoError(t, err)

	for i := 1; i < n; i++ {
		for j := 0; j < i; j++ {
			assert.Equal(t, complex128(0), tt.At(i, j), "T[%d][%d] should be zero", i, j)
		}
	}

	back := Mul(Mul(z, tt), z.ConjTranspose())
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			assert.InDelta(t, a.At(i, j), real(back.At(i, j)), 1e-9)
			assert.InDelta(t, 0, imag(back.At(i, j)), 1e-9)
		}
	}

	// Z must be unitary.
	id := Mul(z.ConjTranspose(), z)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			assert.InDelta(t, want, real(id.At(i, j)), 1e-10)
		}
	}
}

func TestCDenseHelpers(t *testing.T) {
	m := NewCDense(2, 2, []complex128{
		1 + 2i, 3,
		4 - 5i, 6 + 0.5i,
	})

	assert.Equal(t, 7+2.5i, m.Trace())
	assert.Equal(t, 5.0, m.MaxImag())
	assert.Equal(t, 2.0, m.MaxDiagImag())
	assert.True(t, m.IsFinite())

	h := m.ConjTranspose()
	assert.Equal(t, 4+5i, h.At(0, 1))

	m.Set(0, 1, complex(math.Inf(1), 0))
	assert.False(t, m.IsFinite())
}

func BenchmarkSqrtm(b *testing.B) {
	for _, n := range []int{16, 64, 256} {
		rng := rand.New(rand.NewSource(int64(n)))
		var a mat.Dense
		a.Mul(randomSPD(rng, n), randomSPD(rng, n))

		b.Run(strconv.Itoa(n), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if _, err := Sqrtm(&a); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func TestSqrtUpperTriangularNearZeroPair(t *testing.T) {
	// Rounding leaves the repeated zero eigenvalue of a rank-1 product as a pair of tiny
	// values of opposite sign, whose roots nearly cancel against the largest root of 2.
	tri := NewCDense(3, 3, []complex128{
		4, 1, 1,
		0, 1e-34, 1,
		0, 0, -1e-34,
	})
	_, ok := sqrtUpperTriangular(tri)
	assert.False(t, ok)

	// A single zero eigenvalue still has a determined root.
	tri = NewCDense(2, 2, []complex128{
		4, 1,
		0, 0,
	})
	r, ok := sqrtUpperTriangular(tri)
	require.True(t, ok)
	assert.InDelta(t, 0.5, real(r.At(0, 1)), 1e-12)
}
