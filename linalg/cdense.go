// Package linalg - Complex matrix helpers and the principal matrix square root used by the
// Fréchet distance.
package linalg

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

// CDense is a dense, row-major complex matrix.
//
// gonum's mat.CDense has no arithmetic, so products are carried out on the real and
// imaginary parts with mat.Dense and recombined.
type CDense struct {
	rows int
	cols int
	data []complex128
}

// NewCDense creates a rows x cols complex matrix. A nil data slice allocates a zero matrix.
//
// Arguments:
//   - rows: Number of rows.
//   - cols: Number of columns.
//   - data: Row-major backing data, or nil.
//
// Returns:
//   - *CDense: The matrix.
func NewCDense(rows, cols int, data []complex128) *CDense {
	if data == nil {
		data = make([]complex128, rows*cols)
	}
	if len(data) != rows*cols {
		panic(mat.ErrShape)
	}
	return &CDense{rows: rows, cols: cols, data: data}
}

// FromReal lifts a real matrix into a complex one.
func FromReal(a mat.Matrix) *CDense {
	r, c := a.Dims()
	m := NewCDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			m.data[i*c+j] = complex(a.At(i, j), 0)
		}
	}
	return m
}

// Dims returns the dimensions of the matrix.
func (m *CDense) Dims() (int, int) { return m.rows, m.cols }

// At returns the element at row i, column j.
func (m *CDense) At(i, j int) complex128 { return m.data[i*m.cols+j] }

// Set sets the element at row i, column j.
func (m *CDense) Set(i, j int, v complex128) { m.data[i*m.cols+j] = v }

// IsFinite reports whether no element has an infinite or NaN component.
func (m *CDense) IsFinite() bool {
	for _, v := range m.data {
		if cmplx.IsInf(v) || cmplx.IsNaN(v) {
			return false
		}
	}
	return true
}

// MaxImag returns the largest absolute imaginary component over all elements.
func (m *CDense) MaxImag() float64 {
	var max float64
	for _, v := range m.data {
		max = math.Max(max, math.Abs(imag(v)))
	}
	return max
}

// MaxDiagImag returns the largest absolute imaginary component on the diagonal.
func (m *CDense) MaxDiagImag() float64 {
	var max float64
	n := min(m.rows, m.cols)
	for i := 0; i < n; i++ {
		max = math.Max(max, math.Abs(imag(m.At(i, i))))
	}
	return max
}

// Trace returns the sum of the diagonal elements.
func (m *CDense) Trace() complex128 {
	var t complex128
	n := min(m.rows, m.cols)
	for i := 0; i < n; i++ {
		t += m.At(i, i)
	}
	return t
}

// Real returns the real part of the matrix.
func (m *CDense) Real() *mat.Dense {
	re, _ := m.parts()
	return re
}

// ConjTranspose returns the conjugate transpose of the matrix.
func (m *CDense) ConjTranspose() *CDense {
	h := NewCDense(m.cols, m.rows, nil)
	for i := 0; i < m.rows; i++ {
		for j := 0; j < m.cols; j++ {
			h.data[j*m.rows+i] = cmplx.Conj(m.data[i*m.cols+j])
		}
	}
	return h
}

// Fill sets every element to v.
func (m *CDense) Fill(v complex128) {
	for i := range m.data {
		m.data[i] = v
	}
}

// Mul returns the product a*b.
//
// The product is computed as four real matrix products:
// (Ar + iAi)(Br + iBi) = (ArBr - AiBi) + i(ArBi + AiBr).
//
// Arguments:
//   - a: Left operand.
//   - b: Right operand.
//
// Returns:
//   - *CDense: The product.
func Mul(a, b *CDense) *CDense {
	if a.cols != b.rows {
		panic(mat.ErrShape)
	}
	ar, ai := a.parts()
	br, bi := b.parts()

	var rr, ii, ri, ir mat.Dense
	rr.Mul(ar, br)
	ii.Mul(ai, bi)
	ri.Mul(ar, bi)
	ir.Mul(ai, br)

	out := NewCDense(a.rows, b.cols, nil)
	for i := 0; i < a.rows; i++ {
		for j := 0; j < b.cols; j++ {
			out.data[i*b.cols+j] = complex(rr.At(i, j)-ii.At(i, j), ri.At(i, j)+ir.At(i, j))
		}
	}
	return out
}

// parts splits the matrix into real and imaginary dense matrices.
func (m *CDense) parts() (*mat.Dense, *mat.Dense) {
	re := make([]float64, len(m.data))
	im := make([]float64, len(m.data))
	for i, v := range m.data {
		re[i] = real(v)
		im[i] = imag(v)
	}
	return mat.NewDense(m.rows, m.cols, re), mat.NewDense(m.rows, m.cols, im)
}
