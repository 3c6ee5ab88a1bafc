// Package lanczos implements Krylov iterations for Hermitian operators
// given only through their action on a vector.
//
// GroundState finds the lowest eigenpair, Expmv applies exp(-i*delta*H).
// Both run the three term recurrence with full reorthogonalization and
// diagonalize the tridiagonal projection at every step.
//
// References:
//   - Matrix Computations, Gene H. Golub, Charles F. Van Loan
//   - On Krylov subspace approximations to the matrix exponential operator, Marlis Hochbruck, Christian Lubich
package lanczos

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/fumin/vmps/tensor"
)

// breakdown is the basis norm below which the Krylov space is invariant.
const breakdown = 1e-12

// Params controls a Krylov iteration.
type Params struct {
	// Tol is the convergence tolerance.
	Tol float64
	// MaxIterations caps the number of operator applications.
	MaxIterations int
}

// Result is the outcome of a ground state search.
type Result struct {
	// Vector is the normalized Ritz vector.
	Vector *tensor.Dense
	// Energy is the Ritz value.
	Energy float64
	// Iters is the number of operator applications.
	Iters int
}

// GroundState returns the lowest eigenpair of the Hermitian operator apply
// over the Krylov space seeded by v0.
// The iteration stops when the Ritz value moves less than Tol, when the
// residual estimate falls below Tol, or at MaxIterations.
func GroundState(apply func(*tensor.Dense) *tensor.Dense, v0 *tensor.Dense, params Params) (Result, error) {
	norm0 := v0.Norm()
	if norm0 == 0 {
		return Result{}, errors.Errorf("zero vector")
	}
	basis := []*tensor.Dense{v0.Clone().Scale(complex(1/norm0, 0))}
	var a, b []float64
	var prev float64
	for {
		w, alpha, beta := step(apply, basis, b)
		a = append(a, alpha)
		m := len(a)

		energy, ritz := tridiagGround(a, b)
		done := m >= params.MaxIterations || beta < breakdown || beta*math.Abs(ritz[m-1]) < params.Tol
		if m > 1 && math.Abs(energy-prev) < params.Tol {
			done = true
		}
		if done {
			coef := make([]complex128, m)
			for j, s := range ritz {
				coef[j] = complex(s, 0)
			}
			return Result{Vector: assemble(basis, coef), Energy: energy, Iters: m}, nil
		}
		prev = energy
		b = append(b, beta)
		basis = append(basis, w.Scale(complex(1/beta, 0)))
	}
}

// ExpmvResult is the outcome of a matrix exponential application.
type ExpmvResult struct {
	// Vector approximates exp(-i*delta*H) applied to the seed.
	Vector *tensor.Dense
	// Iters is the number of operator applications.
	Iters int
}

// Expmv returns exp(-i*delta*H) applied to v0, where H is the Hermitian
// operator apply.
// The iteration stops when two consecutive Krylov approximations of the
// normalized result differ by less than Tol, or at MaxIterations.
func Expmv(apply func(*tensor.Dense) *tensor.Dense, v0 *tensor.Dense, delta float64, params Params) (ExpmvResult, error) {
	norm0 := v0.Norm()
	if norm0 == 0 {
		return ExpmvResult{}, errors.Errorf("zero vector")
	}
	basis := []*tensor.Dense{v0.Clone().Scale(complex(1/norm0, 0))}
	var a, b []float64
	var wprev []complex128
	for {
		w, alpha, beta := step(apply, basis, b)
		a = append(a, alpha)
		m := len(a)

		wm := TridiagExpme1(a, b, delta)
		done := m >= params.MaxIterations || beta < breakdown
		if wprev != nil {
			var diff float64
			for j, x := range wm {
				var p complex128
				if j < len(wprev) {
					p = wprev[j]
				}
				d := x - p
				diff += real(d)*real(d) + imag(d)*imag(d)
			}
			if math.Sqrt(diff) < params.Tol {
				done = true
			}
		}
		if done {
			coef := make([]complex128, m)
			for j, x := range wm {
				coef[j] = complex(norm0, 0) * x
			}
			return ExpmvResult{Vector: assemble(basis, coef), Iters: m}, nil
		}
		wprev = wm
		b = append(b, beta)
		basis = append(basis, w.Scale(complex(1/beta, 0)))
	}
}

// step extends the three term recurrence by one vector, orthogonalizing
// against the whole basis.
func step(apply func(*tensor.Dense) *tensor.Dense, basis []*tensor.Dense, b []float64) (w *tensor.Dense, alpha, beta float64) {
	j := len(basis) - 1
	w = apply(basis[j])
	alpha = real(tensor.Dot(basis[j], w))
	tensor.Axpy(complex(-alpha, 0), basis[j], w)
	if j > 0 {
		tensor.Axpy(complex(-b[j-1], 0), basis[j-1], w)
	}
	for _, u := range basis {
		if c := tensor.Dot(u, w); c != 0 {
			tensor.Axpy(-c, u, w)
		}
	}
	return w, alpha, w.Norm()
}

func assemble(basis []*tensor.Dense, coef []complex128) *tensor.Dense {
	x := tensor.Zeros(basis[0].Indexes()...)
	for j, u := range basis {
		tensor.Axpy(coef[j], u, x)
	}
	return x
}

// TridiagExpme1 returns exp(-i*delta*T) applied to the first unit vector,
// where T is the symmetric tridiagonal matrix with diagonal a and off
// diagonal b.
func TridiagExpme1(a, b []float64, delta float64) []complex128 {
	vals, vecs := factorize(a, b)
	m := len(a)
	w := make([]complex128, m)
	for k := 0; k < m; k++ {
		phase := cmplx.Exp(complex(0, -delta*vals[k])) * complex(vecs.At(0, k), 0)
		for j := 0; j < m; j++ {
			w[j] += complex(vecs.At(j, k), 0) * phase
		}
	}
	return w
}

// tridiagGround returns the smallest eigenvalue of the symmetric
// tridiagonal matrix with diagonal a and off diagonal b, together with its
// eigenvector.
func tridiagGround(a, b []float64) (float64, []float64) {
	vals, vecs := factorize(a, b)
	ground := make([]float64, len(a))
	for i := range ground {
		ground[i] = vecs.At(i, 0)
	}
	return vals[0], ground
}

func factorize(a, b []float64) ([]float64, *mat.Dense) {
	if len(b)+1 != len(a) {
		panic(fmt.Sprintf("%d %d", len(a), len(b)))
	}
	t := mat.NewSymDense(len(a), nil)
	for i := range a {
		t.SetSym(i, i, a[i])
	}
	for i := range b {
		t.SetSym(i, i+1, b[i])
	}
	var eig mat.EigenSym
	if ok := eig.Factorize(t, true); !ok {
		panic(fmt.Sprintf("%v %v", a, b))
	}
	vecs := &mat.Dense{}
	eig.VectorsTo(vecs)
	return eig.Values(nil), vecs
}
