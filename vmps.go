package vmps

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"

	"github.com/fumin/vmps/mpo"
	"github.com/fumin/vmps/tensor"
)

// Fermion returns the physical index of a spinless fermion site, whose
// charge is the occupation number.
func Fermion() tensor.Index {
	return tensor.NewIndex(tensor.Out, []int{0, 1})
}

// Annihilation returns the fermion annihilation operator.
func Annihilation() *tensor.Dense {
	site := Fermion()
	op := tensor.Zeros(site.Inverse(), site)
	op.SetAt([]int{1, 0}, 1)
	return op
}

// Creation returns the fermion creation operator.
func Creation() *tensor.Dense {
	site := Fermion()
	op := tensor.Zeros(site.Inverse(), site)
	op.SetAt([]int{0, 1}, 1)
	return op
}

// Number returns the fermion occupation number operator.
func Number() *tensor.Dense {
	site := Fermion()
	op := tensor.Zeros(site.Inverse(), site)
	op.SetAt([]int{1, 1}, 1)
	return op
}

// Parity returns the fermion parity operator (-1)^n, the Jordan-Wigner
// string of a single site.
func Parity() *tensor.Dense {
	site := Fermion()
	op := tensor.Zeros(site.Inverse(), site)
	op.SetAt([]int{0, 0}, 1)
	op.SetAt([]int{1, 1}, -1)
	return op
}

// SpinHalf returns the physical index of a spin half site.
// Spin models conserve no charge, so both states carry charge zero.
func SpinHalf() tensor.Index {
	return tensor.NewIndex(tensor.Out, []int{0, 0})
}

// PauliX returns the Pauli X operator.
func PauliX() *tensor.Dense {
	site := SpinHalf()
	op := tensor.Zeros(site.Inverse(), site)
	op.SetAt([]int{0, 1}, 1)
	op.SetAt([]int{1, 0}, 1)
	return op
}

// PauliZ returns the Pauli Z operator, with the first basis state spin up.
func PauliZ() *tensor.Dense {
	site := SpinHalf()
	op := tensor.Zeros(site.Inverse(), site)
	op.SetAt([]int{0, 0}, 1)
	op.SetAt([]int{1, 1}, -1)
	return op
}

// SpinlessFermions returns the Hamiltonian of the open chain of n spinless
// fermion sites with hopping amplitude t,
// H = -t*sum_i (c†_i c_{i+1} + c†_{i+1} c_i).
// Nearest neighbor hoppings carry no string after the Jordan-Wigner
// transformation.
func SpinlessFermions(n int, t float64) mpo.MPO {
	g := mpo.NewGenerator(n, Fermion())
	a, adag := Annihilation(), Creation()
	for i := 0; i < n-1; i++ {
		g.AddTerm(complex(-t, 0), []*tensor.Dense{adag, a}, []int{i, i + 1})
		g.AddTerm(complex(-t, 0), []*tensor.Dense{a, adag}, []int{i, i + 1})
	}
	return g.Gen()
}

// TransverseIsing returns the Hamiltonian of the open transverse field Ising
// chain, H = -j*sum_i σz_i σz_{i+1} - h*sum_i σx_i.
func TransverseIsing(n int, j, h float64) mpo.MPO {
	g := mpo.NewGenerator(n, SpinHalf())
	sx, sz := PauliX(), PauliZ()
	for i := range n - 1 {
		g.AddTerm(complex(-j, 0), []*tensor.Dense{sz, sz}, []int{i, i + 1})
	}
	for i := range n {
		g.AddTerm(complex(-h, 0), []*tensor.Dense{sx}, []int{i})
	}
	return g.Gen()
}

// FreeFermionEnergy returns the exact ground state energy of the
// SpinlessFermions chain by summing the negative single particle mode
// energies.
func FreeFermionEnergy(n int, t float64) float64 {
	var e float64
	for k := 1; k <= n; k++ {
		if ek := modeEnergy(n, t, k); ek < 0 {
			e += ek
		}
	}
	return e
}

// FreeFermionCorrelation returns the exact single particle dynamic
// correlation <ψ0| c_x1 exp(-i*H*tm) c†_x0 |ψ0> exp(i*E0*tm) of the
// SpinlessFermions ground state, by expanding the injected particle in the
// unoccupied single particle eigenmodes.
func FreeFermionCorrelation(n int, t float64, x0, x1 int, tm float64) complex128 {
	var c complex128
	for k := 1; k <= n; k++ {
		ek := modeEnergy(n, t, k)
		if ek <= 0 {
			continue
		}
		c += complex(mode(n, k, x0)*mode(n, k, x1), 0) * cmplx.Exp(complex(0, -ek*tm))
	}
	return c
}

func modeEnergy(n int, t float64, k int) float64 {
	return -2 * t * math.Cos(float64(k)*math.Pi/float64(n+1))
}

func mode(n, k, x int) float64 {
	return math.Sqrt(2/float64(n+1)) * math.Sin(float64(k)*math.Pi*float64(x+1)/float64(n+1))
}

// Eigenvalues returns the spectrum of h in ascending order by dense exact
// diagonalization, for verification on small chains.
func Eigenvalues(h mpo.MPO) []float64 {
	t := merge(h)
	d := t.Index(0).Dim()

	// Embed the Hermitian matrix H = A + iB into the real symmetric
	// [[A, -B], [B, A]], whose spectrum is that of H doubled.
	sym := mat.NewSymDense(2*d, nil)
	for q := 0; q < d; q++ {
		for p := q; p < d; p++ {
			re := real(t.At(q, p))
			sym.SetSym(q, p, re)
			sym.SetSym(d+q, d+p, re)
		}
		for p := 0; p < d; p++ {
			sym.SetSym(q, d+p, -imag(t.At(q, p)))
		}
	}
	var eig mat.EigenSym
	if ok := eig.Factorize(sym, false); !ok {
		panic(fmt.Sprintf("%d", d))
	}
	vals := eig.Values(nil)

	out := make([]float64, d)
	for i := range out {
		out[i] = vals[2*i]
	}
	return out
}

// merge contracts the train of h into its full matrix, with the fused
// physical outputs as the row and the fused inputs as the column, site 0 the
// most significant digit.
func merge(h mpo.MPO) *tensor.Dense {
	t := h[0]
	for _, w := range h[1:] {
		t = tensor.Contract(t, w, [][2]int{{t.Rank() - 1, 0}})
	}

	n := len(h)
	perm := make([]int, 0, t.Rank())
	perm = append(perm, 0)
	for i := range n {
		perm = append(perm, 2+2*i)
	}
	for i := range n {
		perm = append(perm, 1+2*i)
	}
	perm = append(perm, t.Rank()-1)
	t = t.Transpose(perm...)

	// The one dimensional end bonds carry charge zero and are folded into
	// the fused groups.
	for range n {
		t = t.Fuse(0)
	}
	for range n {
		t = t.Fuse(1)
	}
	return t
}
