package sweep

import (
	"fmt"
	"math"
	"sort"

	"github.com/fumin/vmps/tensor"
)

// A stencil is the effective Hamiltonian of a one or two site window.
// It borrows the left and right environments and the operator tensors of the
// window without copying them.
type stencil struct {
	lenv *tensor.Dense
	renv *tensor.Dense
	ops  []*tensor.Dense
}

// newStencil panics unless the environments and operators join up along their
// virtual bonds.
func newStencil(lenv, renv *tensor.Dense, ops ...*tensor.Dense) *stencil {
	if !lenv.Index(0).Equal(lenv.Index(2).Inverse()) {
		panic(fmt.Sprintf("%#v %#v", lenv.Index(0), lenv.Index(2)))
	}
	if !renv.Index(0).Equal(renv.Index(2).Inverse()) {
		panic(fmt.Sprintf("%#v %#v", renv.Index(0), renv.Index(2)))
	}
	prev := lenv.Index(1)
	for _, w := range ops {
		if !w.Index(0).Equal(prev.Inverse()) {
			panic(fmt.Sprintf("%#v %#v", w.Index(0), prev))
		}
		prev = w.Index(3)
	}
	if !renv.Index(1).Equal(prev.Inverse()) {
		panic(fmt.Sprintf("%#v %#v", renv.Index(1), prev))
	}
	return &stencil{lenv: lenv, renv: renv, ops: ops}
}

// applyTwoSite applies the stencil to a merged pair tensor with legs
// left bond, two physical, right bond.
func (st *stencil) applyTwoSite(v *tensor.Dense) *tensor.Dense {
	t := tensor.Contract(st.lenv, v, [][2]int{{0, 0}})
	t = tensor.Contract(t, st.ops[0], [][2]int{{0, 0}, {2, 1}})
	t = tensor.Contract(t, st.ops[1], [][2]int{{1, 1}, {4, 0}})
	return tensor.Contract(t, st.renv, [][2]int{{1, 0}, {4, 1}})
}

// applyOneSite applies the stencil to a single site tensor.
func (st *stencil) applyOneSite(v *tensor.Dense) *tensor.Dense {
	t := tensor.Contract(st.lenv, v, [][2]int{{0, 0}})
	t = tensor.Contract(t, st.ops[0], [][2]int{{0, 0}, {2, 1}})
	return tensor.Contract(t, st.renv, [][2]int{{1, 0}, {3, 1}})
}

// tasksOf splits an index into its charge runs, largest first.
// Master and workers derive the same task list from the same index.
func tasksOf(x tensor.Index) []tensor.Run {
	runs := x.Runs()
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].Hi-runs[i].Lo > runs[j].Hi-runs[j].Lo
	})
	return runs
}

// entanglementEntropy returns the von Neumann entropy of the diagonal
// singular value matrix s.
func entanglementEntropy(s *tensor.Dense) float64 {
	d := s.Shape()[0]
	var total float64
	for i := 0; i < d; i++ {
		sv := real(s.At(i, i))
		total += sv * sv
	}
	var entropy float64
	for i := 0; i < d; i++ {
		sv := real(s.At(i, i))
		if sv == 0 {
			continue
		}
		p := sv * sv / total
		entropy -= p * math.Log(p)
	}
	return entropy
}
