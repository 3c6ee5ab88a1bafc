// Package measure computes observables of matrix product states and records
// them for analysis.
package measure

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/fumin/vmps/mps"
	"github.com/fumin/vmps/tensor"
)

// A DynamicCorrelation is the overlap between a perturbation at Sites[0] at
// time Times[0] and one at Sites[1] at time Times[1].
type DynamicCorrelation struct {
	Sites [2]int
	Times [2]float64
	Avg   complex128
}

// Overlap returns the matrix element <a| op(site) |b>, where inst is applied
// to b at every site left of site.
// op and inst may be nil, in which case they are skipped.
// Site tensors not already resident are released after use.
func Overlap(a, b *mps.FiniteMPS, op, inst *tensor.Dense, site int) (complex128, error) {
	return transfer(a, b, func(i int) *tensor.Dense {
		switch {
		case i < site:
			return inst
		case i == site:
			return op
		}
		return nil
	})
}

// OneSite returns the normalized expectation of op at every site.
func OneSite(m *mps.FiniteMPS, op *tensor.Dense) ([]complex128, error) {
	norm, err := transfer(m, m, func(int) *tensor.Dense { return nil })
	if err != nil {
		return nil, err
	}
	out := make([]complex128, m.Len())
	for x := range out {
		v, err := Overlap(m, m, op, nil, x)
		if err != nil {
			return nil, err
		}
		out[x] = v / norm
	}
	return out, nil
}

// TwoSiteCorr returns the normalized correlation of ops[0] at the first site
// and ops[1] at the second site of every pair, with inst applied strictly
// between the two. inst may be nil.
func TwoSiteCorr(m *mps.FiniteMPS, ops [2]*tensor.Dense, inst *tensor.Dense, sites [][2]int) ([]complex128, error) {
	norm, err := transfer(m, m, func(int) *tensor.Dense { return nil })
	if err != nil {
		return nil, err
	}
	out := make([]complex128, len(sites))
	for k, pair := range sites {
		x1, x2 := pair[0], pair[1]
		if x1 >= x2 {
			panic(fmt.Sprintf("%d %d", x1, x2))
		}
		v, err := transfer(m, m, func(i int) *tensor.Dense {
			switch {
			case i == x1:
				return ops[0]
			case i == x2:
				return ops[1]
			case x1 < i && i < x2:
				return inst
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		out[k] = v / norm
	}
	return out, nil
}

// transfer contracts <a| and |b> from left to right, applying opAt(i) to the
// ket at site i when it is not nil.
// Sites are loaded on demand and released unless they were already resident.
func transfer(a, b *mps.FiniteMPS, opAt func(int) *tensor.Dense) (complex128, error) {
	if a.Len() != b.Len() {
		panic(fmt.Sprintf("%d %d", a.Len(), b.Len()))
	}
	var l *tensor.Dense
	for i := 0; i < a.Len(); i++ {
		aRes, bRes := a.Resident(i), b.Resident(i)
		if err := a.LoadTen(i); err != nil {
			return 0, errors.Wrap(err, "")
		}
		if err := b.LoadTen(i); err != nil {
			return 0, errors.Wrap(err, "")
		}

		ket := b.Ten(i)
		if op := opAt(i); op != nil {
			ket = applyOp(ket, op)
		}
		if l == nil {
			l = tensor.Zeros(ket.Index(0).Inverse(), a.Ten(i).Index(0))
			l.SetAt([]int{0, 0}, 1)
		}
		l = tensor.Contract(l, ket, [][2]int{{0, 0}})
		l = tensor.Contract(l, a.Ten(i).Conj(), [][2]int{{0, 0}, {1, 1}})

		if !aRes {
			a.Dealloc(i)
		}
		if !bRes {
			b.Dealloc(i)
		}
	}
	return l.At(0, 0), nil
}

// applyOp contracts a single site operator with the physical leg of a site
// tensor, without touching the state that owns it.
func applyOp(t, op *tensor.Dense) *tensor.Dense {
	return tensor.Contract(t, op, [][2]int{{1, 0}}).Transpose(0, 2, 1)
}
