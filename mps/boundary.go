package mps

import (
	"github.com/pkg/errors"

	"github.com/fumin/vmps/tensor"
)

// CheckAndUpdateBoundary canonicalizes the two ends of the state and
// returns the window [lb, rb] outside of which the site tensors are
// saturated reshape isometries that two-site updates cannot improve.
//
// Moving inwards from each end, every site is canonicalized and, as long as
// the saturated bond stays within dmax, replaced by the full reshape
// isometry of its two outer legs with the remaining weight absorbed into
// its neighbour. The first site whose saturated bond would exceed dmax ends
// the walk. All touched site tensors are written to disk before returning.
func (m *FiniteMPS) CheckAndUpdateBoundary(dmax int) (int, int, error) {
	n := m.Len()
	leftMiddle := n / 2
	if n%2 == 0 {
		leftMiddle = n/2 - 1
	}
	rightMiddle := n / 2

	lb, rb := 0, n-1
	for i := 0; i < leftMiddle; i++ {
		if err := m.LoadTen(i); err != nil {
			return -1, -1, errors.Wrap(err, "")
		}
		if err := m.LoadTen(i + 1); err != nil {
			return -1, -1, errors.Wrap(err, "")
		}
		m.LeftCanonicalizeTen(i)

		t := m.Ten(i)
		s := t.Shape()
		if s[0]*s[1] > dmax {
			lb = i
			break
		}
		if s[0]*s[1] > s[2] {
			newSite := tensor.IndexCombine(t.Index(0), t.Index(1), tensor.Out)
			tmp := tensor.Contract(newSite.Conj(), t, [][2]int{{0, 0}, {1, 1}})
			m.tens[i+1] = tensor.Contract(tmp, m.Ten(i+1), [][2]int{{1, 0}})
			m.tens[i] = newSite
		}
		if i == leftMiddle-1 {
			lb = i
		}
	}

	for i := n - 1; i > rightMiddle; i-- {
		if err := m.LoadTen(i); err != nil {
			return -1, -1, errors.Wrap(err, "")
		}
		if err := m.LoadTen(i - 1); err != nil {
			return -1, -1, errors.Wrap(err, "")
		}
		m.RightCanonicalizeTen(i)

		t := m.Ten(i)
		s := t.Shape()
		if s[1]*s[2] > dmax {
			rb = i
			break
		}
		if s[1]*s[2] > s[0] {
			newSite := tensor.IndexCombine(t.Index(1), t.Index(2), tensor.In).Transpose(2, 0, 1)
			tmp := tensor.Contract(t, newSite.Conj(), [][2]int{{1, 1}, {2, 2}})
			m.tens[i-1] = tensor.Contract(m.Ten(i-1), tmp, [][2]int{{2, 0}})
			m.tens[i] = newSite
		}
		if i == rightMiddle+1 {
			rb = i
		}
	}

	for i := 0; i <= lb+1; i++ {
		if err := m.DumpTen(i, true); err != nil {
			return -1, -1, errors.Wrap(err, "")
		}
	}
	lo := rb - 1
	if lo < lb+2 {
		lo = lb + 2
	}
	for i := n - 1; i >= lo; i-- {
		if err := m.DumpTen(i, true); err != nil {
			return -1, -1, errors.Wrap(err, "")
		}
	}
	return lb, rb, nil
}
