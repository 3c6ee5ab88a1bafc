// Package mps implements finite matrix product states whose site tensors
// move between memory and disk.
//
// Site tensors have three indexes: the left bond pointing in, the physical
// index pointing out, and the right bond pointing out. The bonds at the two
// ends are one dimensional. During a sweep only the sites near the update
// window are resident, the rest live in per-site files.
//
// References:
//   - The density-matrix renormalization group in the age of matrix product states, Ulrich Schollwock
package mps

import (
	"fmt"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/fumin/vmps/tensor"
)

// FiniteMPS is a finite matrix product state.
// A site tensor is either resident in memory or stored in its file under the
// state's directory.
type FiniteMPS struct {
	dir  string
	tens []*tensor.Dense
}

// New returns a state of n sites with no resident tensors, rooted at dir.
func New(n int, dir string) *FiniteMPS {
	if n < 2 {
		panic(fmt.Sprintf("%d", n))
	}
	return &FiniteMPS{dir: dir, tens: make([]*tensor.Dense, n)}
}

// DirectProduct returns the product state whose i-th site occupies the
// labels[i]-th slot of the physical index phys.
// Bond charges are accumulated so that every site tensor has divergence
// zero.
func DirectProduct(dir string, phys tensor.Index, labels []int) *FiniteMPS {
	m := New(len(labels), dir)
	ql := 0
	for i, l := range labels {
		if l < 0 || l >= phys.Dim() {
			panic(fmt.Sprintf("%d %d", l, phys.Dim()))
		}
		qr := ql - phys.Charges[l]
		t := tensor.Zeros(
			tensor.Index{Dir: tensor.In, Charges: []int{ql}},
			phys,
			tensor.Index{Dir: tensor.Out, Charges: []int{qr}})
		t.SetAt([]int{0, l, 0}, 1)
		m.tens[i] = t
		ql = qr
	}
	return m
}

// Len returns the number of sites.
func (m *FiniteMPS) Len() int {
	return len(m.tens)
}

// Ten returns the tensor of site i, and panics if it is not resident.
func (m *FiniteMPS) Ten(i int) *tensor.Dense {
	if m.tens[i] == nil {
		panic(fmt.Sprintf("%d", i))
	}
	return m.tens[i]
}

// SetTen replaces the tensor of site i.
func (m *FiniteMPS) SetTen(i int, t *tensor.Dense) {
	m.tens[i] = t
}

// Resident reports whether the tensor of site i is in memory.
func (m *FiniteMPS) Resident(i int) bool {
	return m.tens[i] != nil
}

// Dealloc releases the tensor of site i without writing it out.
func (m *FiniteMPS) Dealloc(i int) {
	m.tens[i] = nil
}

// TenFileName returns the file path of site i.
func (m *FiniteMPS) TenFileName(i int) string {
	return filepath.Join(m.dir, fmt.Sprintf("mps_ten%d.ten", i))
}

// DumpTen writes the tensor of site i to its file, releasing it from memory
// if release is true.
func (m *FiniteMPS) DumpTen(i int, release bool) error {
	if err := tensor.WriteFile(m.TenFileName(i), m.Ten(i)); err != nil {
		return errors.Wrap(err, "")
	}
	if release {
		m.tens[i] = nil
	}
	return nil
}

// LoadTen reads the tensor of site i from its file.
// It does nothing if the tensor is already resident.
func (m *FiniteMPS) LoadTen(i int) error {
	if m.tens[i] != nil {
		return nil
	}
	t, err := tensor.ReadFile(m.TenFileName(i))
	if err != nil {
		return errors.Wrap(err, "")
	}
	m.tens[i] = t
	return nil
}

// DumpAll writes every site to its file.
func (m *FiniteMPS) DumpAll(release bool) error {
	for i := range m.tens {
		if err := m.DumpTen(i, release); err != nil {
			return errors.Wrap(err, "")
		}
	}
	return nil
}

// LoadAll reads every site not already resident.
func (m *FiniteMPS) LoadAll() error {
	for i := range m.tens {
		if err := m.LoadTen(i); err != nil {
			return errors.Wrap(err, "")
		}
	}
	return nil
}

// Clone returns a deep copy of the state rooted at dir.
// All site tensors must be resident.
func (m *FiniteMPS) Clone(dir string) *FiniteMPS {
	c := New(m.Len(), dir)
	for i := range m.tens {
		c.tens[i] = m.Ten(i).Clone()
	}
	return c
}

// ApplyOp applies a single site operator to site i.
// The operator's input leg is contracted with the site's physical index.
func (m *FiniteMPS) ApplyOp(i int, op *tensor.Dense) {
	t := tensor.Contract(m.Ten(i), op, [][2]int{{1, 0}})
	m.tens[i] = t.Transpose(0, 2, 1)
}

// LeftCanonicalizeTen turns site i into a left isometry, absorbing the rest
// into site i+1. Both sites must be resident. No weight is discarded.
func (m *FiniteMPS) LeftCanonicalizeTen(i int) {
	t := m.Ten(i)
	u, s, vt := tensor.SVD(t, 2, 0)
	m.tens[i] = u
	sv := tensor.Contract(s, vt, [][2]int{{1, 0}})
	m.tens[i+1] = tensor.Contract(sv, m.Ten(i+1), [][2]int{{1, 0}})
}

// RightCanonicalizeTen turns site i into a right isometry, absorbing the
// rest into site i-1. Both sites must be resident. No weight is discarded.
func (m *FiniteMPS) RightCanonicalizeTen(i int) {
	t := m.Ten(i)
	u, s, vt := tensor.SVD(t, 1, t.Div())
	m.tens[i] = vt
	us := tensor.Contract(u, s, [][2]int{{1, 0}})
	m.tens[i-1] = tensor.Contract(m.Ten(i-1), us, [][2]int{{2, 0}})
}
