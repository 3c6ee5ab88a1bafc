// Package tensor implements dense complex tensors whose indexes carry U(1)
// quantum number labels.
//
// Charges are tracked per index slot, and contraction checks that paired
// indexes have inverse directions and equal charges. Entries forbidden by
// charge conservation are exact zeros, and they stay exact zeros under
// contraction, scaling and addition, so the block structure of a tensor can
// be recovered at any time by scanning for nonzero entries.
//
// References:
//   - Tensor network states and algorithms in the presence of a global U(1) symmetry, Sukhwinder Singh, Robert N. C. Pfeifer, Guifre Vidal
package tensor

import (
	"fmt"
	"iter"
	"math"
	"slices"
)

// Dir is the direction of an index.
type Dir int8

const (
	// In is an incoming index.
	In Dir = -1
	// Out is an outgoing index.
	Out Dir = 1
)

// Inverse returns the inverse direction.
func (d Dir) Inverse() Dir {
	return -d
}

func (d Dir) String() string {
	switch d {
	case In:
		return "in"
	case Out:
		return "out"
	default:
		return fmt.Sprintf("Dir(%d)", int8(d))
	}
}

// Index is a tensor index.
// Charges holds the U(1) quantum number of every slot, and the length of
// Charges is the dimension of the index.
// Charges must not be modified after the index is used to create a tensor.
type Index struct {
	Dir     Dir
	Charges []int
}

// NewIndex returns an index with the given direction and slot charges.
func NewIndex(dir Dir, charges []int) Index {
	if len(charges) == 0 {
		panic("empty index")
	}
	return Index{Dir: dir, Charges: charges}
}

// Flat returns an index whose slots all carry zero charge.
func Flat(dir Dir, dim int) Index {
	return Index{Dir: dir, Charges: make([]int, dim)}
}

// Trivial returns a one dimensional zero charge index.
func Trivial(dir Dir) Index {
	return Index{Dir: dir, Charges: []int{0}}
}

// Dim returns the dimension of the index.
func (x Index) Dim() int {
	return len(x.Charges)
}

// Inverse returns the index with its direction flipped.
// The returned index shares the Charges slice with x.
func (x Index) Inverse() Index {
	return Index{Dir: x.Dir.Inverse(), Charges: x.Charges}
}

// Equal reports whether two indexes have the same direction and charges.
func (x Index) Equal(y Index) bool {
	return x.Dir == y.Dir && slices.Equal(x.Charges, y.Charges)
}

// Run is a maximal range [Lo, Hi) of consecutive slots with equal charge.
type Run struct {
	Charge int
	Lo, Hi int
}

// Runs returns the maximal equal charge runs of the index in slot order.
func (x Index) Runs() []Run {
	runs := make([]Run, 0, 4)
	for i := 0; i < len(x.Charges); {
		j := i + 1
		for j < len(x.Charges) && x.Charges[j] == x.Charges[i] {
			j++
		}
		runs = append(runs, Run{Charge: x.Charges[i], Lo: i, Hi: j})
		i = j
	}
	return runs
}

// Dense is a dense tensor in row major order.
type Dense struct {
	indexes []Index
	shape   []int
	strides []int
	data    []complex128
}

// Zeros returns a zero tensor with the given indexes.
func Zeros(indexes ...Index) *Dense {
	t := &Dense{}
	return t.Reset(indexes...)
}

// Reset resizes t to the given indexes and sets all entries to zero.
func (t *Dense) Reset(indexes ...Index) *Dense {
	t.indexes = slices.Clone(indexes)
	t.shape = make([]int, len(indexes))
	for i, x := range indexes {
		t.shape[i] = x.Dim()
	}
	t.strides = strides(t.shape)
	n := 1
	for _, d := range t.shape {
		n *= d
	}
	if cap(t.data) < n {
		t.data = make([]complex128, n)
	} else {
		t.data = t.data[:n]
		for i := range t.data {
			t.data[i] = 0
		}
	}
	return t
}

func strides(shape []int) []int {
	s := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		s[i] = acc
		acc *= shape[i]
	}
	return s
}

// Clone returns a deep copy of t.
func (t *Dense) Clone() *Dense {
	c := Zeros(t.indexes...)
	copy(c.data, t.data)
	return c
}

// Rank returns the number of indexes of t.
func (t *Dense) Rank() int {
	return len(t.indexes)
}

// Shape returns the dimensions of t.
// The returned slice must not be modified.
func (t *Dense) Shape() []int {
	return t.shape
}

// Indexes returns the indexes of t.
// The returned slice must not be modified.
func (t *Dense) Indexes() []Index {
	return t.indexes
}

// Index returns the i-th index of t.
func (t *Dense) Index(i int) Index {
	return t.indexes[i]
}

// NumElems returns the number of entries of t.
func (t *Dense) NumElems() int {
	return len(t.data)
}

func (t *Dense) offset(ijk []int) int {
	if len(ijk) != len(t.shape) {
		panic(fmt.Sprintf("%d %d", len(ijk), len(t.shape)))
	}
	off := 0
	for i, c := range ijk {
		off += c * t.strides[i]
	}
	return off
}

// At returns the entry at the given coordinates.
func (t *Dense) At(ijk ...int) complex128 {
	return t.data[t.offset(ijk)]
}

// SetAt sets the entry at the given coordinates.
func (t *Dense) SetAt(ijk []int, v complex128) {
	t.data[t.offset(ijk)] = v
}

// AddAt adds v to the entry at the given coordinates.
func (t *Dense) AddAt(ijk []int, v complex128) {
	t.data[t.offset(ijk)] += v
}

// All iterates over all entries of t in row major order.
// The yielded coordinate slice is reused between iterations and must not be
// retained.
func (t *Dense) All() iter.Seq2[[]int, complex128] {
	return func(yield func([]int, complex128) bool) {
		ijk := make([]int, len(t.shape))
		for _, v := range t.data {
			if !yield(ijk, v) {
				return
			}
			for k := len(ijk) - 1; k >= 0; k-- {
				ijk[k]++
				if ijk[k] < t.shape[k] {
					break
				}
				ijk[k] = 0
			}
		}
	}
}

// Scale multiplies all entries of t by a, and returns t.
func (t *Dense) Scale(a complex128) *Dense {
	for i := range t.data {
		t.data[i] *= a
	}
	return t
}

// Norm returns the Frobenius norm of t.
func (t *Dense) Norm() float64 {
	var sum float64
	for _, v := range t.data {
		sum += real(v)*real(v) + imag(v)*imag(v)
	}
	return math.Sqrt(sum)
}

// Conj returns a new tensor with conjugated entries and inverted index
// directions.
func (t *Dense) Conj() *Dense {
	indexes := make([]Index, len(t.indexes))
	for i, x := range t.indexes {
		indexes[i] = x.Inverse()
	}
	c := Zeros(indexes...)
	for i, v := range t.data {
		c.data[i] = complex(real(v), -imag(v))
	}
	return c
}

// Transpose returns a new tensor whose i-th index is the perm[i]-th index of
// t.
func (t *Dense) Transpose(perm ...int) *Dense {
	if len(perm) != len(t.indexes) {
		panic(fmt.Sprintf("%d %d", len(perm), len(t.indexes)))
	}
	indexes := make([]Index, len(perm))
	for i, p := range perm {
		indexes[i] = t.indexes[p]
	}
	out := Zeros(indexes...)

	// factor[k] is the stride in out of the k-th axis of t.
	factor := make([]int, len(perm))
	for i, p := range perm {
		factor[p] = out.strides[i]
	}
	ijk := make([]int, len(t.shape))
	for _, v := range t.data {
		off := 0
		for k, c := range ijk {
			off += c * factor[k]
		}
		out.data[off] = v
		for k := len(ijk) - 1; k >= 0; k-- {
			ijk[k]++
			if ijk[k] < t.shape[k] {
				break
			}
			ijk[k] = 0
		}
	}
	return out
}

// Fuse merges the axis-th and (axis+1)-th indexes of t into one index.
// The fused index takes the direction of the axis-th index, and the charge of
// slot (i, j) is q_i + d*q_j where d is +1 if the two directions agree and -1
// otherwise, which leaves the divergence of the tensor unchanged.
// The returned tensor shares data with t.
func (t *Dense) Fuse(axis int) *Dense {
	if axis < 0 || axis+1 >= len(t.indexes) {
		panic(fmt.Sprintf("%d %d", axis, len(t.indexes)))
	}
	a, b := t.indexes[axis], t.indexes[axis+1]
	d := int(a.Dir) * int(b.Dir)
	charges := make([]int, 0, a.Dim()*b.Dim())
	for _, qa := range a.Charges {
		for _, qb := range b.Charges {
			charges = append(charges, qa+d*qb)
		}
	}
	indexes := make([]Index, 0, len(t.indexes)-1)
	indexes = append(indexes, t.indexes[:axis]...)
	indexes = append(indexes, Index{Dir: a.Dir, Charges: charges})
	indexes = append(indexes, t.indexes[axis+2:]...)

	out := &Dense{indexes: indexes, data: t.data}
	out.shape = make([]int, len(indexes))
	for i, x := range indexes {
		out.shape[i] = x.Dim()
	}
	out.strides = strides(out.shape)
	return out
}

// Slice returns a copy of the slots [lo, hi) of t along the given axis.
func (t *Dense) Slice(axis, lo, hi int) *Dense {
	if lo < 0 || hi > t.shape[axis] || lo >= hi {
		panic(fmt.Sprintf("%d %d %d", lo, hi, t.shape[axis]))
	}
	x := t.indexes[axis]
	indexes := slices.Clone(t.indexes)
	indexes[axis] = Index{Dir: x.Dir, Charges: x.Charges[lo:hi]}
	out := Zeros(indexes...)

	inner := t.strides[axis]
	outer := len(t.data) / (t.shape[axis] * inner)
	for o := 0; o < outer; o++ {
		src := t.data[o*t.shape[axis]*inner:]
		dst := out.data[o*(hi-lo)*inner:]
		copy(dst[:(hi-lo)*inner], src[lo*inner:hi*inner])
	}
	return out
}

// SetSlice writes src into t at offset lo along the given axis.
// All other indexes of src must equal those of t, and the charges of src
// along the axis must equal the corresponding charges of t.
func (t *Dense) SetSlice(axis, lo int, src *Dense) {
	if len(src.indexes) != len(t.indexes) {
		panic(fmt.Sprintf("%d %d", len(src.indexes), len(t.indexes)))
	}
	for i, x := range src.indexes {
		if i == axis {
			continue
		}
		if !x.Equal(t.indexes[i]) {
			panic(fmt.Sprintf("%d %#v %#v", i, x, t.indexes[i]))
		}
	}
	w := src.shape[axis]
	if !slices.Equal(src.indexes[axis].Charges, t.indexes[axis].Charges[lo:lo+w]) {
		panic(fmt.Sprintf("%v %v", src.indexes[axis].Charges, t.indexes[axis].Charges[lo:lo+w]))
	}
	inner := t.strides[axis]
	outer := len(t.data) / (t.shape[axis] * inner)
	for o := 0; o < outer; o++ {
		dst := t.data[o*t.shape[axis]*inner:]
		from := src.data[o*w*inner:]
		copy(dst[lo*inner:(lo+w)*inner], from[:w*inner])
	}
}

// Concat concatenates a and b along the given axis.
// All other indexes must be equal, and the two axis indexes must share a
// direction.
func Concat(a, b *Dense, axis int) *Dense {
	if len(a.indexes) != len(b.indexes) {
		panic(fmt.Sprintf("%d %d", len(a.indexes), len(b.indexes)))
	}
	for i := range a.indexes {
		if i == axis {
			if a.indexes[i].Dir != b.indexes[i].Dir {
				panic(fmt.Sprintf("%v %v", a.indexes[i].Dir, b.indexes[i].Dir))
			}
			continue
		}
		if !a.indexes[i].Equal(b.indexes[i]) {
			panic(fmt.Sprintf("%d %#v %#v", i, a.indexes[i], b.indexes[i]))
		}
	}
	xa, xb := a.indexes[axis], b.indexes[axis]
	charges := make([]int, 0, xa.Dim()+xb.Dim())
	charges = append(charges, xa.Charges...)
	charges = append(charges, xb.Charges...)
	indexes := slices.Clone(a.indexes)
	indexes[axis] = Index{Dir: xa.Dir, Charges: charges}
	out := Zeros(indexes...)
	out.SetSlice(axis, 0, a)
	out.SetSlice(axis, xa.Dim(), b)
	return out
}

// Div returns the divergence of t, which is the direction weighted charge sum
// shared by all nonzero entries. Zero tensors have divergence zero.
// Div panics if the nonzero entries do not agree, since such a tensor cannot
// occur under charge conserving operations.
func (t *Dense) Div() int {
	div, found := 0, false
	ijk := make([]int, len(t.shape))
	for _, v := range t.data {
		if v != 0 {
			d := 0
			for k, c := range ijk {
				d += int(t.indexes[k].Dir) * t.indexes[k].Charges[c]
			}
			if !found {
				div, found = d, true
			} else if d != div {
				panic(fmt.Sprintf("%d %d %v", div, d, ijk))
			}
		}
		for k := len(ijk) - 1; k >= 0; k-- {
			ijk[k]++
			if ijk[k] < t.shape[k] {
				break
			}
			ijk[k] = 0
		}
	}
	return div
}

// IndexCombine returns the reshape isometry that fuses the slot pairs of x
// and y into a single index with the given direction.
// Entry (i, j, i*dim(y)+j) is one, and the charges of the fused index are
// chosen so that the divergence of the isometry is zero.
func IndexCombine(x, y Index, dir Dir) *Dense {
	charges := make([]int, 0, x.Dim()*y.Dim())
	for _, qx := range x.Charges {
		for _, qy := range y.Charges {
			q := -(int(x.Dir)*qx + int(y.Dir)*qy) * int(dir)
			charges = append(charges, q)
		}
	}
	fused := Index{Dir: dir, Charges: charges}
	t := Zeros(x, y, fused)
	ny := y.Dim()
	for i := 0; i < x.Dim(); i++ {
		for j := 0; j < ny; j++ {
			t.SetAt([]int{i, j, i*ny + j}, 1)
		}
	}
	return t
}
