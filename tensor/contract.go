package tensor

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/cblas128"
)

// Product contracts a and b over the given axis pairs and stores the result
// in dst, which is returned. If dst is nil, a new tensor is allocated.
// axes[k][0] is an axis of a and axes[k][1] is the corresponding axis of b.
// Every contracted pair must have inverse directions and equal charges.
// The result indexes are the free indexes of a followed by the free indexes
// of b, in their original order.
func Product(dst, a, b *Dense, axes [][2]int) *Dense {
	for _, ax := range axes {
		xa, xb := a.indexes[ax[0]], b.indexes[ax[1]]
		if xa.Dir != xb.Dir.Inverse() || !slices.Equal(xa.Charges, xb.Charges) {
			panic(fmt.Sprintf("%d %d %#v %#v", ax[0], ax[1], xa, xb))
		}
	}

	conA := make([]int, len(axes))
	conB := make([]int, len(axes))
	for i, ax := range axes {
		conA[i], conB[i] = ax[0], ax[1]
	}
	freeA := freeAxes(a.Rank(), conA)
	freeB := freeAxes(b.Rank(), conB)

	// Permute a to (free, contracted) and b to (contracted, free), so that
	// the contraction is a single matrix multiplication.
	pa := a.Transpose(append(slices.Clone(freeA), conA...)...)
	pb := b.Transpose(append(slices.Clone(conB), freeB...)...)

	m, k, n := 1, 1, 1
	for _, ax := range freeA {
		m *= a.shape[ax]
	}
	for _, ax := range conA {
		k *= a.shape[ax]
	}
	for _, ax := range freeB {
		n *= b.shape[ax]
	}

	indexes := make([]Index, 0, len(freeA)+len(freeB))
	for _, ax := range freeA {
		indexes = append(indexes, a.indexes[ax])
	}
	for _, ax := range freeB {
		indexes = append(indexes, b.indexes[ax])
	}
	if dst == nil {
		dst = &Dense{}
	}
	dst.Reset(indexes...)

	ga := cblas128.General{Rows: m, Cols: k, Stride: k, Data: pa.data}
	gb := cblas128.General{Rows: k, Cols: n, Stride: n, Data: pb.data}
	gc := cblas128.General{Rows: m, Cols: n, Stride: n, Data: dst.data}
	cblas128.Gemm(blas.NoTrans, blas.NoTrans, 1, ga, gb, 0, gc)
	return dst
}

// Contract contracts a and b over the given axis pairs into a new tensor.
func Contract(a, b *Dense, axes [][2]int) *Dense {
	return Product(nil, a, b, axes)
}

func freeAxes(rank int, contracted []int) []int {
	free := make([]int, 0, rank-len(contracted))
	for i := 0; i < rank; i++ {
		if !slices.Contains(contracted, i) {
			free = append(free, i)
		}
	}
	return free
}

// Dot returns the inner product <a, b> where a is conjugated.
// The two tensors must have equal indexes.
func Dot(a, b *Dense) complex128 {
	checkSameIndexes(a, b)
	va := cblas128.Vector{N: len(a.data), Inc: 1, Data: a.data}
	vb := cblas128.Vector{N: len(b.data), Inc: 1, Data: b.data}
	return cblas128.Dotc(va, vb)
}

// Axpy adds alpha times x to y.
// The two tensors must have equal indexes.
func Axpy(alpha complex128, x, y *Dense) {
	checkSameIndexes(x, y)
	vx := cblas128.Vector{N: len(x.data), Inc: 1, Data: x.data}
	vy := cblas128.Vector{N: len(y.data), Inc: 1, Data: y.data}
	cblas128.Axpy(alpha, vx, vy)
}

// Add stores a+b in dst, which is returned. If dst is nil, a new tensor is
// allocated. All three tensors must have equal indexes.
func Add(dst, a, b *Dense) *Dense {
	checkSameIndexes(a, b)
	if dst == nil {
		dst = &Dense{}
	}
	dst.Reset(a.indexes...)
	for i := range dst.data {
		dst.data[i] = a.data[i] + b.data[i]
	}
	return dst
}

func checkSameIndexes(a, b *Dense) {
	if len(a.indexes) != len(b.indexes) {
		panic(fmt.Sprintf("%d %d", len(a.indexes), len(b.indexes)))
	}
	for i := range a.indexes {
		if !a.indexes[i].Equal(b.indexes[i]) {
			panic(fmt.Sprintf("%d %#v %#v", i, a.indexes[i], b.indexes[i]))
		}
	}
}
