package tensor

import (
	"fmt"
	"math"
	"math/cmplx"
	"slices"
	"sort"
)

// Block is a charge sector of the matricization of a tensor.
// Rows are flat row indexes over the leading axes, Cols are flat column
// indexes over the trailing axes, and RowCharge is the direction weighted
// charge shared by the rows.
type Block struct {
	RowCharge int
	Rows      []int
	Cols      []int
}

// Blocks partitions the matricization of t, with the first ldims axes as
// rows, into charge sectors. A row group with charge q is paired with the
// column group whose charge is Div(t)-q, so that the blocks cover every
// nonzero entry. Blocks are returned in increasing row charge order.
func Blocks(t *Dense, ldims int) []Block {
	rowCharges := axesCharges(t, 0, ldims)
	colCharges := axesCharges(t, ldims, t.Rank())
	div := t.Div()

	rowGroups := map[int][]int{}
	for r, q := range rowCharges {
		rowGroups[q] = append(rowGroups[q], r)
	}
	colGroups := map[int][]int{}
	for c, q := range colCharges {
		colGroups[q] = append(colGroups[q], c)
	}

	charges := make([]int, 0, len(rowGroups))
	for q := range rowGroups {
		charges = append(charges, q)
	}
	sort.Ints(charges)

	blocks := make([]Block, 0, len(charges))
	for _, q := range charges {
		cols, ok := colGroups[div-q]
		if !ok {
			continue
		}
		blocks = append(blocks, Block{RowCharge: q, Rows: rowGroups[q], Cols: cols})
	}
	return blocks
}

// axesCharges returns the direction weighted charge of every flat index over
// the axes [lo, hi) of t.
func axesCharges(t *Dense, lo, hi int) []int {
	n := 1
	for _, d := range t.shape[lo:hi] {
		n *= d
	}
	charges := make([]int, n)
	ijk := make([]int, hi-lo)
	for f := 0; f < n; f++ {
		q := 0
		for k, c := range ijk {
			x := t.indexes[lo+k]
			q += int(x.Dir) * x.Charges[c]
		}
		charges[f] = q
		for k := len(ijk) - 1; k >= 0; k-- {
			ijk[k]++
			if ijk[k] < t.shape[lo+k] {
				break
			}
			ijk[k] = 0
		}
	}
	return charges
}

// FactorBlock computes the singular value decomposition of one charge block
// of the matricization of t with the first ldims axes as rows.
// The factors are returned as plain matrices: u is len(Rows) by k, s holds
// the k singular values in decreasing order, and v is len(Cols) by k, where
// k is the smaller of the block dimensions.
func FactorBlock(t *Dense, ldims int, blk Block) (u, s, v *Dense) {
	m, n := len(blk.Rows), len(blk.Cols)
	colLen := 1
	for _, d := range t.shape[ldims:] {
		colLen *= d
	}
	a := make([]complex128, m*n)
	for i, r := range blk.Rows {
		for j, c := range blk.Cols {
			a[i*n+j] = t.data[r*colLen+c]
		}
	}
	ud, sd, vd := jacobiSVD(a, m, n)
	k := len(sd)

	u = Zeros(Flat(In, m), Flat(Out, k))
	copy(u.data, ud)
	s = Zeros(Flat(Out, k))
	for i, sv := range sd {
		s.data[i] = complex(sv, 0)
	}
	v = Zeros(Flat(In, n), Flat(Out, k))
	copy(v.data, vd)
	return u, s, v
}

// AssembleSVD builds the truncated factors of t from the per block
// decompositions us, ss, vs, which must correspond to blocks in order.
//
// The singular values of all blocks are pooled and the smallest are
// discarded until the retained squared weight is at least (1-truncErr) times
// the total, subject to the bond dimension staying within [dmin, dmax].
// The retained singular values are not renormalized. The new bond carries
// charge ldiv-RowCharge on the slots of each block, so that the divergence of
// u is ldiv, and t = u*s*vt up to the discarded weight.
//
// It returns the actual discarded relative weight and the new bond dimension.
func AssembleSVD(t *Dense, ldims, ldiv int, blocks []Block, us, ss, vs []*Dense, truncErr float64, dmin, dmax int) (u, s, vt *Dense, actualErr float64, d int) {
	type triple struct {
		sigma float64
		blk   int
		k     int
	}
	var all []triple
	for b := range blocks {
		for k := 0; k < ss[b].NumElems(); k++ {
			all = append(all, triple{sigma: real(ss[b].data[k]), blk: b, k: k})
		}
	}
	if len(all) == 0 {
		panic(fmt.Sprintf("%v %d", t.shape, ldims))
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].sigma > all[j].sigma })

	var total float64
	for _, tr := range all {
		total += tr.sigma * tr.sigma
	}
	target := (1 - truncErr) * total
	d = len(all)
	var cum float64
	for i, tr := range all {
		cum += tr.sigma * tr.sigma
		if cum >= target {
			d = i + 1
			break
		}
	}
	d = min(max(d, dmin), dmax, len(all))
	var kept float64
	for _, tr := range all[:d] {
		kept += tr.sigma * tr.sigma
	}
	actualErr = (total - kept) / total

	// Regroup the kept values by block, preserving block order so that the
	// new bond charges form contiguous runs.
	keptKs := make([][]int, len(blocks))
	for _, tr := range all[:d] {
		keptKs[tr.blk] = append(keptKs[tr.blk], tr.k)
	}
	for b := range keptKs {
		sort.Ints(keptKs[b])
	}

	bondCharges := make([]int, 0, d)
	for b, ks := range keptKs {
		for range ks {
			bondCharges = append(bondCharges, ldiv-blocks[b].RowCharge)
		}
	}
	bondOut := Index{Dir: Out, Charges: bondCharges}
	bondIn := Index{Dir: In, Charges: bondCharges}

	uIdx := append(slices.Clone(t.indexes[:ldims]), bondOut)
	u = Zeros(uIdx...)
	vtIdx := append([]Index{bondIn}, t.indexes[ldims:]...)
	vt = Zeros(vtIdx...)
	s = Zeros(bondIn, bondOut)

	colLen := 1
	for _, dim := range t.shape[ldims:] {
		colLen *= dim
	}
	slot := 0
	for b, ks := range keptKs {
		blk := blocks[b]
		kb := ss[b].NumElems()
		for _, k := range ks {
			s.data[slot*d+slot] = ss[b].data[k]
			for i, r := range blk.Rows {
				u.data[r*d+slot] = us[b].data[i*kb+k]
			}
			for j, c := range blk.Cols {
				vt.data[slot*colLen+c] = cmplx.Conj(vs[b].data[j*kb+k])
			}
			slot++
		}
	}
	return u, s, vt, actualErr, d
}

// TruncSVD computes the truncated singular value decomposition of t with the
// first ldims axes as rows, assigning divergence ldiv to u.
// See AssembleSVD for the truncation policy and the meaning of the returned
// values.
func TruncSVD(t *Dense, ldims, ldiv int, truncErr float64, dmin, dmax int) (u, s, vt *Dense, actualErr float64, d int) {
	blocks := Blocks(t, ldims)
	us := make([]*Dense, len(blocks))
	ss := make([]*Dense, len(blocks))
	vs := make([]*Dense, len(blocks))
	for i, blk := range blocks {
		us[i], ss[i], vs[i] = FactorBlock(t, ldims, blk)
	}
	return AssembleSVD(t, ldims, ldiv, blocks, us, ss, vs, truncErr, dmin, dmax)
}

// SVD computes the exact singular value decomposition of t with the first
// ldims axes as rows, assigning divergence ldiv to u.
// Exactly zero singular values are dropped.
func SVD(t *Dense, ldims, ldiv int) (u, s, vt *Dense) {
	u, s, vt, _, _ = TruncSVD(t, ldims, ldiv, 0, 1, math.MaxInt)
	return u, s, vt
}

const (
	jacobiTol       = 1e-15
	jacobiMaxSweeps = 60
)

// jacobiSVD decomposes the m by n row major matrix a as u*diag(s)*v^H using
// one sided Jacobi rotations. u is m by k, v is n by k with k = min(m, n),
// and s is in decreasing order. Exactly zero columns of a stay exactly zero
// in u.
func jacobiSVD(a []complex128, m, n int) (u []complex128, s []float64, v []complex128) {
	if m < n {
		ah := make([]complex128, n*m)
		for i := 0; i < m; i++ {
			for j := 0; j < n; j++ {
				ah[j*m+i] = cmplx.Conj(a[i*n+j])
			}
		}
		vh, s, uh := jacobiSVD(ah, n, m)
		return uh, s, vh
	}

	u = make([]complex128, m*n)
	copy(u, a)
	v = make([]complex128, n*n)
	for j := 0; j < n; j++ {
		v[j*n+j] = 1
	}

	for sweep := 0; sweep < jacobiMaxSweeps; sweep++ {
		rotated := false
		for p := 0; p < n-1; p++ {
			for q := p + 1; q < n; q++ {
				var app, aqq float64
				var apq complex128
				for i := 0; i < m; i++ {
					up, uq := u[i*n+p], u[i*n+q]
					app += real(up)*real(up) + imag(up)*imag(up)
					aqq += real(uq)*real(uq) + imag(uq)*imag(uq)
					apq += cmplx.Conj(up) * uq
				}
				r := cmplx.Abs(apq)
				if r <= jacobiTol*math.Sqrt(app*aqq) {
					continue
				}
				rotated = true

				// Diagonalize the 2x2 Gram matrix [[app, apq], [conj(apq), aqq]].
				alpha := apq / complex(r, 0)
				tau := (aqq - app) / (2 * r)
				var tan float64
				if tau >= 0 {
					tan = 1 / (tau + math.Sqrt(1+tau*tau))
				} else {
					tan = -1 / (-tau + math.Sqrt(1+tau*tau))
				}
				cos := 1 / math.Sqrt(1+tan*tan)
				sin := tan * cos

				c := complex(cos, 0)
				sright := complex(sin, 0) * cmplx.Conj(alpha)
				for i := 0; i < m; i++ {
					up, uq := u[i*n+p], u[i*n+q]
					u[i*n+p] = c*up - sright*uq
					u[i*n+q] = complex(sin, 0)*up + c*cmplx.Conj(alpha)*uq
				}
				for j := 0; j < n; j++ {
					vp, vq := v[j*n+p], v[j*n+q]
					v[j*n+p] = c*vp - sright*vq
					v[j*n+q] = complex(sin, 0)*vp + c*cmplx.Conj(alpha)*vq
				}
			}
		}
		if !rotated {
			break
		}
	}

	s = make([]float64, n)
	for j := 0; j < n; j++ {
		var sum float64
		for i := 0; i < m; i++ {
			x := u[i*n+j]
			sum += real(x)*real(x) + imag(x)*imag(x)
		}
		s[j] = math.Sqrt(sum)
	}
	perm := make([]int, n)
	for j := range perm {
		perm[j] = j
	}
	sort.SliceStable(perm, func(i, j int) bool { return s[perm[i]] > s[perm[j]] })

	uOut := make([]complex128, m*n)
	vOut := make([]complex128, n*n)
	sOut := make([]float64, n)
	for jNew, jOld := range perm {
		sOut[jNew] = s[jOld]
		inv := 0.0
		if s[jOld] > 0 {
			inv = 1 / s[jOld]
		}
		for i := 0; i < m; i++ {
			uOut[i*n+jNew] = u[i*n+jOld] * complex(inv, 0)
		}
		for i := 0; i < n; i++ {
			vOut[i*n+jNew] = v[i*n+jOld]
		}
	}
	return uOut, sOut, vOut
}
