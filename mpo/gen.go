package mpo

import (
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"math/cmplx"
	"slices"

	"github.com/fumin/vmps/tensor"
)

// Generator accumulates local terms of an operator on a chain and emits the
// corresponding matrix product operator.
type Generator struct {
	n    int
	site tensor.Index

	// Elementary operators are deduplicated into labels, with label 0 the
	// identity.
	ops    []*tensor.Dense
	opDivs []int
	keys   map[string]int

	terms []genTerm
}

type genTerm struct {
	head   int
	coef   complex128
	labels []int
}

const idLabel = 0

// NewGenerator returns a generator for a chain of n sites whose physical
// index is site.
func NewGenerator(n int, site tensor.Index) *Generator {
	if n < 2 {
		panic(fmt.Sprintf("%d", n))
	}
	if site.Dir != tensor.Out {
		panic(fmt.Sprintf("%v", site.Dir))
	}
	g := &Generator{n: n, site: site, keys: map[string]int{}}

	id := tensor.Zeros(site.Inverse(), site)
	for i := 0; i < site.Dim(); i++ {
		id.SetAt([]int{i, i}, 1)
	}
	g.register(id)
	return g
}

// register deduplicates op into a label.
// Operators must map the physical index to itself, with the input leg first.
func (g *Generator) register(op *tensor.Dense) int {
	if !op.Index(0).Equal(g.site.Inverse()) || !op.Index(1).Equal(g.site) {
		panic(fmt.Sprintf("%#v %#v %#v", op.Index(0), op.Index(1), g.site))
	}
	key := opKey(op)
	if label, ok := g.keys[key]; ok {
		return label
	}
	label := len(g.ops)
	g.ops = append(g.ops, op.Clone())
	g.opDivs = append(g.opDivs, op.Div())
	g.keys[key] = label
	return label
}

func opKey(op *tensor.Dense) string {
	buf := make([]byte, 0, 16*op.NumElems())
	for _, v := range op.All() {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(real(v)))
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(imag(v)))
	}
	return string(buf)
}

// AddTerm adds coef times the product of ops acting on the given sites.
// Sites must be strictly increasing, and sites not listed are filled with the
// identity. Terms with a zero coefficient are ignored.
func (g *Generator) AddTerm(coef complex128, ops []*tensor.Dense, sites []int) {
	if coef == 0 {
		return
	}
	if len(ops) == 0 || len(ops) != len(sites) {
		panic(fmt.Sprintf("%d %d", len(ops), len(sites)))
	}
	for i := 1; i < len(sites); i++ {
		if sites[i] <= sites[i-1] {
			panic(fmt.Sprintf("%v", sites))
		}
	}
	if sites[0] < 0 || sites[len(sites)-1] >= g.n {
		panic(fmt.Sprintf("%v %d", sites, g.n))
	}

	head, tail := sites[0], sites[len(sites)-1]
	labels := make([]int, tail-head+1)
	for i := range labels {
		labels[i] = idLabel
	}
	for i, op := range ops {
		labels[sites[i]-head] = g.register(op)
	}
	g.terms = append(g.terms, genTerm{head: head, coef: coef, labels: labels})
}

// AddTermInst adds coef times the product of ops acting on the given sites,
// with inst inserted on every site strictly between consecutive listed
// sites. This expresses string dressed terms such as Jordan-Wigner ordered
// fermion hoppings.
func (g *Generator) AddTermInst(coef complex128, ops []*tensor.Dense, sites []int, inst *tensor.Dense) {
	if coef == 0 {
		return
	}
	if len(ops) < 2 || len(ops) != len(sites) {
		panic(fmt.Sprintf("%d %d", len(ops), len(sites)))
	}
	var fullOps []*tensor.Dense
	var fullSites []int
	for i := 0; i < len(ops)-1; i++ {
		fullOps = append(fullOps, ops[i])
		fullSites = append(fullSites, sites[i])
		for j := sites[i] + 1; j < sites[i+1]; j++ {
			fullOps = append(fullOps, inst)
			fullSites = append(fullSites, j)
		}
	}
	fullOps = append(fullOps, ops[len(ops)-1])
	fullSites = append(fullSites, sites[len(sites)-1])
	g.AddTerm(coef, fullOps, fullSites)
}

// Gen assembles the matrix product operator of the accumulated terms.
// The finite state automaton of the terms is compressed by merging
// proportional bond states, and the bond slots are grouped by quantum number
// before emission.
func (g *Generator) Gen() MPO {
	if len(g.terms) == 0 {
		panic("no terms")
	}
	mats := g.buildMats()
	compress(mats)

	m := make(MPO, g.n)
	lvb := tensor.Trivial(tensor.In)
	dims := []int{1}
	for s, mat := range mats {
		colQ := g.colCharges(s, mat, lvb)
		order := groupByCharge(colQ)
		pos := make([]int, len(order))
		for y, j := range order {
			pos[j] = y
		}
		rvbCharges := make([]int, len(order))
		for y, j := range order {
			rvbCharges[y] = colQ[j]
		}
		rvb := tensor.Index{Dir: tensor.Out, Charges: rvbCharges}

		w := tensor.Zeros(lvb, g.site.Inverse(), g.site, rvb)
		d := g.site.Dim()
		for key, c := range mat.elems {
			y := pos[key[1]]
			for _, so := range c {
				op := g.ops[so.op]
				for p := 0; p < d; p++ {
					for q := 0; q < d; q++ {
						if v := op.At(p, q); v != 0 {
							w.AddAt([]int{key[0], p, q, y}, so.coef*v)
						}
					}
				}
			}
		}
		m[s] = w
		dims = append(dims, len(order))

		if s+1 < g.n {
			mats[s+1].permuteRows(order)
		}
		lvb = tensor.Index{Dir: tensor.In, Charges: rvbCharges}
	}
	log.Printf("MPO bond dimensions: %v", dims)
	return m
}

// buildMats lays out the uncompressed finite state automaton.
// At every interior bond, state 0 is the ready state, state 1 is the
// finished state, and further states are the in-progress terms spanning the
// bond. The left edge has the single ready state and the right edge the
// single finished state.
func (g *Generator) buildMats() []*symMat {
	inter := make([]int, g.n)
	for _, t := range g.terms {
		tail := t.head + len(t.labels) - 1
		for b := t.head; b < tail; b++ {
			inter[b]++
		}
	}
	cols := make([]int, g.n)
	for b := 0; b < g.n-1; b++ {
		cols[b] = 2 + inter[b]
	}
	cols[g.n-1] = 1

	mats := make([]*symMat, g.n)
	rows := 1
	for s := 0; s < g.n; s++ {
		mats[s] = newSymMat(rows, cols[s])
		rows = cols[s]
	}
	fCol := func(s int) int {
		if s == g.n-1 {
			return 0
		}
		return 1
	}
	for s := 0; s < g.n-1; s++ {
		mats[s].add(0, 0, 1, idLabel)
	}
	for s := 1; s < g.n; s++ {
		mats[s].add(1, fCol(s), 1, idLabel)
	}

	next := make([]int, g.n)
	for b := range next {
		next[b] = 2
	}
	for _, t := range g.terms {
		tail := t.head + len(t.labels) - 1
		prev := 0
		for s := t.head; s <= tail; s++ {
			var col int
			if s == tail {
				col = fCol(s)
			} else {
				col = next[s]
				next[s]++
			}
			coef := complex128(1)
			if s == t.head {
				coef = t.coef
			}
			mats[s].add(prev, col, coef, t.labels[s-t.head])
			prev = col
		}
	}
	return mats
}

// colCharges assigns a quantum number to every column of mat given the left
// bond index, and panics if the entries of a column disagree.
func (g *Generator) colCharges(s int, mat *symMat, lvb tensor.Index) []int {
	qs := make([]int, mat.cols)
	found := make([]bool, mat.cols)
	for key, c := range mat.elems {
		for _, so := range c {
			q := lvb.Charges[key[0]] - g.opDivs[so.op]
			if !found[key[1]] {
				qs[key[1]], found[key[1]] = q, true
			} else if qs[key[1]] != q {
				panic(fmt.Sprintf("%d %d %d %d", s, key[1], qs[key[1]], q))
			}
		}
	}
	for j, ok := range found {
		if !ok {
			panic(fmt.Sprintf("%d %d", s, j))
		}
	}
	return qs
}

// groupByCharge returns a column permutation that makes equal charges
// contiguous, keeping the first-seen order of charges and the original order
// within a charge.
func groupByCharge(qs []int) []int {
	var charges []int
	for _, q := range qs {
		if !slices.Contains(charges, q) {
			charges = append(charges, q)
		}
	}
	var order []int
	for _, q := range charges {
		for j, qj := range qs {
			if qj == q {
				order = append(order, j)
			}
		}
	}
	return order
}

// scaledOp is a scalar multiple of an elementary operator.
type scaledOp struct {
	coef complex128
	op   int
}

// cell is a sum of scaled operators, sorted by label without duplicates.
type cell []scaledOp

func (c cell) add(coef complex128, op int) cell {
	i, ok := slices.BinarySearchFunc(c, op, func(so scaledOp, label int) int { return so.op - label })
	if ok {
		c[i].coef += coef
		if c[i].coef == 0 {
			return slices.Delete(c, i, i+1)
		}
		return c
	}
	return slices.Insert(c, i, scaledOp{coef: coef, op: op})
}

func cellAdd(a cell, lambda complex128, b cell) cell {
	out := slices.Clone(a)
	for _, so := range b {
		out = out.add(lambda*so.coef, so.op)
	}
	return out
}

// proportional reports whether b equals lambda times a for some scalar, and
// returns that scalar.
func (a cell) proportional(b cell) (complex128, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	for i := range a {
		if a[i].op != b[i].op {
			return 0, false
		}
	}
	lambda := b[0].coef / a[0].coef
	for i := range a {
		if !approxEqual(lambda*a[i].coef, b[i].coef) {
			return 0, false
		}
	}
	return lambda, true
}

func approxEqual(a, b complex128) bool {
	return cmplx.Abs(a-b) <= 1e-12*(1+cmplx.Abs(a)+cmplx.Abs(b))
}

// symMat is a sparse matrix of cells.
type symMat struct {
	rows, cols int
	elems      map[[2]int]cell
}

func newSymMat(rows, cols int) *symMat {
	return &symMat{rows: rows, cols: cols, elems: map[[2]int]cell{}}
}

func (m *symMat) add(r, c int, coef complex128, op int) {
	if r < 0 || r >= m.rows || c < 0 || c >= m.cols {
		panic(fmt.Sprintf("%d %d %d %d", r, c, m.rows, m.cols))
	}
	key := [2]int{r, c}
	cl := m.elems[key].add(coef, op)
	if len(cl) == 0 {
		delete(m.elems, key)
		return
	}
	m.elems[key] = cl
}

func (m *symMat) set(r, c int, cl cell) {
	key := [2]int{r, c}
	if len(cl) == 0 {
		delete(m.elems, key)
		return
	}
	m.elems[key] = cl
}

func (m *symMat) at(r, c int) cell {
	return m.elems[[2]int{r, c}]
}

// colRows returns the rows with entries in column j, sorted.
func (m *symMat) colRows(j int) []int {
	var rows []int
	for key := range m.elems {
		if key[1] == j {
			rows = append(rows, key[0])
		}
	}
	slices.Sort(rows)
	return rows
}

// rowCols returns the columns with entries in row i, sorted.
func (m *symMat) rowCols(i int) []int {
	var cols []int
	for key := range m.elems {
		if key[0] == i {
			cols = append(cols, key[1])
		}
	}
	slices.Sort(cols)
	return cols
}

func (m *symMat) deleteCol(j int) {
	elems := map[[2]int]cell{}
	for key, v := range m.elems {
		if key[1] == j {
			continue
		}
		if key[1] > j {
			key[1]--
		}
		elems[key] = v
	}
	m.elems = elems
	m.cols--
}

func (m *symMat) deleteRow(i int) {
	elems := map[[2]int]cell{}
	for key, v := range m.elems {
		if key[0] == i {
			continue
		}
		if key[0] > i {
			key[0]--
		}
		elems[key] = v
	}
	m.elems = elems
	m.rows--
}

// addRowInto adds lambda times row src to row dst.
func (m *symMat) addRowInto(dst int, lambda complex128, src int) {
	for _, c := range m.rowCols(src) {
		m.set(dst, c, cellAdd(m.at(dst, c), lambda, m.at(src, c)))
	}
}

// addColInto adds lambda times column src to column dst.
func (m *symMat) addColInto(dst int, lambda complex128, src int) {
	for _, r := range m.colRows(src) {
		m.set(r, dst, cellAdd(m.at(r, dst), lambda, m.at(r, src)))
	}
}

// colsProportional reports whether column k equals lambda times column j.
func (m *symMat) colsProportional(j, k int) (complex128, bool) {
	rj, rk := m.colRows(j), m.colRows(k)
	if !slices.Equal(rj, rk) || len(rj) == 0 {
		return 0, false
	}
	lambda, ok := m.at(rj[0], j).proportional(m.at(rj[0], k))
	if !ok {
		return 0, false
	}
	for _, r := range rj[1:] {
		l2, ok := m.at(r, j).proportional(m.at(r, k))
		if !ok || !approxEqual(l2, lambda) {
			return 0, false
		}
	}
	return lambda, true
}

// rowsProportional reports whether row k equals lambda times row j.
func (m *symMat) rowsProportional(j, k int) (complex128, bool) {
	cj, ck := m.rowCols(j), m.rowCols(k)
	if !slices.Equal(cj, ck) || len(cj) == 0 {
		return 0, false
	}
	lambda, ok := m.at(j, cj[0]).proportional(m.at(k, cj[0]))
	if !ok {
		return 0, false
	}
	for _, c := range cj[1:] {
		l2, ok := m.at(j, c).proportional(m.at(k, c))
		if !ok || !approxEqual(l2, lambda) {
			return 0, false
		}
	}
	return lambda, true
}

// compress merges proportional bond states and prunes unreachable ones until
// a fixed point, sweeping columns left to right and rows right to left.
func compress(mats []*symMat) {
	for changed := true; changed; {
		changed = false
		for s := 0; s < len(mats)-1; s++ {
			if compressCols(mats[s], mats[s+1]) {
				changed = true
			}
		}
		for s := len(mats) - 1; s > 0; s-- {
			if compressRows(mats[s], mats[s-1]) {
				changed = true
			}
		}
	}
}

func compressCols(m, next *symMat) bool {
	changed := false
	for {
		removed := false
		for j := 0; j < m.cols; j++ {
			if len(m.colRows(j)) == 0 {
				if m.cols == 1 {
					panic("operator vanishes")
				}
				m.deleteCol(j)
				next.deleteRow(j)
				removed = true
				break
			}
		}
		if removed {
			changed = true
			continue
		}
		merged := false
	search:
		for j := 0; j < m.cols-1; j++ {
			for k := j + 1; k < m.cols; k++ {
				lambda, ok := m.colsProportional(j, k)
				if !ok {
					continue
				}
				next.addRowInto(j, lambda, k)
				m.deleteCol(k)
				next.deleteRow(k)
				merged = true
				break search
			}
		}
		if !merged {
			return changed
		}
		changed = true
	}
}

func compressRows(m, prev *symMat) bool {
	changed := false
	for {
		removed := false
		for i := 0; i < m.rows; i++ {
			if len(m.rowCols(i)) == 0 {
				if m.rows == 1 {
					panic("operator vanishes")
				}
				m.deleteRow(i)
				prev.deleteCol(i)
				removed = true
				break
			}
		}
		if removed {
			changed = true
			continue
		}
		merged := false
	search:
		for j := 0; j < m.rows-1; j++ {
			for k := j + 1; k < m.rows; k++ {
				lambda, ok := m.rowsProportional(j, k)
				if !ok {
					continue
				}
				prev.addColInto(j, lambda, k)
				m.deleteRow(k)
				prev.deleteCol(k)
				merged = true
				break search
			}
		}
		if !merged {
			return changed
		}
		changed = true
	}
}

// permuteRows reorders the rows of m so that new row y is old row order[y].
func (m *symMat) permuteRows(order []int) {
	if len(order) != m.rows {
		panic(fmt.Sprintf("%d %d", len(order), m.rows))
	}
	pos := make([]int, len(order))
	for y, i := range order {
		pos[i] = y
	}
	elems := map[[2]int]cell{}
	for key, v := range m.elems {
		key[0] = pos[key[0]]
		elems[key] = v
	}
	m.elems = elems
}
