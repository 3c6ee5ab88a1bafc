package mpo

import (
	"flag"
	"fmt"
	"log"
	"math/cmplx"
	"os"
	"slices"
	"testing"

	"github.com/fumin/vmps/tensor"
)

func TestGenIsing(t *testing.T) {
	t.Parallel()
	const n = 4
	const h = 0.7
	site := tensor.Flat(tensor.Out, 2)
	sz := siteOp(site, [][2]int{{0, 0}, {1, 1}}, []complex128{1, -1})
	sx := siteOp(site, [][2]int{{0, 1}, {1, 0}}, []complex128{1, 1})

	g := NewGenerator(n, site)
	for i := 0; i < n-1; i++ {
		g.AddTerm(-1, []*tensor.Dense{sz, sz}, []int{i, i + 1})
	}
	for i := 0; i < n; i++ {
		g.AddTerm(-h, []*tensor.Dense{sx}, []int{i})
	}
	m := g.Gen()

	// The transverse field Ising chain compresses to bond dimension 3.
	for s, dims := range [][]int{{1, 2, 2, 3}, {3, 2, 2, 3}, {3, 2, 2, 3}, {3, 2, 2, 1}} {
		if !slices.Equal(m[s].Shape(), dims) {
			t.Fatalf("%d %v %v", s, m[s].Shape(), dims)
		}
	}
	for s := range m {
		if d := m[s].Div(); d != 0 {
			t.Fatalf("%d %d", s, d)
		}
	}

	var terms []denseTerm
	for i := 0; i < n-1; i++ {
		terms = append(terms, denseTerm{coef: -1, ops: map[int]*tensor.Dense{i: sz, i + 1: sz}})
	}
	for i := 0; i < n; i++ {
		terms = append(terms, denseTerm{coef: -h, ops: map[int]*tensor.Dense{i: sx}})
	}
	if err := compareDense(m, denseOracle(n, 2, terms)); err != nil {
		t.Fatalf("%+v", err)
	}
}

func TestGenFreeFermion(t *testing.T) {
	t.Parallel()
	const n = 4
	site := tensor.Index{Dir: tensor.Out, Charges: []int{0, 1}}
	c := siteOp(site, [][2]int{{1, 0}}, []complex128{1})
	cdag := siteOp(site, [][2]int{{0, 1}}, []complex128{1})

	g := NewGenerator(n, site)
	for i := 0; i < n-1; i++ {
		g.AddTerm(-1, []*tensor.Dense{cdag, c}, []int{i, i + 1})
		g.AddTerm(-1, []*tensor.Dense{c, cdag}, []int{i, i + 1})
	}
	m := g.Gen()

	// Hopping compresses to bond dimension 4, and the edge bonds lose the
	// unreachable ready and finished states.
	for s, dims := range [][]int{{1, 2, 2, 3}, {3, 2, 2, 4}, {4, 2, 2, 3}, {3, 2, 2, 1}} {
		if !slices.Equal(m[s].Shape(), dims) {
			t.Fatalf("%d %v %v", s, m[s].Shape(), dims)
		}
	}
	for s := range m {
		if d := m[s].Div(); d != 0 {
			t.Fatalf("%d %d", s, d)
		}
		for _, x := range []tensor.Index{m[s].Index(0), m[s].Index(3)} {
			seen := map[int]bool{}
			for _, run := range x.Runs() {
				if seen[run.Charge] {
					t.Fatalf("%d %v", s, x.Charges)
				}
				seen[run.Charge] = true
			}
		}
	}

	var terms []denseTerm
	for i := 0; i < n-1; i++ {
		terms = append(terms, denseTerm{coef: -1, ops: map[int]*tensor.Dense{i: cdag, i + 1: c}})
		terms = append(terms, denseTerm{coef: -1, ops: map[int]*tensor.Dense{i: c, i + 1: cdag}})
	}
	if err := compareDense(m, denseOracle(n, 2, terms)); err != nil {
		t.Fatalf("%+v", err)
	}
}

func TestAddTermInst(t *testing.T) {
	t.Parallel()
	const n = 4
	site := tensor.Index{Dir: tensor.Out, Charges: []int{0, 1}}
	c := siteOp(site, [][2]int{{1, 0}}, []complex128{1})
	cdag := siteOp(site, [][2]int{{0, 1}}, []complex128{1})
	f := siteOp(site, [][2]int{{0, 0}, {1, 1}}, []complex128{1, -1})
	ntot := siteOp(site, [][2]int{{1, 1}}, []complex128{1})

	g := NewGenerator(n, site)
	g.AddTermInst(0.5, []*tensor.Dense{cdag, c}, []int{0, 3}, f)
	g.AddTerm(1.25, []*tensor.Dense{ntot}, []int{1})
	m := g.Gen()

	terms := []denseTerm{
		{coef: 0.5, ops: map[int]*tensor.Dense{0: cdag, 1: f, 2: f, 3: c}},
		{coef: 1.25, ops: map[int]*tensor.Dense{1: ntot}},
	}
	if err := compareDense(m, denseOracle(n, 2, terms)); err != nil {
		t.Fatalf("%+v", err)
	}
}

func TestGenDedup(t *testing.T) {
	t.Parallel()
	site := tensor.Flat(tensor.Out, 2)
	sz := siteOp(site, [][2]int{{0, 0}, {1, 1}}, []complex128{1, -1})
	sz2 := siteOp(site, [][2]int{{0, 0}, {1, 1}}, []complex128{1, -1})

	g := NewGenerator(3, site)
	g.AddTerm(-1, []*tensor.Dense{sz, sz}, []int{0, 1})
	g.AddTerm(-1, []*tensor.Dense{sz2, sz2}, []int{1, 2})
	// Identity plus one deduplicated operator.
	if len(g.ops) != 2 {
		t.Fatalf("%d", len(g.ops))
	}
}

func TestGenChargeConflict(t *testing.T) {
	t.Parallel()
	site := tensor.Index{Dir: tensor.Out, Charges: []int{0, 1}}
	c := siteOp(site, [][2]int{{1, 0}}, []complex128{1})
	ntot := siteOp(site, [][2]int{{1, 1}}, []complex128{1})

	// A term that destroys charge shares its final bond state with one
	// that conserves it, so no consistent bond charge exists.
	g := NewGenerator(2, site)
	g.AddTerm(1, []*tensor.Dense{c}, []int{0})
	g.AddTerm(1, []*tensor.Dense{ntot}, []int{0})
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	g.Gen()
}

func siteOp(site tensor.Index, coords [][2]int, vals []complex128) *tensor.Dense {
	op := tensor.Zeros(site.Inverse(), site)
	for i, pq := range coords {
		op.SetAt([]int{pq[0], pq[1]}, vals[i])
	}
	return op
}

type denseTerm struct {
	coef complex128
	ops  map[int]*tensor.Dense
}

// denseOracle builds the full matrix of a sum of local terms.
// Entry (P, Q) is the amplitude from input configuration P to output
// configuration Q, with site 0 the most significant digit.
func denseOracle(n, d int, terms []denseTerm) [][]complex128 {
	dim := 1
	for s := 0; s < n; s++ {
		dim *= d
	}
	h := make([][]complex128, dim)
	for i := range h {
		h[i] = make([]complex128, dim)
	}
	ps, qs := make([]int, n), make([]int, n)
	for p := 0; p < dim; p++ {
		digits(p, d, ps)
		for q := 0; q < dim; q++ {
			digits(q, d, qs)
			for _, term := range terms {
				v := term.coef
				for s := 0; s < n; s++ {
					op, ok := term.ops[s]
					if !ok {
						if ps[s] != qs[s] {
							v = 0
							break
						}
						continue
					}
					v *= op.At(ps[s], qs[s])
					if v == 0 {
						break
					}
				}
				h[p][q] += v
			}
		}
	}
	return h
}

// compareDense contracts the matrix product operator into a full matrix and
// compares it with the expected one.
func compareDense(m MPO, expected [][]complex128) error {
	n := len(m)
	d := m[0].Shape()[1]
	dim := len(expected)
	ps, qs := make([]int, n), make([]int, n)
	for p := 0; p < dim; p++ {
		digits(p, d, ps)
		for q := 0; q < dim; q++ {
			digits(q, d, qs)
			v := []complex128{1}
			for s := 0; s < n; s++ {
				w := m[s]
				next := make([]complex128, w.Shape()[3])
				for y := range next {
					for x, vx := range v {
						if vx == 0 {
							continue
						}
						next[y] += vx * w.At(x, ps[s], qs[s], y)
					}
				}
				v = next
			}
			if cmplx.Abs(v[0]-expected[p][q]) > 1e-13 {
				return fmt.Errorf("%d %d %v %v", p, q, v[0], expected[p][q])
			}
		}
	}
	return nil
}

func digits(x, d int, out []int) {
	for s := len(out) - 1; s >= 0; s-- {
		out[s] = x % d
		x /= d
	}
}

func TestMain(m *testing.M) {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds | log.Llongfile | log.LstdFlags)
	os.Exit(m.Run())
}
