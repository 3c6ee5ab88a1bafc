package mps

import (
	"flag"
	"log"
	"math/cmplx"
	"math/rand"
	"os"
	"slices"
	"testing"

	"github.com/fumin/vmps/tensor"
)

func TestDirectProduct(t *testing.T) {
	t.Parallel()
	phys := tensor.Index{Dir: tensor.Out, Charges: []int{0, 1}}
	m := DirectProduct("", phys, []int{0, 1, 0, 1, 0, 1})

	if m.Len() != 6 {
		t.Fatalf("%d", m.Len())
	}
	for i := 0; i < m.Len(); i++ {
		if d := m.Ten(i).Div(); d != 0 {
			t.Fatalf("%d %d", i, d)
		}
	}
	if q := m.Ten(5).Index(2).Charges[0]; q != -3 {
		t.Fatalf("%d", q)
	}

	want := make([]complex128, 64)
	want[21] = 1
	checkState(t, m, want)
}

func TestCanonicalize(t *testing.T) {
	t.Parallel()
	rnd := rand.New(rand.NewSource(25))
	phys := tensor.Index{Dir: tensor.Out, Charges: []int{0, 1}}
	bonds := [][]int{{0}, {0, -1}, {0, -1, -1, -2}, {-1, -2}, {-2}}
	m := New(4, "")
	for i := 0; i < m.Len(); i++ {
		site := tensor.Zeros(
			tensor.Index{Dir: tensor.In, Charges: bonds[i]},
			phys,
			tensor.Index{Dir: tensor.Out, Charges: bonds[i+1]})
		fillSite(rnd, site)
		m.SetTen(i, site)
	}
	want := denseState(m)

	m.LeftCanonicalizeTen(0)
	m.LeftCanonicalizeTen(1)
	for i := 0; i < 2; i++ {
		g := tensor.Contract(m.Ten(i).Conj(), m.Ten(i), [][2]int{{0, 0}, {1, 1}})
		checkIdentity(t, g)
	}
	checkState(t, m, want)

	m.RightCanonicalizeTen(3)
	m.RightCanonicalizeTen(2)
	for i := 2; i < 4; i++ {
		g := tensor.Contract(m.Ten(i), m.Ten(i).Conj(), [][2]int{{1, 1}, {2, 2}})
		checkIdentity(t, g)
	}
	checkState(t, m, want)
}

func TestBoundary(t *testing.T) {
	t.Parallel()
	dir, err := os.MkdirTemp("", "")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	defer os.RemoveAll(dir)

	phys := tensor.Index{Dir: tensor.Out, Charges: []int{0, 1}}
	m := DirectProduct(dir, phys, []int{0, 1, 0, 1, 0, 1})
	lb, rb, err := m.CheckAndUpdateBoundary(16)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if lb != 1 || rb != 4 {
		t.Fatalf("%d %d", lb, rb)
	}
	for i := 0; i < m.Len(); i++ {
		if _, err := os.Stat(m.TenFileName(i)); err != nil {
			t.Fatalf("%d %+v", i, err)
		}
	}

	if err := m.LoadAll(); err != nil {
		t.Fatalf("%+v", err)
	}
	wantShapes := [][]int{{1, 2, 2}, {2, 2, 4}, {4, 2, 1}, {1, 2, 4}, {4, 2, 2}, {2, 2, 1}}
	for i, ws := range wantShapes {
		if got := m.Ten(i).Shape(); !slices.Equal(got, ws) {
			t.Fatalf("%d %v %v", i, got, ws)
		}
	}
	want := make([]complex128, 64)
	want[21] = 1
	checkState(t, m, want)
}

func TestApplyOp(t *testing.T) {
	t.Parallel()
	phys := tensor.Index{Dir: tensor.Out, Charges: []int{0, 1}}
	m := DirectProduct("", phys, []int{0, 1, 0, 1})

	ntot := tensor.Zeros(phys.Inverse(), phys)
	ntot.SetAt([]int{1, 1}, 1)
	m.ApplyOp(1, ntot)
	want := make([]complex128, 16)
	want[5] = 1
	checkState(t, m, want)

	c := tensor.Zeros(phys.Inverse(), phys)
	c.SetAt([]int{1, 0}, 1)
	m.ApplyOp(3, c)
	want = make([]complex128, 16)
	want[4] = 1
	checkState(t, m, want)

	m.ApplyOp(3, c)
	checkState(t, m, make([]complex128, 16))
}

func TestDumpLoad(t *testing.T) {
	t.Parallel()
	dir, err := os.MkdirTemp("", "")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	defer os.RemoveAll(dir)

	phys := tensor.Index{Dir: tensor.Out, Charges: []int{0, 1}}
	m := DirectProduct(dir, phys, []int{0, 1, 0})
	want := denseState(m)

	if err := m.DumpAll(true); err != nil {
		t.Fatalf("%+v", err)
	}
	if err := m.LoadAll(); err != nil {
		t.Fatalf("%+v", err)
	}
	checkState(t, m, want)

	c := m.Clone(dir)
	c.ApplyOp(0, tensor.Zeros(phys.Inverse(), phys))
	checkState(t, c, make([]complex128, 8))
	checkState(t, m, want)
}

// denseState contracts all sites into the full state vector, sites being
// big-endian digits.
func denseState(m *FiniteMPS) []complex128 {
	v := []complex128{1}
	bond := 1
	for i := 0; i < m.Len(); i++ {
		ten := m.Ten(i)
		s := ten.Shape()
		rows := len(v) / bond
		nv := make([]complex128, rows*s[1]*s[2])
		for row := 0; row < rows; row++ {
			for l := 0; l < s[0]; l++ {
				for p := 0; p < s[1]; p++ {
					for r := 0; r < s[2]; r++ {
						nv[(row*s[1]+p)*s[2]+r] += v[row*bond+l] * ten.At(l, p, r)
					}
				}
			}
		}
		v, bond = nv, s[2]
	}
	return v
}

func checkState(t *testing.T, m *FiniteMPS, want []complex128) {
	t.Helper()
	got := denseState(m)
	if len(got) != len(want) {
		t.Fatalf("%d %d", len(got), len(want))
	}
	for i := range got {
		if cmplx.Abs(got[i]-want[i]) > 1e-13 {
			t.Fatalf("%d %v %v", i, got[i], want[i])
		}
	}
}

func checkIdentity(t *testing.T, g *tensor.Dense) {
	t.Helper()
	s := g.Shape()
	if s[0] != s[1] {
		t.Fatalf("%v", s)
	}
	for i := 0; i < s[0]; i++ {
		for j := 0; j < s[1]; j++ {
			want := complex128(0)
			if i == j {
				want = 1
			}
			if cmplx.Abs(g.At(i, j)-want) > 1e-13 {
				t.Fatalf("%d %d %v", i, j, g.At(i, j))
			}
		}
	}
}

func fillSite(rnd *rand.Rand, t *tensor.Dense) {
	l, p, r := t.Index(0), t.Index(1), t.Index(2)
	for i, ql := range l.Charges {
		for j, qp := range p.Charges {
			for k, qr := range r.Charges {
				if int(l.Dir)*ql+int(p.Dir)*qp+int(r.Dir)*qr != 0 {
					continue
				}
				t.SetAt([]int{i, j, k}, complex(rnd.NormFloat64(), rnd.NormFloat64()))
			}
		}
	}
}

func TestMain(m *testing.M) {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds | log.Llongfile | log.LstdFlags)
	os.Exit(m.Run())
}
