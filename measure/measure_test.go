package measure

import (
	"flag"
	"log"
	"math/cmplx"
	"os"
	"testing"

	"github.com/fumin/vmps"
	"github.com/fumin/vmps/mps"
	"github.com/fumin/vmps/tensor"
)

func TestOneSite(t *testing.T) {
	t.Parallel()
	dir, err := os.MkdirTemp("", "")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	defer os.RemoveAll(dir)

	m := mps.DirectProduct(dir, vmps.Fermion(), []int{0, 1, 0, 1, 0, 1})
	// The expectations must not depend on the scale of the state.
	m.Ten(2).Scale(3)
	if err := m.DumpTen(0, true); err != nil {
		t.Fatalf("%+v", err)
	}

	got, err := OneSite(m, vmps.Number())
	if err != nil {
		t.Fatalf("%+v", err)
	}
	want := []complex128{0, 1, 0, 1, 0, 1}
	for x := range want {
		if cmplx.Abs(got[x]-want[x]) > 1e-13 {
			t.Fatalf("%d %v, expected %v", x, got[x], want[x])
		}
	}

	// Sites loaded on demand are released again.
	if m.Resident(0) {
		t.Fatalf("site 0 should be on disk only")
	}
	if !m.Resident(1) {
		t.Fatalf("site 1 was resident before")
	}
}

func TestTwoSiteCorr(t *testing.T) {
	t.Parallel()
	m := mps.DirectProduct("", vmps.Fermion(), []int{0, 1, 0, 1, 0, 1})
	pairs := [][2]int{{0, 1}, {0, 2}, {0, 5}, {1, 2}, {1, 3}, {4, 5}}
	got, err := TwoSiteCorr(m, [2]*tensor.Dense{vmps.Number(), vmps.Number()}, nil, pairs)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	want := []complex128{0, 0, 0, 0, 1, 0}
	for k := range want {
		if cmplx.Abs(got[k]-want[k]) > 1e-13 {
			t.Fatalf("%v %v, expected %v", pairs[k], got[k], want[k])
		}
	}

	// Hopping moves weight between the two branches of an entangled pair.
	alpha, beta := complex(0.6, 0), complex(0, 0.8)
	e := entangledPair(alpha, beta)
	got, err = TwoSiteCorr(e, [2]*tensor.Dense{vmps.Creation(), vmps.Annihilation()}, nil, [][2]int{{0, 1}})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if hop := cmplx.Conj(beta) * alpha; cmplx.Abs(got[0]-hop) > 1e-13 {
		t.Fatalf("%v, expected %v", got[0], hop)
	}
}

func TestOverlap(t *testing.T) {
	t.Parallel()
	a := mps.DirectProduct("", vmps.Fermion(), []int{0, 1, 0, 1, 0, 1})
	if v, err := Overlap(a, a, nil, nil, 0); err != nil || v != 1 {
		t.Fatalf("%v %+v", v, err)
	}

	// b is the fermion created at site 2, string included.
	b := a.Clone("")
	b.ApplyOp(0, vmps.Parity())
	b.ApplyOp(1, vmps.Parity())
	b.ApplyOp(2, vmps.Creation())

	for x := 0; x < a.Len(); x++ {
		v, err := Overlap(a, b, vmps.Annihilation(), vmps.Parity(), x)
		if err != nil {
			t.Fatalf("%+v", err)
		}
		want := complex128(0)
		if x == 2 {
			want = 1
		}
		if cmplx.Abs(v-want) > 1e-13 {
			t.Fatalf("%d %v, expected %v", x, v, want)
		}
	}
}

// entangledPair returns alpha |01> + beta |10> with bond dimension 2.
func entangledPair(alpha, beta complex128) *mps.FiniteMPS {
	m := mps.New(2, "")
	phys := vmps.Fermion()
	bond := tensor.NewIndex(tensor.Out, []int{0, -1})

	t0 := tensor.Zeros(tensor.Trivial(tensor.In), phys, bond)
	t0.SetAt([]int{0, 0, 0}, alpha)
	t0.SetAt([]int{0, 1, 1}, beta)
	m.SetTen(0, t0)

	t1 := tensor.Zeros(bond.Inverse(), phys, tensor.NewIndex(tensor.Out, []int{-1}))
	t1.SetAt([]int{0, 1, 0}, 1)
	t1.SetAt([]int{1, 0, 0}, 1)
	m.SetTen(1, t1)
	return m
}

func TestMain(m *testing.M) {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds | log.Llongfile | log.LstdFlags)
	os.Exit(m.Run())
}
