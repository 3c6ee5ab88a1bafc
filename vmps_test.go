package vmps

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/cmplx"
	"os"
	"testing"

	"github.com/fumin/vmps/tensor"
)

func TestOperatorDivs(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		op   *tensor.Dense
		div  int
	}{
		{name: "annihilation", op: Annihilation(), div: -1},
		{name: "creation", op: Creation(), div: 1},
		{name: "number", op: Number(), div: 0},
		{name: "parity", op: Parity(), div: 0},
		{name: "pauliX", op: PauliX(), div: 0},
		{name: "pauliZ", op: PauliZ(), div: 0},
	}
	for _, test := range tests {
		if d := test.op.Div(); d != test.div {
			t.Fatalf("%s %d, expected %d", test.name, d, test.div)
		}
	}
}

func TestEigenvaluesIsing(t *testing.T) {
	t.Parallel()
	vals := Eigenvalues(TransverseIsing(8, 1, 1))

	// Values are from https://juliaphysics.github.io/PhysicsTutorials.jl/tutorials/general/quantum_ising/quantum_ising.html
	low := []float64{-9.837951447459426, -9.46887800960621, -8.7432994871710, -8.374226049317867, -8.054998024353266, -7.685924586500063, -7.427412901942416, -7.058339464089192, -6.960346064064927, -6.881915778576785}
	for i, v := range low {
		if math.Abs(vals[i]-v) > 1e-6 {
			t.Fatalf("%d %f %f", i, vals[i], v)
		}
	}
	high := []float64{6.960346064064934, 7.0583394640891886, 7.427412901942393, 7.685924586500062, 8.054998024353269, 8.374226049317883, 8.74329948717109, 9.468878009606211, 9.83795144745942}
	for i, v := range high {
		if math.Abs(vals[len(vals)-9+i]-v) > 1e-6 {
			t.Fatalf("%d %f %f", i, vals[len(vals)-9+i], v)
		}
	}
}

func TestFreeFermionEnergy(t *testing.T) {
	t.Parallel()
	tests := []struct {
		n int
		t float64
	}{
		{n: 2, t: 1},
		{n: 3, t: 1},
		{n: 4, t: 0.7},
		{n: 6, t: 1},
		{n: 7, t: 1.3},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%d %f", test.n, test.t), func(t *testing.T) {
			t.Parallel()
			vals := Eigenvalues(SpinlessFermions(test.n, test.t))
			want := FreeFermionEnergy(test.n, test.t)
			if math.Abs(vals[0]-want) > 1e-12 {
				t.Fatalf("%.15f, expected %.15f", vals[0], want)
			}
		})
	}
}

func TestFreeFermionCorrelation(t *testing.T) {
	t.Parallel()
	// For two sites the only unoccupied mode has energy 1 and amplitudes
	// (1/sqrt(2), -1/sqrt(2)).
	for _, tm := range []float64{0, 0.3, 1.7} {
		phase := cmplx.Exp(complex(0, -tm))
		if c := FreeFermionCorrelation(2, 1, 0, 0, tm); cmplx.Abs(c-0.5*phase) > 1e-13 {
			t.Fatalf("%f %v", tm, c)
		}
		if c := FreeFermionCorrelation(2, 1, 0, 1, tm); cmplx.Abs(c+0.5*phase) > 1e-13 {
			t.Fatalf("%f %v", tm, c)
		}
	}

	// At time zero the correlation is the anticommutator identity
	// delta_{x0,x1} minus the static correlation of the Fermi sea.
	const n = 6
	for x0 := 0; x0 < n; x0++ {
		for x1 := 0; x1 < n; x1++ {
			var sea float64
			for k := 1; k <= n; k++ {
				if modeEnergy(n, 1, k) < 0 {
					sea += mode(n, k, x0) * mode(n, k, x1)
				}
			}
			want := -sea
			if x0 == x1 {
				want++
			}
			if c := FreeFermionCorrelation(n, 1, x0, x1, 0); cmplx.Abs(c-complex(want, 0)) > 1e-13 {
				t.Fatalf("%d %d %v %f", x0, x1, c, want)
			}
		}
	}
}

func ExampleFreeFermionEnergy() {
	fmt.Printf("%.10f\n", FreeFermionEnergy(6, 1))
	// Output:
	// -3.4939592074
}

func TestMain(m *testing.M) {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds | log.Llongfile | log.LstdFlags)
	os.Exit(m.Run())
}
