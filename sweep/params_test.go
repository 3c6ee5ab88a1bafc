package sweep

import "testing"

func TestNoise(t *testing.T) {
	t.Parallel()
	p := SweepParams{Noises: []float64{1e-4, 1e-5, 0}}
	for sweep, want := range []float64{1e-4, 1e-5, 0, 0, 0} {
		if got := p.noise(sweep); got != want {
			t.Fatalf("%d: %v, expected %v", sweep, got, want)
		}
	}
	if got := (SweepParams{}).noise(3); got != 0 {
		t.Fatalf("%v", got)
	}
}
