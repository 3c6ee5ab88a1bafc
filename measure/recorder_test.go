package measure

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestRecorder(t *testing.T) {
	t.Parallel()
	dir, err := os.MkdirTemp("", "")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	defer os.RemoveAll(dir)

	r, err := NewRecorder(filepath.Join(dir, "measurements.db"))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	defer r.Close()

	if err := r.AddSiteUpdate(0, 1, -1.5, 1e-08, 4, 10, 0.25); err != nil {
		t.Fatalf("%+v", err)
	}
	if err := r.AddSiteUpdate(0, 2, -2.5, 0, 8, 12, 0.5); err != nil {
		t.Fatalf("%+v", err)
	}
	cs := []DynamicCorrelation{
		{Sites: [2]int{2, 3}, Times: [2]float64{0, 0.5}, Avg: complex(0.25, -0.125)},
		{Sites: [2]int{2, 0}, Times: [2]float64{0, 0.5}, Avg: complex(0.5, 0)},
		{Sites: [2]int{2, 1}, Times: [2]float64{0, 0.25}, Avg: complex(1, 0)},
	}
	for _, c := range cs {
		if err := r.AddDynamicCorrelation(c); err != nil {
			t.Fatalf("%+v", err)
		}
	}

	got, err := r.DynamicCorrelations()
	if err != nil {
		t.Fatalf("%+v", err)
	}
	want := []DynamicCorrelation{cs[2], cs[1], cs[0]}
	if !slices.Equal(got, want) {
		t.Fatalf("%+v, expected %+v", got, want)
	}

	if err := r.WriteCSV(dir); err != nil {
		t.Fatalf("%+v", err)
	}
	b, err := os.ReadFile(filepath.Join(dir, "dynamic_correlation.csv"))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	wantCSV := `site0,site1,t0,t1,avg_re,avg_im
2,1,0,0.25,1,0
2,0,0,0.5,0.5,0
2,3,0,0.5,0.25,-0.125
`
	if string(b) != wantCSV {
		t.Fatalf("%s", b)
	}

	b, err = os.ReadFile(filepath.Join(dir, "site_update.csv"))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	wantCSV = `sweep,site,energy,trunc_err,d,iters,entropy
0,1,-1.5,1e-08,4,10,0.25
0,2,-2.5,0,8,12,0.5
`
	if string(b) != wantCSV {
		t.Fatalf("%s", b)
	}
}
