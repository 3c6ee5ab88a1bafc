package sweep

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/fumin/vmps/tensor"
)

func TestEnvStore(t *testing.T) {
	t.Parallel()
	dir, err := os.MkdirTemp("", "")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	defer os.RemoveAll(dir)

	st := NewEnvStore(filepath.Join(dir, "env"), 6)
	need, err := st.NeedGenerateRightEnvs(1, 4)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if !need {
		t.Fatalf("no right environment files exist yet")
	}

	rnd := rand.New(rand.NewSource(25))
	a := randTensor(rnd, tensor.Flat(tensor.In, 2), tensor.Flat(tensor.In, 3), tensor.Flat(tensor.Out, 2))
	for l := 1; l <= 3; l++ {
		st.SetRight(l, a)
		if err := st.DumpRight(l, true); err != nil {
			t.Fatalf("%+v", err)
		}
	}
	need, err = st.NeedGenerateRightEnvs(1, 4)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if need {
		t.Fatalf("all right environment files exist")
	}

	// A dump without release keeps the environment resident.
	st.SetLeft(2, a)
	if err := st.DumpLeft(2, false); err != nil {
		t.Fatalf("%+v", err)
	}
	if _, err := os.Stat(st.leftFileName(2)); err != nil {
		t.Fatalf("%+v", err)
	}
	if got := st.Left(2).At(1, 2, 0); got != a.At(1, 2, 0) {
		t.Fatalf("%v %v", got, a.At(1, 2, 0))
	}

	// Loading with deleteFile consumes the file.
	st.DropLeft(2)
	if err := st.LoadLeft(2, true); err != nil {
		t.Fatalf("%+v", err)
	}
	if _, err := os.Stat(st.leftFileName(2)); !os.IsNotExist(err) {
		t.Fatalf("%v", err)
	}
	if got := st.Left(2).At(1, 2, 0); got != a.At(1, 2, 0) {
		t.Fatalf("%v %v", got, a.At(1, 2, 0))
	}

	// A dropped environment that was never dumped cannot be loaded back.
	st.SetLeft(3, a)
	st.DropLeft(3)
	if err := st.LoadLeft(3, false); err == nil {
		t.Fatalf("expected a missing file error")
	}
}
