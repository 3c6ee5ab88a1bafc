package tensor

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"
)

func TestReadWriteFile(t *testing.T) {
	t.Parallel()
	dir, err := os.MkdirTemp("", "")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	defer os.RemoveAll(dir)

	rnd := rand.New(rand.NewSource(25))
	l := Index{Dir: In, Charges: []int{0, 1, 1, 2}}
	p := Index{Dir: Out, Charges: []int{0, 1}}
	r := Index{Dir: Out, Charges: []int{-1, 0, 1}}
	a := randBlockTensor(rnd, 0, l, p, r)

	fpath := filepath.Join(dir, "a.ten")
	if err := WriteFile(fpath, a); err != nil {
		t.Fatalf("%+v", err)
	}
	b, err := ReadFile(fpath)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if err := equalTensor(b, a, 0); err != nil {
		t.Fatalf("%+v", err)
	}
}

func TestReadBadMagic(t *testing.T) {
	t.Parallel()
	dir, err := os.MkdirTemp("", "")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	defer os.RemoveAll(dir)

	fpath := filepath.Join(dir, "bad.ten")
	if err := os.WriteFile(fpath, []byte("not a tensor"), 0644); err != nil {
		t.Fatalf("%+v", err)
	}
	if _, err := ReadFile(fpath); err == nil {
		t.Fatalf("expected error")
	}
}
