package sweep

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/fumin/vmps/comm"
	"github.com/fumin/vmps/mpo"
	"github.com/fumin/vmps/mps"
	"github.com/fumin/vmps/tensor"
)

// An EnvStore holds the left and right environments of a sweep, keeping the
// active window in memory and the rest on disk.
// A left environment of length l covers sites 0 to l-1, while a right
// environment of length l covers the last l sites.
type EnvStore struct {
	dir string
	n   int

	lenvs map[int]*tensor.Dense
	renvs map[int]*tensor.Dense
}

// NewEnvStore returns a store rooted at dir for a chain of n sites.
func NewEnvStore(dir string, n int) *EnvStore {
	return &EnvStore{
		dir:   dir,
		n:     n,
		lenvs: make(map[int]*tensor.Dense),
		renvs: make(map[int]*tensor.Dense),
	}
}

func (st *EnvStore) leftFileName(l int) string {
	return filepath.Join(st.dir, fmt.Sprintf("lenv%d.ten", l))
}

func (st *EnvStore) rightFileName(l int) string {
	return filepath.Join(st.dir, fmt.Sprintf("renv%d.ten", l))
}

// Left returns the resident left environment of length l.
func (st *EnvStore) Left(l int) *tensor.Dense {
	t, ok := st.lenvs[l]
	if !ok {
		panic(fmt.Sprintf("%d", l))
	}
	return t
}

// Right returns the resident right environment of length l.
func (st *EnvStore) Right(l int) *tensor.Dense {
	t, ok := st.renvs[l]
	if !ok {
		panic(fmt.Sprintf("%d", l))
	}
	return t
}

// SetLeft makes t the resident left environment of length l.
func (st *EnvStore) SetLeft(l int, t *tensor.Dense) {
	st.lenvs[l] = t
}

// SetRight makes t the resident right environment of length l.
func (st *EnvStore) SetRight(l int, t *tensor.Dense) {
	st.renvs[l] = t
}

// DropLeft releases the left environment of length l without writing it out.
func (st *EnvStore) DropLeft(l int) {
	delete(st.lenvs, l)
}

// DropRight releases the right environment of length l without writing it
// out.
func (st *EnvStore) DropRight(l int) {
	delete(st.renvs, l)
}

// LoadLeft makes the left environment of length l resident.
// If it is already resident nothing happens. Otherwise its file is read, and
// also removed if deleteFile is true.
func (st *EnvStore) LoadLeft(l int, deleteFile bool) error {
	if _, ok := st.lenvs[l]; ok {
		return nil
	}
	t, err := tensor.ReadFile(st.leftFileName(l))
	if err != nil {
		return errors.Wrap(err, "")
	}
	st.lenvs[l] = t
	if deleteFile {
		if err := os.Remove(st.leftFileName(l)); err != nil {
			return errors.Wrap(err, "")
		}
	}
	return nil
}

// LoadRight is the mirror of LoadLeft.
func (st *EnvStore) LoadRight(l int, deleteFile bool) error {
	if _, ok := st.renvs[l]; ok {
		return nil
	}
	t, err := tensor.ReadFile(st.rightFileName(l))
	if err != nil {
		return errors.Wrap(err, "")
	}
	st.renvs[l] = t
	if deleteFile {
		if err := os.Remove(st.rightFileName(l)); err != nil {
			return errors.Wrap(err, "")
		}
	}
	return nil
}

// DumpLeft writes the resident left environment of length l to its file,
// releasing it from memory if release is true.
func (st *EnvStore) DumpLeft(l int, release bool) error {
	if err := tensor.WriteFile(st.leftFileName(l), st.Left(l)); err != nil {
		return errors.Wrap(err, "")
	}
	if release {
		delete(st.lenvs, l)
	}
	return nil
}

// DumpRight is the mirror of DumpLeft.
func (st *EnvStore) DumpRight(l int, release bool) error {
	if err := tensor.WriteFile(st.rightFileName(l), st.Right(l)); err != nil {
		return errors.Wrap(err, "")
	}
	if release {
		delete(st.renvs, l)
	}
	return nil
}

// NeedGenerateRightEnvs reports whether any right environment file of the
// first sweep is missing. It also creates the store directory and verifies
// it is writable.
func (st *EnvStore) NeedGenerateRightEnvs(lb, rb int) (bool, error) {
	if err := os.MkdirAll(st.dir, os.ModePerm); err != nil {
		return false, errors.Wrap(err, "")
	}
	f, err := os.CreateTemp(st.dir, "")
	if err != nil {
		return false, errors.Wrap(err, "")
	}
	f.Close()
	if err := os.Remove(f.Name()); err != nil {
		return false, errors.Wrap(err, "")
	}

	for l := max(1, st.n-1-rb); l <= st.n-2-lb; l++ {
		if _, err := os.Stat(st.rightFileName(l)); err != nil {
			return true, nil
		}
	}
	return false, nil
}

// InitEnvs generates the right environment files of lengths 1 to n-lb-2 by
// growing from the right edge, distributing the contractions over the
// workers.
func (st *EnvStore) InitEnvs(c *comm.Comm, m *mps.FiniteMPS, h mpo.MPO, lb int) error {
	renv, err := baseRight(m, h)
	if err != nil {
		return errors.Wrap(err, "")
	}
	for l := 0; l <= st.n-lb-3; l++ {
		site := st.n - 1 - l
		if err := m.LoadTen(site); err != nil {
			return errors.Wrap(err, "")
		}
		a := m.Ten(site)

		c.BcastOrder(comm.InitGrowEnv)
		c.Bcast(comm.Message{Value: site})
		c.Bcast(comm.Message{Tensor: renv})
		c.Bcast(comm.Message{Tensor: a})
		renv = collectGrowRight(c, a, h[site])

		if err := tensor.WriteFile(st.rightFileName(l+1), renv); err != nil {
			return errors.Wrap(err, "")
		}
		m.Dealloc(site)
	}
	return nil
}

// UpdateBoundaryEnvs serially builds the environments that depend on the
// sweep window: the left environment at the left boundary, and the standing
// right environment used at the turn of a left pass.
func (st *EnvStore) UpdateBoundaryEnvs(m *mps.FiniteMPS, h mpo.MPO, lb, rb int) error {
	lenv, err := baseLeft(m, h)
	if err != nil {
		return errors.Wrap(err, "")
	}
	for i := 0; i < lb; i++ {
		if err := m.LoadTen(i); err != nil {
			return errors.Wrap(err, "")
		}
		lenv = growLeftSerial(lenv, m.Ten(i), h[i])
		m.Dealloc(i)
	}
	if err := tensor.WriteFile(st.leftFileName(lb), lenv); err != nil {
		return errors.Wrap(err, "")
	}

	renv, err := baseRight(m, h)
	if err != nil {
		return errors.Wrap(err, "")
	}
	for l := 0; l < st.n-rb-1; l++ {
		site := st.n - 1 - l
		if err := m.LoadTen(site); err != nil {
			return errors.Wrap(err, "")
		}
		renv = growRightSerial(renv, m.Ten(site), h[site])
		m.Dealloc(site)
	}
	if err := tensor.WriteFile(st.rightFileName(st.n-rb-1), renv); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// baseLeft returns the trivial environment left of site 0.
// Its legs are ket bond, operator bond, bra bond.
func baseLeft(m *mps.FiniteMPS, h mpo.MPO) (*tensor.Dense, error) {
	if err := m.LoadTen(0); err != nil {
		return nil, errors.Wrap(err, "")
	}
	kb := m.Ten(0).Index(0)
	t := tensor.Zeros(kb.Inverse(), h[0].Index(0).Inverse(), kb)
	t.SetAt([]int{0, 0, 0}, 1)
	return t, nil
}

// baseRight returns the trivial environment right of the last site.
func baseRight(m *mps.FiniteMPS, h mpo.MPO) (*tensor.Dense, error) {
	n := m.Len()
	if err := m.LoadTen(n - 1); err != nil {
		return nil, errors.Wrap(err, "")
	}
	kb := m.Ten(n - 1).Index(2)
	t := tensor.Zeros(kb.Inverse(), h[n-1].Index(3).Inverse(), kb)
	t.SetAt([]int{0, 0, 0}, 1)
	return t, nil
}

// growLeftSerial extends a left environment over site tensor a with operator
// w.
func growLeftSerial(lenv, a, w *tensor.Dense) *tensor.Dense {
	t := tensor.Contract(lenv, a, [][2]int{{0, 0}})
	t = tensor.Contract(t, w, [][2]int{{0, 0}, {2, 1}})
	return tensor.Contract(t, a.Conj(), [][2]int{{0, 0}, {2, 1}})
}

// growRightSerial extends a right environment over site tensor a with
// operator w.
func growRightSerial(renv, a, w *tensor.Dense) *tensor.Dense {
	t := tensor.Contract(a, renv, [][2]int{{2, 0}})
	t = tensor.Contract(t, w, [][2]int{{1, 1}, {2, 3}})
	return tensor.Contract(t, a.Conj(), [][2]int{{1, 2}, {3, 1}})
}

// collectGrowLeft assembles a grown left environment from worker slices,
// where a is the site tensor just absorbed and w its operator.
func collectGrowLeft(c *comm.Comm, a, w *tensor.Dense) *tensor.Dense {
	tasks := tasksOf(a.Index(2))
	grown := tensor.Zeros(a.Index(2), w.Index(3), a.Index(2).Inverse())
	for range tasks {
		msg := c.Recv(comm.AnySource, comm.AnyTag)
		grown.SetSlice(0, tasks[msg.Tag].Lo, msg.Tensor)
	}
	return grown
}

// collectGrowRight assembles a grown right environment from worker slices.
func collectGrowRight(c *comm.Comm, a, w *tensor.Dense) *tensor.Dense {
	tasks := tasksOf(a.Index(0))
	grown := tensor.Zeros(a.Index(0), w.Index(0), a.Index(0).Inverse())
	for range tasks {
		msg := c.Recv(comm.AnySource, comm.AnyTag)
		grown.SetSlice(0, tasks[msg.Tag].Lo, msg.Tensor)
	}
	return grown
}
