package sweep

import (
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/fumin/vmps/comm"
	"github.com/fumin/vmps/mpo"
	"github.com/fumin/vmps/tensor"
)

// A worker executes orders broadcast by the master.
// It keeps the window state of the current eigensolve, since later orders
// such as subspace expansion refer to the same window.
type worker struct {
	c    *comm.Comm
	h    mpo.MPO
	tdvp bool

	site    int
	lenv    *tensor.Dense
	renv    *tensor.Dense
	myTasks []int
}

// RunVMPSWorker serves a ground state search until the master broadcasts
// ProgramFinal. h must equal the Hamiltonian on the master.
func RunVMPSWorker(c *comm.Comm, h mpo.MPO) error {
	return (&worker{c: c, h: h}).run()
}

// RunTDVPWorker serves a time evolution until the master broadcasts
// ProgramFinal. Subspace expansion orders are invalid during time evolution.
func RunTDVPWorker(c *comm.Comm, h mpo.MPO) error {
	return (&worker{c: c, h: h, tdvp: true}).run()
}

func (w *worker) run() error {
	for {
		switch o := w.c.RecvOrder(); o {
		case comm.ProgramStart:
			w.c.Send(comm.MasterRank, comm.Message{Tag: w.c.Rank(), Value: w.c.Rank()})
		case comm.InitGrowEnv, comm.GrowingRightEnv:
			w.growRight()
		case comm.GrowingLeftEnv:
			w.growLeft()
		case comm.Lanczos:
			w.lanczos()
		case comm.SVD:
			w.svd()
		case comm.ContractForRightMovingExpansion:
			if w.tdvp {
				panic(fmt.Sprintf("%d %v", w.c.Rank(), o))
			}
			w.expandRight()
		case comm.ContractForLeftMovingExpansion:
			if w.tdvp {
				panic(fmt.Sprintf("%d %v", w.c.Rank(), o))
			}
			w.expandLeft()
		case comm.ProgramFinal:
			return nil
		case comm.LanczosMatVecDynamic, comm.LanczosMatVecStatic, comm.LanczosFinish:
			panic(fmt.Sprintf("%d %v", w.c.Rank(), o))
		default:
			log.Printf("rank %d doesn't understand the order %v", w.c.Rank(), o)
		}
	}
}

// roundRobin returns this rank's share of a task count.
func (w *worker) roundRobin(ntasks int) []int {
	tids := []int{}
	for tid := w.c.Rank() - 1; tid < ntasks; tid += w.c.Size() - 1 {
		tids = append(tids, tid)
	}
	return tids
}

// forkJoin runs f over the given tasks in parallel.
// Tasks are charge disjoint, so the only synchronization is the final join.
func forkJoin(tids []int, f func(tid int)) {
	var eg errgroup.Group
	for _, tid := range tids {
		eg.Go(func() error {
			f(tid)
			return nil
		})
	}
	eg.Wait()
}

// lanczos serves the matrix vector products of one eigensolve.
// The first product may assign tasks dynamically, and the assignment is
// replayed for all following products.
func (w *worker) lanczos() {
	w.site = w.c.RecvBcast().Value
	w.lenv = w.c.RecvBcast().Tensor
	w.renv = w.c.RecvBcast().Tensor
	w.myTasks = nil
	for {
		switch o := w.c.RecvOrder(); o {
		case comm.LanczosMatVecDynamic:
			w.matVecDynamic()
		case comm.LanczosMatVecStatic:
			w.matVecStatic()
		case comm.LanczosFinish:
			return
		default:
			panic(fmt.Sprintf("%d %v", w.c.Rank(), o))
		}
	}
}

func (w *worker) matVecDynamic() {
	v := w.c.RecvBcast().Tensor
	tasks := tasksOf(w.lenv.Index(2))
	w.myTasks = nil
	tid := w.c.Rank() - 1
	for tid < len(tasks) {
		hv := w.applySlice(v, tasks[tid])
		w.myTasks = append(w.myTasks, tid)
		w.c.Send(comm.MasterRank, comm.Message{Tag: tid, Tensor: hv})
		tid = w.c.Recv(comm.MasterRank, 2*w.c.Rank()).Value
	}
}

func (w *worker) matVecStatic() {
	v := w.c.RecvBcast().Tensor
	tasks := tasksOf(w.lenv.Index(2))
	tids := w.myTasks
	if tids == nil {
		tids = w.roundRobin(len(tasks))
	}
	forkJoin(tids, func(tid int) {
		w.c.Send(comm.MasterRank, comm.Message{Tag: tid, Tensor: w.applySlice(v, tasks[tid])})
	})
}

// applySlice applies the two site effective Hamiltonian restricted to one
// charge run of the bra leg of the left environment.
func (w *worker) applySlice(v *tensor.Dense, r tensor.Run) *tensor.Dense {
	t := tensor.Contract(w.lenv.Slice(2, r.Lo, r.Hi), v, [][2]int{{0, 0}})
	t = tensor.Contract(t, w.h[w.site], [][2]int{{0, 0}, {2, 1}})
	t = tensor.Contract(t, w.h[w.site+1], [][2]int{{1, 1}, {4, 0}})
	return tensor.Contract(t, w.renv, [][2]int{{1, 0}, {4, 1}})
}

// svd factorizes the charge blocks assigned to this rank by round robin.
func (w *worker) svd() {
	msg := w.c.RecvBcast()
	ldims, t := msg.Value, msg.Tensor
	blocks := tensor.Blocks(t, ldims)
	forkJoin(w.roundRobin(len(blocks)), func(b int) {
		u, s, v := tensor.FactorBlock(t, ldims, blocks[b])
		w.c.Send(comm.MasterRank, comm.Message{Tag: 3 * b, Tensor: u})
		w.c.Send(comm.MasterRank, comm.Message{Tag: 3*b + 1, Tensor: s})
		w.c.Send(comm.MasterRank, comm.Message{Tag: 3*b + 2, Tensor: v})
	})
}

// growLeft absorbs a site into a left environment, partitioned over the
// charge runs of the new ket leg.
func (w *worker) growLeft() {
	site := w.c.RecvBcast().Value
	lenv := w.c.RecvBcast().Tensor
	a := w.c.RecvBcast().Tensor
	dag := a.Conj()
	tasks := tasksOf(a.Index(2))
	forkJoin(w.roundRobin(len(tasks)), func(tid int) {
		r := tasks[tid]
		t := tensor.Contract(lenv, a.Slice(2, r.Lo, r.Hi), [][2]int{{0, 0}})
		t = tensor.Contract(t, w.h[site], [][2]int{{0, 0}, {2, 1}})
		t = tensor.Contract(t, dag, [][2]int{{0, 0}, {2, 1}})
		w.c.Send(comm.MasterRank, comm.Message{Tag: tid, Tensor: t})
	})
}

// growRight is the mirror of growLeft.
func (w *worker) growRight() {
	site := w.c.RecvBcast().Value
	renv := w.c.RecvBcast().Tensor
	a := w.c.RecvBcast().Tensor
	dag := a.Conj()
	tasks := tasksOf(a.Index(0))
	forkJoin(w.roundRobin(len(tasks)), func(tid int) {
		r := tasks[tid]
		t := tensor.Contract(a.Slice(0, r.Lo, r.Hi), renv, [][2]int{{2, 0}})
		t = tensor.Contract(t, w.h[site], [][2]int{{1, 1}, {2, 3}})
		t = tensor.Contract(t, dag, [][2]int{{1, 2}, {3, 1}})
		w.c.Send(comm.MasterRank, comm.Message{Tag: tid, Tensor: t})
	})
}

// expandRight computes the right moving expansion term over the charge runs
// of the bra leg of the left environment.
func (w *worker) expandRight() {
	theta := w.c.RecvBcast().Tensor
	tasks := tasksOf(w.lenv.Index(2))
	forkJoin(w.roundRobin(len(tasks)), func(tid int) {
		r := tasks[tid]
		t := tensor.Contract(w.lenv.Slice(2, r.Lo, r.Hi), theta, [][2]int{{0, 0}})
		t = tensor.Contract(t, w.h[w.site], [][2]int{{0, 0}, {2, 1}})
		t = tensor.Contract(t, w.h[w.site+1], [][2]int{{1, 1}, {4, 0}})
		p := t.Transpose(0, 2, 3, 1, 4).Fuse(3)
		w.c.Send(comm.MasterRank, comm.Message{Tag: tid, Tensor: p})
	})
}

// expandLeft computes the left moving expansion term over the charge runs of
// the bra leg of the right environment.
func (w *worker) expandLeft() {
	theta := w.c.RecvBcast().Tensor
	tasks := tasksOf(w.renv.Index(2))
	forkJoin(w.roundRobin(len(tasks)), func(tid int) {
		r := tasks[tid]
		t := tensor.Contract(theta, w.renv.Slice(2, r.Lo, r.Hi), [][2]int{{3, 0}})
		t = tensor.Contract(t, w.h[w.site+1], [][2]int{{2, 1}, {3, 3}})
		t = tensor.Contract(t, w.h[w.site], [][2]int{{1, 1}, {3, 3}})
		p := t.Transpose(0, 3, 4, 2, 1).Fuse(0)
		w.c.Send(comm.MasterRank, comm.Message{Tag: tid, Tensor: p})
	})
}
