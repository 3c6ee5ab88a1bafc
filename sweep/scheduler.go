package sweep

import (
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/fumin/vmps/comm"
	"github.com/fumin/vmps/tensor"
)

// A scheduler is one strategy for partitioning matvec tasks over workers.
type scheduler interface {
	// order announces the strategy to the workers.
	order() comm.Order
	// collect gathers one result tensor per task into out.
	collect(c *comm.Comm, out []*tensor.Dense)
}

// A dynamicScheduler hands out the remaining tasks as workers report
// results. A worker starts with the task of its own rank, and is retired
// with a sentinel of twice the task count.
type dynamicScheduler struct{}

func (dynamicScheduler) order() comm.Order { return comm.LanczosMatVecDynamic }

func (dynamicScheduler) collect(c *comm.Comm, out []*tensor.Dense) {
	ntasks := len(out)
	controllers := min(c.Size()-1, ntasks)
	next := controllers
	var mu sync.Mutex
	var eg errgroup.Group
	for i := 0; i < controllers; i++ {
		worker := i + 1
		eg.Go(func() error {
			for {
				msg := c.Recv(worker, comm.AnyTag)
				out[msg.Tag] = msg.Tensor

				mu.Lock()
				tid := next
				next++
				mu.Unlock()
				if tid >= ntasks {
					tid = 2 * ntasks
				}
				c.Send(worker, comm.Message{Tag: 2 * worker, Value: tid})
				if tid == 2*ntasks {
					return nil
				}
			}
		})
	}
	eg.Wait()
}

// A staticScheduler lets each worker replay its known share of the tasks,
// collecting results in arrival order.
type staticScheduler struct{}

func (staticScheduler) order() comm.Order { return comm.LanczosMatVecStatic }

func (staticScheduler) collect(c *comm.Comm, out []*tensor.Dense) {
	for range out {
		msg := c.Recv(comm.AnySource, comm.AnyTag)
		out[msg.Tag] = msg.Tensor
	}
}

// A matVec applies the distributed two site effective Hamiltonian.
// Tasks are the charge runs of the bra leg of the left environment.
// The first application discovers a balanced assignment of tasks to workers
// dynamically, which later applications replay without coordination.
type matVec struct {
	c     *comm.Comm
	tasks []tensor.Run
	calls int
}

func newMatVec(c *comm.Comm, lenv *tensor.Dense) *matVec {
	return &matVec{c: c, tasks: tasksOf(lenv.Index(2))}
}

// scheduler selects the strategy of the next application.
// Discovery pays off only when there are more tasks than workers.
func (mv *matVec) scheduler() scheduler {
	if mv.calls == 0 && len(mv.tasks) > mv.c.Size()-1 {
		return dynamicScheduler{}
	}
	return staticScheduler{}
}

func (mv *matVec) apply(v *tensor.Dense) *tensor.Dense {
	sched := mv.scheduler()
	mv.calls++

	mv.c.BcastOrder(sched.order())
	mv.c.Bcast(comm.Message{Tensor: v})

	out := make([]*tensor.Dense, len(mv.tasks))
	sched.collect(mv.c, out)

	hv := tensor.Zeros(v.Indexes()...)
	for tid, part := range out {
		hv.SetSlice(0, mv.tasks[tid].Lo, part)
	}
	return hv
}

// distTruncSVD factorizes t over the workers, with each charge block
// factorized by one worker.
func distTruncSVD(c *comm.Comm, t *tensor.Dense, ldims, ldiv int, truncErr float64, dmin, dmax int) (u, s, vt *tensor.Dense, actualErr float64, d int) {
	c.BcastOrder(comm.SVD)
	c.Bcast(comm.Message{Value: ldims, Tensor: t})

	blocks := tensor.Blocks(t, ldims)
	us := make([]*tensor.Dense, len(blocks))
	ss := make([]*tensor.Dense, len(blocks))
	vs := make([]*tensor.Dense, len(blocks))
	for b := range blocks {
		us[b] = c.Recv(comm.AnySource, 3*b).Tensor
		ss[b] = c.Recv(comm.AnySource, 3*b+1).Tensor
		vs[b] = c.Recv(comm.AnySource, 3*b+2).Tensor
	}
	return tensor.AssembleSVD(t, ldims, ldiv, blocks, us, ss, vs, truncErr, dmin, dmax)
}
