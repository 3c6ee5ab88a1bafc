package sweep

import (
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/fumin/vmps"
	"github.com/fumin/vmps/comm"
)

func TestWorkerOrders(t *testing.T) {
	t.Parallel()
	h := vmps.SpinlessFermions(2, 1)
	world := comm.NewWorld(2)

	var g errgroup.Group
	g.Go(func() error { return RunVMPSWorker(world.Comm(1), h) })

	master := world.Comm(comm.MasterRank)
	master.BcastOrder(comm.ProgramStart)
	if m := master.Recv(1, 1); m.Value != 1 {
		t.Fatalf("%+v", m)
	}
	// An unknown order is logged and skipped.
	master.BcastOrder(comm.Order(99))
	master.BcastOrder(comm.ProgramFinal)
	if err := g.Wait(); err != nil {
		t.Fatalf("%+v", err)
	}
}

func TestTDVPWorkerExpansion(t *testing.T) {
	t.Parallel()
	h := vmps.SpinlessFermions(2, 1)
	world := comm.NewWorld(2)

	done := make(chan any)
	go func() {
		defer func() { done <- recover() }()
		RunTDVPWorker(world.Comm(1), h)
	}()

	master := world.Comm(comm.MasterRank)
	master.BcastOrder(comm.ProgramStart)
	master.Recv(1, 1)
	// Subspace expansion has no place in time evolution.
	master.BcastOrder(comm.ContractForRightMovingExpansion)
	if r := <-done; r == nil {
		t.Fatalf("expected panic")
	}
}
