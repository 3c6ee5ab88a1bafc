package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/fumin/vmps"
	"github.com/fumin/vmps/comm"
	"github.com/fumin/vmps/lanczos"
	"github.com/fumin/vmps/measure"
	"github.com/fumin/vmps/mpo"
	"github.com/fumin/vmps/mps"
	"github.com/fumin/vmps/sweep"
	"github.com/fumin/vmps/tensor"
)

const (
	fnameDone = "done.txt"
	fnameDB   = "measurements.db"
)

var (
	runDir   = flag.String("d", filepath.Join("runs", "freefermion"), "run directory")
	model    = flag.String("model", "freefermion", "freefermion or ising")
	nSites   = flag.Int("n", 32, "number of sites")
	hopping  = flag.Float64("t", 1, "hopping amplitude of the free fermion chain")
	coupling = flag.Float64("j", 1, "Ising coupling")
	field    = flag.Float64("hfield", 1, "transverse field")
	workers  = flag.Int("workers", 3, "number of worker ranks")
	sweeps   = flag.Int("sweeps", 10, "number of sweeps")
	dmax     = flag.Int("dmax", 64, "maximum bond dimension")
	truncErr = flag.Float64("trunc", 1e-10, "largest discarded weight at a bond split")
	noise    = flag.Float64("noise", 1e-5, "subspace expansion amplitude of the early sweeps")
	lancTol  = flag.Float64("lanczos", 1e-9, "eigensolver tolerance")
	tau      = flag.Float64("tau", 0.1, "time step")
	steps    = flag.Int("steps", 0, "number of time steps, 0 disables time evolution")
	site0    = flag.Int("site0", -1, "perturbation site, defaults to the middle of the chain")
)

// A system bundles the Hamiltonian, the starting state, and the operators of
// the dynamic correlation to measure.
type system struct {
	h mpo.MPO
	m *mps.FiniteMPS

	op, inst, measureOp *tensor.Dense
}

func buildSystem(name, mpsDir string) (*system, error) {
	n := *nSites
	switch name {
	case "freefermion":
		// Half filling.
		labels := make([]int, n)
		for i := 1; i < n; i += 2 {
			labels[i] = 1
		}
		return &system{
			h:         vmps.SpinlessFermions(n, *hopping),
			m:         mps.DirectProduct(mpsDir, vmps.Fermion(), labels),
			op:        vmps.Creation(),
			inst:      vmps.Parity(),
			measureOp: vmps.Annihilation(),
		}, nil
	case "ising":
		return &system{
			h:         vmps.TransverseIsing(n, *coupling, *field),
			m:         mps.DirectProduct(mpsDir, vmps.SpinHalf(), make([]int, n)),
			op:        vmps.PauliX(),
			measureOp: vmps.PauliX(),
		}, nil
	}
	return nil, errors.Errorf("unknown model %s", name)
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds | log.Llongfile | log.LstdFlags)

	if err := mainWithErr(); err != nil {
		log.Fatalf("%+v", err)
	}
}

func mainWithErr() error {
	donePath := filepath.Join(*runDir, fnameDone)
	if _, err := os.Stat(donePath); err == nil {
		log.Printf("%s exists, nothing to do", donePath)
		return nil
	}
	if *workers < 1 {
		return errors.Errorf("%d workers", *workers)
	}
	mpsDir := filepath.Join(*runDir, "mps")
	if err := os.MkdirAll(mpsDir, os.ModePerm); err != nil {
		return errors.Wrap(err, "")
	}

	sys, err := buildSystem(*model, mpsDir)
	if err != nil {
		return errors.Wrap(err, "")
	}

	world := comm.NewWorld(*workers + 1)
	var g errgroup.Group
	for rank := 1; rank < world.Size(); rank++ {
		c := world.Comm(rank)
		g.Go(func() error {
			if err := sweep.RunVMPSWorker(c, sys.h); err != nil {
				return errors.Wrap(err, "")
			}
			if *steps <= 0 {
				return nil
			}
			return sweep.RunTDVPWorker(c, sys.h)
		})
	}

	params := sweep.SweepParams{
		Sweeps:   *sweeps,
		Dmin:     1,
		Dmax:     *dmax,
		TruncErr: *truncErr,
		Noises:   []float64{*noise, *noise / 10, 0},
		Lanczos:  lanczos.Params{Tol: *lancTol, MaxIterations: 100},
	}
	master := world.Comm(comm.MasterRank)
	energy, updates, err := sweep.RunVMPS(master, sys.m, sys.h, params, filepath.Join(*runDir, "env"))
	if err != nil {
		return errors.Wrap(err, "")
	}
	log.Printf("E0 = %.16f", energy)

	var correlations []measure.DynamicCorrelation
	if *steps > 0 {
		x0 := *site0
		if x0 < 0 {
			x0 = sys.m.Len() / 2
		}
		tparams := sweep.TDVPParams{
			Tau:       *tau,
			Steps:     *steps,
			Site0:     x0,
			Op:        sys.op,
			Inst:      sys.inst,
			MeasureOp: sys.measureOp,
			E0:        energy,
			Dmin:      1,
			Dmax:      *dmax,
			TruncErr:  *truncErr,
			Lanczos:   lanczos.Params{Tol: *lancTol, MaxIterations: 100},
		}
		correlations, err = sweep.RunTDVP(master, sys.m, sys.h, tparams, filepath.Join(*runDir, "phi"), filepath.Join(*runDir, "phienv"))
		if err != nil {
			return errors.Wrap(err, "")
		}
	}
	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "")
	}

	rec, err := measure.NewRecorder(filepath.Join(*runDir, fnameDB))
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer rec.Close()
	for _, u := range updates {
		if err := rec.AddSiteUpdate(u.Sweep, u.Site, u.Energy, u.TruncErr, u.D, u.Iters, u.Entropy); err != nil {
			return errors.Wrap(err, "")
		}
	}
	for _, c := range correlations {
		if err := rec.AddDynamicCorrelation(c); err != nil {
			return errors.Wrap(err, "")
		}
	}
	if err := rec.WriteCSV(*runDir); err != nil {
		return errors.Wrap(err, "")
	}

	if err := os.WriteFile(donePath, nil, 0644); err != nil {
		return errors.Wrap(err, "")
	}

	fmt.Printf("model,n,workers,sweeps,dmax,e0\n")
	fmt.Printf("%s,%d,%d,%d,%d,%.16f\n", *model, *nSites, *workers, *sweeps, *dmax, energy)
	return nil
}
