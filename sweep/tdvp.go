package sweep

import (
	"fmt"
	"log"
	"math/cmplx"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/fumin/vmps/comm"
	"github.com/fumin/vmps/lanczos"
	"github.com/fumin/vmps/measure"
	"github.com/fumin/vmps/mpo"
	"github.com/fumin/vmps/mps"
	"github.com/fumin/vmps/tensor"
)

// RunTDVP evolves the perturbed state Op(Site0)|ground> in real time and
// measures its overlap with MeasureOp(x)|ground> at every site x after every
// step. Every worker rank must be running RunTDVPWorker with the same
// Hamiltonian.
// The perturbed state lives under phiDir and its environments under envDir,
// both of which are regenerated from scratch.
func RunTDVP(c *comm.Comm, ground *mps.FiniteMPS, h mpo.MPO, params TDVPParams, phiDir, envDir string) ([]measure.DynamicCorrelation, error) {
	if len(h) != ground.Len() {
		panic(fmt.Sprintf("%d %d", len(h), ground.Len()))
	}
	c.BcastOrder(comm.ProgramStart)
	for i := 1; i < c.Size(); i++ {
		msg := c.Recv(comm.AnySource, comm.AnyTag)
		log.Printf("worker %d ready", msg.Value)
	}

	if err := ground.LoadAll(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	if err := os.MkdirAll(phiDir, os.ModePerm); err != nil {
		return nil, errors.Wrap(err, "")
	}
	phi := ground.Clone(phiDir)
	for i := 0; i < ground.Len(); i++ {
		ground.Dealloc(i)
	}
	for j := 0; j < params.Site0; j++ {
		if params.Inst != nil {
			phi.ApplyOp(j, params.Inst)
		}
	}
	phi.ApplyOp(params.Site0, params.Op)
	if err := phi.DumpAll(true); err != nil {
		return nil, errors.Wrap(err, "")
	}

	lb, rb, err := phi.CheckAndUpdateBoundary(params.Dmax)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	store := NewEnvStore(envDir, phi.Len())
	// A freshly perturbed state invalidates any leftover environment files.
	if _, err := store.NeedGenerateRightEnvs(lb, rb); err != nil {
		return nil, errors.Wrap(err, "")
	}
	if err := store.InitEnvs(c, phi, h, lb); err != nil {
		return nil, errors.Wrap(err, "")
	}
	if err := store.UpdateBoundaryEnvs(phi, h, lb, rb); err != nil {
		return nil, errors.Wrap(err, "")
	}

	mt := &master{c: c, m: phi, h: h, store: store, lb: lb, rb: rb}
	correlations := make([]measure.DynamicCorrelation, 0)
	record := func(t float64) error {
		phase := cmplx.Exp(complex(0, params.E0*t))
		for x := 0; x < phi.Len(); x++ {
			v, err := measure.Overlap(ground, phi, params.MeasureOp, params.Inst, x)
			if err != nil {
				return errors.Wrap(err, "")
			}
			correlations = append(correlations, measure.DynamicCorrelation{
				Sites: [2]int{params.Site0, x},
				Times: [2]float64{0, t},
				Avg:   v * phase,
			})
		}
		return nil
	}

	if err := record(0); err != nil {
		return nil, err
	}
	for step := 1; step <= params.Steps; step++ {
		start := time.Now()
		if err := mt.tdvpSweep(params); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("%d", step))
		}
		t := float64(step) * params.Tau
		if err := record(t); err != nil {
			return nil, err
		}
		log.Printf("Step %4d t = %8.4f TotT = %8.2f", step, t, time.Since(start).Seconds())
	}

	if err := phi.DumpTen(mt.lb, true); err != nil {
		return nil, errors.Wrap(err, "")
	}
	if err := phi.DumpTen(mt.lb+1, true); err != nil {
		return nil, errors.Wrap(err, "")
	}
	c.BcastOrder(comm.ProgramFinal)
	return correlations, nil
}

// tdvpSweep advances the state by one time step, evolving each pair by half
// a step on the way right and half a step on the way back.
func (mt *master) tdvpSweep(params TDVPParams) error {
	for i := mt.lb; i <= mt.rb-1; i++ {
		if err := mt.tdvpRight(i, params); err != nil {
			return errors.Wrap(err, fmt.Sprintf("%d", i))
		}
	}
	for i := mt.rb - 1; i >= mt.lb; i-- {
		if err := mt.tdvpLeft(i, params); err != nil {
			return errors.Wrap(err, fmt.Sprintf("%d", i))
		}
	}
	return nil
}

// tdvpRight evolves the pair (i, i+1) forward by half a step and, except at
// the turn, the new center site backward by the same amount.
func (mt *master) tdvpRight(i int, params TDVPParams) error {
	n := mt.m.Len()
	if err := mt.m.LoadTen(i); err != nil {
		return errors.Wrap(err, "")
	}
	if err := mt.m.LoadTen(i + 1); err != nil {
		return errors.Wrap(err, "")
	}
	if i == mt.lb {
		if err := mt.store.LoadLeft(i, false); err != nil {
			return errors.Wrap(err, "")
		}
	}
	if err := mt.store.LoadRight(n-i-2, i != mt.rb-1); err != nil {
		return errors.Wrap(err, "")
	}
	lenv, renv := mt.store.Left(i), mt.store.Right(n-i-2)
	// Panics before any broadcast if the environments do not match the pair.
	newStencil(lenv, renv, mt.h[i], mt.h[i+1])

	theta := tensor.Contract(mt.m.Ten(i), mt.m.Ten(i+1), [][2]int{{2, 0}})
	res, err := mt.evolve(i, theta, lenv, renv, params.Tau/2, params.Lanczos)
	if err != nil {
		return errors.Wrap(err, "")
	}

	u, s, vt, _, _ := distTruncSVD(mt.c, res.Vector, 2, 0, params.TruncErr, params.Dmin, params.Dmax)
	mt.m.SetTen(i, u)
	center := tensor.Contract(s, vt, [][2]int{{1, 0}})
	mt.m.SetTen(i+1, center)
	if i == mt.rb-1 {
		return nil
	}

	grown := mt.growLeftEnv(i)
	mt.store.SetLeft(i+1, grown)
	st := newStencil(grown, renv, mt.h[i+1])
	back, err := lanczos.Expmv(st.applyOneSite, center, -params.Tau/2, params.Lanczos)
	if err != nil {
		return errors.Wrap(err, "")
	}
	mt.m.SetTen(i+1, back.Vector)

	if err := mt.m.DumpTen(i, true); err != nil {
		return errors.Wrap(err, "")
	}
	if err := mt.store.DumpLeft(i, true); err != nil {
		return errors.Wrap(err, "")
	}
	mt.store.DropRight(n - i - 2)
	return nil
}

// tdvpLeft evolves the pair (i, i+1) forward by half a step and, except at
// the left boundary, the new center site backward by the same amount.
func (mt *master) tdvpLeft(i int, params TDVPParams) error {
	n := mt.m.Len()
	if err := mt.m.LoadTen(i); err != nil {
		return errors.Wrap(err, "")
	}
	if err := mt.m.LoadTen(i + 1); err != nil {
		return errors.Wrap(err, "")
	}
	if err := mt.store.LoadLeft(i, i != mt.lb); err != nil {
		return errors.Wrap(err, "")
	}
	lenv, renv := mt.store.Left(i), mt.store.Right(n-i-2)
	// Panics before any broadcast if the environments do not match the pair.
	newStencil(lenv, renv, mt.h[i], mt.h[i+1])

	theta := tensor.Contract(mt.m.Ten(i), mt.m.Ten(i+1), [][2]int{{2, 0}})
	res, err := mt.evolve(i, theta, lenv, renv, params.Tau/2, params.Lanczos)
	if err != nil {
		return errors.Wrap(err, "")
	}

	u, s, vt, _, _ := distTruncSVD(mt.c, res.Vector, 2, res.Vector.Div(), params.TruncErr, params.Dmin, params.Dmax)
	mt.m.SetTen(i+1, vt)
	center := tensor.Contract(u, s, [][2]int{{2, 0}})
	mt.m.SetTen(i, center)
	if i == mt.lb {
		return nil
	}

	grown := mt.growRightEnv(i + 1)
	mt.store.SetRight(n-i-1, grown)
	st := newStencil(lenv, grown, mt.h[i])
	back, err := lanczos.Expmv(st.applyOneSite, center, -params.Tau/2, params.Lanczos)
	if err != nil {
		return errors.Wrap(err, "")
	}
	mt.m.SetTen(i, back.Vector)

	if err := mt.m.DumpTen(i+1, true); err != nil {
		return errors.Wrap(err, "")
	}
	if err := mt.store.DumpRight(n-i-2, true); err != nil {
		return errors.Wrap(err, "")
	}
	mt.store.DropLeft(i)
	return nil
}

// evolve runs the distributed local exponential of the pair whose left site
// is site.
func (mt *master) evolve(site int, theta, lenv, renv *tensor.Dense, delta float64, params lanczos.Params) (lanczos.ExpmvResult, error) {
	mt.c.BcastOrder(comm.Lanczos)
	mt.c.Bcast(comm.Message{Value: site})
	mt.c.Bcast(comm.Message{Tensor: lenv})
	mt.c.Bcast(comm.Message{Tensor: renv})
	mv := newMatVec(mt.c, lenv)
	res, err := lanczos.Expmv(mv.apply, theta, delta, params)
	mt.c.BcastOrder(comm.LanczosFinish)
	if err != nil {
		return lanczos.ExpmvResult{}, errors.Wrap(err, "")
	}
	return res, nil
}
