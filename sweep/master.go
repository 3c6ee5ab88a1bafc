// Package sweep implements distributed two site sweep algorithms over matrix
// product states: variational ground state search, and time evolution by the
// time dependent variational principle.
//
// The master rank owns the state and the environments, keeping all but the
// active window on disk. Worker ranks hold a copy of the Hamiltonian and
// execute contraction and factorization tasks partitioned by quantum number
// sector.
//
// References:
//   - The density-matrix renormalization group in the age of matrix product states, Ulrich Schollwock
//   - Unifying time evolution and optimization with matrix product states, Jutho Haegeman, Christian Lubich, Ivan Oseledets, Bart Vandereycken, Frank Verstraete
package sweep

import (
	"fmt"
	"log"
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/fumin/vmps/comm"
	"github.com/fumin/vmps/lanczos"
	"github.com/fumin/vmps/mpo"
	"github.com/fumin/vmps/mps"
	"github.com/fumin/vmps/tensor"
)

type master struct {
	c     *comm.Comm
	m     *mps.FiniteMPS
	h     mpo.MPO
	store *EnvStore

	lb int
	rb int
}

// RunVMPS drives a distributed ground state search over the state m, and
// returns the final energy along with the per update records.
// Every worker rank must be running RunVMPSWorker with the same Hamiltonian.
// Environments are cached under envDir, so that an interrupted search can be
// resumed from the state files.
func RunVMPS(c *comm.Comm, m *mps.FiniteMPS, h mpo.MPO, params SweepParams, envDir string) (float64, []SiteUpdate, error) {
	if len(h) != m.Len() {
		panic(fmt.Sprintf("%d %d", len(h), m.Len()))
	}
	c.BcastOrder(comm.ProgramStart)
	for i := 1; i < c.Size(); i++ {
		msg := c.Recv(comm.AnySource, comm.AnyTag)
		log.Printf("worker %d ready", msg.Value)
	}

	lb, rb, err := m.CheckAndUpdateBoundary(params.Dmax)
	if err != nil {
		return 0, nil, errors.Wrap(err, "")
	}
	store := NewEnvStore(envDir, m.Len())
	need, err := store.NeedGenerateRightEnvs(lb, rb)
	if err != nil {
		return 0, nil, errors.Wrap(err, "")
	}
	if need {
		if err := store.InitEnvs(c, m, h, lb); err != nil {
			return 0, nil, errors.Wrap(err, "")
		}
	}
	if err := store.UpdateBoundaryEnvs(m, h, lb, rb); err != nil {
		return 0, nil, errors.Wrap(err, "")
	}

	mt := &master{c: c, m: m, h: h, store: store, lb: lb, rb: rb}
	var e0 float64
	updates := make([]SiteUpdate, 0)
	for sweep := 0; sweep < params.Sweeps; sweep++ {
		noise := params.noise(sweep)
		for i := lb; i <= rb-2; i++ {
			up, err := mt.updateRight(i, noise, params)
			if err != nil {
				return 0, nil, errors.Wrap(err, fmt.Sprintf("%d %d", sweep, i))
			}
			up.Sweep = sweep
			updates = append(updates, up)
			e0 = up.Energy
		}
		for i := rb; i >= lb+2; i-- {
			up, err := mt.updateLeft(i, noise, params)
			if err != nil {
				return 0, nil, errors.Wrap(err, fmt.Sprintf("%d %d", sweep, i))
			}
			up.Sweep = sweep
			updates = append(updates, up)
			e0 = up.Energy
		}
	}

	if err := m.DumpTen(lb, true); err != nil {
		return 0, nil, errors.Wrap(err, "")
	}
	if err := m.DumpTen(lb+1, true); err != nil {
		return 0, nil, errors.Wrap(err, "")
	}
	c.BcastOrder(comm.ProgramFinal)
	return e0, updates, nil
}

// updateRight updates the pair (i, i+1) while moving right.
func (mt *master) updateRight(i int, noise float64, params SweepParams) (SiteUpdate, error) {
	start := time.Now()
	n := mt.m.Len()
	for _, j := range []int{i, i + 1, i + 2} {
		if err := mt.m.LoadTen(j); err != nil {
			return SiteUpdate{}, errors.Wrap(err, "")
		}
	}
	if i == mt.lb {
		if err := mt.store.LoadLeft(i, false); err != nil {
			return SiteUpdate{}, errors.Wrap(err, "")
		}
	}
	if err := mt.store.LoadRight(n-i-2, true); err != nil {
		return SiteUpdate{}, errors.Wrap(err, "")
	}
	lenv, renv := mt.store.Left(i), mt.store.Right(n-i-2)
	// Panics before any broadcast if the environments do not match the pair.
	newStencil(lenv, renv, mt.h[i], mt.h[i+1])

	theta := tensor.Contract(mt.m.Ten(i), mt.m.Ten(i+1), [][2]int{{2, 0}})
	res, lanczT, err := mt.solveGround(i, theta, lenv, renv, params.Lanczos)
	if err != nil {
		return SiteUpdate{}, errors.Wrap(err, "")
	}
	theta = res.Vector

	if math.Abs(noise) >= noiseEps {
		var padded *tensor.Dense
		theta, padded = expandRight(mt.c, mt.h, i, theta, mt.m.Ten(i+2), lenv, noise)
		mt.m.SetTen(i+2, padded)
	}

	u, s, vt, truncErr, d := distTruncSVD(mt.c, theta, 2, 0, params.TruncErr, params.Dmin, params.Dmax)
	mt.m.SetTen(i, u)
	mt.m.SetTen(i+1, tensor.Contract(s, vt, [][2]int{{1, 0}}))
	entropy := entanglementEntropy(s)

	mt.store.SetLeft(i+1, mt.growLeftEnv(i))
	if err := mt.m.DumpTen(i, true); err != nil {
		return SiteUpdate{}, errors.Wrap(err, "")
	}
	if err := mt.store.DumpLeft(i, true); err != nil {
		return SiteUpdate{}, errors.Wrap(err, "")
	}
	mt.store.DropRight(n - i - 2)

	totT := time.Since(start).Seconds()
	log.Printf("Site %4d E0 = %.16f TruncErr = %.2e D = %5d Iter = %3d LanczT = %8.2f TotT = %8.2f S = %10.7f", i, res.Energy, truncErr, d, res.Iters, lanczT, totT, entropy)
	return SiteUpdate{Site: i, Energy: res.Energy, TruncErr: truncErr, D: d, Iters: res.Iters, Entropy: entropy}, nil
}

// updateLeft updates the pair (i-1, i) while moving left.
func (mt *master) updateLeft(i int, noise float64, params SweepParams) (SiteUpdate, error) {
	start := time.Now()
	n := mt.m.Len()
	for _, j := range []int{i, i - 1, i - 2} {
		if err := mt.m.LoadTen(j); err != nil {
			return SiteUpdate{}, errors.Wrap(err, "")
		}
	}
	if i == mt.rb {
		if err := mt.store.LoadRight(n-i-1, false); err != nil {
			return SiteUpdate{}, errors.Wrap(err, "")
		}
	}
	if err := mt.store.LoadLeft(i-1, true); err != nil {
		return SiteUpdate{}, errors.Wrap(err, "")
	}
	lenv, renv := mt.store.Left(i-1), mt.store.Right(n-i-1)
	// Panics before any broadcast if the environments do not match the pair.
	newStencil(lenv, renv, mt.h[i-1], mt.h[i])

	theta := tensor.Contract(mt.m.Ten(i-1), mt.m.Ten(i), [][2]int{{2, 0}})
	res, lanczT, err := mt.solveGround(i-1, theta, lenv, renv, params.Lanczos)
	if err != nil {
		return SiteUpdate{}, errors.Wrap(err, "")
	}
	theta = res.Vector

	if math.Abs(noise) >= noiseEps {
		var padded *tensor.Dense
		theta, padded = expandLeft(mt.c, mt.h, i-1, theta, mt.m.Ten(i-2), renv, noise)
		mt.m.SetTen(i-2, padded)
	}

	u, s, vt, truncErr, d := distTruncSVD(mt.c, theta, 2, theta.Div(), params.TruncErr, params.Dmin, params.Dmax)
	mt.m.SetTen(i, vt)
	mt.m.SetTen(i-1, tensor.Contract(u, s, [][2]int{{2, 0}}))
	entropy := entanglementEntropy(s)

	mt.store.SetRight(n-i, mt.growRightEnv(i))
	if err := mt.m.DumpTen(i, true); err != nil {
		return SiteUpdate{}, errors.Wrap(err, "")
	}
	if err := mt.store.DumpRight(n-i-1, true); err != nil {
		return SiteUpdate{}, errors.Wrap(err, "")
	}
	mt.store.DropLeft(i - 1)

	totT := time.Since(start).Seconds()
	log.Printf("Site %4d E0 = %.16f TruncErr = %.2e D = %5d Iter = %3d LanczT = %8.2f TotT = %8.2f S = %10.7f", i, res.Energy, truncErr, d, res.Iters, lanczT, totT, entropy)
	return SiteUpdate{Site: i, Energy: res.Energy, TruncErr: truncErr, D: d, Iters: res.Iters, Entropy: entropy}, nil
}

// solveGround runs the distributed eigensolve of the pair whose left site is
// site.
func (mt *master) solveGround(site int, theta, lenv, renv *tensor.Dense, params lanczos.Params) (lanczos.Result, float64, error) {
	start := time.Now()
	mt.c.BcastOrder(comm.Lanczos)
	mt.c.Bcast(comm.Message{Value: site})
	mt.c.Bcast(comm.Message{Tensor: lenv})
	mt.c.Bcast(comm.Message{Tensor: renv})
	mv := newMatVec(mt.c, lenv)
	res, err := lanczos.GroundState(mv.apply, theta, params)
	mt.c.BcastOrder(comm.LanczosFinish)
	if err != nil {
		return lanczos.Result{}, 0, errors.Wrap(err, "")
	}
	return res, time.Since(start).Seconds(), nil
}

// growLeftEnv absorbs site into the left environment using the workers.
func (mt *master) growLeftEnv(site int) *tensor.Dense {
	a := mt.m.Ten(site)
	mt.c.BcastOrder(comm.GrowingLeftEnv)
	mt.c.Bcast(comm.Message{Value: site})
	mt.c.Bcast(comm.Message{Tensor: mt.store.Left(site)})
	mt.c.Bcast(comm.Message{Tensor: a})
	return collectGrowLeft(mt.c, a, mt.h[site])
}

// growRightEnv absorbs site into the right environment using the workers.
func (mt *master) growRightEnv(site int) *tensor.Dense {
	a := mt.m.Ten(site)
	mt.c.BcastOrder(comm.GrowingRightEnv)
	mt.c.Bcast(comm.Message{Value: site})
	mt.c.Bcast(comm.Message{Tensor: mt.store.Right(mt.m.Len() - site - 1)})
	mt.c.Bcast(comm.Message{Tensor: a})
	return collectGrowRight(mt.c, a, mt.h[site])
}
