package sweep

import (
	"github.com/fumin/vmps/lanczos"
	"github.com/fumin/vmps/tensor"
)

// noiseEps is the smallest noise amplitude that still triggers subspace
// expansion.
const noiseEps = 1e-10

// SweepParams controls a ground state search.
type SweepParams struct {
	// Sweeps is the number of full left-right sweeps.
	Sweeps int
	// Dmin and Dmax bound the bond dimension.
	Dmin int
	Dmax int
	// TruncErr is the largest discarded weight allowed at a bond split.
	TruncErr float64
	// Noises holds the subspace expansion amplitude of each sweep.
	// The last entry applies to all remaining sweeps.
	Noises []float64
	// Lanczos controls the eigensolver at each update.
	Lanczos lanczos.Params
}

func (p SweepParams) noise(sweep int) float64 {
	if len(p.Noises) == 0 {
		return 0
	}
	if sweep >= len(p.Noises) {
		return p.Noises[len(p.Noises)-1]
	}
	return p.Noises[sweep]
}

// TDVPParams controls a real time evolution.
type TDVPParams struct {
	// Tau is the time step.
	Tau float64
	// Steps is the number of time steps.
	Steps int

	// Site0 is the site where Op perturbs the initial state.
	Site0 int
	// Op is the perturbing operator.
	Op *tensor.Dense
	// Inst is the string operator inserted left of Site0, typically the
	// fermion parity. May be nil.
	Inst *tensor.Dense
	// MeasureOp is the operator measured against the unperturbed state at
	// every site after each step.
	MeasureOp *tensor.Dense
	// E0 is the energy of the unperturbed state, used to remove the trivial
	// ground state phase from the measurements.
	E0 float64

	// Dmin and Dmax bound the bond dimension.
	Dmin int
	Dmax int
	// TruncErr is the largest discarded weight allowed at a bond split.
	TruncErr float64
	// Lanczos controls the local exponential solver.
	Lanczos lanczos.Params
}

// SiteUpdate summarizes one two site update.
type SiteUpdate struct {
	Sweep    int
	Site     int
	Energy   float64
	TruncErr float64
	D        int
	Iters    int
	Entropy  float64
}
