package comm

import "fmt"

// Order is a command broadcast by the master to the workers.
type Order int

const (
	// ProgramStart begins a run. Workers answer with their rank.
	ProgramStart Order = iota
	// InitGrowEnv grows an environment by one site during initialization.
	InitGrowEnv
	// Lanczos starts an effective Hamiltonian eigensolve.
	Lanczos
	// LanczosMatVecDynamic applies the effective Hamiltonian with dynamic
	// task assignment.
	LanczosMatVecDynamic
	// LanczosMatVecStatic applies the effective Hamiltonian with a fixed
	// task assignment.
	LanczosMatVecStatic
	// LanczosFinish ends an eigensolve.
	LanczosFinish
	// SVD decomposes the updated two site tensor.
	SVD
	// ContractForRightMovingExpansion builds the noise expansion tensor
	// during a right moving update.
	ContractForRightMovingExpansion
	// ContractForLeftMovingExpansion builds the noise expansion tensor
	// during a left moving update.
	ContractForLeftMovingExpansion
	// GrowingLeftEnv grows the left environment after a right moving update.
	GrowingLeftEnv
	// GrowingRightEnv grows the right environment after a left moving update.
	GrowingRightEnv
	// ProgramFinal ends a run.
	ProgramFinal
)

func (o Order) String() string {
	switch o {
	case ProgramStart:
		return "program_start"
	case InitGrowEnv:
		return "init_grow_env"
	case Lanczos:
		return "lanczos"
	case LanczosMatVecDynamic:
		return "lanczos_mat_vec_dynamic"
	case LanczosMatVecStatic:
		return "lanczos_mat_vec_static"
	case LanczosFinish:
		return "lanczos_finish"
	case SVD:
		return "svd"
	case ContractForRightMovingExpansion:
		return "contract_for_right_moving_expansion"
	case ContractForLeftMovingExpansion:
		return "contract_for_left_moving_expansion"
	case GrowingLeftEnv:
		return "growing_left_env"
	case GrowingRightEnv:
		return "growing_right_env"
	case ProgramFinal:
		return "program_final"
	default:
		return fmt.Sprintf("Order(%d)", int(o))
	}
}
