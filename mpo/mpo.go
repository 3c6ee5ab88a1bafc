// Package mpo builds matrix product operators from sums of local terms.
//
// Operators are specified site by site and assembled through a finite state
// automaton whose transfer matrices are compressed before emission, yielding
// the familiar minimal bond dimensions, for example 3 for the transverse
// field Ising chain and 4 for free fermion hopping.
//
// References:
//   - Matrix product operator representations, B. Pirvu, V. Murg, J. I. Cirac, F. Verstraete
package mpo

import (
	"github.com/fumin/vmps/tensor"
)

// MPO is a matrix product operator.
// Every tensor has four indexes: the left virtual bond pointing in, the
// physical input pointing in, the physical output pointing out, and the
// right virtual bond pointing out. The virtual bonds at the two ends are one
// dimensional.
type MPO []*tensor.Dense
