package sweep

import (
	"github.com/fumin/vmps/comm"
	"github.com/fumin/vmps/mpo"
	"github.com/fumin/vmps/tensor"
)

// fusedIndex returns the index that Fuse produces for adjacent axes carrying
// x and y.
func fusedIndex(x, y tensor.Index) tensor.Index {
	d := int(x.Dir) * int(y.Dir)
	charges := make([]int, 0, len(x.Charges)*len(y.Charges))
	for _, qx := range x.Charges {
		for _, qy := range y.Charges {
			charges = append(charges, qx+d*qy)
		}
	}
	return tensor.Index{Dir: x.Dir, Charges: charges}
}

// expandRight enlarges the right bond of the pair tensor theta with the
// noise scaled expansion term, and pads the left bond of the next site tensor
// to match. The expansion contractions run on the workers, partitioned over
// the bra leg of lenv. site is the left site of the pair.
func expandRight(c *comm.Comm, h mpo.MPO, site int, theta, next, lenv *tensor.Dense, noise float64) (*tensor.Dense, *tensor.Dense) {
	c.BcastOrder(comm.ContractForRightMovingExpansion)
	c.Bcast(comm.Message{Tensor: theta})

	fused := fusedIndex(theta.Index(3), h[site+1].Index(3))
	p := tensor.Zeros(theta.Index(0), theta.Index(1), theta.Index(2), fused)
	tasks := tasksOf(lenv.Index(2))
	for range tasks {
		msg := c.Recv(comm.AnySource, comm.AnyTag)
		p.SetSlice(0, tasks[msg.Tag].Lo, msg.Tensor)
	}
	p.Scale(complex(noise, 0))

	expanded := tensor.Concat(theta, p, 3)
	pad := tensor.Zeros(fused.Inverse(), next.Index(1), next.Index(2))
	padded := tensor.Concat(next, pad, 0)
	return expanded, padded
}

// expandLeft is the mirror of expandRight. It enlarges the left bond of
// theta and pads the right bond of the previous site tensor. The expansion
// contractions are partitioned over the bra leg of renv. site is the left
// site of the pair.
func expandLeft(c *comm.Comm, h mpo.MPO, site int, theta, prev, renv *tensor.Dense, noise float64) (*tensor.Dense, *tensor.Dense) {
	c.BcastOrder(comm.ContractForLeftMovingExpansion)
	c.Bcast(comm.Message{Tensor: theta})

	fused := fusedIndex(theta.Index(0), h[site].Index(0))
	p := tensor.Zeros(fused, theta.Index(1), theta.Index(2), theta.Index(3))
	tasks := tasksOf(renv.Index(2))
	for range tasks {
		msg := c.Recv(comm.AnySource, comm.AnyTag)
		p.SetSlice(3, tasks[msg.Tag].Lo, msg.Tensor)
	}
	p.Scale(complex(noise, 0))

	expanded := tensor.Concat(theta, p, 0)
	pad := tensor.Zeros(prev.Index(0), prev.Index(1), fused.Inverse())
	padded := tensor.Concat(prev, pad, 2)
	return expanded, padded
}
