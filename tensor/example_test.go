package tensor_test

import (
	"fmt"

	"github.com/fumin/vmps/tensor"
)

func ExampleContract() {
	// A 2x2 matrix multiplication as a tensor contraction.
	a := tensor.Zeros(tensor.Flat(tensor.Out, 2), tensor.Flat(tensor.Out, 2))
	a.SetAt([]int{0, 0}, 1)
	a.SetAt([]int{0, 1}, 2)
	a.SetAt([]int{1, 0}, 3)
	a.SetAt([]int{1, 1}, 4)
	b := tensor.Zeros(tensor.Flat(tensor.In, 2), tensor.Flat(tensor.In, 2))
	b.SetAt([]int{0, 0}, 5)
	b.SetAt([]int{0, 1}, 6)
	b.SetAt([]int{1, 0}, 7)
	b.SetAt([]int{1, 1}, 8)

	c := tensor.Contract(a, b, [][2]int{{1, 0}})
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			if j > 0 {
				fmt.Print(" ")
			}
			fmt.Printf("%.0f", real(c.At(i, j)))
		}
		fmt.Println()
	}
	// Output:
	// 19 22
	// 43 50
}
