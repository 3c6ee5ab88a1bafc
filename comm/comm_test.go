package comm

import (
	"flag"
	"fmt"
	"log"
	"os"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/fumin/vmps/tensor"
)

func TestSendRecv(t *testing.T) {
	t.Parallel()
	w := NewWorld(3)

	var g errgroup.Group
	for rank := 1; rank < w.Size(); rank++ {
		c := w.Comm(rank)
		g.Go(func() error {
			a := tensor.Zeros(tensor.Flat(tensor.Out, 2))
			a.SetAt([]int{0}, complex(float64(c.Rank()), 0))
			c.Send(MasterRank, Message{Tag: 2 * c.Rank(), Tensor: a})

			m := c.Recv(MasterRank, 2*c.Rank())
			if m.Value != 10+c.Rank() {
				return fmt.Errorf("%d %d", m.Value, 10+c.Rank())
			}
			return nil
		})
	}

	master := w.Comm(MasterRank)
	for i := 0; i < 2; i++ {
		m := master.Recv(AnySource, AnyTag)
		if m.Tag != 2*m.Src {
			t.Fatalf("%d %d", m.Tag, m.Src)
		}
		if got := real(m.Tensor.At(0)); got != float64(m.Src) {
			t.Fatalf("%v %d", got, m.Src)
		}
		master.Send(m.Src, Message{Tag: m.Tag, Value: 10 + m.Src})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("%+v", err)
	}
}

func TestRecvOutOfOrder(t *testing.T) {
	t.Parallel()
	w := NewWorld(2)
	worker := w.Comm(1)
	master := w.Comm(MasterRank)

	// Sends never block, so the worker can deposit all messages before the
	// master receives any.
	for _, tag := range []int{5, 3, 7} {
		worker.Send(MasterRank, Message{Tag: tag, Value: tag * 100})
	}
	// Receives by tag skip over non matching pending messages.
	for _, tag := range []int{7, 5, 3} {
		m := master.Recv(1, tag)
		if m.Value != tag*100 {
			t.Fatalf("%d %d", m.Value, tag*100)
		}
	}
}

func TestBcast(t *testing.T) {
	t.Parallel()
	w := NewWorld(4)

	var g errgroup.Group
	for rank := 1; rank < w.Size(); rank++ {
		c := w.Comm(rank)
		g.Go(func() error {
			// The broadcast stream arrives in order.
			for i := 0; i < 10; i++ {
				m := c.RecvBcast()
				if m.Value != i {
					return fmt.Errorf("%d %d", m.Value, i)
				}
			}
			if o := c.RecvOrder(); o != ProgramFinal {
				return fmt.Errorf("%v", o)
			}
			return nil
		})
	}

	master := w.Comm(MasterRank)
	for i := 0; i < 10; i++ {
		master.Bcast(Message{Value: i})
	}
	master.BcastOrder(ProgramFinal)
	if err := g.Wait(); err != nil {
		t.Fatalf("%+v", err)
	}
}

func TestOrderString(t *testing.T) {
	t.Parallel()
	if s := Lanczos.String(); s != "lanczos" {
		t.Fatalf("%s", s)
	}
	if s := Order(99).String(); s != "Order(99)" {
		t.Fatalf("%s", s)
	}
}

func TestMain(m *testing.M) {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds | log.Llongfile | log.LstdFlags)
	os.Exit(m.Run())
}
