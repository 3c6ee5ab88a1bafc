// Package comm passes messages between the ranks of a sweep run.
//
// Rank 0 is the master and ranks 1..size-1 are the workers, all running as
// goroutines of one process. Sends deposit into the receiver's mailbox and
// never block, while receives block until a matching message arrives, so the
// two sides need not rendezvous. Tensors travel by pointer: a receiver must
// treat a received tensor as read only.
package comm

import (
	"fmt"
	"sync"

	"github.com/fumin/vmps/tensor"
)

const (
	// MasterRank is the rank of the master.
	MasterRank = 0
	// AnySource matches messages from every rank.
	AnySource = -1
	// AnyTag matches messages with every tag.
	AnyTag = -1
)

// Message is a point to point message or a broadcast payload.
type Message struct {
	// Src is the sending rank, filled in by Send.
	Src int
	// Tag identifies the message within a conversation.
	Tag int

	Value  int
	Tensor *tensor.Dense
}

type mailbox struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []Message
}

func newMailbox() *mailbox {
	b := &mailbox{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *mailbox) put(m Message) {
	b.mu.Lock()
	b.pending = append(b.pending, m)
	b.mu.Unlock()
	b.cond.Broadcast()
}

func (b *mailbox) get(src, tag int) Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		for i, m := range b.pending {
			if (src == AnySource || m.Src == src) && (tag == AnyTag || m.Tag == tag) {
				b.pending = append(b.pending[:i], b.pending[i+1:]...)
				return m
			}
		}
		b.cond.Wait()
	}
}

// World connects the ranks of one run.
type World struct {
	inboxes []*mailbox
	// bcasts[r] carries the broadcast stream of rank r.
	bcasts []*mailbox
}

// NewWorld returns a world with the given number of ranks, including the
// master.
func NewWorld(size int) *World {
	if size < 2 {
		panic(fmt.Sprintf("%d", size))
	}
	w := &World{}
	for i := 0; i < size; i++ {
		w.inboxes = append(w.inboxes, newMailbox())
		w.bcasts = append(w.bcasts, newMailbox())
	}
	return w
}

// Size returns the number of ranks.
func (w *World) Size() int {
	return len(w.inboxes)
}

// Comm returns the handle of the given rank.
func (w *World) Comm(rank int) *Comm {
	if rank < 0 || rank >= len(w.inboxes) {
		panic(fmt.Sprintf("%d %d", rank, len(w.inboxes)))
	}
	return &Comm{world: w, rank: rank}
}

// Comm is the view of a world from one rank.
type Comm struct {
	world *World
	rank  int
}

// Rank returns the rank of this handle.
func (c *Comm) Rank() int {
	return c.rank
}

// Size returns the number of ranks in the world.
func (c *Comm) Size() int {
	return c.world.Size()
}

// Send deposits m into the mailbox of rank dst.
func (c *Comm) Send(dst int, m Message) {
	m.Src = c.rank
	c.world.inboxes[dst].put(m)
}

// Recv blocks until a message from src with the given tag arrives.
// src may be AnySource and tag may be AnyTag. Messages that do not match
// stay pending for later receives.
func (c *Comm) Recv(src, tag int) Message {
	return c.world.inboxes[c.rank].get(src, tag)
}

// Bcast sends m to every rank except the master, in order.
// Only the master may broadcast.
func (c *Comm) Bcast(m Message) {
	if c.rank != MasterRank {
		panic(fmt.Sprintf("%d", c.rank))
	}
	m.Src = c.rank
	for r, b := range c.world.bcasts {
		if r == MasterRank {
			continue
		}
		b.put(m)
	}
}

// RecvBcast blocks until the next broadcast message arrives.
func (c *Comm) RecvBcast() Message {
	if c.rank == MasterRank {
		panic(fmt.Sprintf("%d", c.rank))
	}
	return c.world.bcasts[c.rank].get(AnySource, AnyTag)
}

// BcastOrder broadcasts an order.
func (c *Comm) BcastOrder(o Order) {
	c.Bcast(Message{Value: int(o)})
}

// RecvOrder receives the next broadcast as an order.
func (c *Comm) RecvOrder() Order {
	return Order(c.RecvBcast().Value)
}
