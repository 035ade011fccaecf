// Package queue holds the two bounded hand-off channels between the
// short-range and long-range bridge tasks.
package queue

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dumacp/go-lorabridge/internal/protocol"
)

const (
	DefaultOutboundCapacity = 5
	DefaultInboundCapacity  = 10
)

// Queue is a bounded FIFO of protocol messages. Producers never block: a
// send on a full queue is rejected and counted.
type Queue struct {
	name    string
	ch      chan protocol.Message
	dropped atomic.Uint64
}

// New creates a queue holding at most capacity messages. A capacity below
// one is raised to one.
func New(name string, capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{name: name, ch: make(chan protocol.Message, capacity)}
}

func (q *Queue) Name() string { return q.name }

// TrySend enqueues msg if there is room. On a full queue msg is dropped,
// the drop counter is incremented and false is returned; queued messages
// are left untouched.
func (q *Queue) TrySend(msg protocol.Message) bool {
	select {
	case q.ch <- msg:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// TryRecv dequeues the oldest message without blocking.
func (q *Queue) TryRecv() (protocol.Message, bool) {
	select {
	case msg := <-q.ch:
		return msg, true
	default:
		return nil, false
	}
}

// Recv blocks until a message is available or ctx is done.
func (q *Queue) Recv(ctx context.Context) (protocol.Message, error) {
	select {
	case msg := <-q.ch:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// C exposes the receive side for use in select statements.
func (q *Queue) C() <-chan protocol.Message { return q.ch }

func (q *Queue) Len() int { return len(q.ch) }
func (q *Queue) Cap() int { return cap(q.ch) }

// Dropped reports how many sends were rejected because the queue was full.
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }

// Stats is a point-in-time view of a queue.
type Stats struct {
	Name     string `json:"name"`
	Len      int    `json:"len"`
	Capacity int    `json:"capacity"`
	Dropped  uint64 `json:"dropped"`
}

func (q *Queue) Stats() Stats {
	return Stats{Name: q.name, Len: q.Len(), Capacity: q.Cap(), Dropped: q.Dropped()}
}

var (
	once     sync.Once
	outbound *Queue
	inbound  *Queue
)

// InitLinks creates the process-wide outbound (short-range to long-range)
// and inbound (long-range to short-range) queues. Only the first call has
// any effect; later calls return the existing pair.
func InitLinks(outboundCap, inboundCap int) (out, in *Queue) {
	once.Do(func() {
		outbound = New("outbound", outboundCap)
		inbound = New("inbound", inboundCap)
	})
	return outbound, inbound
}

// Links returns the queues created by InitLinks, or nil before it ran.
func Links() (out, in *Queue) {
	return outbound, inbound
}
