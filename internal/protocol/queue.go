// internal/protocol/queue.go
package protocol

import "sync"

// OutputQueue receives every completed inbound packet. Handlers only append.
type OutputQueue interface {
	Enqueue(packet []byte)
}

// PacketQueue is a FIFO OutputQueue safe for concurrent use.
// A positive limit drops the oldest packets once exceeded.
type PacketQueue struct {
	mu      sync.Mutex
	packets [][]byte
	limit   int
	dropped int64
}

// NewPacketQueue creates a queue. limit <= 0 means unbounded.
func NewPacketQueue(limit int) *PacketQueue {
	return &PacketQueue{limit: limit}
}

// Enqueue appends a packet
func (q *PacketQueue) Enqueue(packet []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.packets = append(q.packets, packet)
	if q.limit > 0 && len(q.packets) > q.limit {
		over := len(q.packets) - q.limit
		q.packets = append(q.packets[:0:0], q.packets[over:]...)
		q.dropped += int64(over)
	}
}

// Len returns the number of queued packets
func (q *PacketQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.packets)
}

// Dropped returns how many packets were discarded because of the limit
func (q *PacketQueue) Dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Drain removes and returns up to max packets in arrival order.
// max <= 0 drains everything.
func (q *PacketQueue) Drain(max int) [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.packets)
	if max > 0 && max < n {
		n = max
	}
	if n == 0 {
		return nil
	}

	out := q.packets[:n:n]
	q.packets = append([][]byte(nil), q.packets[n:]...)
	return out
}

// mailbox is an unbounded FIFO with a wake signal. push never blocks.
type mailbox[T any] struct {
	mu    sync.Mutex
	items []T
	wake  chan struct{}
}

func newMailbox[T any]() *mailbox[T] {
	return &mailbox[T]{wake: make(chan struct{}, 1)}
}

func (m *mailbox[T]) push(item T) {
	m.mu.Lock()
	m.items = append(m.items, item)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *mailbox[T]) drain() []T {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.items
	m.items = nil
	return items
}
