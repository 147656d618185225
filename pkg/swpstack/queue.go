package swpstack

import "sync"

// deliveryQueue hands in-order chunks from the receive loop to the
// application. It is unbounded; Pop blocks until a chunk is ready or the
// queue is closed, and drains remaining chunks after close.
type deliveryQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	chunks [][]byte
	closed bool
}

func newDeliveryQueue() *deliveryQueue {
	q := &deliveryQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *deliveryQueue) Push(chunk []byte) {
	q.mu.Lock()
	if !q.closed {
		q.chunks = append(q.chunks, chunk)
		q.cond.Signal()
	}
	q.mu.Unlock()
}

func (q *deliveryQueue) Pop() ([]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.chunks) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.chunks) == 0 {
		return nil, ErrClosed
	}
	chunk := q.chunks[0]
	q.chunks = q.chunks[1:]
	return chunk, nil
}

func (q *deliveryQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}
