package enrollment

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Queue is an unbounded priority queue of enrollment requests. Higher
// priorities dequeue first; equal priorities dequeue in arrival order.
type Queue struct {
	mu     sync.Mutex
	items  requestHeap
	seq    uint64
	closed bool

	// notify wakes one poller after a push or close.
	notify chan struct{}
	depth  atomic.Int64

	// held counts polled requests not yet handed off via Release.
	held atomic.Int64
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Push adds req. It returns ErrQueueClosed after Close.
func (q *Queue) Push(req Request) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.seq++
	heap.Push(&q.items, &queued{req: req, seq: q.seq})
	q.mu.Unlock()

	q.depth.Add(1)
	enrollmentQueueDepth.Inc()
	q.wake()
	return nil
}

// Poll removes the next request, waiting up to wait for one to arrive.
// ok is false when the wait elapsed with nothing queued. Once the queue is
// closed and empty Poll returns ErrQueueClosed; ctx cancellation returns
// ctx.Err(). A polled request counts as outstanding until Release.
func (q *Queue) Poll(ctx context.Context, wait time.Duration) (req Request, ok bool, err error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if q.items.Len() > 0 {
			item := heap.Pop(&q.items).(*queued)
			q.mu.Unlock()

			q.held.Add(1)
			q.depth.Add(-1)
			enrollmentQueueDepth.Dec()
			return item.req, true, nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return Request{}, false, ErrQueueClosed
		}

		select {
		case <-ctx.Done():
			return Request{}, false, ctx.Err()
		case <-timer.C:
			return Request{}, false, nil
		case <-q.notify:
		}
	}
}

// Close stops accepting requests. Queued requests can still be polled.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

// Len returns the number of queued requests without taking the lock.
func (q *Queue) Len() int {
	return int(q.depth.Load())
}

// Release marks one polled request as handed off.
func (q *Queue) Release() {
	q.held.Add(-1)
}

// Outstanding returns queued plus polled-but-unreleased requests.
func (q *Queue) Outstanding() int {
	// depth before held: Poll raises held before it lowers depth.
	depth := q.depth.Load()
	return int(depth + q.held.Load())
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

type queued struct {
	req Request
	seq uint64
}

type requestHeap []*queued

func (h requestHeap) Len() int { return len(h) }

func (h requestHeap) Less(i, j int) bool {
	if h[i].req.Priority != h[j].req.Priority {
		return h[i].req.Priority > h[j].req.Priority
	}
	return h[i].seq < h[j].seq
}

func (h requestHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *requestHeap) Push(x any) { *h = append(*h, x.(*queued)) }

func (h *requestHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
