package mainloop

import "sync"

// growAt is the fill percentage at which the queue doubles its capacity.
const growAt = 70

// Queue is an unbounded FIFO ring that doubles its capacity when it reaches
// growAt percent full. Posting never blocks, so a burst of work scheduled from
// worker goroutines cannot stall them behind the main loop.
type Queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	ring   []T
	head   int
	size   int
	closed bool

	posted  int64
	taken   int64
	resizes int
}

// QueueStats contains queue counters.
type QueueStats struct {
	Len     int
	Cap     int
	Posted  int64
	Taken   int64
	Resizes int
}

// NewQueue creates a queue with room for capacity items before its first resize.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 2 {
		capacity = 2
	}
	q := &Queue[T]{ring: make([]T, capacity)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends v. It returns false once the queue is closed.
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if (q.size+1)*100 >= len(q.ring)*growAt {
		q.resize(len(q.ring) * 2)
	}

	q.ring[(q.head+q.size)%len(q.ring)] = v
	q.size++
	q.posted++
	q.cond.Signal()
	return true
}

// Pop blocks until an item is available. It returns false when the queue is
// closed and drained.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.size == 0 && !q.closed {
		q.cond.Wait()
	}
	return q.takeLocked()
}

// TryPop returns the next item without blocking.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.takeLocked()
}

// Close stops accepting items. Queued items can still be popped.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Stats returns queue counters.
func (q *Queue[T]) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		Len:     q.size,
		Cap:     len(q.ring),
		Posted:  q.posted,
		Taken:   q.taken,
		Resizes: q.resizes,
	}
}

func (q *Queue[T]) takeLocked() (T, bool) {
	var zero T
	if q.size == 0 {
		return zero, false
	}
	v := q.ring[q.head]
	q.ring[q.head] = zero
	q.head = (q.head + 1) % len(q.ring)
	q.size--
	q.taken++
	return v, true
}

// resize moves the live items to the front of a ring of length n. Must be called with mu held.
func (q *Queue[T]) resize(n int) {
	ring := make([]T, n)
	for i := 0; i < q.size; i++ {
		ring[i] = q.ring[(q.head+i)%len(q.ring)]
	}
	q.ring = ring
	q.head = 0
	q.resizes++
}
