package manager

import "sync"

// queue is an unbounded FIFO drained by one goroutine. Producers never block.
type queue[T any] struct {
	handle func(T)

	mu     sync.Mutex
	cond   *sync.Cond
	items  []T
	closed bool
	done   chan struct{}
}

func newQueue[T any](handle func(T)) *queue[T] {
	q := &queue[T]{handle: handle, done: make(chan struct{})}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

// post appends item. It reports false once the queue is closed.
func (q *queue[T]) post(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, item)
	q.cond.Signal()
	return true
}

// close refuses new items. Items already queued still run.
func (q *queue[T]) close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Signal()
	q.mu.Unlock()
}

// wait blocks until close was called and the queue is drained.
func (q *queue[T]) wait() { <-q.done }

func (q *queue[T]) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.items) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.items) == 0 {
			q.mu.Unlock()
			return
		}
		item := q.items[0]
		var zero T
		q.items[0] = zero
		q.items = q.items[1:]
		q.mu.Unlock()

		q.handle(item)
	}
}

// loop runs closures in order on a single goroutine.
type loop struct {
	*queue[func()]
}

func newLoop() *loop {
	return &loop{newQueue(func(fn func()) { fn() })}
}

// call runs fn on the loop and waits for it. It reports false if the loop is
// closed. Never call it from the loop itself.
func (l *loop) call(fn func()) bool {
	done := make(chan struct{})
	if !l.post(func() {
		defer close(done)
		fn()
	}) {
		return false
	}
	<-done
	return true
}
