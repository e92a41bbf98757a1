package manager

import (
	"context"
	"sync"
)

// Pledge is a single-resolution future. The first Resolve or Reject wins;
// later calls are ignored.
type Pledge[T any] struct {
	mu        sync.Mutex
	done      chan struct{}
	settled   bool
	value     T
	err       error
	callbacks []func(T, error)
}

// NewPledge returns an unsettled pledge.
func NewPledge[T any]() *Pledge[T] {
	return &Pledge[T]{done: make(chan struct{})}
}

// Resolve settles p with v.
func (p *Pledge[T]) Resolve(v T) bool {
	return p.settle(v, nil)
}

// Reject settles p with err.
func (p *Pledge[T]) Reject(err error) bool {
	var zero T
	return p.settle(zero, err)
}

func (p *Pledge[T]) settle(v T, err error) bool {
	p.mu.Lock()
	if p.settled {
		p.mu.Unlock()
		return false
	}
	p.settled = true
	p.value, p.err = v, err
	callbacks := p.callbacks
	p.callbacks = nil
	close(p.done)
	p.mu.Unlock()

	for _, fn := range callbacks {
		fn(v, err)
	}
	return true
}

// Then registers fn to run once p settles. If p already settled fn runs now,
// otherwise on the goroutine that settles it.
func (p *Pledge[T]) Then(fn func(T, error)) {
	p.mu.Lock()
	if !p.settled {
		p.callbacks = append(p.callbacks, fn)
		p.mu.Unlock()
		return
	}
	v, err := p.value, p.err
	p.mu.Unlock()
	fn(v, err)
}

// Done is closed when p settles.
func (p *Pledge[T]) Done() <-chan struct{} { return p.done }

// Settled reports whether p has a result.
func (p *Pledge[T]) Settled() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Await blocks until p settles or ctx is done. A pledge abandoned by
// navigation never settles, so callers should always pass a bounded ctx.
func (p *Pledge[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.value, p.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// pledgeTable tracks outstanding pledges by monotonically issued id.
// Only the owner loop touches it.
type pledgeTable[T any] struct {
	next uint64
	live map[uint64]*Pledge[T]
}

func newPledgeTable[T any]() *pledgeTable[T] {
	return &pledgeTable[T]{live: make(map[uint64]*Pledge[T])}
}

func (t *pledgeTable[T]) add(p *Pledge[T]) uint64 {
	t.next++
	t.live[t.next] = p
	return t.next
}

// take removes and returns the pledge for id.
func (t *pledgeTable[T]) take(id uint64) (*Pledge[T], bool) {
	p, ok := t.live[id]
	if ok {
		delete(t.live, id)
	}
	return p, ok
}

func (t *pledgeTable[T]) len() int { return len(t.live) }
