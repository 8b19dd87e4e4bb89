package runloop

import "code.hybscloud.com/atomix"

const (
	promisePending = iota
	promiseSettling
	promiseSettled
)

// A Promise is a one-shot result cell bridging the loop's carrier
// goroutine (the producer) and a blocked calling goroutine (the consumer).
//
// Exactly one of value and failure is eventually set, exactly once;
// settling a promise twice panics.
// Cross-goroutine consumers block on the Done channel and then read
// the outcome with Result.
// Coroutines on the same [Executor] watch the promise instead: a Promise
// is a [Signal] that notifies when it settles, and [Promise.Await] wraps
// that into a [Task].
//
// Create a Promise with [NewPromise]; the zero value is not usable.
type Promise[T any] struct {
	Signal
	state atomix.Uint32
	done  chan struct{}
	value T
	err   error
}

// NewPromise creates a new, unsettled [Promise].
func NewPromise[T any]() *Promise[T] {
	return &Promise[T]{done: make(chan struct{})}
}

// Resolve settles p with a value.
// Resolve panics if p has already been settled.
//
// One should only call this method in a [Task] function.
func (p *Promise[T]) Resolve(v T) {
	p.settle(v, nil)
}

// Reject settles p with a failure.
// Reject panics if p has already been settled or if err is nil.
//
// One should only call this method in a [Task] function.
func (p *Promise[T]) Reject(err error) {
	if err == nil {
		panic("runloop: Reject called with nil error")
	}
	var zero T
	p.settle(zero, err)
}

func (p *Promise[T]) settle(v T, err error) {
	if !p.state.CompareAndSwap(promisePending, promiseSettling) {
		panic("runloop: promise settled twice")
	}
	p.value, p.err = v, err
	// Release pairs with the acquire loads in Settled and Result: the
	// outcome must be visible before the settled flag is.
	p.state.StoreRelease(promiseSettled)
	close(p.done)
	p.Notify()
}

// Done returns a channel that is closed when p settles.
// Unlike every other method on Promise, receiving from Done is safe from
// any goroutine; it is the cross-goroutine handoff the bridge blocks on.
func (p *Promise[T]) Done() <-chan struct{} {
	return p.done
}

// Settled reports whether p has been settled.
// Settled is safe for concurrent use.
func (p *Promise[T]) Settled() bool {
	return p.state.LoadAcquire() == promiseSettled
}

// Result returns the outcome of p.
// It must only be called after p has settled: after a receive from Done,
// or in a [Task] resumed by watching p.
func (p *Promise[T]) Result() (T, error) {
	if p.state.LoadAcquire() != promiseSettled {
		panic("runloop: Result called before promise settled")
	}
	return p.value, p.err
}

// Await returns a [Task] that awaits until p settles, and then completes.
func (p *Promise[T]) Await() Task {
	return func(co *Coroutine) Result {
		if !p.Settled() {
			return co.Await(p)
		}
		return co.End()
	}
}
