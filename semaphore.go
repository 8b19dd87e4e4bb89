package runloop

import "slices"

// Semaphore provides a way to bound asynchronous access to a resource.
// The callers can request access with a given weight.
//
// A typical use is capping how many bridged jobs may be in flight on
// a [Loop] at once: acquire before dispatching the real work, release
// when the job settles.
//
// Note that this Semaphore type does not provide backpressure for
// spawning a lot of coroutines. One should instead look for a sync
// implementation.
//
// A Semaphore must not be shared by more than one [Executor].
type Semaphore struct {
	size    int64
	cur     int64
	waiters []*waiter
}

// NewSemaphore creates a new weighted semaphore with the given maximum
// combined weight.
func NewSemaphore(n int64) *Semaphore {
	return &Semaphore{size: n}
}

// Acquire returns a [Task] that awaits until a weight of n is acquired
// from the semaphore, and then completes.
func (s *Semaphore) Acquire(n int64) Task {
	if n < 0 {
		panic("runloop(Semaphore): negative weight")
	}
	return func(co *Coroutine) Result {
		if s.size-s.cur < n {
			if n > s.size {
				return co.Await() // Impossible to succeed.
			}
			w := &waiter{s: s, n: n}
			s.waiters = append(s.waiters, w)
			co.CleanupFunc(w.cleanup)
			co.Watch(w)
			return co.Yield(Nop())
		}
		s.cur += n
		return co.End()
	}
}

// Release releases the semaphore with a weight of n.
//
// One should only call this method in a [Task] function.
func (s *Semaphore) Release(n int64) {
	if n < 0 {
		panic("runloop(Semaphore): negative weight")
	}
	if s.cur >= 0 {
		s.cur -= n
	}
	if s.cur < 0 {
		panic("runloop(Semaphore): released more than held")
	}
	s.notifyWaiters()
}

func (s *Semaphore) notifyWaiters() {
	n := 0
	for _, w := range s.waiters {
		if s.size-s.cur < w.n {
			break
		}
		s.cur += w.n
		w.n = 0
		w.Notify()
		n++
	}
	s.waiters = slices.Delete(s.waiters, 0, n)
}

type waiter struct {
	Signal
	s *Semaphore
	n int64
}

// cleanup drops w from the wait list when the awaiting coroutine moves on
// without having been granted its weight.
func (w *waiter) cleanup() {
	if w.n != 0 {
		w.s.removeWaiter(w)
	}
	w.s = nil
}

func (s *Semaphore) removeWaiter(w *waiter) {
	if i := slices.Index(s.waiters, w); i != -1 {
		s.waiters = slices.Delete(s.waiters, i, i+1)
	}
}
