package runloop

import (
	"sync"

	"github.com/petermattis/goid"
)

// An Executor is a [Coroutine] spawner, and a Coroutine runner.
//
// When a Coroutine is spawned or resumed, it is added into an internal
// queue. The Run method then pops and runs each of them from the queue
// until the queue is emptied.
// It is done in a single-threaded manner.
// If one Coroutine blocks, no other Coroutines can run.
// The best practice is not to block.
//
// The internal queue is a plain FIFO: coroutines run in arrival order,
// with no fairness or priority guarantees beyond that.
//
// Manually calling the Run method is usually not desired.
// One would instead use the Autorun method to set up an autorun function
// calling the Run method automatically whenever a Coroutine is spawned or
// resumed. The Executor never calls the autorun function twice at the same
// time. A [Loop] does exactly this, feeding a wake token to its carrier
// goroutine.
type Executor struct {
	mu      sync.Mutex
	q       queue[*Coroutine]
	running bool
	autorun func()
	pool    sync.Pool
	trap    panictrap
}

// Autorun sets up an autorun function to call the Run method automatically
// whenever a [Coroutine] is spawned or resumed.
//
// One must pass a function that causes the Run method to be called.
//
// If f blocks, the Spawn method may block too.
// The best practice is not to block.
func (e *Executor) Autorun(f func()) {
	e.autorun = f
}

// Run pops and runs every [Coroutine] in the queue until the queue is
// emptied.
//
// While Run is executing, the calling goroutine is registered as driving e,
// so that [Current] can detect re-entrant blocking calls made from within
// a [Task] function.
//
// If any [Task] panics, Run rethrows after the queue is emptied, carrying
// a [PanicError] per panic (joined when there are several).
//
// Run must not be called twice at the same time.
func (e *Executor) Run() {
	gid := goid.Get()
	prev := enter(gid, e)
	defer leave(gid, prev)

	e.mu.Lock()
	e.running = true

	for !e.q.Empty() {
		co := e.q.Pop()
		e.runCoroutine(co)
	}

	e.running = false
	e.mu.Unlock()

	e.trap.Rethrow()
}

// Spawn creates a [Coroutine] to work on t.
//
// The Coroutine is added in a queue. To run it, either call the Run method,
// or call the Autorun method to set up an autorun function beforehand.
//
// Spawn is safe for concurrent use from any goroutine. It is the one
// scheduling primitive that may cross goroutine boundaries; everything
// else in this package belongs to the executor's own goroutine.
func (e *Executor) Spawn(t Task) {
	co := e.newCoroutine().init(e, t).recyclable()
	e.resumeCoroutine(co)
}

func (e *Executor) resumeCoroutine(co *Coroutine) {
	var autorun func()

	e.mu.Lock()

	if !e.running && e.autorun != nil {
		e.running = true
		autorun = e.autorun
	}

	e.q.Push(co)
	e.mu.Unlock()

	if autorun != nil {
		autorun()
	}
}

// drivers tracks, per goroutine, the executor that goroutine is currently
// driving. Read by Current for re-entrancy detection.
var drivers sync.Map // int64 (goroutine id) -> *Executor

// enter registers e as the executor gid is driving and returns the one it
// was driving before, if any. Runs nest: a task may drive another
// executor's Run on the same goroutine, and leave must restore the outer
// registration rather than drop it.
func enter(gid int64, e *Executor) (prev *Executor) {
	if v, ok := drivers.Load(gid); ok {
		prev = v.(*Executor)
	}
	drivers.Store(gid, e)
	return prev
}

func leave(gid int64, prev *Executor) {
	if prev != nil {
		drivers.Store(gid, prev)
	} else {
		drivers.Delete(gid)
	}
}

// Current returns the [Executor] the calling goroutine is driving, that is,
// the executor whose Run method is below the caller on the calling
// goroutine's stack.
// It returns nil if the goroutine is not driving any executor.
//
// A non-nil result means the caller is already inside a running
// asynchronous context: blocking on that same context would deadlock it.
// [Run] and friends consult Current and bail out with [ErrReentrant]
// instead.
func Current() *Executor {
	if v, ok := drivers.Load(goid.Get()); ok {
		return v.(*Executor)
	}
	return nil
}
