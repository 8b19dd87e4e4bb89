package runloop_test

import (
	"errors"
	"testing"
	"time"

	"github.com/tomwis/runloop"
)

func TestExecutorFIFO(t *testing.T) {
	var myExecutor runloop.Executor

	myExecutor.Autorun(myExecutor.Run)

	var order []string

	myExecutor.Spawn(runloop.Do(func() {
		myExecutor.Spawn(runloop.Do(func() { order = append(order, "a") }))
		myExecutor.Spawn(runloop.Do(func() { order = append(order, "b") }))
		myExecutor.Spawn(runloop.Do(func() { order = append(order, "c") }))
	}))

	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Fatal("coroutines did not run in arrival order:", order)
	}
}

func TestStateWatch(t *testing.T) {
	var myExecutor runloop.Executor

	myExecutor.Autorun(myExecutor.Run)

	s := runloop.NewState(1)

	var got []int

	myExecutor.Spawn(func(co *runloop.Coroutine) runloop.Result {
		got = append(got, s.Get())
		return co.Await(s)
	})

	myExecutor.Spawn(runloop.Do(func() { s.Set(2) }))
	myExecutor.Spawn(runloop.Do(func() { s.Set(3) }))

	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatal("state updates did not resume the watcher:", got)
	}
}

func TestInnerCoroutineEnded(t *testing.T) {
	var myExecutor runloop.Executor

	myExecutor.Autorun(myExecutor.Run)

	var sig, stop runloop.Signal

	var n int

	myExecutor.Spawn(func(co *runloop.Coroutine) runloop.Result {
		co.Spawn(func(co *runloop.Coroutine) runloop.Result {
			n++
			return co.Await(&sig)
		})
		co.Watch(&stop)
		return co.Yield(runloop.Nop())
	})

	if n != 1 {
		t.Fatal("inner coroutine did not run immediately")
	}

	myExecutor.Spawn(runloop.Do(sig.Notify))

	if n != 2 {
		t.Fatal("inner coroutine did not resume on notify")
	}

	// Resuming the outer coroutine ends the inner one.
	myExecutor.Spawn(runloop.Do(stop.Notify))
	myExecutor.Spawn(runloop.Do(sig.Notify))

	if n != 2 {
		t.Fatal("inner coroutine survived its outer resuming")
	}
}

func TestCurrentNestedExecutors(t *testing.T) {
	var outer, inner runloop.Executor

	var during, after *runloop.Executor

	outer.Autorun(outer.Run)

	outer.Spawn(runloop.Do(func() {
		inner.Spawn(runloop.Do(func() { during = runloop.Current() }))
		inner.Run()
		after = runloop.Current()
	}))

	if during != &inner {
		t.Fatal("Current did not report the inner executor while it ran")
	}
	// Leaving the inner run must restore the outer registration, not
	// drop it.
	if after != &outer {
		t.Fatal("Current forgot the outer executor after the inner run returned")
	}
}

func TestWaitGroup(t *testing.T) {
	var myExecutor runloop.Executor

	myExecutor.Autorun(myExecutor.Run)

	var wg runloop.WaitGroup

	var done bool

	myExecutor.Spawn(runloop.Do(func() { wg.Add(2) }))
	myExecutor.Spawn(wg.Await().Then(runloop.Do(func() { done = true })))
	myExecutor.Spawn(runloop.Do(wg.Done))

	if done {
		t.Fatal("Await completed with a positive counter")
	}

	myExecutor.Spawn(runloop.Do(wg.Done))

	if !done {
		t.Fatal("Await did not complete when the counter became zero")
	}
}

func TestSemaphore(t *testing.T) {
	var myExecutor runloop.Executor

	myExecutor.Autorun(myExecutor.Run)

	sema := runloop.NewSemaphore(1)

	var order []string

	myExecutor.Spawn(runloop.Chain(
		sema.Acquire(1),
		runloop.Do(func() { order = append(order, "a") }),
	))
	myExecutor.Spawn(runloop.Chain(
		sema.Acquire(1),
		runloop.Do(func() { order = append(order, "b") }),
	))

	if len(order) != 1 || order[0] != "a" {
		t.Fatal("semaphore did not serialize acquisitions:", order)
	}

	myExecutor.Spawn(runloop.Do(func() { sema.Release(1) }))

	if len(order) != 2 || order[1] != "b" {
		t.Fatal("release did not grant the waiter:", order)
	}
}

func TestExecutorRethrowsPanic(t *testing.T) {
	var myExecutor runloop.Executor

	myExecutor.Spawn(runloop.Do(func() { panic("boom") }))

	defer func() {
		v := recover()
		if v == nil {
			t.Fatal("Run did not rethrow the task panic")
		}
		var pe *runloop.PanicError
		if !errors.As(v.(error), &pe) {
			t.Fatal("rethrown value is not a PanicError:", v)
		}
		if pe.Value() != "boom" {
			t.Fatal("panic value did not round-trip:", pe.Value())
		}
	}()

	myExecutor.Run()
}

func TestSleep(t *testing.T) {
	var myExecutor runloop.Executor

	myExecutor.Autorun(func() { go myExecutor.Run() })

	done := make(chan struct{})
	start := time.Now()

	myExecutor.Spawn(runloop.Chain(
		runloop.Sleep(50*time.Millisecond),
		runloop.Do(func() { close(done) }),
	))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Sleep never completed")
	}

	if d := time.Since(start); d < 50*time.Millisecond {
		t.Fatal("Sleep completed too early:", d)
	}
}
