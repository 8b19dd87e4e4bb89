package runloop

import "time"

// Sleep returns a [Task] that completes after d has elapsed.
//
// Unlike time.Sleep, it suspends only the coroutine that runs it; the rest
// of the loop keeps going. The underlying timer is stopped if the
// coroutine moves on before it fires.
func Sleep(d time.Duration) Task {
	return func(co *Coroutine) Result {
		var sig Signal
		e := co.Executor()
		tm := time.AfterFunc(d, func() { e.Spawn(Do(sig.Notify)) })
		co.CleanupFunc(func() { tm.Stop() })
		co.Watch(&sig)
		return co.Yield(Nop())
	}
}
