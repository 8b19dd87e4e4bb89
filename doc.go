// Package runloop keeps one long-lived, single-threaded run loop alive for
// the whole process and lets blocking goroutines hand asynchronous work to
// it, waiting until a value or a failure comes back.
//
// # Why a Persistent Loop
//
// Some clients, network and TLS clients in particular, attach cleanup
// callbacks to the execution context that created them.
// If that context is torn down before the callbacks run, cleanup fails with
// a context-disposed error.
// Creating and destroying a context around every call is therefore not just
// wasteful, it is wrong.
// The fix is architectural: create exactly one context, keep it alive for
// the process lifetime, and route every asynchronous operation through it.
//
// A [Loop] is that context.
// It owns a single-threaded cooperative [Executor] and a single carrier
// goroutine that drives it.
// The loop is created lazily, on first use, exactly once, no matter how many
// goroutines race to use it first.
// [Default] returns the process-wide loop; tests and embedders can construct
// their own [Loop] instances instead.
//
// # Bridging Blocking Callers
//
// A unit of work is a [Job]: a not-yet-started computation that eventually
// settles a [Promise] with a value or a failure, and may suspend
// cooperatively as often as it likes.
// [Run] (or [RunOn], for a specific loop) submits a job to the loop and
// blocks the calling goroutine until the job settles, then returns the value
// or the original failure. Failures come back as the very error value the
// job produced, never rewrapped, never swallowed.
//
//	n, err := runloop.Run(runloop.Call(func() (int, error) {
//		return 42, nil
//	}))
//
// Many goroutines may call [Run] concurrently.
// Each gets its own [Promise]; all jobs share the one loop, interleaving on
// its single carrier goroutine via cooperative suspension.
//
// # Re-Entrancy
//
// Calling [Run] from a goroutine that is already driving an executor — the
// persistent loop's own carrier included — would deadlock the loop against
// itself.
// [Run] detects this and returns [ErrReentrant] immediately, with the job
// untouched and unstarted.
// Such callers are themselves asynchronous; they should use [Dispatch] to
// submit the job without blocking and await the returned promise:
//
//	p, err := runloop.Dispatch(lp, job)
//	// ... in a Task function:
//	return co.Switch(p.Await().Then(handleResult))
//
// [Current] reports the executor the calling goroutine is driving, if any.
//
// # Shutdown
//
// The carrier goroutine never prevents process exit.
// Hosts that want orderly teardown call [Loop.Shutdown] (or the package
// [Shutdown], for the default loop), which requests a cooperative stop,
// drains the queue once, and waits only as long as the given context
// allows.
// After shutdown has been requested, submissions fail fast with
// [ErrShutdown]; they are never silently dropped and never hang.
//
// # The Runtime Underneath
//
// The cooperative runtime is deliberately small.
// An [Executor] runs [Coroutine] values in a single-threaded manner; a
// coroutine works on a [Task] function whose [Result] tells it to end, to
// yield, or to switch to another task.
// Coroutines suspend by watching an [Event] — a [Signal], a [State], a
// [WaitGroup], a [Semaphore] waiter, or a settling [Promise] — and resume
// when it notifies.
// If one task blocks, no other tasks can run.
// The best practice is not to block: use [Sleep] instead of time.Sleep,
// promises instead of channels.
package runloop
