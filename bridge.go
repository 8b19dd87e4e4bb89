package runloop

import "context"

// A Job describes a unit of asynchronous work producing a value of type T.
//
// A Job is a [Task] function that also receives the [Promise] it must
// settle: resolve it with a value, or reject it with a failure, possibly
// after any number of cooperative suspensions. A Job does not start
// executing until the loop runs it, and it is run at most once per
// submission.
//
// The simplest jobs come from [Call]. A suspending job watches events the
// usual way:
//
//	func fetch(co *runloop.Coroutine, p *runloop.Promise[string]) runloop.Result {
//		return co.Switch(runloop.Sleep(time.Second).Then(runloop.Do(func() {
//			p.Resolve("done")
//		})))
//	}
type Job[T any] func(co *Coroutine, p *Promise[T]) Result

// Call lifts a plain function into a [Job] that settles its promise with
// the function's return values and then completes.
//
// If f blocks, the whole loop blocks with it; f should be quick, or the
// job should be written against events instead.
func Call[T any](f func() (T, error)) Job[T] {
	return func(co *Coroutine, p *Promise[T]) Result {
		v, err := f()
		if err != nil {
			p.Reject(err)
		} else {
			p.Resolve(v)
		}
		return co.End()
	}
}

// bind ties a job to its promise as a single [Task]:
//
//   - the job runs first, free to yield and switch as it pleases;
//   - if the job's coroutine ends without settling the promise, the
//     promise is rejected with [ErrNoResult] so the caller never hangs.
//     The coroutine's end hook, not a trailing task, carries the guard:
//     a job that yields with nothing watched ends without its task tree
//     ever completing, and the hook is the only path that still runs;
//   - a panic anywhere in the tree rejects the promise with the captured
//     [PanicError], unless the promise was already settled, in which case
//     the panic surfaces through the executor instead.
func bind[T any](job Job[T], p *Promise[T]) Task {
	guard := func() {
		if !p.Settled() {
			p.Reject(ErrNoResult)
		}
	}
	// The Chain closure, not the job's own task, stays the coroutine's
	// current Task across yields and switches, keeping every resumption
	// inside the catch below.
	t := Chain(func(co *Coroutine) Result { return job(co, p) })
	return func(co *Coroutine) Result {
		co.onEnd = guard
		var res Result
		if pe := catch(func() { res = t(co) }); pe != nil {
			if p.Settled() {
				panic(pe)
			}
			p.Reject(pe)
			return co.End()
		}
		return res
	}
}

// Dispatch submits job to lp without blocking and returns the [Promise]
// the job will settle.
//
// Dispatch is safe from any goroutine, including the loop's own carrier:
// it is the escape hatch for re-entrant callers, who await the promise
// with [Promise.Await] instead of blocking on it.
func Dispatch[T any](lp *Loop, job Job[T]) (*Promise[T], error) {
	p := NewPromise[T]()
	if err := lp.Submit(bind(job, p)); err != nil {
		return nil, err
	}
	return p, nil
}

// RunOn submits job to lp and blocks the calling goroutine until the job
// settles, returning the value or the failure exactly as the job produced
// it.
//
// If the calling goroutine is already driving an [Executor] — it is the
// loop's own carrier, or it hosts a loop of its own — blocking here would
// deadlock that executor. RunOn detects this and returns [ErrReentrant]
// immediately, with job untouched and unstarted; the caller still holds
// job and should go through [Dispatch] instead.
//
// After shutdown of lp has been requested, RunOn fails fast with
// [ErrShutdown].
func RunOn[T any](lp *Loop, job Job[T]) (T, error) {
	if Current() != nil {
		var zero T
		return zero, ErrReentrant
	}

	p, err := Dispatch(lp, job)
	if err != nil {
		var zero T
		return zero, err
	}

	<-p.Done()
	return p.Result()
}

// RunOnContext is [RunOn] with a deadline on the wait.
//
// When ctx expires first, RunOnContext detaches from the promise and
// returns ctx.Err(). The job is not interrupted — a cooperative run loop
// cannot be stopped mid-suspension unless the work itself cooperates —
// it keeps running on the loop and settles a promise nobody reads.
func RunOnContext[T any](ctx context.Context, lp *Loop, job Job[T]) (T, error) {
	if Current() != nil {
		var zero T
		return zero, ErrReentrant
	}

	p, err := Dispatch(lp, job)
	if err != nil {
		var zero T
		return zero, err
	}

	select {
	case <-p.Done():
		return p.Result()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Run submits job to the process-wide default [Loop] and blocks until it
// settles. See [RunOn].
func Run[T any](job Job[T]) (T, error) {
	return RunOn(Default(), job)
}

// RunContext is [Run] with a deadline on the wait. See [RunOnContext].
func RunContext[T any](ctx context.Context, job Job[T]) (T, error) {
	return RunOnContext(ctx, Default(), job)
}

// Blocking wraps job as an ordinary blocking function running on the
// default [Loop].
//
// It is composition sugar over [Run], nothing more: handy when an API
// wants a plain func() (T, error) it can call from synchronous code.
func Blocking[T any](job Job[T]) func() (T, error) {
	return func() (T, error) {
		return Run(job)
	}
}
