package runloop

const (
	doEnd = iota
	doYield
	doSwitch
)

const (
	flagStale = 1 << iota
	flagWoken
	flagEnded
	flagRecyclable
	flagRecycled
)

// A Coroutine is an execution of code, similar to a goroutine but
// cooperative and stackless.
//
// A Coroutine is created with a function called [Task].
// A Coroutine's job is to complete it.
// When an [Executor] spawns a Coroutine, it runs the Coroutine by calling
// the Task function with the Coroutine as the argument.
// The return value determines whether to end the Coroutine or to yield it
// so that it could resume later.
//
// In order for a Coroutine to resume, the Coroutine must watch at least one
// [Event], which could be a [Signal], a [State], a [WaitGroup] or
// a [Promise], when calling the Task function.
// A notification of such an Event resumes the Coroutine.
// When a Coroutine is resumed, the Executor runs the Coroutine again.
//
// A Coroutine can also switch to work on another Task according to the
// return value of the Task function.
// A Coroutine can switch from one Task to another until a Task ends it.
type Coroutine struct {
	executor *Executor
	task     Task
	flag     uint8
	deps     map[Event]bool
	inners   []innerOrFunc
	outer    *Coroutine
	onEnd    func() // fires once when the coroutine ends, however it ends
}

type innerOrFunc struct {
	co *Coroutine
	f  func()
}

func (e *Executor) newCoroutine() *Coroutine {
	if co := e.pool.Get(); co != nil {
		return co.(*Coroutine)
	}
	return new(Coroutine)
}

func (e *Executor) freeCoroutine(co *Coroutine) {
	if co.flag&(flagRecyclable|flagRecycled) == flagRecyclable {
		co.executor = nil
		co.task = nil
		co.flag |= flagRecycled
		co.outer = nil
		e.pool.Put(co)
	}
}

func (co *Coroutine) init(e *Executor, t Task) *Coroutine {
	co.executor = e
	co.task = t
	co.flag = flagStale
	co.onEnd = nil
	return co
}

func (co *Coroutine) recyclable() *Coroutine {
	co.flag |= flagRecyclable
	return co
}

func (co *Coroutine) wake() {
	flag := co.flag
	if flag&flagEnded != 0 {
		return
	}

	if flag&flagWoken != 0 {
		co.flag = flag | flagStale
		return
	}

	co.flag = flag | flagStale | flagWoken
	co.executor.resumeCoroutine(co)
}

func (e *Executor) runCoroutine(co *Coroutine) {
	flag := co.flag
	flag &^= flagWoken
	co.flag = flag

	if flag&flagEnded != 0 {
		e.freeCoroutine(co)
		return
	}

	if flag&flagStale == 0 {
		return
	}

	e.mu.Unlock()
	co.run()
	e.mu.Lock()
}

func (co *Coroutine) run() {
	{
		deps := co.deps
		for d := range deps {
			deps[d] = false
		}
	}

	var res Result

	for {
		co.clearInners()

		co.flag &^= flagStale | flagEnded

		if !co.executor.trap.Try(func() { res = co.task(co) }) {
			// The panic is parked in the executor's trap; the coroutine
			// itself is beyond saving.
			res = Result{action: doEnd}
		}

		if res.task != nil {
			co.task = res.task
		}

		if res.action != doSwitch {
			break
		}

		co.clearDeps()
	}

	if res.action != doEnd {
		deps := co.deps
		for d, inUse := range deps {
			if !inUse {
				delete(deps, d)
				d.removeListener(co)
			}
		}
	}

	if res.action == doEnd || len(co.deps) == 0 && len(co.inners) == 0 {
		co.end()
	}
}

func (co *Coroutine) end() {
	if co.flag&flagEnded != 0 {
		return
	}

	co.flag |= flagEnded

	// A coroutine can end without its current Task ever returning doEnd,
	// by yielding with nothing watched and nothing spawned. The hook is
	// the one place that sees every way out.
	if f := co.onEnd; f != nil {
		co.onEnd = nil
		f()
	}

	co.clearDeps()
	co.clearInners()

	if co.flag&flagWoken == 0 {
		co.executor.freeCoroutine(co)
	}
}

func (co *Coroutine) clearDeps() {
	deps := co.deps
	for d := range deps {
		delete(deps, d)
		d.removeListener(co)
	}
}

func (co *Coroutine) clearInners() {
	inners := co.inners
	co.inners = inners[:0]

	for i := len(inners) - 1; i >= 0; i-- {
		switch v := inners[i]; {
		case v.co != nil:
			// v.co could have been ended and recycled.
			// We need the following check to confirm that v.co is still an
			// inner coroutine of co.
			if v.co.outer == co {
				v.co.end()
			}
		case v.f != nil:
			v.f()
		}
	}

	clear(inners)
}

// Executor returns the [Executor] that spawned co.
//
// Since co can be recycled by an Executor, it is recommended to save
// the return value in a variable first.
func (co *Coroutine) Executor() *Executor {
	return co.executor
}

// Watch watches some Events so that, when any of them notifies, co resumes.
func (co *Coroutine) Watch(s ...Event) {
	deps := co.deps
	if deps == nil {
		deps = make(map[Event]bool)
		co.deps = deps
	}

	for _, d := range s {
		if _, ok := deps[d]; ok {
			deps[d] = true
			continue
		}

		deps[d] = true
		d.addListener(co)
	}
}

// CleanupFunc adds a function call when co resumes or ends, or when co is
// switching to work on another [Task].
func (co *Coroutine) CleanupFunc(f func()) {
	co.inners = append(co.inners, innerOrFunc{f: f})
}

// Spawn creates an inner [Coroutine] to work on t.
//
// Inner Coroutines are ended automatically when the outer one resumes or
// ends, or when the outer one is switching to work on another Task.
func (co *Coroutine) Spawn(t Task) {
	inner := co.executor.newCoroutine().init(co.executor, t).recyclable()
	inner.run()

	if inner.flag&flagEnded == 0 {
		inner.outer = co
		co.inners = append(co.inners, innerOrFunc{co: inner})
	}
}

// Result is the type of the return value of a [Task] function.
// A Result determines what next for a [Coroutine] to do after calling
// a Task function.
//
// A Result can be created by calling one of the following methods of
// Coroutine:
//   - [Coroutine.End]: for ending a Coroutine;
//   - [Coroutine.Await]: for yielding a Coroutine with additional Events
//     to watch;
//   - [Coroutine.Yield]: for yielding a Coroutine with another Task to
//     which will be switched later when resuming;
//   - [Coroutine.Switch]: for switching to another Task.
type Result struct {
	action int
	task   Task
}

// End returns a [Result] that will cause co to end or, in a [Chain],
// to switch to work on the next [Task].
func (co *Coroutine) End() Result {
	return Result{action: doEnd}
}

// Await returns a [Result] that will cause co to yield.
// Await also accepts additional Events to be awaited for.
func (co *Coroutine) Await(s ...Event) Result {
	if len(s) != 0 {
		co.Watch(s...)
	}
	return Result{action: doYield}
}

// Yield returns a [Result] that will cause co to yield.
// t becomes the current Task of co so that, when co is resumed, t is
// called instead.
func (co *Coroutine) Yield(t Task) Result {
	if t == nil {
		panic("runloop: Yield(nil): undefined behavior")
	}
	return Result{action: doYield, task: t}
}

// Switch returns a [Result] that will cause co to switch to work on t.
// co will be reset and t will be called immediately as the current Task
// of co.
func (co *Coroutine) Switch(t Task) Result {
	if t == nil {
		panic("runloop: Switch(nil): undefined behavior")
	}
	return Result{action: doSwitch, task: t}
}

// A Task is a piece of work that a [Coroutine] is given to do when it is
// spawned.
// The return value of a Task, a [Result], determines what next for
// a Coroutine to do.
//
// The argument co must not escape, because co can be recycled by
// an [Executor] when co ends.
type Task func(co *Coroutine) Result

// Chain returns a [Task] that will work on each of the provided Tasks in
// sequence. When one Task completes, Chain works on another.
func Chain(s ...Task) Task {
	var t Task
	return func(co *Coroutine) Result {
		if t == nil {
			if len(s) == 0 {
				return co.End()
			}
			t, s = s[0], s[1:]
		}
		switch res := t(co); res.action {
		case doEnd:
			t = nil
			return Result{action: doSwitch}
		case doYield, doSwitch:
			if res.task != nil {
				t = res.task
			}
			return Result{action: res.action}
		default:
			panic("runloop: internal error: unknown action")
		}
	}
}

// Do returns a [Task] that calls f, and then completes.
func Do(f func()) Task {
	return func(co *Coroutine) Result {
		f()
		return co.End()
	}
}

// Never returns a [Task] that never completes.
// Tasks in a [Chain] after Never are never getting worked on.
func Never() Task {
	return func(co *Coroutine) Result {
		return co.Await()
	}
}

// Nop returns a [Task] that completes without doing anything.
func Nop() Task {
	return (*Coroutine).End
}

// Then returns a [Task] that first works on t, then switches to work on
// next after t completes.
//
// To chain multiple Tasks, use [Chain] function.
func (t Task) Then(next Task) Task {
	if next == nil {
		panic("runloop: Then(nil): undefined behavior")
	}
	return func(co *Coroutine) Result {
		switch res := t(co); res.action {
		case doEnd:
			return Result{action: doSwitch, task: next}
		case doYield, doSwitch:
			if res.task != nil {
				t = res.task
			}
			return Result{action: res.action}
		default:
			panic("runloop: internal error: unknown action")
		}
	}
}
