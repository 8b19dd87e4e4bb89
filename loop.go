package runloop

import (
	"context"
	"sync"

	"code.hybscloud.com/atomix"
)

// Loop lifecycle states. A loop only ever moves forward:
// idle -> starting -> running -> stopping -> stopped.
const (
	loopIdle = iota
	loopStarting
	loopRunning
	loopStopping
	loopStopped
)

// A Loop owns a single-threaded [Executor] and the one carrier goroutine
// that drives it for as long as the loop lives.
//
// The zero Loop is ready to use: the carrier goroutine is started lazily,
// exactly once, by the first call to Submit (or any of the bridge
// functions), no matter how many goroutines race to be first.
// A Loop, once shut down, stays shut down; there is no restart.
//
// Most programs want exactly one loop for their whole lifetime and should
// use [Default]. Constructing a separate Loop is for tests and for hosts
// that deliberately isolate workloads.
//
// A [Task] that panics outside a bridged [Job] takes the carrier goroutine
// down, and with it the process, just as an unrecovered panic in any other
// goroutine would.
type Loop struct {
	once  sync.Once
	mu    sync.Mutex    // serializes submissions against shutdown; guards state
	state atomix.Uint32 // written inside once (start) or under mu thereafter
	exec  Executor
	wake  chan struct{}
	quit  chan struct{}
	done  chan struct{}
}

// start brings up the carrier goroutine, exactly once.
//
// Spawning a goroutine cannot fail, so unlike runtimes where thread
// creation can, there is no startup-failure branch to surface here.
func (lp *Loop) start() {
	lp.once.Do(func() {
		lp.state.Store(loopStarting)
		lp.wake = make(chan struct{}, 1)
		lp.quit = make(chan struct{})
		lp.done = make(chan struct{})
		lp.exec.Autorun(func() {
			// A capacity-1 token channel: if the carrier already has
			// a pending wake-up, another is redundant.
			select {
			case lp.wake <- struct{}{}:
			default:
			}
		})
		go lp.carry()
		lp.state.Store(loopRunning)
	})
}

// carry is the carrier goroutine: it drives the executor's run loop until
// a stop is requested, then drains the queue one final time and exits.
func (lp *Loop) carry() {
	defer close(lp.done)
	// The stopped transition must happen under lp.mu: Submit and Shutdown
	// read state under the same mutex, and a relaxed store from another
	// goroutine would race them.
	defer func() {
		lp.mu.Lock()
		lp.state.Store(loopStopped)
		lp.mu.Unlock()
	}()

	for {
		select {
		case <-lp.wake:
			lp.exec.Run()
		case <-lp.quit:
			lp.exec.Run()
			return
		}
	}
}

// Executor returns the executor driven by lp's carrier goroutine.
//
// It is intended for identity comparisons and for Event documentation
// purposes ("must not be shared by more than one Executor"); scheduling
// work should go through Submit so that shutdown is honored.
func (lp *Loop) Executor() *Executor {
	return &lp.exec
}

// Submit hands t to the loop for execution, starting the carrier goroutine
// first if this is the loop's first use.
//
// Submit is safe for concurrent use from any goroutine and never blocks on
// the work itself. After shutdown has been requested, Submit fails fast
// with [ErrShutdown]; a submission that won the race against shutdown is
// guaranteed to be drained by the carrier before it exits.
func (lp *Loop) Submit(t Task) error {
	lp.start()

	lp.mu.Lock()
	defer lp.mu.Unlock()

	if lp.state.Load() >= loopStopping {
		return ErrShutdown
	}

	lp.exec.Spawn(t)
	return nil
}

// Shutdown requests a cooperative stop of the carrier goroutine and waits
// for it to exit, but only as long as ctx allows.
//
// Shutdown is idempotent. It does not interrupt work already running on
// the loop; the carrier drains its queue once more and returns. Coroutines
// still suspended at that point are abandoned, so a [Job] sleeping across
// shutdown never settles its promise — callers that must bound their wait
// should use [RunContext].
//
// Shutdown never blocks past ctx: if the carrier does not exit in time,
// Shutdown returns ctx.Err() and leaves the carrier to finish on its own.
// Either way, every later submission fails with [ErrShutdown].
func (lp *Loop) Shutdown(ctx context.Context) error {
	lp.start()

	lp.mu.Lock()
	if lp.state.Load() < loopStopping {
		lp.state.Store(loopStopping)
		close(lp.quit)
	}
	lp.mu.Unlock()

	select {
	case <-lp.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var defaultLoop Loop

// Default returns the process-wide [Loop] shared by [Run], [RunContext]
// and [Blocking]. It is created lazily on first use and lives until
// [Shutdown] or process exit, whichever comes first.
func Default() *Loop {
	return &defaultLoop
}

// Shutdown shuts down the process-wide default [Loop].
// See [Loop.Shutdown].
func Shutdown(ctx context.Context) error {
	return defaultLoop.Shutdown(ctx)
}
