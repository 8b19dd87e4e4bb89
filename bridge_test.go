package runloop_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomwis/runloop"
)

// timeoutError mimics a net-style timeout failure so that tests can assert
// the failure kind survives the bridge untouched.
type timeoutError struct{ msg string }

func (e *timeoutError) Error() string { return e.msg }
func (e *timeoutError) Timeout() bool { return true }

func newLoop(t *testing.T) *runloop.Loop {
	t.Helper()
	lp := new(runloop.Loop)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = lp.Shutdown(ctx)
	})
	return lp
}

func TestRunValue(t *testing.T) {
	lp := newLoop(t)

	v, err := runloop.RunOn(lp, runloop.Call(func() (int, error) {
		return 42, nil
	}))
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

func TestRunExactlyOnce(t *testing.T) {
	lp := newLoop(t)

	var calls int

	_, err := runloop.RunOn(lp, runloop.Call(func() (int, error) {
		calls++
		return calls, nil
	}))
	require.NoError(t, err)
	require.Equal(t, 1, calls, "job must execute exactly once per call")
}

func TestRunFailureIdentity(t *testing.T) {
	lp := newLoop(t)

	want := &timeoutError{msg: "operation timed out"}

	_, err := runloop.RunOn(lp, runloop.Call(func() (int, error) {
		return 0, want
	}))
	require.Error(t, err)
	assert.Same(t, want, err, "failure must propagate verbatim, not rewrapped")

	var te interface{ Timeout() bool }
	require.ErrorAs(t, err, &te)
	assert.True(t, te.Timeout())
	assert.Equal(t, "operation timed out", err.Error())
}

func TestRunJobPanic(t *testing.T) {
	lp := newLoop(t)

	t.Run("ErrorValue", func(t *testing.T) {
		cause := errors.New("underlying failure")

		_, err := runloop.RunOn(lp, func(co *runloop.Coroutine, p *runloop.Promise[int]) runloop.Result {
			panic(cause)
		})
		require.Error(t, err)

		var pe *runloop.PanicError
		require.ErrorAs(t, err, &pe)
		assert.ErrorIs(t, err, cause, "PanicError must unwrap to the original error")
	})
	t.Run("PlainValue", func(t *testing.T) {
		_, err := runloop.RunOn(lp, func(co *runloop.Coroutine, p *runloop.Promise[int]) runloop.Result {
			panic("boom")
		})
		require.Error(t, err)

		var pe *runloop.PanicError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "boom", pe.Value())
		assert.NotEmpty(t, pe.Stack())
	})
}

func TestRunJobWithoutResult(t *testing.T) {
	lp := newLoop(t)

	t.Run("Ends", func(t *testing.T) {
		_, err := runloop.RunOn(lp, func(co *runloop.Coroutine, p *runloop.Promise[int]) runloop.Result {
			return co.End() // never settles p
		})
		require.ErrorIs(t, err, runloop.ErrNoResult)
	})
	t.Run("YieldsNothingWatched", func(t *testing.T) {
		// A yield with no watched events and no inner coroutines ends the
		// coroutine without its task tree completing; the caller must still
		// get a rejection, not a hang.
		_, err := runloop.RunOn(lp, func(co *runloop.Coroutine, p *runloop.Promise[int]) runloop.Result {
			return co.Await()
		})
		require.ErrorIs(t, err, runloop.ErrNoResult)
	})
	t.Run("YieldsTaskNothingWatched", func(t *testing.T) {
		_, err := runloop.RunOn(lp, func(co *runloop.Coroutine, p *runloop.Promise[int]) runloop.Result {
			return co.Yield(runloop.Nop())
		})
		require.ErrorIs(t, err, runloop.ErrNoResult)
	})
}

func TestRunConcurrentSleepers(t *testing.T) {
	lp := newLoop(t)

	const n = 10

	var (
		mu   sync.Mutex
		seen = make(map[*runloop.Executor]struct{})
	)

	sleeper := func(i int) runloop.Job[int] {
		return func(co *runloop.Coroutine, p *runloop.Promise[int]) runloop.Result {
			mu.Lock()
			seen[co.Executor()] = struct{}{}
			mu.Unlock()
			return co.Switch(runloop.Sleep(50 * time.Millisecond).Then(runloop.Do(func() {
				p.Resolve(i)
			})))
		}
	}

	var (
		wg      sync.WaitGroup
		results [n]int
		errs    [n]error
	)

	start := time.Now()
	for i := range n {
		wg.Go(func() {
			results[i], errs[i] = runloop.RunOn(lp, sleeper(i))
		})
	}
	wg.Wait()
	elapsed := time.Since(start)

	for i := range n {
		require.NoError(t, errs[i])
		assert.Equal(t, i, results[i], "result must reach the goroutine that submitted it")
	}

	// All sleepers suspend on the same carrier; serialized execution would
	// take n*50ms.
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, time.Duration(n)*50*time.Millisecond/2,
		"sleepers did not overlap on the loop")

	assert.Len(t, seen, 1, "all jobs must share a single executor")
	_, ok := seen[lp.Executor()]
	assert.True(t, ok, "jobs ran on a foreign executor")
}

func TestRunReentrantInsideLoop(t *testing.T) {
	lp := newLoop(t)

	v, err := runloop.RunOn(lp, func(co *runloop.Coroutine, p *runloop.Promise[error]) runloop.Result {
		// A nested blocking call against the very loop we are running on
		// must be refused, not deadlock the carrier against itself.
		_, nested := runloop.RunOn(lp, runloop.Call(func() (int, error) { return 0, nil }))
		p.Resolve(nested)
		return co.End()
	})
	require.NoError(t, err)
	require.ErrorIs(t, v, runloop.ErrReentrant)
}

func TestRunReentrantInsideForeignExecutor(t *testing.T) {
	var myExecutor runloop.Executor

	myExecutor.Autorun(myExecutor.Run)

	errc := make(chan error, 1)

	myExecutor.Spawn(runloop.Do(func() {
		_, err := runloop.Run(runloop.Call(func() (int, error) { return 0, nil }))
		errc <- err
	}))

	require.ErrorIs(t, <-errc, runloop.ErrReentrant)
}

func TestDispatchEscapeHatch(t *testing.T) {
	lp := newLoop(t)

	v, err := runloop.RunOn(lp, func(co *runloop.Coroutine, p *runloop.Promise[int]) runloop.Result {
		inner, err := runloop.Dispatch(lp, runloop.Call(func() (int, error) {
			return 7, nil
		}))
		if err != nil {
			p.Reject(err)
			return co.End()
		}
		return co.Switch(inner.Await().Then(runloop.Do(func() {
			v, err := inner.Result()
			if err != nil {
				p.Reject(err)
				return
			}
			p.Resolve(v * 6)
		})))
	})
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

func TestDispatch(t *testing.T) {
	lp := newLoop(t)

	p, err := runloop.Dispatch(lp, runloop.Call(func() (string, error) {
		return "hello", nil
	}))
	require.NoError(t, err)

	<-p.Done()
	require.True(t, p.Settled())

	v, err := p.Result()
	require.NoError(t, err)
	require.Equal(t, "hello", v)
}

func TestRunContextDetach(t *testing.T) {
	lp := newLoop(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := runloop.RunOnContext(ctx, lp, func(co *runloop.Coroutine, p *runloop.Promise[int]) runloop.Result {
		return co.Switch(runloop.Sleep(500 * time.Millisecond).Then(runloop.Do(func() {
			p.Resolve(1)
		})))
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// Detaching must not wedge the loop for later callers.
	v, err := runloop.RunOn(lp, runloop.Call(func() (int, error) { return 2, nil }))
	require.NoError(t, err)
	require.Equal(t, 2, v)
}

func TestBlocking(t *testing.T) {
	double := runloop.Blocking(runloop.Call(func() (int, error) {
		return 21 * 2, nil
	}))

	v, err := double()
	require.NoError(t, err)
	require.Equal(t, 42, v)
}
