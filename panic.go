package runloop

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// A PanicError carries a value recovered from a panicking [Task], along
// with the stack trace captured at the point of the panic.
//
// Panics inside a bridged [Job] reject the job's [Promise] with
// a *PanicError; panics inside any other Task are rethrown by
// [Executor.Run] after the queue is emptied.
type PanicError struct {
	value any
	stack []byte
}

// Value returns the value the task panicked with.
func (e *PanicError) Value() any {
	return e.value
}

// Stack returns the stack trace captured when the panic was recovered.
func (e *PanicError) Stack() []byte {
	return e.stack
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v\n\n%s", e.value, e.stack)
}

// Unwrap returns the panic value if it is an error, so that errors.Is and
// errors.As see through to the original failure.
func (e *PanicError) Unwrap() error {
	if err, ok := e.value.(error); ok {
		return err
	}
	return nil
}

// panictrap collects panics recovered from tasks so that a run can drain
// its queue before rethrowing.
type panictrap struct {
	errs []error
}

// Try calls f, catching a panic into the trap.
// It reports whether f returned normally.
func (pt *panictrap) Try(f func()) (ok bool) {
	defer func() {
		if !ok {
			v := recover()
			if v == nil {
				panic("runloop: runtime.Goexit is not supported in a Task")
			}
			pt.errs = append(pt.errs, &PanicError{value: v, stack: debug.Stack()})
		}
	}()
	f()
	return true
}

// Rethrow panics with the collected errors, if any, and resets the trap.
func (pt *panictrap) Rethrow() {
	errs := pt.errs
	if len(errs) == 0 {
		return
	}
	pt.errs = nil
	if len(errs) == 1 {
		panic(errs[0])
	}
	panic(errors.Join(errs...))
}

// catch calls f and returns the recovered panic, if any, without parking
// it in a trap. Used by the bridge to turn a job panic into a rejection.
func catch(f func()) (pe *PanicError) {
	defer func() {
		if v := recover(); v != nil {
			pe = &PanicError{value: v, stack: debug.Stack()}
		}
	}()
	f()
	return nil
}
