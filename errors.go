package runloop

import "errors"

var (
	// ErrReentrant reports that a blocking call was made from a goroutine
	// that is already driving an [Executor].
	// The job was not started; the caller should stay asynchronous and use
	// [Dispatch] plus [Promise.Await] instead.
	ErrReentrant = errors.New("runloop: blocking call inside a running executor")

	// ErrShutdown reports that a submission was attempted after shutdown
	// of the [Loop] had been requested.
	ErrShutdown = errors.New("runloop: loop has been shut down")

	// ErrNoResult reports that a [Job] ended without settling its
	// [Promise]. The bridge rejects the promise with it rather than
	// leaving the caller blocked forever.
	ErrNoResult = errors.New("runloop: job ended without settling its promise")
)
