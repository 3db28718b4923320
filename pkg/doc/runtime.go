package doc

import "context"

// TaskID identifies one asynchronous task registered with the host for the
// duration of a single entry-point invocation.
type TaskID int64

// FetchCredentials carries optional basic-auth credentials for a fetch task.
type FetchCredentials struct {
	Username string
	Password string
}

// Host is the capability surface the driver exposes to executing document
// functions. All calls happen on the single logical execution thread; only
// the work spawned through SpawnFetch runs off it, and its result is merged
// back strictly through Await.
type Host interface {
	// Context returns the invocation context; execution must stop when it
	// is cancelled.
	Context() context.Context

	// Print appends one line to the invocation's ordered output.
	Print(line string)

	// Errorln appends one line to the invocation's ordered error output.
	Errorln(line string)

	// SpawnFetch registers an asynchronous remote fetch and returns its
	// task identifier. The fetch body is decoded per its content type and
	// surfaced as document data when awaited.
	SpawnFetch(url string, creds *FetchCredentials) (TaskID, error)

	// SpawnCall registers a cooperative document task. The callable runs
	// on the logical execution thread once it is scheduled; it must never
	// be run concurrently with other document logic.
	SpawnCall(name string, call func(ctx context.Context) (any, error)) (TaskID, error)

	// Await blocks the logical thread until the task resolves, letting
	// other ready tasks of the same execution context progress meanwhile.
	Await(id TaskID) (any, error)
}
