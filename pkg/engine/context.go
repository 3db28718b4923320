package engine

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/weftlang/weft/pkg/doc"
	"github.com/weftlang/weft/pkg/fetch"
	"github.com/weftlang/weft/pkg/format"
	"github.com/weftlang/weft/pkg/policy"
)

// State of an execution context over its lifecycle.
type State string

const (
	// StateIdle means execution has not started.
	StateIdle State = "idle"

	// StateRunning means document logic is executing on the logical thread.
	StateRunning State = "running"

	// StateSuspended means the logical thread is blocked in Await with no
	// ready document task to progress.
	StateSuspended State = "suspended"

	// StateCompleted means execution settled successfully.
	StateCompleted State = "completed"

	// StateFailed means execution settled with an unrecovered failure.
	StateFailed State = "failed"
)

type taskKind int

const (
	taskFetch taskKind = iota
	taskCall
)

type taskState int

const (
	taskPending taskState = iota
	taskRunning
	taskResolved
)

// task is one registered asynchronous unit of work. Fetch tasks run on their
// own goroutine; call tasks run cooperatively on the logical thread.
type task struct {
	id    doc.TaskID
	name  string
	kind  taskKind
	call  func(ctx context.Context) (any, error)
	done  chan struct{}
	value any
	err   error
	state taskState
}

// ExecutionContext is the per-invocation host for executing document logic.
// It implements doc.Host: it owns the ordered output log, the task registry,
// and the cooperative scheduling of document tasks on the single logical
// thread.
//
// Only fetch tasks touch the context from other goroutines, and only to
// resolve their own entry; everything else happens on the logical thread.
type ExecutionContext struct {
	invocationID string
	ctx          context.Context
	cancel       context.CancelFunc
	logger       zerolog.Logger
	fetcher      fetch.Fetcher
	registry     *format.Registry
	policy       *policy.Engine
	fetchTimeout time.Duration

	mu      sync.Mutex
	state   State
	tasks   map[doc.TaskID]*task
	order   []doc.TaskID
	nextID  doc.TaskID
	events  []OutputEvent
	failure *DriverError
}

// NewExecutionContext builds the host for one invocation. The context is
// cancelled when execution fails, which stops in-flight fetches and any
// still-running document logic.
func NewExecutionContext(ctx context.Context, logger zerolog.Logger, fetcher fetch.Fetcher, registry *format.Registry, pol *policy.Engine) *ExecutionContext {
	cctx, cancel := context.WithCancel(ctx)
	id := uuid.NewString()
	return &ExecutionContext{
		invocationID: id,
		ctx:          cctx,
		cancel:       cancel,
		logger:       logger.With().Str("component", "engine").Str("invocation_id", id).Logger(),
		fetcher:      fetcher,
		registry:     registry,
		policy:       pol,
		state:        StateIdle,
		tasks:        make(map[doc.TaskID]*task),
	}
}

// SetFetchTimeout bounds each fetch task spawned by document logic. Must be
// set before execution starts; zero leaves the fetcher's own timeout in
// charge.
func (ec *ExecutionContext) SetFetchTimeout(d time.Duration) { ec.fetchTimeout = d }

// InvocationID returns the unique identifier of this invocation.
func (ec *ExecutionContext) InvocationID() string { return ec.invocationID }

// Context implements doc.Host.
func (ec *ExecutionContext) Context() context.Context { return ec.ctx }

// State returns the context's current lifecycle state.
func (ec *ExecutionContext) State() State {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.state
}

// Print implements doc.Host: append one line to the ordered output log.
func (ec *ExecutionContext) Print(line string) {
	ec.appendEvent(OutputEvent{Kind: EventLine, Text: line})
}

// Errorln implements doc.Host: append one error line to the ordered output
// log.
func (ec *ExecutionContext) Errorln(line string) {
	ec.appendEvent(OutputEvent{Kind: EventErrorLine, Text: line})
}

func (ec *ExecutionContext) appendEvent(ev OutputEvent) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if ec.state == StateFailed {
		// A failed invocation emits nothing beyond its diagnostic.
		return
	}
	ev.Seq = int64(len(ec.events))
	ec.events = append(ec.events, ev)
}

// Events returns a snapshot of the ordered output log.
func (ec *ExecutionContext) Events() []OutputEvent {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	out := make([]OutputEvent, len(ec.events))
	copy(out, ec.events)
	return out
}

// SpawnFetch implements doc.Host: start a remote fetch on its own goroutine
// after clearing the http capability for the target host. The response is
// decoded per its content type and surfaced as document data when awaited.
func (ec *ExecutionContext) SpawnFetch(rawURL string, creds *doc.FetchCredentials) (doc.TaskID, error) {
	host := ""
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Hostname()
	}
	decision, err := ec.policy.Allow(ec.ctx, policy.CapabilityHTTP, host)
	if err != nil {
		return 0, NewExecutionError(StageTask, "", err)
	}
	if !decision.Allowed {
		return 0, NewPolicyDeniedError(policy.CapabilityHTTP, decision.Denials)
	}

	t := ec.register(taskFetch, rawURL, nil)
	t.state = taskRunning

	var fc *fetch.Credentials
	if creds != nil {
		fc = &fetch.Credentials{Username: creds.Username, Password: creds.Password}
	}

	go func() {
		value, err := ec.doFetch(rawURL, fc)
		ec.resolve(t, value, err)
	}()

	ec.logger.Debug().Int64("task_id", int64(t.id)).Str("url", rawURL).Msg("Fetch task spawned")
	return t.id, nil
}

// doFetch retrieves and decodes one remote resource into document data.
func (ec *ExecutionContext) doFetch(rawURL string, creds *fetch.Credentials) (any, error) {
	ctx := ec.ctx
	if ec.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ec.ctx, ec.fetchTimeout)
		defer cancel()
	}
	body, contentType, err := ec.fetcher.Get(ctx, rawURL, creds)
	if err != nil {
		return nil, NewFetchError(rawURL, err)
	}

	path := rawURL
	if u, perr := url.Parse(rawURL); perr == nil {
		path = u.Path
	}
	id, err := ec.registry.Resolve("", path, contentType)
	if err != nil {
		// No codec claims the payload; surface the raw text instead of
		// failing the task.
		return string(body), nil
	}
	codec, err := ec.registry.Codec(id)
	if err != nil {
		return string(body), nil
	}
	d, err := codec.Decode(rawURL, body)
	if err != nil {
		return nil, NewLoadError(string(id), rawURL, err)
	}
	return d.Data(), nil
}

// SpawnCall implements doc.Host: register a cooperative document task. The
// callable runs on the logical thread once an Await or the settle drain
// schedules it.
func (ec *ExecutionContext) SpawnCall(name string, call func(ctx context.Context) (any, error)) (doc.TaskID, error) {
	t := ec.register(taskCall, name, call)
	ec.logger.Debug().Int64("task_id", int64(t.id)).Str("task", name).Msg("Document task spawned")
	return t.id, nil
}

// Await implements doc.Host. While the awaited task is unresolved, Await
// keeps the logical thread busy running other pending document tasks; only
// when none are ready does the thread actually suspend.
func (ec *ExecutionContext) Await(id doc.TaskID) (any, error) {
	ec.mu.Lock()
	t, ok := ec.tasks[id]
	ec.mu.Unlock()
	if !ok {
		return nil, NewExecutionError(StageTask, "", fmt.Errorf("unknown task %d", id))
	}

	for {
		ec.mu.Lock()
		if t.state == taskResolved {
			value, err := t.value, t.err
			ec.mu.Unlock()
			if err != nil {
				return nil, NewExecutionError(StageTask, t.name, err)
			}
			return value, nil
		}

		// Prefer the awaited task itself when it is a pending document
		// task, then any other pending document task in spawn order.
		next := t
		if t.kind != taskCall || t.state != taskPending {
			next = ec.nextPendingLocked()
		}
		if next != nil {
			next.state = taskRunning
			ec.mu.Unlock()
			ec.runTask(next)
			continue
		}

		ec.state = StateSuspended
		done := t.done
		ec.mu.Unlock()

		select {
		case <-done:
			ec.setState(StateRunning)
		case <-ec.ctx.Done():
			return nil, NewCancelledError(StageTask, ec.ctx.Err())
		}
	}
}

// register creates a task entry under the next identifier.
func (ec *ExecutionContext) register(kind taskKind, name string, call func(ctx context.Context) (any, error)) *task {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.nextID++
	t := &task{
		id:   ec.nextID,
		name: name,
		kind: kind,
		call: call,
		done: make(chan struct{}),
	}
	ec.tasks[t.id] = t
	ec.order = append(ec.order, t.id)
	return t
}

// resolve records a task's outcome and wakes any waiter.
func (ec *ExecutionContext) resolve(t *task, value any, err error) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	t.value = value
	t.err = err
	t.state = taskResolved
	close(t.done)
}

// runTask executes one document task on the logical thread.
func (ec *ExecutionContext) runTask(t *task) {
	ec.logger.Debug().Int64("task_id", int64(t.id)).Str("task", t.name).Msg("Running document task")
	value, err := t.call(ec.ctx)
	ec.resolve(t, value, err)
}

// nextPendingLocked returns the oldest pending document task, if any. The
// caller must hold ec.mu.
func (ec *ExecutionContext) nextPendingLocked() *task {
	for _, id := range ec.order {
		t := ec.tasks[id]
		if t.kind == taskCall && t.state == taskPending {
			return t
		}
	}
	return nil
}

// drain runs every remaining pending document task and waits for in-flight
// fetches, then reports the first observed task failure. A resolved failure
// cancels the still-pending siblings instead of waiting them out. Called
// after the entry function returns; new tasks spawned by draining tasks are
// drained too.
func (ec *ExecutionContext) drain() error {
	for {
		ec.mu.Lock()
		next := ec.nextPendingLocked()
		if next != nil {
			next.state = taskRunning
		}
		ec.mu.Unlock()
		if next == nil {
			break
		}
		ec.runTask(next)
	}

	var failed *task
	checkLocked := func() {
		if failed != nil {
			return
		}
		for _, id := range ec.order {
			if t := ec.tasks[id]; t.state == taskResolved && t.err != nil {
				failed = t
				ec.cancel()
				return
			}
		}
	}

	ec.mu.Lock()
	checkLocked()
	remaining := 0
	notify := make(chan struct{}, len(ec.order))
	for _, id := range ec.order {
		t := ec.tasks[id]
		if t.state != taskResolved {
			remaining++
			go func(done chan struct{}) {
				<-done
				notify <- struct{}{}
			}(t.done)
		}
	}
	ec.mu.Unlock()

	for remaining > 0 {
		if failed == nil {
			select {
			case <-notify:
			case <-ec.ctx.Done():
				return NewCancelledError(StageTask, ec.ctx.Err())
			}
		} else {
			// Cancelled siblings still resolve; their errors are
			// cancellation artifacts, not the failure to report.
			<-notify
		}
		remaining--
		ec.mu.Lock()
		checkLocked()
		ec.mu.Unlock()
	}

	if failed != nil {
		return NewExecutionError(StageTask, failed.name, failed.err)
	}
	return nil
}

// begin moves the context into the running state.
func (ec *ExecutionContext) begin() {
	ec.setState(StateRunning)
}

// complete marks a successful settle and records the entry point's return
// value as the final output event.
func (ec *ExecutionContext) complete(value any) {
	if value != nil {
		ec.appendEvent(OutputEvent{Kind: EventValue, Value: value})
	}
	ec.setState(StateCompleted)
}

// fail records the first failure, marks the context failed, and cancels all
// in-flight work.
func (ec *ExecutionContext) fail(err *DriverError) {
	ec.mu.Lock()
	if ec.failure == nil {
		ec.failure = err
	}
	ec.state = StateFailed
	ec.mu.Unlock()
	ec.cancel()
}

// Close releases the context's resources.
func (ec *ExecutionContext) Close() {
	ec.cancel()
}

func (ec *ExecutionContext) setState(s State) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if ec.state == StateFailed || ec.state == StateCompleted {
		return
	}
	ec.state = s
}
