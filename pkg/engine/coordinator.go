package engine

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/weftlang/weft/pkg/doc"
)

// Result is the outcome of one driver invocation.
type Result struct {
	// InvocationID is the unique identifier of the invocation.
	InvocationID string `json:"invocation_id"`

	// EntryPoint is the dotted path of the executed entry function.
	EntryPoint string `json:"entry_point,omitempty"`

	// State is the terminal state: StateCompleted or StateFailed.
	State State `json:"state"`

	// Value is the entry point's return value on success.
	Value any `json:"value,omitempty"`

	// Events is the invocation's ordered output log.
	Events []OutputEvent `json:"events,omitempty"`

	// Err is the failure that settled the invocation, if any.
	Err *DriverError `json:"-"`

	// Duration is the wall time of the execute stage.
	Duration time.Duration `json:"duration"`
}

// Coordinator runs one entry point to settlement on an execution context. It
// owns the drain-after-return rule (spawned tasks finish before the
// invocation settles) and the cancel-on-failure rule (a failing task stops
// its siblings).
type Coordinator struct {
	logger zerolog.Logger
}

// NewCoordinator returns an execution coordinator.
func NewCoordinator(logger zerolog.Logger) *Coordinator {
	return &Coordinator{logger: logger.With().Str("component", "coordinator").Logger()}
}

// Execute invokes the entry function on the context's logical thread, drains
// the spawned tasks it leaves behind, and settles the context. The returned
// result carries the ordered output log either way; on failure the log is
// frozen at the point of failure.
func (c *Coordinator) Execute(d *doc.Document, entry *doc.Function, ec *ExecutionContext, args map[string]any) *Result {
	start := time.Now()
	res := &Result{
		InvocationID: ec.InvocationID(),
		EntryPoint:   entry.Path,
	}

	c.logger.Info().
		Str("invocation_id", ec.InvocationID()).
		Str("document", d.Name).
		Str("entry_point", entry.Path).
		Msg("Executing entry point")

	ec.begin()
	value, err := d.Invoke(ec.Context(), entry, ec, args)
	if err != nil {
		return c.settle(res, ec, asDriverError(StageEntry, entry.Path, err), start)
	}
	if err := ec.drain(); err != nil {
		return c.settle(res, ec, asDriverError(StageTask, entry.Path, err), start)
	}

	ec.complete(value)
	res.State = StateCompleted
	res.Value = value
	res.Events = ec.Events()
	res.Duration = time.Since(start)

	c.logger.Info().
		Str("invocation_id", ec.InvocationID()).
		Dur("duration", res.Duration).
		Int("events", len(res.Events)).
		Msg("Invocation completed")
	return res
}

// settle finalizes a failed invocation: sibling work is cancelled and the
// output log is frozen so only the diagnostic reaches the caller.
func (c *Coordinator) settle(res *Result, ec *ExecutionContext, derr *DriverError, start time.Time) *Result {
	ec.fail(derr)
	res.State = StateFailed
	res.Err = derr
	res.Events = ec.Events()
	res.Duration = time.Since(start)

	c.logger.Error().
		Str("invocation_id", ec.InvocationID()).
		Str("code", string(derr.Code)).
		Str("stage", string(derr.Stage)).
		Err(derr).
		Msg("Invocation failed")
	return res
}
