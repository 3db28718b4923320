package engine

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/weftlang/weft/pkg/format"
)

// Committer flushes a settled invocation's ordered output to its sinks. The
// whole commit is a single write per sink, under a mutex, so concurrent
// invocations sharing a sink (the runner service, watch mode) never
// interleave their output.
type Committer struct {
	mu               sync.Mutex
	out              io.Writer
	errOut           io.Writer
	registry         *format.Registry
	valueFormat      format.ID
	partialOnFailure bool
}

// NewCommitter returns a committer writing to the given sinks.
func NewCommitter(out, errOut io.Writer, reg *format.Registry) *Committer {
	return &Committer{out: out, errOut: errOut, registry: reg}
}

// SetValueFormat selects the codec used to render the entry point's return
// value. Unset, strings and raw bytes pass through and structured values
// render as JSON.
func (c *Committer) SetValueFormat(id format.ID) {
	c.valueFormat = id
}

// SetPartialOnFailure opts in to flushing the output accumulated before a
// failure. The default suppresses it; a failed invocation emits only its
// diagnostic.
func (c *Committer) SetPartialOnFailure(enabled bool) {
	c.partialOnFailure = enabled
}

// Commit writes a result's output. Successful invocations flush every event
// in sequence order; failed ones emit the diagnostic on the error sink and,
// only when partial output is enabled, the frozen event log before it.
func (c *Committer) Commit(res *Result) error {
	var outBuf, errBuf bytes.Buffer

	if res.State == StateCompleted || c.partialOnFailure {
		for _, ev := range res.Events {
			switch ev.Kind {
			case EventLine:
				outBuf.WriteString(ev.Text)
				outBuf.WriteByte('\n')
			case EventErrorLine:
				errBuf.WriteString(ev.Text)
				errBuf.WriteByte('\n')
			case EventValue:
				rendered, err := c.renderValue(ev.Value)
				if err != nil {
					return &DriverError{
						Code:    CodeExecutionError,
						Stage:   StageCommit,
						Message: "failed to render return value",
						Err:     err,
					}
				}
				outBuf.Write(rendered)
				if len(rendered) > 0 && rendered[len(rendered)-1] != '\n' {
					outBuf.WriteByte('\n')
				}
			}
		}
	}

	if res.State == StateFailed && res.Err != nil {
		fmt.Fprintf(&errBuf, "error: %s\n", res.Err.Error())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if outBuf.Len() > 0 {
		if _, err := c.out.Write(outBuf.Bytes()); err != nil {
			return &DriverError{Code: CodeExecutionError, Stage: StageCommit, Message: "failed to write output", Err: err}
		}
	}
	if errBuf.Len() > 0 {
		if _, err := c.errOut.Write(errBuf.Bytes()); err != nil {
			return &DriverError{Code: CodeExecutionError, Stage: StageCommit, Message: "failed to write error output", Err: err}
		}
	}
	return nil
}

// renderValue serializes the entry point's return value for the output sink.
func (c *Committer) renderValue(v any) ([]byte, error) {
	if c.valueFormat == "" {
		switch val := v.(type) {
		case string:
			return []byte(val), nil
		case []byte:
			return val, nil
		}
		codec, err := c.registry.Codec(format.JSON)
		if err != nil {
			return nil, err
		}
		return codec.Encode(v)
	}
	codec, err := c.registry.Codec(c.valueFormat)
	if err != nil {
		return nil, err
	}
	return codec.Encode(v)
}
