package engine

// EventKind classifies one entry in the invocation's ordered output log.
type EventKind string

const (
	// EventLine is a standard output line emitted by document logic.
	EventLine EventKind = "line"

	// EventErrorLine is an error output line emitted by document logic.
	EventErrorLine EventKind = "errline"

	// EventValue is the entry point's return value, recorded after the
	// invocation settles successfully.
	EventValue EventKind = "value"
)

// OutputEvent is one ordered output record. Events are appended in logical
// program order and committed in ascending sequence; the committer never
// reorders them.
type OutputEvent struct {
	// Seq is the event's position in logical program order, starting at 0.
	Seq int64 `json:"seq"`

	// Kind classifies the event.
	Kind EventKind `json:"kind"`

	// Text is the line payload for line and errline events.
	Text string `json:"text,omitempty"`

	// Value is the return value payload for value events.
	Value any `json:"value,omitempty"`
}
