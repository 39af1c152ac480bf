package invoker

import (
	"fmt"
	"time"
)

// State is the lifecycle position of a single invocation
type State string

const (
	StateIdle       State = "idle"
	StateDispatched State = "dispatched"
	StateCompleted  State = "completed"
	StateTimedOut   State = "timed_out"
	StateFailed     State = "failed"
)

// IsTerminal reports whether no further transition is possible
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateTimedOut || s == StateFailed
}

var transitions = map[State][]State{
	StateIdle:       {StateDispatched, StateFailed, StateTimedOut},
	StateDispatched: {StateCompleted, StateTimedOut, StateFailed},
}

// call tracks one invocation through its state machine
type call struct {
	state State
}

func (c *call) move(to State) error {
	for _, allowed := range transitions[c.state] {
		if allowed == to {
			c.state = to
			return nil
		}
	}
	return fmt.Errorf("invalid invocation transition %s -> %s", c.state, to)
}

// Request is one query against the agent
type Request struct {
	Query            string
	Timeout          time.Duration
	IncludeCitations bool
}

// PayloadKind tags the shape of a successful result
type PayloadKind string

const (
	// PayloadText is a plain string result
	PayloadText PayloadKind = "text"
	// PayloadStructured is an object result with named fields
	PayloadStructured PayloadKind = "structured"
	// PayloadRaw is the captured text between the success markers when it
	// was not valid JSON
	PayloadRaw PayloadKind = "raw"
	// PayloadOther is any other JSON value (number, list, bool, null)
	PayloadOther PayloadKind = "other"
)

// Payload is the result value returned by the agent
type Payload struct {
	Kind   PayloadKind
	Text   string
	Fields map[string]any
	Value  any
}

// Metadata describes a completed invocation
type Metadata struct {
	Model string
	Extra map[string]any
}

// FailureKind classifies failed invocations
type FailureKind string

const (
	KindValidation FailureKind = "validation"
	KindSpawn      FailureKind = "spawn"
	KindAgent      FailureKind = "agent"
	KindExit       FailureKind = "exit"
	KindProtocol   FailureKind = "protocol"
	KindCanceled   FailureKind = "canceled"
	KindInternal   FailureKind = "internal"
)

// Failure describes why an invocation reached StateFailed
type Failure struct {
	Kind      FailureKind
	Message   string
	ErrorType string
	Traceback string
	ExitCode  int
	Stdout    string
	Stderr    string
}

// Outcome is the terminal result of Invoke. Exactly one of Payload (completed),
// Timeout (timed out) or Failure (failed) is meaningful, selected by State.
type Outcome struct {
	InvocationID string
	State        State
	Elapsed      time.Duration

	Payload  Payload
	Metadata Metadata

	Timeout time.Duration

	Failure *Failure
}

// Err returns the outcome as an error, nil when completed
func (o *Outcome) Err() error {
	switch o.State {
	case StateCompleted:
		return nil
	case StateTimedOut:
		return &TimeoutError{Bound: o.Timeout}
	default:
		f := o.Failure
		if f == nil {
			f = &Failure{Kind: KindInternal, Message: "invocation did not complete"}
		}
		return &ExecutionError{Kind: f.Kind, Message: f.Message, ExitCode: f.ExitCode}
	}
}
