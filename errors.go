package courier

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Schema errors.
	ErrSchemaNotDefined = errors.New("courier: schema not defined")
	ErrInvalidArgs      = errors.New("courier: invalid arguments")
	ErrSerialization    = errors.New("courier: serialization failed")

	// Task errors.
	ErrTaskNotRegistered = errors.New("courier: task not registered")
	ErrNotImplemented    = errors.New("courier: task not implemented")
	ErrTaskFailed        = errors.New("courier: task failed")

	// Engine errors.
	ErrNoBroker     = errors.New("courier: no broker configured")
	ErrBrokerClosed = errors.New("courier: broker closed")
)

// Kind classifies an Error. Each kind maps onto exactly one of the package
// sentinels so callers can use errors.Is without touching *Error directly.
type Kind int

const (
	KindUnknown Kind = iota
	KindSchemaNotDefined
	KindInvalidArgs
	KindSerialization
	KindTaskNotRegistered
	KindNotImplemented
	KindTaskFailed
)

func (k Kind) String() string {
	switch k {
	case KindSchemaNotDefined:
		return "schema not defined"
	case KindInvalidArgs:
		return "invalid arguments"
	case KindSerialization:
		return "serialization failed"
	case KindTaskNotRegistered:
		return "task not registered"
	case KindNotImplemented:
		return "task not implemented"
	case KindTaskFailed:
		return "task failed"
	default:
		return "unknown error"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindSchemaNotDefined:
		return ErrSchemaNotDefined
	case KindInvalidArgs:
		return ErrInvalidArgs
	case KindSerialization:
		return ErrSerialization
	case KindTaskNotRegistered:
		return ErrTaskNotRegistered
	case KindNotImplemented:
		return ErrNotImplemented
	case KindTaskFailed:
		return ErrTaskFailed
	default:
		return nil
	}
}

// Error is the structured error returned by pipeline operations. It carries
// the failing task, the operation that failed, and the underlying cause.
// Stack is populated only when the error was recovered from a panic.
type Error struct {
	Kind  Kind
	Task  string
	Op    string
	Err   error
	Stack []byte
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("courier: ")
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteByte(' ')
	}
	if e.Task != "" {
		fmt.Fprintf(&b, "task %q", e.Task)
	}
	switch {
	case e.Err != nil && (e.Op != "" || e.Task != ""):
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	case e.Err != nil:
		b.WriteString(e.Err.Error())
	case e.Op != "" || e.Task != "":
		b.WriteString(": ")
		b.WriteString(e.Kind.String())
	default:
		b.WriteString(e.Kind.String())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for this error's kind, so
// errors.Is(err, courier.ErrInvalidArgs) matches any invalid-arguments
// *Error regardless of task or cause.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// newError is the package-internal constructor used by the pipelines.
func newError(kind Kind, task, op string, err error) *Error {
	return &Error{Kind: kind, Task: task, Op: op, Err: err}
}

// SchemaNotDefinedError reports that a task declared something under the
// schema convention that is not a valid schema.
func SchemaNotDefinedError(task string, cause error) *Error {
	return newError(KindSchemaNotDefined, task, "", cause)
}

// InvalidArgsError reports a strict-validation failure at submission time.
func InvalidArgsError(task string, cause error) *Error {
	return newError(KindInvalidArgs, task, "submit", cause)
}

// SerializationError reports an outbound serialization or inbound
// deserialization failure.
func SerializationError(task, op string, cause error) *Error {
	return newError(KindSerialization, task, op, cause)
}

// NotImplementedError reports that a task was dispatched without a handler.
func NotImplementedError(task string) *Error {
	return newError(KindNotImplemented, task, "dispatch",
		errors.New("no handler implemented, task must provide a Handle function"))
}

// TaskNotRegisteredError reports a dispatch for an unknown task name.
func TaskNotRegisteredError(task string) *Error {
	return newError(KindTaskNotRegistered, task, "dispatch", nil)
}

// TaskFailedError wraps a failure raised by a task body. The pipeline's own
// error kinds are never wrapped; callers must check with errors.Is first.
func TaskFailedError(task, op string, cause error) *Error {
	return newError(KindTaskFailed, task, op, cause)
}

// PanicError wraps a recovered panic value together with the goroutine
// stack captured at recovery.
func PanicError(task, op string, recovered any, stack []byte) *Error {
	e := newError(KindTaskFailed, task, op, fmt.Errorf("panic: %v", recovered))
	e.Stack = stack
	return e
}
