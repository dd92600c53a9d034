package task

import (
	"github.com/xraph/courier/args"
	"github.com/xraph/courier/id"
)

// Context carries the runtime state of one task invocation: the task
// name, the job ID assigned by the broker (nil for synchronous runs), the
// queue it arrived on, and the typed arguments. Fields are read through
// Get or the typed accessors rather than generated per-field methods, so
// argument names can never collide with methods the task author defines.
type Context struct {
	task  string
	jobID id.JobID
	queue string
	args  *args.Args
}

// NewContext creates the execution context for one invocation.
func NewContext(taskName string, jobID id.JobID, queue string, a *args.Args) *Context {
	return &Context{
		task:  taskName,
		jobID: jobID,
		queue: queue,
		args:  a,
	}
}

// Task returns the name of the task being executed.
func (c *Context) Task() string { return c.task }

// JobID returns the broker-assigned job ID. It is the nil ID for
// synchronous runs that never touched the broker.
func (c *Context) JobID() id.JobID { return c.jobID }

// Queue returns the queue the invocation arrived on.
func (c *Context) Queue() string { return c.queue }

// Args returns the bundled argument set, nil for argument-less tasks.
func (c *Context) Args() *args.Args { return c.args }

// Get returns the named argument value in canonical form.
func (c *Context) Get(name string) (any, bool) { return c.args.Get(name) }

// String returns the named string argument, or "" when absent.
func (c *Context) String(name string) string { return c.args.String(name) }

// Int returns the named integer argument, or 0 when absent.
func (c *Context) Int(name string) int64 { return c.args.Int(name) }

// Float returns the named float argument, or 0 when absent.
func (c *Context) Float(name string) float64 { return c.args.Float(name) }

// Bool returns the named boolean argument, or false when absent.
func (c *Context) Bool(name string) bool { return c.args.Bool(name) }

// Slice returns the named array argument, or nil when absent.
func (c *Context) Slice(name string) []any { return c.args.Slice(name) }

// Map returns the named map or object argument, or nil when absent.
func (c *Context) Map(name string) map[string]any { return c.args.Map(name) }

// Bind decodes the argument values into dst, a pointer to a struct.
func (c *Context) Bind(dst any) error { return c.args.Bind(dst) }
