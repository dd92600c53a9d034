package task

import "github.com/xraph/courier/schema"

// DefaultQueue is where tasks land unless routed elsewhere.
const DefaultQueue = "default"

// Options configures broker placement for a task. Retry policy, timeouts,
// and ordering are the broker's concern, not declared here.
type Options struct {
	// Queue is the queue name this task's jobs should be enqueued to.
	Queue string

	// Priority is a routing hint forwarded to the broker. Higher values
	// are processed first by brokers that order their queues.
	Priority int
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		Queue:    DefaultQueue,
		Priority: 0,
	}
}

// Option is a functional option for configuring a task definition.
type Option func(*Definition)

// WithSchema declares the argument schema for the task.
func WithSchema(s *schema.Schema) Option {
	return func(d *Definition) {
		d.Schema = s
	}
}

// WithQueue sets the queue name for the task.
func WithQueue(q string) Option {
	return func(d *Definition) {
		d.Opts.Queue = q
	}
}

// WithPriority sets the task priority. Higher values are processed first.
func WithPriority(p int) Option {
	return func(d *Definition) {
		d.Opts.Priority = p
	}
}
