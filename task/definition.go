package task

import "github.com/xraph/courier/schema"

// Definition is a declared task: a unique name, an optional argument
// schema, and the handler that does the work.
type Definition struct {
	// Name is the unique identifier for this task type.
	Name string

	// Schema declares the argument shape. Nil means the task takes no
	// arguments and submission input is ignored.
	Schema *schema.Schema

	// Handler is the work body. Nil marks a producer-only registration:
	// submission works, dispatch reports the task as unimplemented.
	Handler Handler

	// Opts configures queue placement.
	Opts Options
}

// NewDefinition creates a task definition.
func NewDefinition(name string, handler Handler, opts ...Option) *Definition {
	def := &Definition{
		Name:    name,
		Handler: handler,
		Opts:    DefaultOptions(),
	}
	for _, opt := range opts {
		opt(def)
	}
	return def
}
