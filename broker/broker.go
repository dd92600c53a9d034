// Package broker defines the contract between the argument pipeline and
// the job queue that carries its payloads.
//
// A broker accepts messages for immediate or scheduled execution and
// later hands each one back, payload intact, to the dispatcher it was
// started with. Delivery guarantees, retries, and ordering are the
// broker's own business: the pipeline treats every submission as
// fire-and-forget and every dispatch as run-to-completion.
package broker

import (
	"context"
	"time"

	"github.com/xraph/courier/id"
	"github.com/xraph/courier/wire"
)

// Message is the envelope a submission leaves on the broker. The broker
// assigns ID and EnqueuedAt when it accepts the message; everything else
// is set by the pipeline.
type Message struct {
	// ID uniquely identifies the job across the system.
	ID id.JobID `json:"id" msgpack:"id"`

	// Task names the task definition this job belongs to.
	Task string `json:"task" msgpack:"task"`

	// Queue is the queue this job was enqueued to.
	Queue string `json:"queue" msgpack:"queue"`

	// Priority is a routing hint. Higher values are processed first by
	// brokers that order their queues.
	Priority int `json:"priority,omitempty" msgpack:"priority,omitempty"`

	// Payload carries the serialized arguments. Brokers never interpret
	// it; empty means an argument-less task.
	Payload wire.Payload `json:"payload,omitempty" msgpack:"payload,omitempty"`

	// EnqueuedAt records when the broker accepted the message.
	EnqueuedAt time.Time `json:"enqueued_at" msgpack:"enqueued_at"`

	// RunAt is the earliest time the broker may execute the message.
	// Zero means as soon as possible.
	RunAt time.Time `json:"run_at,omitempty" msgpack:"run_at,omitempty"`

	// Attempt counts prior failed deliveries. Zero on first delivery.
	Attempt int `json:"attempt,omitempty" msgpack:"attempt,omitempty"`
}

// Dispatcher consumes a message when the broker decides to run it. The
// returned error is the broker's signal that execution failed; what it
// does with that signal is its own policy.
type Dispatcher func(ctx context.Context, msg *Message) error

// Broker is the submission surface the pipeline forwards payloads to.
type Broker interface {
	// Submit enqueues msg for execution as soon as possible and returns
	// the broker-assigned job ID.
	Submit(ctx context.Context, msg *Message) (id.JobID, error)

	// ScheduleAt enqueues msg for execution at the given time.
	ScheduleAt(ctx context.Context, at time.Time, msg *Message) (id.JobID, error)

	// ScheduleIn enqueues msg for execution after the given delay.
	ScheduleIn(ctx context.Context, delay time.Duration, msg *Message) (id.JobID, error)
}

// Consumer is implemented by brokers that can deliver messages
// in-process. Start hands every due message to dispatch until Stop is
// called or the context is cancelled.
type Consumer interface {
	Start(ctx context.Context, dispatch Dispatcher) error
	Stop(ctx context.Context) error
}
