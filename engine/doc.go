// Package engine wires the argument pipeline together and provides the
// application-level API for declaring, submitting, and running tasks.
//
// An Engine pairs a task registry with a broker and drives both
// directions of the pipeline. On the way out, Submit and the Schedule
// variants validate caller kwargs strictly against the task's declared
// schema, serialize them into a string-keyed wire payload, and hand the
// message to the broker. On the way back, Dispatch deserializes the
// payload with permissive coercion and runs the task body through the
// middleware chain. Perform short-circuits the broker entirely and runs
// the body in the calling goroutine, still with strict validation but
// with no serialization round-trip.
//
// # Building an Engine
//
//	eng, err := engine.New(
//	    engine.WithBroker(memory.New()),
//	    engine.WithLogger(logger),
//	    engine.WithHook(hook.NewMetrics()),
//	)
//
// # Declaring Tasks
//
//	eng.RegisterFunc("email.send",
//	    func(ctx context.Context, tc *task.Context) (any, error) {
//	        return nil, mailer.Send(tc.String("to"), tc.String("subject"))
//	    },
//	    task.WithSchema(schema.New(
//	        schema.String("to"),
//	        schema.String("subject").Default("(no subject)"),
//	    )),
//	)
//
// # Submitting Work
//
//	jobID, err := eng.Submit(ctx, "email.send", courier.Kwargs{
//	    "to": "user@example.com",
//	})
//
//	eng.ScheduleAt(ctx, "email.send", at, kwargs)
//	eng.ScheduleIn(ctx, "email.send", 5*time.Minute, kwargs)
//
//	// Synchronous, no broker involved:
//	result, err := eng.Perform(ctx, "email.send", kwargs)
//
// # Execution
//
// Brokers that consume in-process are started by [Engine.Start] and feed
// every due message to [Engine.Dispatch]. External consumers can call
// Dispatch directly with the delivered message.
package engine
