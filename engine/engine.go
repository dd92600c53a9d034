package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/courier"
	"github.com/xraph/courier/args"
	"github.com/xraph/courier/broker"
	"github.com/xraph/courier/cron"
	"github.com/xraph/courier/hook"
	"github.com/xraph/courier/id"
	mw "github.com/xraph/courier/middleware"
	"github.com/xraph/courier/schema"
	"github.com/xraph/courier/task"
)

// instrumentationScope is the scope name for engine-created OTel
// tracers and meters.
const instrumentationScope = "github.com/xraph/courier"

// Engine owns the two halves of the argument pipeline: submission
// (validate strictly, serialize, hand to the broker) and dispatch
// (deserialize with coercion, run the task body). Create one with New,
// register task definitions, then Submit/ScheduleAt/ScheduleIn to
// enqueue, Perform to run in-process, or Start to let a consuming
// broker drive Dispatch.
type Engine struct {
	tasks  *task.Registry
	broker broker.Broker
	hooks  *hook.Registry
	logger *slog.Logger

	userMws   []mw.Middleware
	userHooks []hook.Hook
	chain     mw.Middleware

	scheduler *cron.Scheduler
	cronTick  time.Duration

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	started bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithBroker sets the broker submissions are forwarded to. Without one,
// Perform and Dispatch still work but Submit and the Schedule variants
// fail with ErrNoBroker.
func WithBroker(b broker.Broker) Option {
	return func(e *Engine) { e.broker = b }
}

// WithLogger sets the engine's logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMiddleware appends middleware to the execution chain, inside the
// default recover/tracing/metrics/logging stack.
func WithMiddleware(m ...mw.Middleware) Option {
	return func(e *Engine) { e.userMws = append(e.userMws, m...) }
}

// WithHook registers a lifecycle hook.
func WithHook(h hook.Hook) Option {
	return func(e *Engine) { e.userHooks = append(e.userHooks, h) }
}

// WithCronTickInterval sets how often the cron scheduler checks for due
// entries. Defaults to one second.
func WithCronTickInterval(d time.Duration) Option {
	return func(e *Engine) { e.cronTick = d }
}

// WithTracerProvider sets a custom OTel TracerProvider for the tracing
// middleware. If not set, the global provider is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider for the metrics
// middleware. If not set, the global provider is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(e *Engine) { e.meterProvider = mp }
}

// New creates an Engine.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		tasks:    task.NewRegistry(),
		logger:   slog.Default(),
		cronTick: time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		return nil, errors.New("engine: logger must not be nil")
	}

	e.hooks = hook.NewRegistry(e.logger)
	for _, h := range e.userHooks {
		e.hooks.Register(h)
	}

	var tracingMw mw.Middleware
	if e.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(e.tracerProvider.Tracer(instrumentationScope))
	} else {
		tracingMw = mw.Tracing()
	}

	var metricsMw mw.Middleware
	if e.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(e.meterProvider.Meter(instrumentationScope))
	} else {
		metricsMw = mw.Metrics()
	}

	// Default stack: recover outermost, then tracing, metrics, logging,
	// then user middleware closest to the handler.
	all := make([]mw.Middleware, 0, 4+len(e.userMws))
	all = append(all,
		mw.Recover(e.logger),
		tracingMw,
		metricsMw,
		mw.Logging(e.logger),
	)
	all = append(all, e.userMws...)
	e.chain = mw.Chain(all...)

	e.scheduler = cron.NewScheduler(e.Submit, e.hooks,
		cron.WithTickInterval(e.cronTick),
		cron.WithLogger(e.logger),
	)
	return e, nil
}

// ──────────────────────────────────────────────────
// Registration
// ──────────────────────────────────────────────────

// Register adds a task definition. Registering the same name again
// replaces the previous definition.
func (e *Engine) Register(def *task.Definition) error {
	if def == nil || def.Name == "" {
		return errors.New("engine: task definition must have a name")
	}
	e.tasks.Register(def)
	return nil
}

// RegisterFunc declares and registers a task in one step.
func (e *Engine) RegisterFunc(name string, handler task.Handler, opts ...task.Option) error {
	return e.Register(task.NewDefinition(name, handler, opts...))
}

// Tasks returns the names of all registered tasks.
func (e *Engine) Tasks() []string { return e.tasks.Names() }

// Hooks returns the engine's hook registry.
func (e *Engine) Hooks() *hook.Registry { return e.hooks }

// Schema returns the resolved argument schema for the named task, nil
// when the task declares no arguments.
func (e *Engine) Schema(taskName string) (*schema.Schema, error) {
	def, ok := e.tasks.Get(taskName)
	if !ok {
		return nil, courier.TaskNotRegisteredError(taskName)
	}
	s, err := e.tasks.ResolveSchema(def)
	if err != nil {
		return nil, courier.SchemaNotDefinedError(def.Name, err)
	}
	return s, nil
}

// ──────────────────────────────────────────────────
// Submission pipeline
// ──────────────────────────────────────────────────

// Submit validates kwargs strictly against the task's schema, serializes
// them, and enqueues the result for execution as soon as possible. The
// broker-assigned job ID is returned unchanged. Validation and
// serialization failures propagate unmodified; nothing is retried here.
func (e *Engine) Submit(ctx context.Context, taskName string, kwargs courier.Kwargs) (id.JobID, error) {
	return e.enqueue(ctx, taskName, kwargs, func(msg *broker.Message) (id.JobID, error) {
		return e.broker.Submit(ctx, msg)
	})
}

// ScheduleAt submits the task for execution at the given time.
func (e *Engine) ScheduleAt(ctx context.Context, taskName string, at time.Time, kwargs courier.Kwargs) (id.JobID, error) {
	return e.enqueue(ctx, taskName, kwargs, func(msg *broker.Message) (id.JobID, error) {
		return e.broker.ScheduleAt(ctx, at, msg)
	})
}

// ScheduleIn submits the task for execution after the given delay.
func (e *Engine) ScheduleIn(ctx context.Context, taskName string, delay time.Duration, kwargs courier.Kwargs) (id.JobID, error) {
	return e.enqueue(ctx, taskName, kwargs, func(msg *broker.Message) (id.JobID, error) {
		return e.broker.ScheduleIn(ctx, delay, msg)
	})
}

func (e *Engine) enqueue(ctx context.Context, taskName string, kwargs courier.Kwargs, send func(*broker.Message) (id.JobID, error)) (id.JobID, error) {
	def, ok := e.tasks.Get(taskName)
	if !ok {
		err := courier.TaskNotRegisteredError(taskName)
		e.hooks.EmitSubmitFailed(ctx, taskName, err)
		return id.Nil, err
	}
	if e.broker == nil {
		e.hooks.EmitSubmitFailed(ctx, taskName, courier.ErrNoBroker)
		return id.Nil, courier.ErrNoBroker
	}

	a, err := e.buildArgs(def, kwargs)
	if err != nil {
		e.hooks.EmitSubmitFailed(ctx, taskName, err)
		return id.Nil, err
	}

	payload, err := a.Encode()
	if err != nil {
		serr := courier.SerializationError(def.Name, "submit", err)
		e.hooks.EmitSubmitFailed(ctx, taskName, serr)
		return id.Nil, serr
	}

	msg := &broker.Message{
		Task:     def.Name,
		Queue:    def.Opts.Queue,
		Priority: def.Opts.Priority,
		Payload:  payload,
	}
	jobID, err := send(msg)
	if err != nil {
		e.hooks.EmitSubmitFailed(ctx, taskName, err)
		return id.Nil, err
	}

	msg.ID = jobID
	e.hooks.EmitSubmitted(ctx, msg)
	return jobID, nil
}

// buildArgs resolves the task's schema and validates kwargs strictly
// against it. This is the only place strict validation happens; the
// dispatch side coerces instead.
func (e *Engine) buildArgs(def *task.Definition, kwargs courier.Kwargs) (*args.Args, error) {
	s, err := e.tasks.ResolveSchema(def)
	if err != nil {
		return nil, courier.SchemaNotDefinedError(def.Name, err)
	}
	a, err := args.Build(s, kwargs)
	if err != nil {
		return nil, courier.InvalidArgsError(def.Name, err)
	}
	return a, nil
}

// ──────────────────────────────────────────────────
// Synchronous execution
// ──────────────────────────────────────────────────

// Perform runs the task in the calling goroutine. Arguments are built
// with the same strict validation as Submit but never touch the wire:
// no serialization or broker round-trip happens. The handler's result
// is returned unchanged.
func (e *Engine) Perform(ctx context.Context, taskName string, kwargs courier.Kwargs) (any, error) {
	def, ok := e.tasks.Get(taskName)
	if !ok {
		return nil, courier.TaskNotRegisteredError(taskName)
	}
	a, err := e.buildArgs(def, kwargs)
	if err != nil {
		return nil, err
	}
	tc := task.NewContext(def.Name, id.Nil, def.Opts.Queue, a)
	return e.execute(ctx, def, tc)
}

// ──────────────────────────────────────────────────
// Dispatch pipeline
// ──────────────────────────────────────────────────

// Dispatch executes a delivered message. Brokers call this exactly when
// they decide to run a previously submitted job, passing the payload
// unchanged. The payload is deserialized with permissive coercion; a
// coercion failure is a SerializationError and is never wrapped as a
// task failure. Whatever the handler returns comes back unchanged.
func (e *Engine) Dispatch(ctx context.Context, msg *broker.Message) (any, error) {
	def, ok := e.tasks.Get(msg.Task)
	if !ok {
		return nil, courier.TaskNotRegisteredError(msg.Task)
	}
	s, err := e.tasks.ResolveSchema(def)
	if err != nil {
		return nil, courier.SchemaNotDefinedError(def.Name, err)
	}
	a, err := args.Decode(s, msg.Payload)
	if err != nil {
		return nil, courier.SerializationError(def.Name, "dispatch", err)
	}

	queue := msg.Queue
	if queue == "" {
		queue = def.Opts.Queue
	}
	tc := task.NewContext(def.Name, msg.ID, queue, a)
	return e.execute(ctx, def, tc)
}

// dispatcher adapts Dispatch to the broker.Dispatcher shape, dropping
// the result the broker has no use for.
func (e *Engine) dispatcher() broker.Dispatcher {
	return func(ctx context.Context, msg *broker.Message) error {
		_, err := e.Dispatch(ctx, msg)
		return err
	}
}

// execute runs the handler through the middleware chain and applies the
// error taxonomy: pipeline kinds pass through untouched, anything else
// the body produces is wrapped as a task failure naming the task and
// its run method.
func (e *Engine) execute(ctx context.Context, def *task.Definition, tc *task.Context) (any, error) {
	if def.Handler == nil {
		err := courier.NotImplementedError(def.Name)
		e.hooks.EmitDispatchFailed(ctx, tc, err, 0)
		return nil, err
	}

	e.hooks.EmitDispatchStarted(ctx, tc)
	start := time.Now()

	result, err := e.chain(ctx, tc, func(ctx context.Context) (any, error) {
		return e.callHandler(ctx, def, tc)
	})
	elapsed := time.Since(start)

	if err != nil {
		err = wrapTaskError(def.Name, err)
		e.hooks.EmitDispatchFailed(ctx, tc, err, elapsed)
		return nil, err
	}
	e.hooks.EmitDispatchSucceeded(ctx, tc, result, elapsed)
	return result, nil
}

// callHandler is the terminal link of the chain. Panics in the handler
// are converted here, with the goroutine stack attached, so the failure
// reaches callers as a task error rather than unwinding the worker.
func (e *Engine) callHandler(ctx context.Context, def *task.Definition, tc *task.Context) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = courier.PanicError(def.Name, "run", r, debug.Stack())
		}
	}()
	return def.Handler(ctx, tc)
}

// wrapTaskError applies the pass-through rules: errors already
// belonging to the pipeline's taxonomy keep their kind, everything else
// becomes a task failure.
func wrapTaskError(taskName string, err error) error {
	switch {
	case errors.Is(err, courier.ErrSerialization),
		errors.Is(err, courier.ErrInvalidArgs),
		errors.Is(err, courier.ErrSchemaNotDefined),
		errors.Is(err, courier.ErrNotImplemented),
		errors.Is(err, courier.ErrTaskFailed),
		errors.Is(err, courier.ErrTaskNotRegistered):
		return err
	default:
		return courier.TaskFailedError(taskName, "run", err)
	}
}

// ──────────────────────────────────────────────────
// Cron
// ──────────────────────────────────────────────────

// RegisterCron adds a periodic entry that submits the named task with
// the given kwargs on the schedule. Kwargs go through the same strict
// validation as any other submission when the entry fires.
func (e *Engine) RegisterCron(name, schedule, taskName string, kwargs courier.Kwargs) error {
	if _, ok := e.tasks.Get(taskName); !ok {
		return courier.TaskNotRegisteredError(taskName)
	}
	return e.scheduler.Add(name, schedule, taskName, kwargs)
}

// RemoveCron deletes a periodic entry by name.
func (e *Engine) RemoveCron(name string) { e.scheduler.Remove(name) }

// CronEntries returns a snapshot of registered periodic entries.
func (e *Engine) CronEntries() []*cron.Entry { return e.scheduler.Entries() }

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Start launches the cron scheduler and, when the broker can deliver
// in-process, its consumer loop feeding Dispatch. Engines used purely
// for Perform or producer-side Submit never need to be started.
func (e *Engine) Start(ctx context.Context) error {
	if e.started {
		return nil
	}
	e.started = true

	if c, ok := e.broker.(broker.Consumer); ok {
		if err := c.Start(ctx, e.dispatcher()); err != nil {
			return fmt.Errorf("engine: start broker consumer: %w", err)
		}
	}
	if err := e.scheduler.Start(ctx); err != nil {
		return err
	}
	e.logger.Info("courier engine started",
		slog.Int("tasks", len(e.tasks.Names())),
	)
	return nil
}

// Stop shuts the engine down gracefully: the cron scheduler first so no
// new submissions fire, then the broker consumer, then shutdown hooks.
func (e *Engine) Stop(ctx context.Context) error {
	if !e.started {
		return nil
	}
	e.started = false

	var firstErr error
	if err := e.scheduler.Stop(ctx); err != nil {
		firstErr = err
	}
	if c, ok := e.broker.(broker.Consumer); ok {
		if err := c.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	e.hooks.EmitShutdown(ctx)
	e.logger.Info("courier engine stopped")
	return firstErr
}
