package isowrap

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fluxorio/isowrap/pkg/concurrency"
	"github.com/fluxorio/isowrap/pkg/payload"
)

const inboxCapacity = 64

// defaultPolicyKey is the sentinel under which the default MethodPolicy
// is stored in the per-method mapping.
const defaultPolicyKey = ""

// Wrapper is the shareable client-side entry point. It is immutable
// after construction and safe to hand to any number of peers.
type Wrapper struct {
	name           string
	threads        int
	loggingEnabled bool
	local          bool
	policies       map[string]MethodPolicy
	stub           *Stub
	inbox          concurrency.Mailbox
	srv            *server
	events         eventLog
	tracer         trace.Tracer
	counters       *counters

	recoverOnce sync.Once
}

// Builder collects configuration before the wrapper is frozen. The
// optional configure callback passed to New sees the Builder after the
// options have been applied and may register per-method policies or
// adjust name, logging and thread count; when it returns, everything is
// frozen.
type Builder struct {
	Name             string
	Threads          int
	EnableLogging    bool
	UseCurrentDomain bool
	DefaultPolicy    PolicySettings
	Logger           Logger
	Collector        Collector
	Journal          DropJournal
	Tracer           trace.Tracer

	methods   map[string]PolicySettings
	configure func(*Builder)
}

// ConfigureMethod registers a per-method policy override.
func (b *Builder) ConfigureMethod(method string, s PolicySettings) {
	if b.methods == nil {
		b.methods = make(map[string]PolicySettings)
	}
	b.methods[method] = s
}

// Option configures a Builder.
type Option func(*Builder)

// WithName names the wrapper for logging and metrics. Defaults to an
// identity-derived string.
func WithName(name string) Option { return func(b *Builder) { b.Name = name } }

// WithThreads sets the worker pool size. Zero (the default) selects
// sequential mode; negative values are coerced to zero.
func WithThreads(n int) Option { return func(b *Builder) { b.Threads = n } }

// WithLogging enables per-event logging.
func WithLogging(enabled bool) Option { return func(b *Builder) { b.EnableLogging = enabled } }

// WithLocalServer hosts the server in the caller's domain: the object is
// borrowed rather than moved, and RecoverObject is not permitted.
func WithLocalServer() Option { return func(b *Builder) { b.UseCurrentDomain = true } }

// WithDefaultPolicy sets the default MethodPolicy settings.
func WithDefaultPolicy(s PolicySettings) Option { return func(b *Builder) { b.DefaultPolicy = s } }

// WithMethodPolicy registers a per-method policy override.
func WithMethodPolicy(method string, s PolicySettings) Option {
	return func(b *Builder) { b.ConfigureMethod(method, s) }
}

// WithLogger replaces the default stderr logger.
func WithLogger(l Logger) Option { return func(b *Builder) { b.Logger = l } }

// WithCollector attaches a metrics collector.
func WithCollector(c Collector) Option { return func(b *Builder) { b.Collector = c } }

// WithJournal attaches a drop journal for undeliverable replies.
func WithJournal(j DropJournal) Option { return func(b *Builder) { b.Journal = j } }

// WithTracer attaches an OpenTelemetry tracer; each transaction becomes
// a span.
func WithTracer(t trace.Tracer) Option { return func(b *Builder) { b.Tracer = t } }

// WithBuilder supplies the configure callback described on Builder.
func WithBuilder(fn func(*Builder)) Option { return func(b *Builder) { b.configure = fn } }

// New wraps object and starts its server. The object may be a bare value
// or a *payload.Box; a boxed object is moved into the server's domain
// (isolated mode) or borrowed (local mode). Wrapping an already-moved
// box fails.
//
// Behavior of background work spawned by a method that outlives its call
// and touches moved values is undefined.
func New(object interface{}, opts ...Option) (*Wrapper, error) {
	b := &Builder{}
	for _, o := range opts {
		o(b)
	}
	if b.configure != nil {
		b.configure(b)
	}

	if b.Threads < 0 {
		b.Threads = 0
	}
	if b.Logger == nil {
		b.Logger = NewDefaultLogger()
	}
	if b.Name == "" {
		b.Name = fmt.Sprintf("%T-%s", object, uuid.NewString()[:8])
	}

	obj := object
	if box, ok := object.(*payload.Box); ok {
		if box.Moved() {
			return nil, fmt.Errorf("isowrap: cannot wrap a moved object: %w", payload.ErrMoved)
		}
		var err error
		if b.UseCurrentDomain {
			obj, err = box.Value()
		} else {
			obj, err = box.Take()
		}
		if err != nil {
			return nil, fmt.Errorf("isowrap: cannot wrap a moved object: %w", err)
		}
	}

	policies := make(map[string]MethodPolicy, len(b.methods)+1)
	policies[defaultPolicyKey] = NewMethodPolicy(b.DefaultPolicy)
	for name, s := range b.methods {
		policies[name] = NewMethodPolicy(s)
	}

	events := eventLog{name: b.Name, enabled: b.EnableLogging, logger: b.Logger}
	cnt := &counters{}
	inbox := concurrency.NewBoundedMailbox(inboxCapacity)

	srv := &server{
		inbox:    inbox,
		isolated: !b.UseCurrentDomain,
		name:     b.Name,
		threads:  b.Threads,
		events:   events,
		obs:      observer{collector: b.Collector, journal: b.Journal},
		counters: cnt,
		done:     make(chan struct{}),
	}
	if b.Threads > 0 {
		// Created here, not in the server goroutine, so Stats can read
		// the queue depth without racing server startup.
		srv.jobs = concurrency.NewBoundedMailbox(jobQueueCapacity)
	}

	if b.UseCurrentDomain {
		srv.object = obj
	} else {
		// The isolated server's first act is to receive the object; the
		// wrapper is not published until this send has happened, so no
		// call can precede it.
		if err := inbox.Put(context.Background(), objectMessage{object: obj}); err != nil {
			return nil, err
		}
	}

	w := &Wrapper{
		name:           b.Name,
		threads:        b.Threads,
		loggingEnabled: b.EnableLogging,
		local:          b.UseCurrentDomain,
		policies:       policies,
		inbox:          inbox,
		srv:            srv,
		events:         events,
		tracer:         b.Tracer,
		counters:       cnt,
	}
	w.stub = &Stub{wrapper: w}

	go srv.run()

	events.logf("wrapper created (threads=%d, local=%t)", b.Threads, b.UseCurrentDomain)
	return w, nil
}

// Name returns the wrapper's name.
func (w *Wrapper) Name() string { return w.name }

// Threads returns the worker pool size (zero means sequential).
func (w *Wrapper) Threads() int { return w.threads }

// LoggingEnabled reports whether event logging is on.
func (w *Wrapper) LoggingEnabled() bool { return w.loggingEnabled }

// Local reports whether the server is hosted in the caller's domain.
func (w *Wrapper) Local() bool { return w.local }

// Stub returns the shareable method-call façade.
func (w *Wrapper) Stub() *Stub { return w.stub }

// MethodSettings returns the policy for a method name, falling back to
// the default policy.
func (w *Wrapper) MethodSettings(method string) MethodPolicy {
	if p, ok := w.policies[method]; ok {
		return p
	}
	return w.policies[defaultPolicyKey]
}

// Call invokes a method with positional arguments only.
func (w *Wrapper) Call(method string, args ...interface{}) (interface{}, error) {
	return w.CallWith(method, args, nil, nil)
}

// CallWith invokes a method with positional and keyword arguments and an
// optional block. It drives the per-call transaction protocol: the reply
// mailbox receives zero or more yields (each executed locally against
// block) followed by exactly one terminal reply.
func (w *Wrapper) CallWith(method string, args []interface{}, kwargs map[string]interface{}, block Block) (result interface{}, err error) {
	ctx := context.Background()
	transaction := newTransaction()
	policy := w.MethodSettings(method)

	if w.tracer != nil {
		var span trace.Span
		ctx, span = w.tracer.Start(ctx, "isowrap.call", trace.WithAttributes(
			attribute.String("isowrap.wrapper", w.name),
			attribute.String("isowrap.method", method),
			attribute.String("isowrap.transaction", transaction),
		))
		defer func() {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			span.End()
		}()
	}

	var blockSlot blockArg
	switch {
	case block == nil:
	case policy.ExecuteBlocksInPlace:
		blockSlot = inPlaceBlock{fn: block}
	default:
		blockSlot = sendBlockMessage
	}

	targs, tkwargs, err := payload.ForTransportAll(args, kwargs, policy.MoveArguments)
	if err != nil {
		return nil, err
	}

	reply := concurrency.NewBoundedMailbox(1)
	msg := callMessage{
		method:      method,
		args:        targs,
		kwargs:      tkwargs,
		block:       blockSlot,
		transaction: transaction,
		policy:      policy,
		reply:       reply,
	}

	w.events.logf("txn %s: calling %s", transaction, method)
	if err := w.inbox.Put(ctx, msg); err != nil {
		if errors.Is(err, concurrency.ErrMailboxClosed) {
			return nil, newCallError(method, transaction, ErrClosed)
		}
		return nil, err
	}

	for {
		in, err := reply.Receive(ctx)
		if err != nil {
			return nil, err
		}
		switch r := in.(type) {
		case yieldMessage:
			w.handleYield(ctx, method, transaction, policy, block, r)
		case returnMessage:
			reply.Close()
			w.events.logf("txn %s: returned", transaction)
			return r.value, nil
		case exceptionMessage:
			reply.Close()
			w.events.logf("txn %s: raised %v", transaction, r.err)
			return nil, r.err
		default:
			reply.Close()
			return nil, &Error{Code: "PROTOCOL", Message: fmt.Sprintf("unexpected reply %T", in)}
		}
	}
}

// handleYield runs the caller's block for one relayed invocation and
// answers on the yield's sub-mailbox.
func (w *Wrapper) handleYield(ctx context.Context, method, transaction string, policy MethodPolicy, block Block, y yieldMessage) {
	w.events.logf("txn %s: yield", transaction)

	var value interface{}
	berr := ErrNoBlock
	if block != nil {
		value, berr = runBlock(block, y.args, y.kwargs)
	}

	if berr == nil {
		out, terr := payload.ForTransport(value, policy.MoveBlockResults)
		if terr == nil {
			if perr := y.reply.Put(ctx, returnMessage{value: out}); perr != nil {
				w.events.errorf("txn %s: yield reply dropped: %v", transaction, perr)
			}
			return
		}
		berr = terr
	}

	// Block failure crosses back with copy semantics; a failure to send
	// the error falls back to a surrogate carrying its string form.
	ce, ok := berr.(*CallError)
	if !ok {
		ce = newCallError(method, transaction, berr)
	}
	if perr := y.reply.Put(ctx, exceptionMessage{err: ce}); perr != nil {
		if perr = y.reply.Put(ctx, exceptionMessage{err: ce.surrogate()}); perr != nil {
			w.events.errorf("txn %s: yield error dropped: %v", transaction, perr)
		}
	}
}

// runBlock shields the protocol loop from panics inside the block.
func runBlock(block Block, args []interface{}, kwargs map[string]interface{}) (value interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in block: %v", r)
		}
	}()
	return block(args, kwargs)
}

// AsyncStop asks the server to shut down and returns immediately. It is
// idempotent and safe from any peer; a closed inbox is swallowed.
func (w *Wrapper) AsyncStop() *Wrapper {
	if err := w.inbox.Put(context.Background(), stopMessage{}); err != nil && !errors.Is(err, concurrency.ErrMailboxClosed) {
		w.events.errorf("stop request failed: %v", err)
	}
	return w
}

// Join blocks until the server has terminated. For an isolated server it
// waits on the server's completion; for a local server it registers a
// join reply and waits for the cleanup signal. Join after full teardown
// is a no-op.
func (w *Wrapper) Join() *Wrapper {
	if !w.local {
		<-w.srv.done
		return w
	}

	reply := concurrency.NewBoundedMailbox(1)
	if err := w.inbox.Put(context.Background(), joinMessage{reply: reply}); err != nil {
		// Inbox already closed: the server is gone.
		return w
	}
	_, _ = reply.Receive(context.Background())
	reply.Close()
	return w
}

// RecoverObject returns the wrapped object after a clean shutdown of an
// isolated server. It blocks until the server terminates and may be
// called at most once.
func (w *Wrapper) RecoverObject() (interface{}, error) {
	if w.local {
		return nil, ErrRecoveryNotPermitted
	}
	<-w.srv.done

	var obj interface{}
	err := ErrAlreadyRecovered
	w.recoverOnce.Do(func() {
		obj = w.srv.result
		err = nil
	})
	return obj, err
}

// Stats snapshots the server's observable state.
type Stats struct {
	State          string
	Threads        int
	WorkersAlive   int
	InboxDepth     int
	QueueDepth     int
	CallsStarted   uint64
	CallsCompleted uint64
	CallsRefused   uint64
	RepliesDropped uint64
}

// Stats returns a point-in-time snapshot of the wrapper's server.
func (w *Wrapper) Stats() Stats {
	s := Stats{
		State:          w.counters.getState().String(),
		Threads:        w.threads,
		WorkersAlive:   int(w.counters.workersAlive.Load()),
		InboxDepth:     w.inbox.Size(),
		CallsStarted:   w.counters.started.Load(),
		CallsCompleted: w.counters.completed.Load(),
		CallsRefused:   w.counters.refused.Load(),
		RepliesDropped: w.counters.dropped.Load(),
	}
	if w.srv.jobs != nil {
		s.QueueDepth = w.srv.jobs.Size()
	}
	return s
}
