package isowrap

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/fluxorio/isowrap/pkg/concurrency"
	"github.com/fluxorio/isowrap/pkg/payload"
)

// serverState tracks the lifecycle: Init -> Running -> Draining ->
// Cleanup -> Terminated. Draining is only entered in pooled mode.
type serverState int32

const (
	stateInit serverState = iota
	stateRunning
	stateDraining
	stateCleanup
	stateTerminated
)

func (s serverState) String() string {
	switch s {
	case stateInit:
		return "init"
	case stateRunning:
		return "running"
	case stateDraining:
		return "draining"
	case stateCleanup:
		return "cleanup"
	case stateTerminated:
		return "terminated"
	}
	return "unknown"
}

// counters are shared between the server (writer) and Wrapper.Stats
// (reader); all fields are accessed atomically.
type counters struct {
	state        atomic.Int32
	workersAlive atomic.Int32
	started      atomic.Uint64
	completed    atomic.Uint64
	refused      atomic.Uint64
	dropped      atomic.Uint64
}

func (c *counters) setState(s serverState) { c.state.Store(int32(s)) }
func (c *counters) getState() serverState  { return serverState(c.state.Load()) }

// server owns the wrapped object and executes calls on it, inline in
// sequential mode or on the worker pool in pooled mode. It is
// single-owner state: only the dispatch goroutine mutates it, except for
// the counters.
type server struct {
	object   interface{}
	inbox    concurrency.Mailbox
	jobs     concurrency.Mailbox // nil in sequential mode
	alive    int
	joins    []concurrency.Mailbox
	isolated bool
	name     string
	threads  int
	events   eventLog
	obs      observer
	counters *counters

	// done is closed once the lifecycle has finished; result then holds
	// the owned object.
	done   chan struct{}
	result interface{}
}

const jobQueueCapacity = 64

// run drives the lifecycle. Unexpected panics are logged and the state
// machine still exits cleanly, parking the object in result.
func (s *server) run() {
	ctx := context.Background()

	defer func() {
		if r := recover(); r != nil {
			s.events.errorf("server terminated by panic: %v", r)
			s.inbox.Close()
		}
		s.result = s.object
		s.counters.setState(stateTerminated)
		s.events.logf("server terminated")
		close(s.done)
	}()

	// Init: an isolated server's first inbox message is the object moved
	// into its domain.
	if s.isolated {
		msg, err := s.inbox.Receive(ctx)
		if err != nil {
			return
		}
		om, ok := msg.(objectMessage)
		if !ok {
			s.events.errorf("expected object delivery, got %T", msg)
			return
		}
		s.object = om.object
	}

	if s.jobs != nil {
		s.alive = s.threads
		s.counters.workersAlive.Store(int32(s.threads))
		for i := 0; i < s.threads; i++ {
			go s.worker(ctx, i)
			s.obs.workerUp(s.name)
		}
	}

	s.counters.setState(stateRunning)
	s.events.logf("server running (threads=%d, isolated=%t)", s.threads, s.isolated)

	s.running(ctx)
	if s.jobs != nil {
		s.draining(ctx)
	}
	s.cleanup(ctx)
}

// running receives inbox messages until a terminal trigger.
func (s *server) running(ctx context.Context) {
	for {
		msg, err := s.inbox.Receive(ctx)
		if err != nil {
			return
		}
		switch m := msg.(type) {
		case callMessage:
			if s.jobs != nil {
				// FIFO: arrival order is preserved into the queue.
				if err := s.jobs.Put(ctx, m); err != nil {
					s.refuse(ctx, m)
				}
			} else {
				s.execute(ctx, m, -1)
			}
		case joinMessage:
			s.joins = append(s.joins, m.reply)
		case stopMessage:
			s.events.logf("stop requested")
			return
		case workerStoppedMessage:
			// Unexpected while running; treat as a drain trigger.
			s.events.errorf("worker %d stopped unexpectedly", m.worker)
			s.workerDown()
			return
		default:
			s.events.errorf("unexpected message %T while running", msg)
		}
	}
}

// draining closes the job queue (workers finish the remaining jobs, then
// exit) and keeps servicing the inbox until every worker has reported in.
func (s *server) draining(ctx context.Context) {
	s.counters.setState(stateDraining)
	s.events.logf("draining %d workers", s.alive)
	s.jobs.Close()

	for s.alive > 0 {
		msg, err := s.inbox.Receive(ctx)
		if err != nil {
			return
		}
		switch m := msg.(type) {
		case callMessage:
			s.refuse(ctx, m)
		case joinMessage:
			s.joins = append(s.joins, m.reply)
		case stopMessage:
			// Idempotent.
		case workerStoppedMessage:
			s.workerDown()
		default:
			s.events.errorf("unexpected message %T while draining", msg)
		}
	}
}

// cleanup closes the inbox, answers the accumulated joins and refuses
// whatever was still buffered.
func (s *server) cleanup(ctx context.Context) {
	s.counters.setState(stateCleanup)
	s.events.logf("cleanup")
	s.inbox.Close()

	for _, r := range s.joins {
		if err := r.Put(ctx, returnMessage{}); err != nil {
			s.events.errorf("join reply dropped: %v", err)
		}
	}
	s.joins = nil

	for {
		msg, ok, err := s.inbox.TryReceive()
		if err != nil || !ok {
			return
		}
		switch m := msg.(type) {
		case callMessage:
			s.refuse(ctx, m)
		case joinMessage:
			if err := m.reply.Put(ctx, returnMessage{}); err != nil {
				s.events.errorf("join reply dropped: %v", err)
			}
		default:
			// Late stop/workerStopped messages are meaningless now.
		}
	}
}

func (s *server) workerDown() {
	s.alive--
	s.counters.workersAlive.Store(int32(s.alive))
	s.obs.workerDown(s.name)
}

// worker consumes jobs until the queue is closed and drained, then
// reports its exit on the inbox.
func (s *server) worker(ctx context.Context, num int) {
	for {
		msg, err := s.jobs.Receive(ctx)
		if err != nil {
			break
		}
		if m, ok := msg.(callMessage); ok {
			s.execute(ctx, m, num)
		}
	}
	if err := s.inbox.Put(ctx, workerStoppedMessage{worker: num}); err != nil {
		s.events.errorf("worker %d exit notice dropped: %v", num, err)
	}
}

// execute runs one callMessage against the wrapped object and produces
// its terminal reply.
func (s *server) execute(ctx context.Context, m callMessage, worker int) {
	start := time.Now()
	s.counters.started.Add(1)
	s.obs.callStarted(s.name, m.method)
	if worker >= 0 {
		s.events.logf("txn %s: %s on worker %d", m.transaction, m.method, worker)
	} else {
		s.events.logf("txn %s: %s inline", m.transaction, m.method)
	}

	var block Block
	switch b := m.block.(type) {
	case nil:
	case inPlaceBlock:
		block = b.fn
	case blockSentinel:
		block = s.relayBlock(ctx, m)
	}

	result, err := invoke(s.object, m.method, m.args, m.kwargs, block)
	if err == nil {
		var out interface{}
		out, err = payload.ForTransport(result, m.policy.MoveResults)
		if err == nil {
			s.counters.completed.Add(1)
			if perr := m.reply.Put(ctx, returnMessage{value: out}); perr != nil {
				s.dropReply(m, perr)
			}
			s.obs.callCompleted(s.name, m.method, time.Since(start), true)
			return
		}
	}

	s.counters.completed.Add(1)
	s.sendException(ctx, m, err)
	s.obs.callCompleted(s.name, m.method, time.Since(start), false)
}

// relayBlock builds the proxy that forwards block invocations from the
// worker back to the caller's domain over the call's reply mailbox.
func (s *server) relayBlock(ctx context.Context, m callMessage) Block {
	return func(args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
		targs, tkwargs, err := payload.ForTransportAll(args, kwargs, m.policy.MoveBlockArguments)
		if err != nil {
			return nil, err
		}

		sub := concurrency.NewBoundedMailbox(1)
		if err := m.reply.Put(ctx, yieldMessage{args: targs, kwargs: tkwargs, reply: sub}); err != nil {
			return nil, err
		}

		reply, err := sub.Receive(ctx)
		if err != nil {
			return nil, err
		}
		sub.Close()
		switch r := reply.(type) {
		case returnMessage:
			return r.value, nil
		case exceptionMessage:
			return nil, r.err
		}
		return nil, &Error{Code: "PROTOCOL", Message: "unexpected yield reply"}
	}
}

// sendException delivers err as the terminal reply. If the error value
// itself cannot be delivered a surrogate carrying only its string form
// is substituted; if even that fails the drop is logged and recorded.
func (s *server) sendException(ctx context.Context, m callMessage, err error) {
	ce, ok := err.(*CallError)
	if !ok {
		ce = newCallError(m.method, m.transaction, err)
	}
	if perr := m.reply.Put(ctx, exceptionMessage{err: ce}); perr != nil {
		if perr = m.reply.Put(ctx, exceptionMessage{err: ce.surrogate()}); perr != nil {
			s.dropReply(m, perr)
		}
	}
}

// refuse answers a call that arrived during draining or cleanup.
// Best-effort: a closed reply mailbox is logged and recorded.
func (s *server) refuse(ctx context.Context, m callMessage) {
	s.counters.refused.Add(1)
	s.obs.callRefused(s.name)
	s.events.logf("txn %s: refusing %s", m.transaction, m.method)

	e := newCallError(m.method, m.transaction, ErrClosed)
	if err := m.reply.Put(ctx, exceptionMessage{err: e}); err != nil {
		s.dropReply(m, err)
	}
}

func (s *server) dropReply(m callMessage, cause error) {
	s.counters.dropped.Add(1)
	s.events.errorf("txn %s: reply for %s dropped: %v", m.transaction, m.method, cause)
	s.obs.replyDropped(s.name, m.transaction, m.method, cause.Error())
}
