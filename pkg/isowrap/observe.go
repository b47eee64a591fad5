package isowrap

import "time"

// Collector receives counters and gauges from a wrapper's server. All
// methods are invoked from the server's goroutines; implementations must
// be safe for concurrent use. A nil Collector disables collection.
type Collector interface {
	// CallStarted fires when a callMessage is dispatched for execution.
	CallStarted(wrapper, method string)

	// CallCompleted fires when the terminal reply has been produced.
	CallCompleted(wrapper, method string, duration time.Duration, ok bool)

	// CallRefused fires when a call is refused during draining or cleanup.
	CallRefused(wrapper string)

	// ReplyDropped fires when a terminal reply or refusal could not be
	// delivered on the caller's reply mailbox.
	ReplyDropped(wrapper, method string)

	// WorkerUp and WorkerDown track the live worker count.
	WorkerUp(wrapper string)
	WorkerDown(wrapper string)
}

// DropJournal records undeliverable replies for later inspection.
// Whether such drops are recorded at all is up to the embedding
// application; a nil journal disables recording.
type DropJournal interface {
	RecordDrop(wrapper, transaction, method, reason string)
}

// observer bundles the optional sinks so call sites stay nil-safe.
type observer struct {
	collector Collector
	journal   DropJournal
}

func (o observer) callStarted(wrapper, method string) {
	if o.collector != nil {
		o.collector.CallStarted(wrapper, method)
	}
}

func (o observer) callCompleted(wrapper, method string, d time.Duration, ok bool) {
	if o.collector != nil {
		o.collector.CallCompleted(wrapper, method, d, ok)
	}
}

func (o observer) callRefused(wrapper string) {
	if o.collector != nil {
		o.collector.CallRefused(wrapper)
	}
}

func (o observer) replyDropped(wrapper, transaction, method, reason string) {
	if o.collector != nil {
		o.collector.ReplyDropped(wrapper, method)
	}
	if o.journal != nil {
		o.journal.RecordDrop(wrapper, transaction, method, reason)
	}
}

func (o observer) workerUp(wrapper string) {
	if o.collector != nil {
		o.collector.WorkerUp(wrapper)
	}
}

func (o observer) workerDown(wrapper string) {
	if o.collector != nil {
		o.collector.WorkerDown(wrapper)
	}
}
