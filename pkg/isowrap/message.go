package isowrap

import (
	"crypto/rand"
	"math/big"

	"github.com/fluxorio/isowrap/pkg/concurrency"
)

// Block is the callback form accepted by calls and relayed across the
// domain boundary. Positional and keyword payloads mirror the method
// call shape.
type Block func(args []interface{}, kwargs map[string]interface{}) (interface{}, error)

// blockArg occupies the block slot of a callMessage: nil (no block), an
// inPlaceBlock (shareable, runs in the server's domain), or the
// sendBlockMessage sentinel (relay each invocation back to the caller).
type blockArg interface{ isBlockArg() }

type inPlaceBlock struct{ fn Block }

func (inPlaceBlock) isBlockArg() {}

type blockSentinel struct{}

func (blockSentinel) isBlockArg() {}

// sendBlockMessage marks a call whose block invocations are relayed to
// the caller's domain as yieldMessages.
var sendBlockMessage = blockSentinel{}

// callMessage asks the server to invoke a method on the wrapped object.
// Reply receives zero or more yieldMessages followed by exactly one
// returnMessage or exceptionMessage.
type callMessage struct {
	method      string
	args        []interface{}
	kwargs      map[string]interface{}
	block       blockArg
	transaction string
	policy      MethodPolicy
	reply       concurrency.Mailbox
}

// returnMessage is the successful terminal reply (also used to answer
// yield sub-channels with the block's result, and, with a nil value,
// join requests).
type returnMessage struct {
	value interface{}
}

// exceptionMessage transports an error raised on the other side of the
// boundary.
type exceptionMessage struct {
	err error
}

// yieldMessage relays one block invocation back to the caller. The
// caller runs its block on the payloads and answers on reply.
type yieldMessage struct {
	args   []interface{}
	kwargs map[string]interface{}
	reply  concurrency.Mailbox
}

// stopMessage triggers the transition to draining.
type stopMessage struct{}

// joinMessage registers a reply mailbox to be signalled at cleanup.
type joinMessage struct {
	reply concurrency.Mailbox
}

// workerStoppedMessage is sent on the inbox by a worker that has exited.
type workerStoppedMessage struct {
	worker int
}

// objectMessage delivers the wrapped object to an isolated server as its
// first inbox message.
type objectMessage struct {
	object interface{}
}

var base36Max = new(big.Int).Lsh(big.NewInt(1), 120)

// newTransaction returns a random 120-bit id rendered base-36. Opaque to
// the server; used only for observability.
func newTransaction() string {
	n, err := rand.Int(rand.Reader, base36Max)
	if err != nil {
		// crypto/rand only fails when the platform entropy source is
		// broken; a constant id keeps logging functional.
		return "0"
	}
	return n.Text(36)
}
