// Package remote serves a wrapper over NATS so peers in other processes
// can call it. Payloads cross as JSON, which bounds what is callable
// remotely: arguments and results must be JSON-serializable, and blocks
// are not supported (a remote call never carries one).
package remote

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/fluxorio/isowrap/pkg/isowrap"
)

// DefaultRequestTimeout is used by Client.Call when none is configured.
const DefaultRequestTimeout = 5 * time.Second

// callRequest is the wire form of one remote invocation.
type callRequest struct {
	Method      string                 `json:"method"`
	Args        []interface{}          `json:"args,omitempty"`
	Kwargs      map[string]interface{} `json:"kwargs,omitempty"`
	Correlation string                 `json:"correlation,omitempty"`
}

// callResponse carries the result or the error's string form back.
type callResponse struct {
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Server exposes one wrapper on one subject.
type Server struct {
	wrapper *isowrap.Wrapper
	sub     *nats.Subscription
}

// Serve subscribes the wrapper to subject (queue group: same subject, so
// multiple processes can share the load of a stateless object). Calls
// are dispatched concurrently; the wrapper's inbox provides the
// backpressure and ordering guarantees.
func Serve(nc *nats.Conn, subject string, w *isowrap.Wrapper) (*Server, error) {
	if subject == "" {
		return nil, fmt.Errorf("remote: subject cannot be empty")
	}
	if w == nil {
		return nil, fmt.Errorf("remote: wrapper cannot be nil")
	}

	s := &Server{wrapper: w}
	sub, err := nc.QueueSubscribe(subject, subject, func(msg *nats.Msg) {
		go s.handle(msg)
	})
	if err != nil {
		return nil, fmt.Errorf("remote: subscribe %s: %w", subject, err)
	}
	s.sub = sub
	return s, nil
}

func (s *Server) handle(msg *nats.Msg) {
	var req callRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.respond(msg, callResponse{Error: fmt.Sprintf("bad request: %v", err)})
		return
	}

	result, err := s.wrapper.CallWith(req.Method, req.Args, req.Kwargs, nil)
	if err != nil {
		s.respond(msg, callResponse{Error: err.Error()})
		return
	}
	s.respond(msg, callResponse{Result: result})
}

func (s *Server) respond(msg *nats.Msg, resp callResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		// The result was not JSON-serializable; substitute a surrogate
		// carrying the failure's string form.
		data, _ = json.Marshal(callResponse{Error: fmt.Sprintf("unserializable result: %v", err)})
	}
	_ = msg.Respond(data)
}

// Close unsubscribes; the wrapper itself is left running.
func (s *Server) Close() error {
	return s.sub.Unsubscribe()
}

// Client calls a remotely served wrapper.
type Client struct {
	nc      *nats.Conn
	subject string
	timeout time.Duration
}

// NewClient builds a client for subject. A zero timeout selects
// DefaultRequestTimeout.
func NewClient(nc *nats.Conn, subject string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Client{nc: nc, subject: subject, timeout: timeout}
}

// Call invokes a method with positional arguments only.
func (c *Client) Call(method string, args ...interface{}) (interface{}, error) {
	return c.CallWith(method, args, nil)
}

// CallWith invokes a method with positional and keyword arguments. The
// remote error, if any, comes back as a *isowrap.CallError carrying the
// original's string form.
func (c *Client) CallWith(method string, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	correlation := uuid.NewString()
	data, err := json.Marshal(callRequest{
		Method:      method,
		Args:        args,
		Kwargs:      kwargs,
		Correlation: correlation,
	})
	if err != nil {
		return nil, fmt.Errorf("remote: encode request: %w", err)
	}

	msg, err := c.nc.Request(c.subject, data, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("remote: request %s: %w", c.subject, err)
	}

	var resp callResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return nil, fmt.Errorf("remote: decode response: %w", err)
	}
	if resp.Error != "" {
		return nil, &isowrap.CallError{
			Method:      method,
			Transaction: correlation,
			Message:     resp.Error,
		}
	}
	return resp.Result, nil
}
