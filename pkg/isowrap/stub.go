package isowrap

// Stub is the shareable method-call façade handed to peers. It holds a
// reference to its Wrapper and forwards every invocation to the
// wrapper's call protocol; it has no other state.
type Stub struct {
	wrapper *Wrapper
}

// Wrapper returns the stub's wrapper.
func (s *Stub) Wrapper() *Wrapper { return s.wrapper }

// Call forwards a positional-only invocation.
func (s *Stub) Call(method string, args ...interface{}) (interface{}, error) {
	return s.wrapper.Call(method, args...)
}

// CallWith forwards a full invocation with keyword arguments and a block.
func (s *Stub) CallWith(method string, args []interface{}, kwargs map[string]interface{}, block Block) (interface{}, error) {
	return s.wrapper.CallWith(method, args, kwargs, block)
}

// RespondsTo asks the wrapped object whether it answers a method. The
// query is dispatched through the server like any other call.
func (s *Stub) RespondsTo(method string) (bool, error) {
	v, err := s.wrapper.Call(respondsToMethod, method)
	if err != nil {
		return false, err
	}
	b, _ := v.(bool)
	return b, nil
}
