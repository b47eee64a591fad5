package isowrap

import (
	"fmt"
	"reflect"
)

// Invoker bypasses reflective dispatch: objects implementing it receive
// every call directly, keyed by method name.
type Invoker interface {
	Invoke(method string, args []interface{}, kwargs map[string]interface{}, block Block) (interface{}, error)
	RespondsTo(method string) bool
}

// respondsToMethod is the reserved capability-query method name. Stubs
// dispatch RespondsTo through the server like any other call; the server
// answers it from the object's method set unless the object defines its
// own RespondsTo.
const respondsToMethod = "RespondsTo"

var (
	blockType    = reflect.TypeOf(Block(nil))
	kwargsType   = reflect.TypeOf(map[string]interface{}(nil))
	anySliceType = reflect.TypeOf([]interface{}(nil))
	errorType    = reflect.TypeOf((*error)(nil)).Elem()
)

// invoke calls the named method on obj. Panics raised by the method are
// caught wholesale and surfaced as errors.
//
// Binding rules, matched against the method's parameter list from the end:
//   - a trailing isowrap.Block parameter receives the block
//   - a then-trailing map[string]interface{} parameter receives the kwargs
//   - a single remaining []interface{} parameter receives the whole
//     positional list; a variadic tail is spread; otherwise positional
//     arguments bind one-to-one
func invoke(obj interface{}, method string, args []interface{}, kwargs map[string]interface{}, block Block) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in method %s: %v", method, r)
		}
	}()

	if inv, ok := obj.(Invoker); ok {
		if method == respondsToMethod {
			return answerRespondsTo(obj, args)
		}
		return inv.Invoke(method, args, kwargs, block)
	}

	m := reflect.ValueOf(obj).MethodByName(method)
	if !m.IsValid() {
		if method == respondsToMethod {
			return answerRespondsTo(obj, args)
		}
		return nil, &Error{Code: "UNKNOWN_METHOD", Message: fmt.Sprintf("object %T does not respond to %s", obj, method)}
	}

	in, err := bindArgs(m.Type(), args, kwargs, block)
	if err != nil {
		return nil, err
	}
	return mapResults(m.Call(in))
}

// respondsTo reports whether obj answers the named method.
func respondsTo(obj interface{}, method string) bool {
	if inv, ok := obj.(Invoker); ok {
		return inv.RespondsTo(method)
	}
	if method == respondsToMethod {
		return true
	}
	return reflect.ValueOf(obj).MethodByName(method).IsValid()
}

// answerRespondsTo serves the reserved capability query for objects that
// do not define their own RespondsTo.
func answerRespondsTo(obj interface{}, args []interface{}) (interface{}, error) {
	if len(args) != 1 {
		return nil, &Error{Code: "BAD_ARGUMENT", Message: "RespondsTo takes exactly one method name"}
	}
	name, ok := args[0].(string)
	if !ok {
		return nil, &Error{Code: "BAD_ARGUMENT", Message: "RespondsTo takes a string method name"}
	}
	return respondsTo(obj, name), nil
}

func bindArgs(mt reflect.Type, args []interface{}, kwargs map[string]interface{}, block Block) ([]reflect.Value, error) {
	n := mt.NumIn()
	end := n

	wantBlock := end > 0 && mt.In(end-1) == blockType
	if wantBlock {
		end--
	}
	wantKwargs := end > 0 && mt.In(end-1) == kwargsType && !(mt.IsVariadic() && end == n)
	if wantKwargs {
		end--
	}

	if block != nil && !wantBlock {
		return nil, &Error{Code: "BAD_ARGUMENT", Message: "method does not accept a block"}
	}
	if len(kwargs) > 0 && !wantKwargs {
		return nil, &Error{Code: "BAD_ARGUMENT", Message: "method does not accept keyword arguments"}
	}

	var in []reflect.Value

	switch {
	case end == 1 && mt.In(0) == anySliceType && !mt.IsVariadic():
		// A sole []interface{} parameter absorbs the whole positional list.
		in = append(in, reflect.ValueOf(ensureArgs(args)))

	case mt.IsVariadic():
		// The variadic slot is always last, so block/kwargs parameters
		// cannot coexist with it and end == n here.
		fixed := n - 1
		if len(args) < fixed {
			return nil, argCountError(mt, len(args))
		}
		for i := 0; i < fixed; i++ {
			v, err := bindOne(args[i], mt.In(i))
			if err != nil {
				return nil, err
			}
			in = append(in, v)
		}
		elem := mt.In(n - 1).Elem()
		for _, a := range args[fixed:] {
			v, err := bindOne(a, elem)
			if err != nil {
				return nil, err
			}
			in = append(in, v)
		}

	default:
		if len(args) != end {
			return nil, argCountError(mt, len(args))
		}
		for i := 0; i < end; i++ {
			v, err := bindOne(args[i], mt.In(i))
			if err != nil {
				return nil, err
			}
			in = append(in, v)
		}
	}

	if wantKwargs {
		if kwargs == nil {
			in = append(in, reflect.Zero(kwargsType))
		} else {
			in = append(in, reflect.ValueOf(kwargs))
		}
	}
	if wantBlock {
		if block == nil {
			in = append(in, reflect.Zero(blockType))
		} else {
			in = append(in, reflect.ValueOf(block))
		}
	}
	return in, nil
}

func ensureArgs(args []interface{}) []interface{} {
	if args == nil {
		return []interface{}{}
	}
	return args
}

func bindOne(arg interface{}, pt reflect.Type) (reflect.Value, error) {
	if arg == nil {
		switch pt.Kind() {
		case reflect.Interface, reflect.Ptr, reflect.Slice, reflect.Map, reflect.Chan, reflect.Func:
			return reflect.Zero(pt), nil
		}
		return reflect.Value{}, &Error{Code: "BAD_ARGUMENT", Message: fmt.Sprintf("nil is not assignable to %s", pt)}
	}

	v := reflect.ValueOf(arg)
	if v.Type().AssignableTo(pt) {
		return v, nil
	}
	// Numeric kinds convert to one another (which may narrow or truncate);
	// anything else must be assignable as is.
	if isNumericKind(v.Kind()) && isNumericKind(pt.Kind()) && v.Type().ConvertibleTo(pt) {
		return v.Convert(pt), nil
	}
	return reflect.Value{}, &Error{Code: "BAD_ARGUMENT", Message: fmt.Sprintf("%T is not assignable to %s", arg, pt)}
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func argCountError(mt reflect.Type, got int) error {
	return &Error{Code: "BAD_ARGUMENT", Message: fmt.Sprintf("wrong number of arguments (given %d, method takes %d)", got, mt.NumIn())}
}

// mapResults converts a reflective return list: a trailing error return
// becomes the call's error, zero remaining values become nil, one is
// passed through and several collapse into a []interface{}.
func mapResults(out []reflect.Value) (interface{}, error) {
	var err error
	if len(out) > 0 && out[len(out)-1].Type().Implements(errorType) {
		if e := out[len(out)-1].Interface(); e != nil {
			err = e.(error)
		}
		out = out[:len(out)-1]
	}

	switch len(out) {
	case 0:
		return nil, err
	case 1:
		return out[0].Interface(), err
	default:
		vals := make([]interface{}, len(out))
		for i, v := range out {
			vals[i] = v.Interface()
		}
		return vals, err
	}
}
