package payload

import "reflect"

// Cloner lets a value supply its own deep copy instead of the reflective
// one. Transport under copy semantics prefers this.
type Cloner interface {
	Clone() interface{}
}

// ForTransport prepares v to cross a domain boundary.
//
// move=true transfers ownership: a *Box is drained into a fresh Box owned
// by the receiver (the sender's handle is marked moved); any other value
// passes through untouched, ownership transferring by convention.
//
// move=false copies: a *Box yields a fresh Box around a deep clone, the
// original stays usable; any other value is deep-cloned.
func ForTransport(v interface{}, move bool) (interface{}, error) {
	if b, ok := v.(*Box); ok {
		if move {
			inner, err := b.Take()
			if err != nil {
				return nil, err
			}
			return NewBox(inner), nil
		}
		inner, err := b.Value()
		if err != nil {
			return nil, err
		}
		return NewBox(Clone(inner)), nil
	}
	if move {
		return v, nil
	}
	return Clone(v), nil
}

// ForTransportAll applies ForTransport to every element of a call's
// positional and keyword payloads.
func ForTransportAll(args []interface{}, kwargs map[string]interface{}, move bool) ([]interface{}, map[string]interface{}, error) {
	var outArgs []interface{}
	if args != nil {
		outArgs = make([]interface{}, len(args))
		for i, a := range args {
			t, err := ForTransport(a, move)
			if err != nil {
				return nil, nil, err
			}
			outArgs[i] = t
		}
	}
	var outKw map[string]interface{}
	if kwargs != nil {
		outKw = make(map[string]interface{}, len(kwargs))
		for k, a := range kwargs {
			t, err := ForTransport(a, move)
			if err != nil {
				return nil, nil, err
			}
			outKw[k] = t
		}
	}
	return outArgs, outKw, nil
}

// Clone deep-copies v. Values implementing Cloner clone themselves;
// everything else is walked reflectively. Channels, functions and unsafe
// pointers cannot be cloned and pass through unchanged.
func Clone(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	if c, ok := v.(Cloner); ok {
		return c.Clone()
	}
	return cloneValue(reflect.ValueOf(v)).Interface()
}

func cloneValue(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Ptr:
		if v.IsNil() {
			return v
		}
		out := reflect.New(v.Type().Elem())
		out.Elem().Set(cloneValue(v.Elem()))
		return out

	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(cloneValue(v.Index(i)))
		}
		return out

	case reflect.Array:
		out := reflect.New(v.Type()).Elem()
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(cloneValue(v.Index(i)))
		}
		return out

	case reflect.Map:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(cloneValue(iter.Key()), cloneValue(iter.Value()))
		}
		return out

	case reflect.Struct:
		out := reflect.New(v.Type()).Elem()
		// Value copy first so unexported fields carry over, then deep-fix
		// the settable (exported) ones.
		out.Set(v)
		for i := 0; i < v.NumField(); i++ {
			f := out.Field(i)
			if f.CanSet() {
				f.Set(cloneValue(v.Field(i)))
			}
		}
		return out

	case reflect.Interface:
		if v.IsNil() {
			return v
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(cloneValue(v.Elem()))
		return out

	default:
		// Scalars are immutable; chans, funcs and unsafe pointers are
		// uncloneable and pass through as-is.
		return v
	}
}
