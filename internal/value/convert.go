package value

import (
	"fmt"
	"reflect"
)

// ConvertError reports a Go value that cannot be represented as a Value.
type ConvertError struct {
	Path    string // Location within the tree, e.g. "items[2].name".
	Message string
}

func (e *ConvertError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("value: %s", e.Message)
	}
	return fmt.Sprintf("value: %s: %s", e.Path, e.Message)
}

// FromGo converts arbitrary Go data into a Value tree.
//
// Supported inputs: nil, bool, all integer and float kinds, string, Value
// trees, slices/arrays, and maps with string keys. Anything else (channels,
// funcs, complex numbers, structs) returns a ConvertError, as does a cyclic
// structure. The result is always a finite tree safe to serialize.
func FromGo(v any) (Value, error) {
	return fromGo(v, "", make(map[uintptr]bool))
}

func fromGo(v any, path string, seen map[uintptr]bool) (Value, error) {
	if v == nil {
		return Null{}, nil
	}

	// Pass pre-built Value trees through, after walking them: List and
	// Object are reference types, so a caller can hand over a cycle.
	if val, ok := v.(Value); ok {
		if err := checkValue(val, path, seen); err != nil {
			return nil, err
		}
		return val, nil
	}

	switch val := v.(type) {
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int8:
		return Int(val), nil
	case int16:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint:
		return Int(val), nil
	case uint8:
		return Int(val), nil
	case uint16:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case uint64:
		if val > 1<<63-1 {
			return nil, &ConvertError{Path: path, Message: fmt.Sprintf("uint64 %d overflows int64", val)}
		}
		return Int(val), nil
	case float32:
		return Float(val), nil
	case float64:
		return Float(val), nil
	case string:
		return String(val), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		if rv.IsNil() {
			return List{}, nil
		}
		ptr := rv.Pointer()
		if seen[ptr] {
			return nil, &ConvertError{Path: path, Message: "cyclic structure"}
		}
		seen[ptr] = true
		defer delete(seen, ptr)
		return fromGoList(rv, path, seen)

	case reflect.Array:
		return fromGoList(rv, path, seen)

	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, &ConvertError{Path: path, Message: fmt.Sprintf("map key type %s is not string", rv.Type().Key())}
		}
		if rv.IsNil() {
			return Object{}, nil
		}
		ptr := rv.Pointer()
		if seen[ptr] {
			return nil, &ConvertError{Path: path, Message: "cyclic structure"}
		}
		seen[ptr] = true
		defer delete(seen, ptr)

		obj := make(Object, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			elem, err := fromGo(iter.Value().Interface(), path+"."+k, seen)
			if err != nil {
				return nil, err
			}
			obj[k] = elem
		}
		return obj, nil

	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return Null{}, nil
		}
		return fromGo(rv.Elem().Interface(), path, seen)
	}

	return nil, &ConvertError{Path: path, Message: fmt.Sprintf("unsupported type %T", v)}
}

// checkValue verifies a pre-built Value tree is finite.
func checkValue(v Value, path string, seen map[uintptr]bool) error {
	switch val := v.(type) {
	case List:
		if len(val) == 0 {
			return nil
		}
		ptr := reflect.ValueOf(val).Pointer()
		if seen[ptr] {
			return &ConvertError{Path: path, Message: "cyclic structure"}
		}
		seen[ptr] = true
		defer delete(seen, ptr)
		for i, elem := range val {
			if err := checkValue(elem, fmt.Sprintf("%s[%d]", path, i), seen); err != nil {
				return err
			}
		}
	case Object:
		if len(val) == 0 {
			return nil
		}
		ptr := reflect.ValueOf(val).Pointer()
		if seen[ptr] {
			return &ConvertError{Path: path, Message: "cyclic structure"}
		}
		seen[ptr] = true
		defer delete(seen, ptr)
		for k, elem := range val {
			if err := checkValue(elem, path+"."+k, seen); err != nil {
				return err
			}
		}
	}
	return nil
}

func fromGoList(rv reflect.Value, path string, seen map[uintptr]bool) (Value, error) {
	list := make(List, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		elem, err := fromGo(rv.Index(i).Interface(), fmt.Sprintf("%s[%d]", path, i), seen)
		if err != nil {
			return nil, err
		}
		list[i] = elem
	}
	return list, nil
}

// ToGo converts a Value tree back into plain Go data (nil, bool, int64,
// float64, string, []any, map[string]any). Useful for handing payloads to
// encoding layers that expect ordinary Go values.
func ToGo(v Value) any {
	switch val := v.(type) {
	case Null:
		return nil
	case Bool:
		return bool(val)
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case String:
		return string(val)
	case List:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToGo(elem)
		}
		return out
	case Object:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToGo(elem)
		}
		return out
	}
	return nil
}
