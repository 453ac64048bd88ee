package value

// Value is a sealed interface over the types a script may store or send:
// null, booleans, integers, floats, strings, lists, and string-keyed objects.
// Every Value is a finite tree - construction via FromGo rejects cycles and
// non-serializable Go kinds.
type Value interface {
	value() // Sealed - only the types in this package implement it.
}

// Null represents an explicit null. Storing Null under a key is distinct
// from the key being absent.
type Null struct{}

func (Null) value() {}

// Bool represents a boolean value.
type Bool bool

func (Bool) value() {}

// Int represents an integer value. Always int64.
type Int int64

func (Int) value() {}

// Float represents a floating point value.
type Float float64

func (Float) value() {}

// String represents a string value.
type String string

func (String) value() {}

// List represents an ordered sequence of values.
type List []Value

func (List) value() {}

// Object represents a map of string keys to values.
// Use SortedKeys for deterministic iteration.
type Object map[string]Value

func (Object) value() {}

// SortedKeys returns the object's keys in the order used by Encode.
func (o Object) SortedKeys() []string {
	return sortedKeys(o)
}

// Equal reports whether two values are structurally identical.
// Int and Float never compare equal, even for the same numeric value.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case Null:
		_, ok := b.(Null)
		return ok
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Float:
		bv, ok := b.(Float)
		return ok && av == bv
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case List:
		bv, ok := b.(List)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Object:
		bv, ok := b.(Object)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bw, ok := bv[k]
			if !ok || !Equal(v, bw) {
				return false
			}
		}
		return true
	}
	return false
}
