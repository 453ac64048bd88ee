package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// Encode produces deterministic JSON for a Value tree: object keys are sorted
// by UTF-16 code units, strings are NFC normalized, and HTML characters are
// not escaped. Two structurally equal trees always encode to identical bytes,
// which keeps store snapshots and golden traces stable.
//
// NaN and infinities have no JSON representation and return an error, as
// does a cyclic tree.
func Encode(v Value) ([]byte, error) {
	if err := checkValue(v, "", make(map[uintptr]bool)); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := encode(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encode(buf *bytes.Buffer, v Value) error {
	switch val := v.(type) {
	case nil:
		return fmt.Errorf("value: cannot encode untyped nil")
	case Null:
		buf.WriteString("null")
		return nil
	case Bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case Int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
		return nil
	case Float:
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("value: %v has no JSON representation", f)
		}
		buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
		return nil
	case String:
		return encodeString(buf, string(val))
	case List:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case Object:
		buf.WriteByte('{')
		for i, k := range sortedKeys(val) {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := encode(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	}
	return fmt.Errorf("value: unsupported type %T", v)
}

// encodeString writes a JSON string with NFC normalization and without HTML
// escaping. Go's encoder escapes <, >, & by default, which would make the
// stored form depend on the encoder rather than the content.
func encodeString(buf *bytes.Buffer, s string) error {
	normalized := norm.NFC.String(s)

	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return err
	}

	// json.Encoder appends a trailing newline.
	out := bytes.TrimSuffix(tmp.Bytes(), []byte("\n"))
	buf.Write(out)
	return nil
}

// sortedKeys returns keys ordered by UTF-16 code units.
// Go's sort.Strings compares UTF-8 bytes, which orders supplementary-plane
// characters differently.
func sortedKeys(obj Object) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// Decode parses JSON produced by Encode (or any JSON document) back into a
// Value tree. Numbers without a fractional part or exponent decode as Int,
// everything else as Float.
func Decode(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("value: decode: %w", err)
	}
	return fromDecoded(raw)
}

func fromDecoded(raw any) (Value, error) {
	switch v := raw.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Bool(v), nil
	case string:
		return String(v), nil
	case json.Number:
		if i, err := strconv.ParseInt(v.String(), 10, 64); err == nil {
			return Int(i), nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("value: decode number %q: %w", v.String(), err)
		}
		return Float(f), nil
	case []any:
		list := make(List, len(v))
		for i, elem := range v {
			dv, err := fromDecoded(elem)
			if err != nil {
				return nil, err
			}
			list[i] = dv
		}
		return list, nil
	case map[string]any:
		obj := make(Object, len(v))
		for k, elem := range v {
			dv, err := fromDecoded(elem)
			if err != nil {
				return nil, err
			}
			obj[k] = dv
		}
		return obj, nil
	}
	return nil, fmt.Errorf("value: decode: unsupported type %T", raw)
}
