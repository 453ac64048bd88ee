package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"null_null", Null{}, Null{}, true},
		{"bool_equal", Bool(true), Bool(true), true},
		{"bool_differ", Bool(true), Bool(false), false},
		{"int_equal", Int(42), Int(42), true},
		{"int_float_never_equal", Int(1), Float(1), false},
		{"string_equal", String("a"), String("a"), true},
		{"list_equal", List{Int(1), String("x")}, List{Int(1), String("x")}, true},
		{"list_length_differs", List{Int(1)}, List{Int(1), Int(2)}, false},
		{"object_equal", Object{"k": Int(1)}, Object{"k": Int(1)}, true},
		{"object_key_differs", Object{"k": Int(1)}, Object{"j": Int(1)}, false},
		{"null_vs_bool", Null{}, Bool(false), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
		})
	}
}

func TestFromGo_Basic(t *testing.T) {
	v, err := FromGo(map[string]any{
		"name":  "greeter",
		"count": 3,
		"ratio": 0.5,
		"on":    true,
		"none":  nil,
		"tags":  []any{"a", "b"},
	})
	require.NoError(t, err)

	obj, ok := v.(Object)
	require.True(t, ok)
	assert.Equal(t, String("greeter"), obj["name"])
	assert.Equal(t, Int(3), obj["count"])
	assert.Equal(t, Float(0.5), obj["ratio"])
	assert.Equal(t, Bool(true), obj["on"])
	assert.Equal(t, Null{}, obj["none"])
	assert.Equal(t, List{String("a"), String("b")}, obj["tags"])
}

func TestFromGo_PassesThroughValues(t *testing.T) {
	in := Object{"k": Int(1)}
	v, err := FromGo(in)
	require.NoError(t, err)
	assert.True(t, Equal(in, v))
}

func TestFromGo_RejectsCycle(t *testing.T) {
	m := map[string]any{}
	m["self"] = m

	_, err := FromGo(m)
	require.Error(t, err)

	var cErr *ConvertError
	require.ErrorAs(t, err, &cErr)
	assert.Contains(t, cErr.Message, "cyclic")
}

func TestFromGo_RejectsSliceCycle(t *testing.T) {
	s := make([]any, 1)
	s[0] = s

	_, err := FromGo(s)
	require.Error(t, err)
}

func TestFromGo_RejectsPrebuiltCycle(t *testing.T) {
	o := Object{}
	o["self"] = o

	_, err := FromGo(o)
	require.Error(t, err)

	var cErr *ConvertError
	require.ErrorAs(t, err, &cErr)
	assert.Contains(t, cErr.Message, "cyclic")

	l := make(List, 1)
	l[0] = l
	_, err = FromGo(l)
	require.ErrorAs(t, err, &cErr)
}

func TestFromGo_RejectsUnsupportedKinds(t *testing.T) {
	cases := map[string]any{
		"chan":           make(chan int),
		"func":           func() {},
		"non_string_map": map[int]string{1: "x"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromGo(in)
			var cErr *ConvertError
			require.ErrorAs(t, err, &cErr)
		})
	}
}

func TestFromGo_ErrorCarriesPath(t *testing.T) {
	_, err := FromGo(map[string]any{
		"outer": map[string]any{
			"bad": make(chan int),
		},
	})
	var cErr *ConvertError
	require.ErrorAs(t, err, &cErr)
	assert.Contains(t, cErr.Path, "outer")
}

func TestToGo_RoundTrip(t *testing.T) {
	v := Object{
		"n":    Int(7),
		"f":    Float(1.5),
		"s":    String("hi"),
		"b":    Bool(false),
		"nul":  Null{},
		"list": List{Int(1), Int(2)},
	}

	back, err := FromGo(ToGo(v))
	require.NoError(t, err)
	assert.True(t, Equal(v, back))
}
