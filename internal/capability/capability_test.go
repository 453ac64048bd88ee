package capability

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModule struct {
	name  string
	owner Owner
}

func (m *fakeModule) ModuleName() string { return m.name }

func testTable(t *testing.T) *Table {
	t.Helper()
	table := NewTable()
	for _, def := range []Def{
		{Name: "store"},
		{Name: "event"},
		{Name: "net", Privileged: true},
		{Name: "db", Privileged: true},
	} {
		def := def
		def.Factory = func(owner Owner) Module {
			return &fakeModule{name: def.Name, owner: owner}
		}
		table.Register(def)
	}
	return table
}

func TestTable_RegisterDuplicatePanics(t *testing.T) {
	table := NewTable()
	table.Register(Def{Name: "store", Factory: func(Owner) Module { return &fakeModule{name: "store"} }})

	assert.Panics(t, func() {
		table.Register(Def{Name: "store", Factory: func(Owner) Module { return nil }})
	})
}

func TestTable_RegisterNilFactoryPanics(t *testing.T) {
	table := NewTable()
	assert.Panics(t, func() {
		table.Register(Def{Name: "store"})
	})
}

func TestGrants_Allows(t *testing.T) {
	g := Grants{"admin-tools": {"net", "db"}}
	assert.True(t, g.Allows("admin-tools", "net"))
	assert.False(t, g.Allows("admin-tools", "ws"))
	assert.False(t, g.Allows("other", "net"))
	assert.False(t, Grants(nil).Allows("any", "net"))
}

func TestCheckRequired(t *testing.T) {
	table := testTable(t)
	grants := Grants{"granted": {"net"}}

	tests := []struct {
		name     string
		script   string
		required []string
		wantCode ErrorCode
	}{
		{"unprivileged_ok", "plain", []string{"store", "event"}, ""},
		{"granted_ok", "granted", []string{"store", "net"}, ""},
		{"unknown_module", "plain", []string{"store", "nope"}, ErrCodeUnknownModule},
		{"denied", "plain", []string{"net"}, ErrCodePrivilegeDenied},
		{"denied_other_grant", "granted", []string{"db"}, ErrCodePrivilegeDenied},
		{"empty", "plain", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckRequired(table, grants, tt.script, tt.required)
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			var cErr *Error
			require.ErrorAs(t, err, &cErr)
			assert.Equal(t, tt.wantCode, cErr.Code)
			assert.Equal(t, tt.script, cErr.Script)
		})
	}
}

func TestCheckRequired_FailFast(t *testing.T) {
	table := testTable(t)

	// The first failing requirement is reported even when later ones would
	// also fail.
	err := CheckRequired(table, nil, "s", []string{"net", "nope"})
	var cErr *Error
	require.ErrorAs(t, err, &cErr)
	assert.Equal(t, ErrCodePrivilegeDenied, cErr.Code)
	assert.Equal(t, "net", cErr.Module)
}

func TestResolver_IdempotentHandles(t *testing.T) {
	table := testTable(t)
	r := NewResolver(table, nil, Owner{Script: "s", Instance: "i"})

	first, err := r.Resolve("store")
	require.NoError(t, err)
	again, err := r.Resolve("store")
	require.NoError(t, err)
	assert.Same(t, first, again)

	other, err := r.Resolve("event")
	require.NoError(t, err)
	assert.NotSame(t, first, other)
}

func TestResolver_FactoryReceivesOwner(t *testing.T) {
	table := testTable(t)
	owner := Owner{Script: "greeter", Instance: "i1"}
	r := NewResolver(table, nil, owner)

	m, err := r.Resolve("store")
	require.NoError(t, err)
	assert.Equal(t, owner, m.(*fakeModule).owner)
}

func TestResolver_RuntimeDenialIsRecoverable(t *testing.T) {
	table := testTable(t)
	r := NewResolver(table, nil, Owner{Script: "s"})

	_, err := r.Resolve("net")
	require.Error(t, err)
	assert.True(t, IsPrivilegeDenied(err))

	// The resolver still works after a denial.
	m, err := r.Resolve("store")
	require.NoError(t, err)
	assert.Equal(t, "store", m.ModuleName())

	// Denial is not cached as a handle.
	_, err = r.Resolve("net")
	assert.True(t, IsPrivilegeDenied(err))
}

func TestResolver_UnknownModule(t *testing.T) {
	table := testTable(t)
	r := NewResolver(table, nil, Owner{Script: "s"})

	_, err := r.Resolve("missing")
	var cErr *Error
	require.ErrorAs(t, err, &cErr)
	assert.Equal(t, ErrCodeUnknownModule, cErr.Code)
	assert.False(t, IsPrivilegeDenied(err))
}

func TestError_Messages(t *testing.T) {
	unknown := &Error{Code: ErrCodeUnknownModule, Script: "s", Module: "m"}
	assert.Contains(t, unknown.Error(), "unknown module")

	denied := &Error{Code: ErrCodePrivilegeDenied, Script: "s", Module: "m"}
	assert.Contains(t, denied.Error(), "lacks grant")

	wrapped := fmt.Errorf("load failed: %w", denied)
	assert.True(t, IsPrivilegeDenied(wrapped))
}
