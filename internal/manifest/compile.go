package manifest

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/token"
)

// CompileError reports a structurally invalid manifest, with the CUE
// position when one is available.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Field, e.Message)
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// Compile parses the `script` struct of a CUE value into a Manifest.
// Uses the CUE SDK's Go API directly (not a CLI subprocess).
func Compile(v cue.Value) (*Manifest, error) {
	if err := v.Err(); err != nil {
		return nil, &CompileError{Message: err.Error(), Pos: v.Pos()}
	}

	scriptVal := v.LookupPath(cue.ParsePath("script"))
	if !scriptVal.Exists() {
		return nil, &CompileError{Field: "script", Message: "top-level script struct is required", Pos: v.Pos()}
	}

	m := &Manifest{}

	var err error
	if m.Name, err = requiredString(scriptVal, "name"); err != nil {
		return nil, err
	}
	if m.Version, err = requiredString(scriptVal, "version"); err != nil {
		return nil, err
	}
	m.Author = optionalString(scriptVal, "author")
	m.Description = optionalString(scriptVal, "description")
	m.Autorun = optionalBool(scriptVal, "autorun")
	m.Hidden = optionalBool(scriptVal, "hidden")

	if m.Backends, err = stringList(scriptVal, "backends"); err != nil {
		return nil, err
	}
	if m.Requires, err = stringList(scriptVal, "requires"); err != nil {
		return nil, err
	}
	if m.Commands, err = stringList(scriptVal, "commands"); err != nil {
		return nil, err
	}
	if m.Vars, err = parseVars(scriptVal); err != nil {
		return nil, err
	}

	if err := m.Validate(); err != nil {
		return nil, &CompileError{Message: err.Error(), Pos: scriptVal.Pos()}
	}
	return m, nil
}

func requiredString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", &CompileError{Field: field, Message: field + " is required", Pos: v.Pos()}
	}
	s, err := fv.String()
	if err != nil {
		return "", &CompileError{Field: field, Message: err.Error(), Pos: fv.Pos()}
	}
	return s, nil
}

func optionalString(v cue.Value, field string) string {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return ""
	}
	s, _ := fv.String()
	return s
}

func optionalBool(v cue.Value, field string) bool {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return false
	}
	b, _ := fv.Bool()
	return b
}

func stringList(v cue.Value, field string) ([]string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return nil, nil
	}

	iter, err := fv.List()
	if err != nil {
		return nil, &CompileError{Field: field, Message: err.Error(), Pos: fv.Pos()}
	}

	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{Field: field, Message: err.Error(), Pos: iter.Value().Pos()}
		}
		out = append(out, s)
	}
	return out, nil
}

func parseVars(v cue.Value) ([]Var, error) {
	fv := v.LookupPath(cue.ParsePath("vars"))
	if !fv.Exists() {
		return nil, nil
	}

	iter, err := fv.List()
	if err != nil {
		return nil, &CompileError{Field: "vars", Message: err.Error(), Pos: fv.Pos()}
	}

	var vars []Var
	for iter.Next() {
		elem := iter.Value()

		var vr Var
		if vr.Name, err = requiredString(elem, "name"); err != nil {
			return nil, err
		}
		if vr.Type, err = requiredString(elem, "type"); err != nil {
			return nil, err
		}
		vr.Title = optionalString(elem, "title")

		defVal := elem.LookupPath(cue.ParsePath("default"))
		if defVal.Exists() {
			var def any
			if err := defVal.Decode(&def); err != nil {
				return nil, &CompileError{Field: "vars.default", Message: err.Error(), Pos: defVal.Pos()}
			}
			vr.Default = def
		}
		vars = append(vars, vr)
	}
	return vars, nil
}
