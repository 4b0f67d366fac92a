package schema

import (
	"github.com/google/go-cmp/cmp"

	"github.com/stratadb/strata/pkg/types"
)

// Validate checks a concrete entry against a schema's type map. The derived
// map must equal the expected one structurally, with one relaxation: a
// nullable expected field accepts either a present value of the declared
// kind or the absent/nil marker. On failure the returned Validation error
// carries a structural diff and the offending entry.
func Validate(e types.Entry, s types.Schema) error {
	derived, err := DeriveEntry(e)
	if err != nil {
		return err
	}

	expected := s.TypeMap()
	ok := len(derived) <= len(expected)
	for name, exp := range expected {
		got, present := derived[name]
		if !conforms(got, present, exp) {
			ok = false
			break
		}
	}
	if ok {
		for name := range derived {
			if _, known := expected[name]; !known {
				ok = false
				break
			}
		}
	}
	if ok {
		return nil
	}
	return types.NewValidation(cmp.Diff(expected, derived), e)
}

// conforms reports whether a derived field type satisfies the expected one.
func conforms(got types.FieldType, present bool, exp types.FieldType) bool {
	if !present || got.Nullable {
		// Absent or nil value: only a nullable field accepts it.
		return exp.Nullable
	}
	if got.Kind != exp.Kind {
		// An empty untyped list derives without a kind and matches any
		// list field.
		if !(got.List && got.Kind == "") {
			return false
		}
	}
	return got.List == exp.List
}

// Reconcile resolves the schema a store operates under from an optionally
// persisted schema and an optionally declared one. Neither present fails
// with MissingSchema; both present must be structurally equal or the result
// is SchemaMismatched carrying a diff.
func Reconcile(stored, declared *types.Schema) (types.Schema, error) {
	switch {
	case stored == nil && declared == nil:
		return types.Schema{}, types.NewMissingSchema()
	case stored == nil:
		return *declared, nil
	case declared == nil:
		return *stored, nil
	}
	if !stored.Equal(*declared) {
		return types.Schema{}, types.NewSchemaMismatched(cmp.Diff(*stored, *declared))
	}
	return *stored, nil
}
