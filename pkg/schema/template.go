package schema

import (
	"fmt"
	"net/url"
	"time"

	"github.com/stratadb/strata/pkg/types"
)

// TemplateField declares one field of an entry template.
type TemplateField struct {
	// Name is the field name, subject to the [A-Za-z0-9_]+ rule.
	Name string

	// Kind is the declared scalar kind.
	Kind types.Kind

	// List marks an ordered homogeneous sequence of the scalar kind.
	List bool

	// Nullable marks a field whose value may be absent.
	Nullable bool

	// Index marks the primary key field. Exactly one template field must
	// carry it; the kind must be Number, String, Date or URL.
	Index bool
}

// Template is a declared description of the entries a store holds. It is
// the construction-time input from which a schema is derived.
type Template struct {
	Fields []TemplateField
}

// Schema derives a schema from the template, enforcing the field name rule,
// kind resolution, and the index restrictions.
func (t Template) Schema() (types.Schema, error) {
	var s types.Schema
	for _, f := range t.Fields {
		if !ValidFieldName(f.Name) {
			return types.Schema{}, types.NewNonCompliantKey(f.Name)
		}
		if !f.Kind.Valid() {
			return types.Schema{}, types.NewTypeUndetermined(f.Name)
		}
		if f.Index {
			if s.Index != "" {
				return types.Schema{}, types.New(types.ErrCategorySchema, types.CodeInvalidIndex,
					fmt.Sprintf("fields %q and %q both declare the index", s.Index, f.Name))
			}
			if !f.Kind.Indexable() {
				return types.Schema{}, types.New(types.ErrCategorySchema, types.CodeInvalidIndex,
					fmt.Sprintf("index field %q has non-indexable kind %s", f.Name, f.Kind))
			}
			if f.List {
				return types.Schema{}, types.New(types.ErrCategorySchema, types.CodeInvalidIndex,
					fmt.Sprintf("index field %q may not be a list", f.Name))
			}
			if f.Nullable {
				return types.Schema{}, types.New(types.ErrCategorySchema, types.CodeInvalidIndex,
					fmt.Sprintf("index field %q may not be nullable", f.Name))
			}
			s.Index = f.Name
		}
		s.Fields = append(s.Fields, types.Field{
			Name: f.Name,
			Type: types.FieldType{Kind: f.Kind, List: f.List, Nullable: f.Nullable},
		})
	}
	if s.Index == "" {
		return types.Schema{}, types.New(types.ErrCategorySchema, types.CodeInvalidIndex,
			"no template field declares the index")
	}
	return s, nil
}

// DeriveValue determines the field type of a concrete runtime value.
// A nil value or an empty untyped slice carries no kind of its own; both
// are reported with an empty Kind for the caller to resolve against an
// expected type.
func DeriveValue(v interface{}) (types.FieldType, error) {
	switch x := v.(type) {
	case nil:
		return types.FieldType{Nullable: true}, nil
	case bool:
		return types.FieldType{Kind: types.KindBoolean}, nil
	case float64, float32, int, int64:
		return types.FieldType{Kind: types.KindNumber}, nil
	case string:
		return types.FieldType{Kind: types.KindString}, nil
	case time.Time:
		return types.FieldType{Kind: types.KindDate}, nil
	case *url.URL:
		return types.FieldType{Kind: types.KindURL}, nil
	case map[string]interface{}:
		return types.FieldType{Kind: types.KindEmbedded}, nil
	case []bool:
		return types.FieldType{Kind: types.KindBoolean, List: true}, nil
	case []float64:
		return types.FieldType{Kind: types.KindNumber, List: true}, nil
	case []string:
		return types.FieldType{Kind: types.KindString, List: true}, nil
	case []time.Time:
		return types.FieldType{Kind: types.KindDate, List: true}, nil
	case []*url.URL:
		return types.FieldType{Kind: types.KindURL, List: true}, nil
	case []map[string]interface{}:
		return types.FieldType{Kind: types.KindEmbedded, List: true}, nil
	case []interface{}:
		if len(x) == 0 {
			return types.FieldType{List: true}, nil
		}
		elem, err := DeriveValue(x[0])
		if err != nil {
			return types.FieldType{}, err
		}
		if elem.List || elem.Nullable {
			return types.FieldType{}, types.NewUnsupportedType(v)
		}
		return types.FieldType{Kind: elem.Kind, List: true}, nil
	default:
		return types.FieldType{}, types.NewUnsupportedType(v)
	}
}

// DeriveEntry produces the type map of a concrete entry. Fields holding nil
// are reported with Nullable set and no kind. Used for validation against a
// known schema; the result carries no index marker.
func DeriveEntry(e types.Entry) (map[string]types.FieldType, error) {
	m := make(map[string]types.FieldType, len(e))
	for name, v := range e {
		if !ValidFieldName(name) {
			return nil, types.NewNonCompliantKey(name)
		}
		ft, err := DeriveValue(v)
		if err != nil {
			return nil, err
		}
		m[name] = ft
	}
	return m, nil
}
