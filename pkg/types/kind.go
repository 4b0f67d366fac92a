// Package types defines the data model shared by every Strata backend:
// the closed set of supported value kinds, schemas, entries, and the
// structured error type surfaced to callers.
package types

// Kind identifies one of the supported scalar kinds.
type Kind string

const (
	// KindBoolean is a true/false value.
	KindBoolean Kind = "Boolean"

	// KindNumber is an IEEE-754 double.
	KindNumber Kind = "Number"

	// KindString is an arbitrary string.
	KindString Kind = "String"

	// KindDate is an absolute instant with millisecond resolution.
	KindDate Kind = "Date"

	// KindURL is an absolute URL.
	KindURL Kind = "URL"

	// KindEmbedded is an arbitrary JSON-serializable mapping.
	KindEmbedded Kind = "Embedded"
)

// Valid reports whether k is one of the supported kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindBoolean, KindNumber, KindString, KindDate, KindURL, KindEmbedded:
		return true
	}
	return false
}

// Indexable reports whether a field of this kind may carry the index marker.
func (k Kind) Indexable() bool {
	switch k {
	case KindNumber, KindString, KindDate, KindURL:
		return true
	}
	return false
}

// FieldType describes the shape of a single field's values.
type FieldType struct {
	// Kind is the scalar kind of the field (or of its elements when List).
	Kind Kind `json:"kind"`

	// List marks an ordered homogeneous sequence of the scalar kind.
	List bool `json:"list,omitempty"`

	// Nullable marks a field whose value may be absent.
	Nullable bool `json:"nullable,omitempty"`
}

// Field pairs a name with its type.
type Field struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`
}

// Schema is the structural description of entries in a store. Fields keep
// declaration order; Index names the field that is the primary key.
type Schema struct {
	Index  string  `json:"index"`
	Fields []Field `json:"fields"`
}

// FieldNames returns the field names in declaration order.
func (s Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Lookup returns the type of the named field.
func (s Schema) Lookup(name string) (FieldType, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f.Type, true
		}
	}
	return FieldType{}, false
}

// IndexType returns the type of the index field.
func (s Schema) IndexType() FieldType {
	ft, _ := s.Lookup(s.Index)
	return ft
}

// TypeMap returns the field name → type mapping of the schema.
func (s Schema) TypeMap() map[string]FieldType {
	m := make(map[string]FieldType, len(s.Fields))
	for _, f := range s.Fields {
		m[f.Name] = f.Type
	}
	return m
}

// Equal reports structural equality: same index, same fields in the same
// declaration order with identical types.
func (s Schema) Equal(other Schema) bool {
	if s.Index != other.Index || len(s.Fields) != len(other.Fields) {
		return false
	}
	for i, f := range s.Fields {
		if f != other.Fields[i] {
			return false
		}
	}
	return true
}

// Entry is a single record: field name → value. The value for the schema's
// index field is the entry's primary key. Supported runtime representations
// are bool, float64, string, time.Time, *url.URL and map[string]any, their
// slices for list fields, and nil for nullable fields.
type Entry map[string]interface{}
