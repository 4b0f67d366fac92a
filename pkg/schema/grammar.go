// Package schema implements the textual schema grammar and the reflection
// layer that derives, validates and reconciles schemas.
//
// Each field of a schema encodes to a single grammar token:
//
//	token := "*"? ("[" base "]" | base) "?"?
//	base  := "Boolean" | "Number" | "String" | "Date" | "URL" | "Embedded"
//
// "*" marks the index field (exactly one per schema), "[...]" marks a list
// and a trailing "?" marks a nullable field. "*" and "?" are mutually
// exclusive. A full schema is an ordered mapping from field name to token.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/stratadb/strata/pkg/types"
)

// fieldNameRe is the rule every field name must satisfy.
var fieldNameRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ValidFieldName reports whether name satisfies [A-Za-z0-9_]+.
func ValidFieldName(name string) bool {
	return fieldNameRe.MatchString(name)
}

// Document is an ordered field name → grammar token mapping. It marshals to
// a JSON object whose keys keep schema declaration order, which is the
// persisted form (schema.json on the CSV backend, the schema table row on
// the relational backend).
type Document struct {
	names  []string
	tokens map[string]string
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{tokens: make(map[string]string)}
}

// Set appends or replaces the token for a field name.
func (d *Document) Set(name, token string) {
	if _, ok := d.tokens[name]; !ok {
		d.names = append(d.names, name)
	}
	d.tokens[name] = token
}

// Names returns the field names in declaration order.
func (d *Document) Names() []string {
	return d.names
}

// Token returns the grammar token for a field name.
func (d *Document) Token(name string) (string, bool) {
	t, ok := d.tokens[name]
	return t, ok
}

// Len returns the number of fields.
func (d *Document) Len() int {
	return len(d.names)
}

// MarshalJSON writes the document as a JSON object in declaration order.
func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range d.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(d.tokens[name])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object preserving key order.
func (d *Document) UnmarshalJSON(data []byte) error {
	d.names = nil
	d.tokens = make(map[string]string)

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("schema: document must be a JSON object")
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("schema: document key must be a string")
		}
		valTok, err := dec.Token()
		if err != nil {
			return err
		}
		val, ok := valTok.(string)
		if !ok {
			return fmt.Errorf("schema: token for field %q must be a string", key)
		}
		d.Set(key, val)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// EncodeToken encodes a field type (and its index marker) to a grammar token.
func EncodeToken(ft types.FieldType, index bool) string {
	var b strings.Builder
	if index {
		b.WriteByte('*')
	}
	if ft.List {
		b.WriteByte('[')
		b.WriteString(string(ft.Kind))
		b.WriteByte(']')
	} else {
		b.WriteString(string(ft.Kind))
	}
	if ft.Nullable {
		b.WriteByte('?')
	}
	return b.String()
}

// DecodeToken parses a grammar token into a field type and its index marker.
func DecodeToken(token string) (types.FieldType, bool, error) {
	var ft types.FieldType
	rest := token

	index := strings.HasPrefix(rest, "*")
	if index {
		rest = rest[1:]
	}
	if strings.HasSuffix(rest, "?") {
		if index {
			return ft, false, types.New(types.ErrCategorySchema, types.CodeTypeUndetermined,
				fmt.Sprintf("token %q marks the index as nullable", token))
		}
		ft.Nullable = true
		rest = rest[:len(rest)-1]
	}
	if strings.HasPrefix(rest, "[") {
		if !strings.HasSuffix(rest, "]") {
			return ft, false, types.New(types.ErrCategorySchema, types.CodeTypeUndetermined,
				fmt.Sprintf("token %q has an unterminated list marker", token))
		}
		ft.List = true
		rest = rest[1 : len(rest)-1]
	}
	ft.Kind = types.Kind(rest)
	if !ft.Kind.Valid() {
		return ft, false, types.New(types.ErrCategorySchema, types.CodeTypeUndetermined,
			fmt.Sprintf("token %q names an unknown base kind", token))
	}
	return ft, index, nil
}

// Encode converts a schema to its grammar document.
func Encode(s types.Schema) *Document {
	doc := NewDocument()
	for _, f := range s.Fields {
		doc.Set(f.Name, EncodeToken(f.Type, f.Name == s.Index))
	}
	return doc
}

// Decode converts a grammar document back to a schema. It enforces the
// field name rule, exactly one index marker, and the index kind restriction.
func Decode(doc *Document) (types.Schema, error) {
	var s types.Schema
	for _, name := range doc.Names() {
		if !ValidFieldName(name) {
			return types.Schema{}, types.NewNonCompliantKey(name)
		}
		token, _ := doc.Token(name)
		ft, index, err := DecodeToken(token)
		if err != nil {
			return types.Schema{}, err
		}
		if index {
			if s.Index != "" {
				return types.Schema{}, types.New(types.ErrCategorySchema, types.CodeInvalidIndex,
					fmt.Sprintf("fields %q and %q both carry the index marker", s.Index, name))
			}
			if !ft.Kind.Indexable() {
				return types.Schema{}, types.New(types.ErrCategorySchema, types.CodeInvalidIndex,
					fmt.Sprintf("index field %q has non-indexable kind %s", name, ft.Kind))
			}
			if ft.List {
				return types.Schema{}, types.New(types.ErrCategorySchema, types.CodeInvalidIndex,
					fmt.Sprintf("index field %q may not be a list", name))
			}
			s.Index = name
		}
		s.Fields = append(s.Fields, types.Field{Name: name, Type: ft})
	}
	if s.Index == "" {
		return types.Schema{}, types.New(types.ErrCategorySchema, types.CodeInvalidIndex,
			"no field carries the index marker")
	}
	return s, nil
}
