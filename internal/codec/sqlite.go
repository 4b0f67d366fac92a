package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/stratadb/strata/pkg/types"
)

// Relational encoding:
//
//	Boolean  → 0 | 1 (integer)
//	Number   → number
//	Date     → milliseconds since epoch (integer)
//	String   → string
//	URL      → string
//	Embedded → JSON string
//	lists    → JSON-encoded array stored as TEXT
//
// Scalar columns are native; lists and embedded mappings are text.

// HydrateSQL converts an entry value to the driver value bound to a
// parameter of the records table.
func HydrateSQL(ft types.FieldType, v interface{}) (interface{}, error) {
	if v == nil {
		if !ft.Nullable {
			return nil, types.NewUnsupportedType(v)
		}
		return nil, nil
	}
	if ft.List {
		elems, ok := elements(v)
		if !ok {
			return nil, types.NewUnsupportedType(v)
		}
		encoded := make([]interface{}, len(elems))
		for i, e := range elems {
			native, err := hydrateSQLScalar(ft.Kind, e)
			if err != nil {
				return nil, err
			}
			encoded[i] = native
		}
		data, err := json.Marshal(encoded)
		if err != nil {
			return nil, types.Wrap(types.ErrCategoryInternal, types.CodeUnexpected, "encode list", err)
		}
		return string(data), nil
	}
	return hydrateSQLScalar(ft.Kind, v)
}

func hydrateSQLScalar(kind types.Kind, v interface{}) (interface{}, error) {
	switch kind {
	case types.KindBoolean:
		b, ok := asBool(v)
		if !ok {
			return nil, types.NewUnsupportedType(v)
		}
		if b {
			return int64(1), nil
		}
		return int64(0), nil
	case types.KindNumber:
		f, ok := asFloat(v)
		if !ok {
			return nil, types.NewUnsupportedType(v)
		}
		return f, nil
	case types.KindString:
		s, ok := asString(v)
		if !ok {
			return nil, types.NewUnsupportedType(v)
		}
		return s, nil
	case types.KindDate:
		t, ok := asTime(v)
		if !ok {
			return nil, types.NewUnsupportedType(v)
		}
		return t.UnixMilli(), nil
	case types.KindURL:
		u, ok := asURL(v)
		if !ok {
			return nil, types.NewUnsupportedType(v)
		}
		return u.String(), nil
	case types.KindEmbedded:
		m, ok := asMap(v)
		if !ok {
			return nil, types.NewUnsupportedType(v)
		}
		data, err := json.Marshal(m)
		if err != nil {
			return nil, types.NewUnsupportedType(v)
		}
		return string(data), nil
	}
	return nil, types.NewUnsupportedType(v)
}

// DehydrateSQL converts a scanned column value back to its entry value form.
func DehydrateSQL(ft types.FieldType, col interface{}) (interface{}, error) {
	if col == nil {
		if !ft.Nullable {
			return nil, types.New(types.ErrCategoryDatabase, types.CodeQueryFailed,
				"NULL in non-nullable column")
		}
		return nil, nil
	}
	if ft.List {
		text, ok := columnText(col)
		if !ok {
			return nil, types.NewUnsupportedType(col)
		}
		dec := json.NewDecoder(bytes.NewReader([]byte(text)))
		dec.UseNumber()
		var raw []interface{}
		if err := dec.Decode(&raw); err != nil {
			return nil, types.Wrap(types.ErrCategoryDatabase, types.CodeQueryFailed,
				fmt.Sprintf("column %q is not a list", text), err)
		}
		elems := make([]interface{}, len(raw))
		for i, r := range raw {
			e, err := dehydrateSQLJSON(ft.Kind, r)
			if err != nil {
				return nil, err
			}
			elems[i] = e
		}
		return typedSlice(ft.Kind, elems), nil
	}
	return dehydrateSQLScalar(ft.Kind, col)
}

func dehydrateSQLScalar(kind types.Kind, col interface{}) (interface{}, error) {
	switch kind {
	case types.KindBoolean:
		n, ok := columnInt(col)
		if !ok {
			return nil, types.NewUnsupportedType(col)
		}
		return n != 0, nil
	case types.KindNumber:
		switch x := col.(type) {
		case float64:
			return x, nil
		case int64:
			return float64(x), nil
		}
		return nil, types.NewUnsupportedType(col)
	case types.KindString:
		s, ok := columnText(col)
		if !ok {
			return nil, types.NewUnsupportedType(col)
		}
		return s, nil
	case types.KindDate:
		n, ok := columnInt(col)
		if !ok {
			return nil, types.NewUnsupportedType(col)
		}
		return time.UnixMilli(n).UTC(), nil
	case types.KindURL:
		s, ok := columnText(col)
		if !ok {
			return nil, types.NewUnsupportedType(col)
		}
		u, err := url.Parse(s)
		if err != nil || !u.IsAbs() {
			return nil, types.New(types.ErrCategoryDatabase, types.CodeQueryFailed,
				fmt.Sprintf("column %q is not an absolute URL", s))
		}
		return u, nil
	case types.KindEmbedded:
		s, ok := columnText(col)
		if !ok {
			return nil, types.NewUnsupportedType(col)
		}
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			return nil, types.Wrap(types.ErrCategoryDatabase, types.CodeQueryFailed,
				fmt.Sprintf("column %q is not an Embedded mapping", s), err)
		}
		return m, nil
	}
	return nil, types.NewUnsupportedType(col)
}

// dehydrateSQLJSON converts a JSON list element, decoded with UseNumber,
// back to its entry value form.
func dehydrateSQLJSON(kind types.Kind, r interface{}) (interface{}, error) {
	switch kind {
	case types.KindBoolean:
		n, ok := r.(json.Number)
		if !ok {
			return nil, types.NewUnsupportedType(r)
		}
		i, err := n.Int64()
		if err != nil {
			return nil, types.NewUnsupportedType(r)
		}
		return i != 0, nil
	case types.KindNumber:
		n, ok := r.(json.Number)
		if !ok {
			return nil, types.NewUnsupportedType(r)
		}
		f, err := n.Float64()
		if err != nil {
			return nil, types.NewUnsupportedType(r)
		}
		return f, nil
	case types.KindString:
		s, ok := r.(string)
		if !ok {
			return nil, types.NewUnsupportedType(r)
		}
		return s, nil
	case types.KindDate:
		n, ok := r.(json.Number)
		if !ok {
			return nil, types.NewUnsupportedType(r)
		}
		ms, err := n.Int64()
		if err != nil {
			return nil, types.NewUnsupportedType(r)
		}
		return time.UnixMilli(ms).UTC(), nil
	case types.KindURL:
		s, ok := r.(string)
		if !ok {
			return nil, types.NewUnsupportedType(r)
		}
		u, err := url.Parse(s)
		if err != nil || !u.IsAbs() {
			return nil, types.NewUnsupportedType(r)
		}
		return u, nil
	case types.KindEmbedded:
		m, ok := r.(map[string]interface{})
		if !ok {
			return nil, types.NewUnsupportedType(r)
		}
		return normalizeNumbers(m), nil
	}
	return nil, types.NewUnsupportedType(r)
}

// normalizeNumbers rewrites json.Number leaves to float64 so embedded
// mappings compare equal to their pre-storage form.
func normalizeNumbers(m map[string]interface{}) map[string]interface{} {
	for k, v := range m {
		switch x := v.(type) {
		case json.Number:
			if f, err := x.Float64(); err == nil {
				m[k] = f
			}
		case map[string]interface{}:
			m[k] = normalizeNumbers(x)
		}
	}
	return m
}

// columnInt extracts an integer from a scanned column value.
func columnInt(col interface{}) (int64, bool) {
	switch x := col.(type) {
	case int64:
		return x, true
	case float64:
		return int64(x), true
	case []byte:
		n, err := strconv.ParseInt(string(x), 10, 64)
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		return n, err == nil
	}
	return 0, false
}

// columnText extracts text from a scanned column value.
func columnText(col interface{}) (string, bool) {
	switch x := col.(type) {
	case string:
		return x, true
	case []byte:
		return string(x), true
	}
	return "", false
}
