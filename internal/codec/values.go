// Package codec converts typed entry values to and from backend-native
// representations: textual cells for the CSV engine and driver values for
// the relational mirror.
package codec

import (
	"net/url"
	"time"

	"github.com/stratadb/strata/pkg/types"
)

// asBool coerces a runtime value to bool.
func asBool(v interface{}) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

// asFloat coerces the accepted numeric representations to float64.
func asFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}

// asString coerces a runtime value to string.
func asString(v interface{}) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// asTime coerces a runtime value to time.Time.
func asTime(v interface{}) (time.Time, bool) {
	t, ok := v.(time.Time)
	return t, ok
}

// asURL coerces a runtime value to *url.URL.
func asURL(v interface{}) (*url.URL, bool) {
	u, ok := v.(*url.URL)
	return u, ok
}

// asMap coerces a runtime value to a JSON-serializable mapping.
func asMap(v interface{}) (map[string]interface{}, bool) {
	m, ok := v.(map[string]interface{})
	return m, ok
}

// elements normalizes any accepted list representation to []interface{}.
func elements(v interface{}) ([]interface{}, bool) {
	switch x := v.(type) {
	case []interface{}:
		return x, true
	case []bool:
		out := make([]interface{}, len(x))
		for i, e := range x {
			out[i] = e
		}
		return out, true
	case []float64:
		out := make([]interface{}, len(x))
		for i, e := range x {
			out[i] = e
		}
		return out, true
	case []string:
		out := make([]interface{}, len(x))
		for i, e := range x {
			out[i] = e
		}
		return out, true
	case []time.Time:
		out := make([]interface{}, len(x))
		for i, e := range x {
			out[i] = e
		}
		return out, true
	case []*url.URL:
		out := make([]interface{}, len(x))
		for i, e := range x {
			out[i] = e
		}
		return out, true
	case []map[string]interface{}:
		out := make([]interface{}, len(x))
		for i, e := range x {
			out[i] = e
		}
		return out, true
	}
	return nil, false
}

// typedSlice packs dehydrated scalar values into the typed slice form the
// entry model uses for the given kind.
func typedSlice(kind types.Kind, elems []interface{}) interface{} {
	switch kind {
	case types.KindBoolean:
		out := make([]bool, len(elems))
		for i, e := range elems {
			out[i] = e.(bool)
		}
		return out
	case types.KindNumber:
		out := make([]float64, len(elems))
		for i, e := range elems {
			out[i] = e.(float64)
		}
		return out
	case types.KindString:
		out := make([]string, len(elems))
		for i, e := range elems {
			out[i] = e.(string)
		}
		return out
	case types.KindDate:
		out := make([]time.Time, len(elems))
		for i, e := range elems {
			out[i] = e.(time.Time)
		}
		return out
	case types.KindURL:
		out := make([]*url.URL, len(elems))
		for i, e := range elems {
			out[i] = e.(*url.URL)
		}
		return out
	case types.KindEmbedded:
		out := make([]map[string]interface{}, len(elems))
		for i, e := range elems {
			out[i] = e.(map[string]interface{})
		}
		return out
	}
	return elems
}
