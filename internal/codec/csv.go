package codec

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"time"

	"github.com/stratadb/strata/pkg/types"
)

// CSV cell encoding:
//
//	Boolean  → "0" | "1"
//	Number   → decimal
//	String   → verbatim
//	Date     → seconds since epoch as decimal (fractional permitted)
//	URL      → canonical string form
//	Embedded → JSON
//	lists    → JSON array of element-hydrated strings
//
// A nil value in a nullable field hydrates to the empty cell, and an empty
// cell in a nullable field dehydrates back to nil.

// HydrateCSV converts an entry value to its CSV cell form.
func HydrateCSV(ft types.FieldType, v interface{}) (string, error) {
	if v == nil {
		if !ft.Nullable {
			return "", types.NewUnsupportedType(v)
		}
		return "", nil
	}
	if ft.List {
		elems, ok := elements(v)
		if !ok {
			return "", types.NewUnsupportedType(v)
		}
		cells := make([]string, len(elems))
		for i, e := range elems {
			cell, err := hydrateCSVScalar(ft.Kind, e)
			if err != nil {
				return "", err
			}
			cells[i] = cell
		}
		data, err := json.Marshal(cells)
		if err != nil {
			return "", types.Wrap(types.ErrCategoryInternal, types.CodeUnexpected, "encode list", err)
		}
		return string(data), nil
	}
	return hydrateCSVScalar(ft.Kind, v)
}

func hydrateCSVScalar(kind types.Kind, v interface{}) (string, error) {
	switch kind {
	case types.KindBoolean:
		b, ok := asBool(v)
		if !ok {
			return "", types.NewUnsupportedType(v)
		}
		if b {
			return "1", nil
		}
		return "0", nil
	case types.KindNumber:
		f, ok := asFloat(v)
		if !ok {
			return "", types.NewUnsupportedType(v)
		}
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	case types.KindString:
		s, ok := asString(v)
		if !ok {
			return "", types.NewUnsupportedType(v)
		}
		return s, nil
	case types.KindDate:
		t, ok := asTime(v)
		if !ok {
			return "", types.NewUnsupportedType(v)
		}
		sec := float64(t.UnixMilli()) / 1000.0
		return strconv.FormatFloat(sec, 'f', -1, 64), nil
	case types.KindURL:
		u, ok := asURL(v)
		if !ok {
			return "", types.NewUnsupportedType(v)
		}
		return u.String(), nil
	case types.KindEmbedded:
		m, ok := asMap(v)
		if !ok {
			return "", types.NewUnsupportedType(v)
		}
		data, err := json.Marshal(m)
		if err != nil {
			return "", types.NewUnsupportedType(v)
		}
		return string(data), nil
	}
	return "", types.NewUnsupportedType(v)
}

// DehydrateCSV converts a CSV cell back to its entry value form.
func DehydrateCSV(ft types.FieldType, cell string) (interface{}, error) {
	if cell == "" && ft.Nullable {
		return nil, nil
	}
	if ft.List {
		var cells []string
		if err := json.Unmarshal([]byte(cell), &cells); err != nil {
			return nil, types.Wrap(types.ErrCategoryValidation, types.CodeUnsupportedType,
				fmt.Sprintf("cell %q is not a list", cell), err)
		}
		elems := make([]interface{}, len(cells))
		for i, c := range cells {
			e, err := dehydrateCSVScalar(ft.Kind, c)
			if err != nil {
				return nil, err
			}
			elems[i] = e
		}
		return typedSlice(ft.Kind, elems), nil
	}
	return dehydrateCSVScalar(ft.Kind, cell)
}

func dehydrateCSVScalar(kind types.Kind, cell string) (interface{}, error) {
	switch kind {
	case types.KindBoolean:
		switch cell {
		case "1":
			return true, nil
		case "0":
			return false, nil
		}
		return nil, types.New(types.ErrCategoryValidation, types.CodeUnsupportedType,
			fmt.Sprintf("cell %q is not a Boolean", cell))
	case types.KindNumber:
		f, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, types.Wrap(types.ErrCategoryValidation, types.CodeUnsupportedType,
				fmt.Sprintf("cell %q is not a Number", cell), err)
		}
		return f, nil
	case types.KindString:
		return cell, nil
	case types.KindDate:
		sec, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, types.Wrap(types.ErrCategoryValidation, types.CodeUnsupportedType,
				fmt.Sprintf("cell %q is not a Date", cell), err)
		}
		return time.UnixMilli(int64(math.Round(sec * 1000))).UTC(), nil
	case types.KindURL:
		u, err := url.Parse(cell)
		if err != nil || !u.IsAbs() {
			return nil, types.New(types.ErrCategoryValidation, types.CodeUnsupportedType,
				fmt.Sprintf("cell %q is not an absolute URL", cell))
		}
		return u, nil
	case types.KindEmbedded:
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(cell), &m); err != nil {
			return nil, types.Wrap(types.ErrCategoryValidation, types.CodeUnsupportedType,
				fmt.Sprintf("cell %q is not an Embedded mapping", cell), err)
		}
		return m, nil
	}
	return nil, types.New(types.ErrCategoryValidation, types.CodeUnsupportedType,
		fmt.Sprintf("unknown kind %s", kind))
}

// KeyString returns the canonical string form of an index value, used to
// bucket and deduplicate entries by key. It is the CSV hydration of the
// value under the index field's kind.
func KeyString(kind types.Kind, v interface{}) (string, error) {
	return hydrateCSVScalar(kind, v)
}

// CompareIndex orders two index values under their kind's natural order:
// numeric for Number, chronological for Date, lexicographic for String and
// URL.
func CompareIndex(kind types.Kind, a, b interface{}) (int, error) {
	switch kind {
	case types.KindNumber:
		fa, ok1 := asFloat(a)
		fb, ok2 := asFloat(b)
		if !ok1 || !ok2 {
			return 0, types.NewUnsupportedType(a)
		}
		switch {
		case fa < fb:
			return -1, nil
		case fa > fb:
			return 1, nil
		}
		return 0, nil
	case types.KindDate:
		ta, ok1 := asTime(a)
		tb, ok2 := asTime(b)
		if !ok1 || !ok2 {
			return 0, types.NewUnsupportedType(a)
		}
		switch {
		case ta.Before(tb):
			return -1, nil
		case ta.After(tb):
			return 1, nil
		}
		return 0, nil
	case types.KindString, types.KindURL:
		sa, err := KeyString(kind, a)
		if err != nil {
			return 0, err
		}
		sb, err := KeyString(kind, b)
		if err != nil {
			return 0, err
		}
		switch {
		case sa < sb:
			return -1, nil
		case sa > sb:
			return 1, nil
		}
		return 0, nil
	}
	return 0, types.New(types.ErrCategoryValidation, types.CodeUnsupportedType,
		fmt.Sprintf("kind %s is not an index kind", kind))
}
