package codec

import (
	"net/url"
	"reflect"
	"testing"
	"time"

	"github.com/stratadb/strata/pkg/types"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

func TestHydrateCSVScalars(t *testing.T) {
	epoch := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		ft    types.FieldType
		value interface{}
		want  string
	}{
		{types.FieldType{Kind: types.KindBoolean}, true, "1"},
		{types.FieldType{Kind: types.KindBoolean}, false, "0"},
		{types.FieldType{Kind: types.KindNumber}, 3.5, "3.5"},
		{types.FieldType{Kind: types.KindNumber}, 100.0, "100"},
		{types.FieldType{Kind: types.KindString}, "2000-01-01", "2000-01-01"},
		{types.FieldType{Kind: types.KindDate}, epoch, "946684800"},
		{types.FieldType{Kind: types.KindDate}, epoch.Add(500 * time.Millisecond), "946684800.5"},
		{types.FieldType{Kind: types.KindEmbedded}, map[string]interface{}{"a": 1.0}, `{"a":1}`},
	}
	for _, tt := range tests {
		got, err := HydrateCSV(tt.ft, tt.value)
		if err != nil {
			t.Fatalf("HydrateCSV(%v) failed: %v", tt.value, err)
		}
		if got != tt.want {
			t.Errorf("HydrateCSV(%v) = %q, want %q", tt.value, got, tt.want)
		}
	}
}

func TestHydrateCSVList(t *testing.T) {
	got, err := HydrateCSV(types.FieldType{Kind: types.KindNumber, List: true}, []float64{1, 2.5})
	if err != nil {
		t.Fatalf("HydrateCSV failed: %v", err)
	}
	if got != `["1","2.5"]` {
		t.Errorf("got %q, want %q", got, `["1","2.5"]`)
	}
}

func TestCSVRoundTrip(t *testing.T) {
	u := mustURL(t, "https://example.com/path?q=1")
	when := time.Date(2001, 2, 3, 4, 5, 6, 789_000_000, time.UTC)
	tests := []struct {
		ft    types.FieldType
		value interface{}
	}{
		{types.FieldType{Kind: types.KindBoolean}, true},
		{types.FieldType{Kind: types.KindNumber}, -12.25},
		{types.FieldType{Kind: types.KindString}, "plain, with comma"},
		{types.FieldType{Kind: types.KindDate}, when},
		{types.FieldType{Kind: types.KindURL}, u},
		{types.FieldType{Kind: types.KindEmbedded}, map[string]interface{}{"k": "v", "n": 2.0}},
		{types.FieldType{Kind: types.KindString, List: true}, []string{"a", "b"}},
		{types.FieldType{Kind: types.KindDate, List: true}, []time.Time{when, when.Add(time.Second)}},
		{types.FieldType{Kind: types.KindNumber, Nullable: true}, nil},
	}
	for _, tt := range tests {
		cell, err := HydrateCSV(tt.ft, tt.value)
		if err != nil {
			t.Fatalf("HydrateCSV(%v) failed: %v", tt.value, err)
		}
		back, err := DehydrateCSV(tt.ft, cell)
		if err != nil {
			t.Fatalf("DehydrateCSV(%q) failed: %v", cell, err)
		}
		if !reflect.DeepEqual(back, tt.value) {
			t.Errorf("round trip changed %v (%T) to %v (%T)", tt.value, tt.value, back, back)
		}
	}
}

func TestDehydrateCSVRejectsBadCells(t *testing.T) {
	tests := []struct {
		ft   types.FieldType
		cell string
	}{
		{types.FieldType{Kind: types.KindBoolean}, "yes"},
		{types.FieldType{Kind: types.KindNumber}, "abc"},
		{types.FieldType{Kind: types.KindDate}, "not-a-date"},
		{types.FieldType{Kind: types.KindURL}, "relative/path"},
		{types.FieldType{Kind: types.KindEmbedded}, "{"},
		{types.FieldType{Kind: types.KindNumber, List: true}, "1,2"},
	}
	for _, tt := range tests {
		if _, err := DehydrateCSV(tt.ft, tt.cell); err == nil {
			t.Errorf("DehydrateCSV(%+v, %q) should fail", tt.ft, tt.cell)
		}
	}
}

func TestHydrateCSVRejectsMismatchedKinds(t *testing.T) {
	if _, err := HydrateCSV(types.FieldType{Kind: types.KindBoolean}, "true"); !types.IsUnsupportedType(err) {
		t.Errorf("got %v, want UnsupportedType", err)
	}
	if _, err := HydrateCSV(types.FieldType{Kind: types.KindNumber}, nil); !types.IsUnsupportedType(err) {
		t.Errorf("nil in a non-nullable field: got %v, want UnsupportedType", err)
	}
}

func TestCompareIndex(t *testing.T) {
	early := time.Unix(100, 0)
	late := time.Unix(200, 0)
	tests := []struct {
		kind types.Kind
		a, b interface{}
		want int
	}{
		{types.KindNumber, 1.0, 2.0, -1},
		{types.KindNumber, 2.0, 2.0, 0},
		{types.KindNumber, 3.0, 2.0, 1},
		{types.KindDate, early, late, -1},
		{types.KindDate, late, early, 1},
		{types.KindString, "a", "b", -1},
	}
	for _, tt := range tests {
		got, err := CompareIndex(tt.kind, tt.a, tt.b)
		if err != nil {
			t.Fatalf("CompareIndex failed: %v", err)
		}
		if got != tt.want {
			t.Errorf("CompareIndex(%v, %v, %v) = %d, want %d", tt.kind, tt.a, tt.b, got, tt.want)
		}
	}
}
