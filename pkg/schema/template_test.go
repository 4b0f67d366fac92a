package schema

import (
	"net/url"
	"testing"
	"time"

	"github.com/stratadb/strata/pkg/types"
)

func testTemplate() Template {
	return Template{Fields: []TemplateField{
		{Name: "timestamp", Kind: types.KindDate, Index: true},
		{Name: "value", Kind: types.KindString},
	}}
}

func TestTemplateSchema(t *testing.T) {
	sch, err := testTemplate().Schema()
	if err != nil {
		t.Fatalf("Schema failed: %v", err)
	}
	if sch.Index != "timestamp" {
		t.Errorf("index = %q, want timestamp", sch.Index)
	}
	names := sch.FieldNames()
	if len(names) != 2 || names[0] != "timestamp" || names[1] != "value" {
		t.Errorf("unexpected field names: %v", names)
	}
}

func TestTemplateRejectsNonCompliantName(t *testing.T) {
	tpl := Template{Fields: []TemplateField{
		{Name: "time-stamp", Kind: types.KindDate, Index: true},
	}}
	_, err := tpl.Schema()
	if !types.IsNonCompliantKey(err) {
		t.Errorf("got %v, want NonCompliantKey", err)
	}
}

func TestTemplateRejectsUnknownKind(t *testing.T) {
	tpl := Template{Fields: []TemplateField{
		{Name: "ts", Kind: "Instant", Index: true},
	}}
	_, err := tpl.Schema()
	if !types.IsTypeUndetermined(err) {
		t.Errorf("got %v, want TypeUndetermined", err)
	}
}

func TestTemplateIndexRules(t *testing.T) {
	tests := []struct {
		name string
		tpl  Template
	}{
		{"no index", Template{Fields: []TemplateField{
			{Name: "a", Kind: types.KindNumber},
		}}},
		{"two indexes", Template{Fields: []TemplateField{
			{Name: "a", Kind: types.KindNumber, Index: true},
			{Name: "b", Kind: types.KindString, Index: true},
		}}},
		{"boolean index", Template{Fields: []TemplateField{
			{Name: "a", Kind: types.KindBoolean, Index: true},
		}}},
		{"nullable index", Template{Fields: []TemplateField{
			{Name: "a", Kind: types.KindNumber, Index: true, Nullable: true},
		}}},
		{"list index", Template{Fields: []TemplateField{
			{Name: "a", Kind: types.KindNumber, Index: true, List: true},
		}}},
	}
	for _, tt := range tests {
		if _, err := tt.tpl.Schema(); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestDeriveValue(t *testing.T) {
	u, _ := url.Parse("https://example.com/x")
	tests := []struct {
		value interface{}
		want  types.FieldType
	}{
		{true, types.FieldType{Kind: types.KindBoolean}},
		{3.14, types.FieldType{Kind: types.KindNumber}},
		{42, types.FieldType{Kind: types.KindNumber}},
		{"hello", types.FieldType{Kind: types.KindString}},
		{time.Unix(0, 0), types.FieldType{Kind: types.KindDate}},
		{u, types.FieldType{Kind: types.KindURL}},
		{map[string]interface{}{"a": 1.0}, types.FieldType{Kind: types.KindEmbedded}},
		{[]string{"a"}, types.FieldType{Kind: types.KindString, List: true}},
		{[]float64{1, 2}, types.FieldType{Kind: types.KindNumber, List: true}},
		{nil, types.FieldType{Nullable: true}},
	}
	for _, tt := range tests {
		got, err := DeriveValue(tt.value)
		if err != nil {
			t.Fatalf("DeriveValue(%v) failed: %v", tt.value, err)
		}
		if got != tt.want {
			t.Errorf("DeriveValue(%v) = %+v, want %+v", tt.value, got, tt.want)
		}
	}
}

func TestDeriveValueRejectsUnknown(t *testing.T) {
	_, err := DeriveValue(struct{}{})
	if !types.IsUnsupportedType(err) {
		t.Errorf("got %v, want UnsupportedType", err)
	}
}
