package schema

import (
	"reflect"
	"testing"

	"tariffload/internal/record"
)

func TestRowValues_AlignmentAndConversion(t *testing.T) {
	table := Table{
		Name: "t",
		Columns: []Column{
			{Name: "mainFee", Type: TypeText},
			{Name: "mainFee_numeric", Type: TypeInteger, DerivedNumeric: true, SourceField: "mainFee"},
			{Name: "count", Type: TypeInteger},
			{Name: "extra", Type: TypeJSONB},
			{Name: "missing", Type: TypeText},
		},
	}
	row := record.FlatRow{
		"mainFee": record.Text("¥99/月"),
		"count":   record.Text("12"),
		"extra":   record.Structured(map[string]any{"a": 1}),
	}

	got := RowValues(row, table)
	want := []any{"¥99/月", int64(99), int64(12), `{"a":1}`, nil}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("RowValues()=%#v, want %#v", got, want)
	}
}

func TestRowValues_DerivedCompanion(t *testing.T) {
	table := Table{
		Name: "t",
		Columns: []Column{
			{Name: "f", Type: TypeText},
			{Name: "f_numeric", Type: TypeInteger, DerivedNumeric: true, SourceField: "f"},
		},
	}

	tests := []struct {
		name string
		v    record.Value
		want any
	}{
		{name: "text_with_digits", v: record.Text("300Mbps"), want: int64(300)},
		{name: "native_int", v: record.Int(42), want: int64(42)},
		{name: "no_digits", v: record.Text("不限量"), want: nil},
		{name: "null", v: record.Null(), want: nil},
		{name: "structured", v: record.Structured([]any{1}), want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RowValues(record.FlatRow{"f": tt.v}, table)
			if !reflect.DeepEqual(got[1], tt.want) {
				t.Errorf("companion=%#v, want %#v", got[1], tt.want)
			}
		})
	}
}

func TestRowValues_UnconvertibleBecomesNull(t *testing.T) {
	// Materialization is total: values that cannot fit their column type
	// become SQL NULL rather than failing the row.
	table := Table{
		Name: "t",
		Columns: []Column{
			{Name: "i", Type: TypeInteger},
			{Name: "j", Type: TypeJSONB},
		},
	}
	row := record.FlatRow{
		"i": record.Text("not a number"),
		"j": record.Text("scalar in a jsonb column"),
	}

	got := RowValues(row, table)
	want := []any{nil, nil}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("RowValues()=%#v, want %#v", got, want)
	}
}

func TestRowValues_MixedValueInTextColumn(t *testing.T) {
	// A structured value landing in a TEXT column (mixed observations for
	// the field) stores its canonical JSON text.
	table := Table{
		Name:    "t",
		Columns: []Column{{Name: "f", Type: TypeText}},
	}
	row := record.FlatRow{"f": record.Structured([]any{map[string]any{"a": 1}})}

	got := RowValues(row, table)
	if got[0] != `[{"a":1}]` {
		t.Errorf("RowValues()=%#v, want canonical JSON text", got[0])
	}
}
