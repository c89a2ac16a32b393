package schema

import (
	"reflect"
	"testing"
)

func colNames(cols []Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

func TestBuildColumns_PriorityThenAlphabetical(t *testing.T) {
	// Contract:
	//   - priority fields lead in declared order
	//   - each allow-listed field is immediately followed by its companion
	//   - everything else follows alphabetically
	fields := []string{"zcode", "mainFee", "pagePackName", "acode"}
	types := map[string]StorageType{
		"zcode":        TypeText,
		"mainFee":      TypeText,
		"pagePackName": TypeText,
		"acode":        TypeInteger,
	}
	pol := OrderPolicy{
		Priority: []string{"pagePackName", "mainFee"},
		Numeric:  []string{"mainFee"},
	}

	got := colNames(BuildColumns(fields, types, pol))
	want := []string{"pagePackName", "mainFee", "mainFee_numeric", "acode", "zcode"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("BuildColumns()=%v, want %v", got, want)
	}
}

func TestBuildColumns_DenyListExcludes(t *testing.T) {
	// Deny-listed fields never appear, even when also named in the priority
	// or numeric lists, and their companions are implicitly suppressed.
	fields := []string{"broad", "accessWay", "mainFee"}
	types := map[string]StorageType{
		"broad":     TypeText,
		"accessWay": TypeText,
		"mainFee":   TypeText,
	}
	pol := OrderPolicy{
		Priority: []string{"broad", "mainFee"},
		Numeric:  []string{"broad", "mainFee"},
		Deny:     []string{"broad", "accessWay"},
	}

	got := colNames(BuildColumns(fields, types, pol))
	want := []string{"mainFee", "mainFee_numeric"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("BuildColumns()=%v, want %v", got, want)
	}
}

func TestBuildColumns_PriorityAbsentFromUnion(t *testing.T) {
	// A priority field the corpus never produced must not materialize a
	// column, nor a companion.
	fields := []string{"mainFee"}
	types := map[string]StorageType{"mainFee": TypeText}
	pol := OrderPolicy{
		Priority: []string{"pagePackName", "mainFee"},
		Numeric:  []string{"pagePackName", "mainFee"},
	}

	got := colNames(BuildColumns(fields, types, pol))
	want := []string{"mainFee", "mainFee_numeric"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("BuildColumns()=%v, want %v", got, want)
	}
}

func TestBuildColumns_CompanionShape(t *testing.T) {
	fields := []string{"downSpeed"}
	types := map[string]StorageType{"downSpeed": TypeText}
	pol := OrderPolicy{Numeric: []string{"downSpeed"}}

	cols := BuildColumns(fields, types, pol)
	if len(cols) != 2 {
		t.Fatalf("len(cols)=%d, want 2", len(cols))
	}
	comp := cols[1]
	if comp.Name != "downSpeed_numeric" {
		t.Errorf("Name=%q, want %q", comp.Name, "downSpeed_numeric")
	}
	if comp.Type != TypeInteger {
		t.Errorf("Type=%s, want %s", comp.Type, TypeInteger)
	}
	if !comp.DerivedNumeric || comp.SourceField != "downSpeed" {
		t.Errorf("DerivedNumeric=%v SourceField=%q, want derived from downSpeed", comp.DerivedNumeric, comp.SourceField)
	}
}
