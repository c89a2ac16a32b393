package record

import (
	"encoding/json"
	"strings"
	"testing"
)

// decodeDoc parses a JSON document the way the capture reader does
// (UseNumber), so extractor tests see production-shaped input.
func decodeDoc(t *testing.T, src string) map[string]any {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(src))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		t.Fatalf("decode test document: %v", err)
	}
	return doc
}

func defaultOptions() Options {
	return Options{
		ListKey:        "tariffDetailInfoList",
		DetailKey:      "packageinfo",
		KeepStructured: true,
	}
}

func TestExtract_InlinesDetailAndSiblings(t *testing.T) {
	// Contract:
	//   - each entry of the record array becomes one row
	//   - detail sub-object fields are inlined alongside entry siblings
	//   - the detail key itself never appears as a field
	doc := decodeDoc(t, `{
		"tariffDetailInfoList": [
			{"city": "010", "packageinfo": {"pagePackName": "FTTH 300M", "mainFee": "99"}}
		]
	}`)

	e := NewExtractor(defaultOptions())
	rows, errs := e.Extract("doc1", doc)
	if len(errs) != 0 {
		t.Fatalf("Extract() errs=%v, want none", errs)
	}
	if len(rows) != 1 {
		t.Fatalf("Extract() rows=%d, want 1", len(rows))
	}

	row := rows[0]
	if got := row["city"].TextVal(); got != "010" {
		t.Errorf("city=%q, want %q", got, "010")
	}
	if got := row["pagePackName"].TextVal(); got != "FTTH 300M" {
		t.Errorf("pagePackName=%q, want %q", got, "FTTH 300M")
	}
	if got := row["mainFee"].TextVal(); got != "99" {
		t.Errorf("mainFee=%q, want %q", got, "99")
	}
	if _, ok := row["packageinfo"]; ok {
		t.Errorf("detail key leaked into the row: %v", row)
	}
}

func TestExtract_DoubleParsesStringDetail(t *testing.T) {
	// Some capture variants deliver the sub-object as a JSON-encoded string.
	// The extractor must detect and parse it a second time, with the same
	// integer fidelity as the outer decode.
	doc := decodeDoc(t, `{
		"tariffDetailInfoList": [
			{"packageinfo": "{\"mainFee\": 129, \"suitArea\": \"北京\"}"}
		]
	}`)

	e := NewExtractor(defaultOptions())
	rows, errs := e.Extract("doc1", doc)
	if len(errs) != 0 {
		t.Fatalf("Extract() errs=%v, want none", errs)
	}
	if len(rows) != 1 {
		t.Fatalf("Extract() rows=%d, want 1", len(rows))
	}

	fee := rows[0]["mainFee"]
	if fee.Kind() != KindInt || fee.IntVal() != 129 {
		t.Errorf("mainFee=%v (%s), want int 129", fee, fee.Kind())
	}
	if got := rows[0]["suitArea"].TextVal(); got != "北京" {
		t.Errorf("suitArea=%q, want %q", got, "北京")
	}
}

func TestExtract_CollisionQualifiesDetailField(t *testing.T) {
	// When a detail field name collides with a sibling, the detail field is
	// renamed "<detailKey>_<field>". The sibling always wins the bare name.
	doc := decodeDoc(t, `{
		"tariffDetailInfoList": [
			{"name": "outer", "packageinfo": {"name": "inner", "other": "x"}}
		]
	}`)

	e := NewExtractor(defaultOptions())
	rows, errs := e.Extract("doc1", doc)
	if len(errs) != 0 {
		t.Fatalf("Extract() errs=%v, want none", errs)
	}

	row := rows[0]
	if got := row["name"].TextVal(); got != "outer" {
		t.Errorf("name=%q, want sibling value %q", got, "outer")
	}
	if got := row["packageinfo_name"].TextVal(); got != "inner" {
		t.Errorf("packageinfo_name=%q, want %q", got, "inner")
	}
	if got := row["other"].TextVal(); got != "x" {
		t.Errorf("non-colliding detail field renamed: other=%q", got)
	}
}

func TestExtract_StructuredHandling(t *testing.T) {
	// KeepStructured=true keeps nested values as Structured; false drops
	// every non-scalar from the row. Scalars are unaffected either way.
	src := `{
		"tariffDetailInfoList": [
			{"packageinfo": {"fees": [1, 2], "pagePackName": "A"}}
		]
	}`

	tests := []struct {
		name           string
		keepStructured bool
		wantFees       bool
	}{
		{name: "keep", keepStructured: true, wantFees: true},
		{name: "drop", keepStructured: false, wantFees: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := defaultOptions()
			opts.KeepStructured = tt.keepStructured
			rows, errs := NewExtractor(opts).Extract("doc1", decodeDoc(t, src))
			if len(errs) != 0 {
				t.Fatalf("Extract() errs=%v, want none", errs)
			}

			v, ok := rows[0]["fees"]
			if ok != tt.wantFees {
				t.Fatalf("fees present=%v, want %v", ok, tt.wantFees)
			}
			if tt.wantFees && v.Kind() != KindStructured {
				t.Errorf("fees kind=%s, want structured", v.Kind())
			}
			if got := rows[0]["pagePackName"].TextVal(); got != "A" {
				t.Errorf("pagePackName=%q, want %q", got, "A")
			}
		})
	}
}

func TestExtract_MissingListIsParseError(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{name: "missing_key", src: `{"resultCode": "0000"}`},
		{name: "not_an_array", src: `{"tariffDetailInfoList": {"a": 1}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, errs := NewExtractor(defaultOptions()).Extract("doc1", decodeDoc(t, tt.src))
			if len(rows) != 0 {
				t.Errorf("rows=%d, want 0", len(rows))
			}
			if len(errs) != 1 {
				t.Fatalf("errs=%v, want exactly one", errs)
			}
			if _, ok := errs[0].(*ParseError); !ok {
				t.Errorf("error type=%T, want *ParseError", errs[0])
			}
		})
	}
}

func TestExtract_BadEntrySkippedSiblingsSurvive(t *testing.T) {
	// A row-level failure skips only its own entry. Both neighbors must
	// still produce rows, and the failure is an *ExtractionError carrying
	// the entry index.
	doc := decodeDoc(t, `{
		"tariffDetailInfoList": [
			{"packageinfo": {"pagePackName": "first"}},
			{"packageinfo": "{not valid json"},
			{"packageinfo": {"pagePackName": "third"}}
		]
	}`)

	rows, errs := NewExtractor(defaultOptions()).Extract("doc1", doc)
	if len(rows) != 2 {
		t.Fatalf("rows=%d, want 2 (siblings of the bad entry)", len(rows))
	}
	if len(errs) != 1 {
		t.Fatalf("errs=%v, want exactly one", errs)
	}
	ee, ok := errs[0].(*ExtractionError)
	if !ok {
		t.Fatalf("error type=%T, want *ExtractionError", errs[0])
	}
	if ee.Index != 1 {
		t.Errorf("Index=%d, want 1", ee.Index)
	}

	if got := rows[0]["pagePackName"].TextVal(); got != "first" {
		t.Errorf("row 0 pagePackName=%q, want %q", got, "first")
	}
	if got := rows[1]["pagePackName"].TextVal(); got != "third" {
		t.Errorf("row 1 pagePackName=%q, want %q", got, "third")
	}
}

func TestExtract_MissingDetailIsExtractionError(t *testing.T) {
	doc := decodeDoc(t, `{
		"tariffDetailInfoList": [
			{"city": "010"}
		]
	}`)

	rows, errs := NewExtractor(defaultOptions()).Extract("doc1", doc)
	if len(rows) != 0 {
		t.Errorf("rows=%d, want 0", len(rows))
	}
	if len(errs) != 1 {
		t.Fatalf("errs=%v, want exactly one", errs)
	}
	if _, ok := errs[0].(*ExtractionError); !ok {
		t.Errorf("error type=%T, want *ExtractionError", errs[0])
	}
}

func TestExtract_ExplicitNullIsKept(t *testing.T) {
	// An explicit null field must survive into the row as a Null value,
	// distinct from absence; type resolution treats them differently.
	doc := decodeDoc(t, `{
		"tariffDetailInfoList": [
			{"packageinfo": {"upSpeed": null}}
		]
	}`)

	rows, errs := NewExtractor(defaultOptions()).Extract("doc1", doc)
	if len(errs) != 0 {
		t.Fatalf("Extract() errs=%v, want none", errs)
	}
	v, ok := rows[0]["upSpeed"]
	if !ok {
		t.Fatal("upSpeed absent, want explicit Null value")
	}
	if !v.IsNull() {
		t.Errorf("upSpeed kind=%s, want null", v.Kind())
	}
}
