package record

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseError reports a document-level structural failure: the designated
// record array is missing or malformed. The document is skipped; the run
// continues.
type ParseError struct {
	DocID string
	Msg   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s", e.DocID, e.Msg)
}

// ExtractionError reports a row-level structural failure: one entry of the
// record array violated an assumption (e.g. the detail sub-object is present
// but not decodable). The row is skipped; sibling rows are still processed.
type ExtractionError struct {
	DocID string
	Index int
	Msg   string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s[%d]: %s", e.DocID, e.Index, e.Msg)
}

// Options control how a document is flattened into rows.
//
// ListKey and DetailKey come from configuration because different capture
// deployments nest records under different vendor keys. KeepStructured
// selects between the two processing modes: keep nested objects/arrays as
// Structured values (JSONB-capable), or drop every non-scalar.
type Options struct {
	// ListKey names the top-level array of record entries
	// (e.g. "tariffDetailInfoList").
	ListKey string

	// DetailKey names the nested sub-object inside each entry whose fields
	// are inlined into the row (e.g. "packageinfo"). The sub-object may be
	// delivered as an embedded JSON-encoded string; it is then double-parsed.
	DetailKey string

	// KeepStructured keeps nested objects/arrays as Structured values.
	// When false, non-scalar fields are dropped from the row.
	KeepStructured bool
}

// Extractor flattens parsed documents into FlatRows.
type Extractor struct {
	opts Options
}

func NewExtractor(opts Options) *Extractor {
	return &Extractor{opts: opts}
}

// Extract produces one FlatRow per usable entry of the document's record
// array. The input document is never mutated.
//
// Returned errors are the recorded-but-skipped conditions:
//   - a single *ParseError when the record array is missing or not an array
//     (no rows are produced in that case)
//   - one *ExtractionError per skipped entry otherwise
func (e *Extractor) Extract(docID string, doc map[string]any) ([]FlatRow, []error) {
	raw, ok := doc[e.opts.ListKey]
	if !ok {
		return nil, []error{&ParseError{DocID: docID, Msg: fmt.Sprintf("missing %q", e.opts.ListKey)}}
	}
	entries, ok := raw.([]any)
	if !ok {
		return nil, []error{&ParseError{DocID: docID, Msg: fmt.Sprintf("%q is not an array (got %T)", e.opts.ListKey, raw)}}
	}

	var (
		rows []FlatRow
		errs []error
	)
	for i, el := range entries {
		if el == nil {
			continue
		}
		entry, ok := el.(map[string]any)
		if !ok {
			errs = append(errs, &ExtractionError{DocID: docID, Index: i, Msg: fmt.Sprintf("entry is not an object (got %T)", el)})
			continue
		}

		detail, err := e.decodeDetail(entry)
		if err != nil {
			errs = append(errs, &ExtractionError{DocID: docID, Index: i, Msg: err.Error()})
			continue
		}

		rows = append(rows, e.mergeRow(entry, detail))
	}
	return rows, errs
}

// decodeDetail locates the detail sub-object of one entry. A string value
// is treated as embedded JSON and parsed a second time; anything that does
// not yield an object is an error.
func (e *Extractor) decodeDetail(entry map[string]any) (map[string]any, error) {
	raw, ok := entry[e.opts.DetailKey]
	if !ok || raw == nil {
		return nil, fmt.Errorf("missing %q sub-object", e.opts.DetailKey)
	}

	switch t := raw.(type) {
	case map[string]any:
		return t, nil
	case string:
		// Some capture variants deliver the sub-object as a JSON-encoded
		// string. Detect and double-parse; UseNumber keeps integer fidelity
		// consistent with the outer decode.
		dec := json.NewDecoder(strings.NewReader(t))
		dec.UseNumber()
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			return nil, fmt.Errorf("%q is a string but not decodable JSON: %v", e.opts.DetailKey, err)
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("%q is not an object (got %T)", e.opts.DetailKey, raw)
	}
}

// mergeRow inlines detail fields and sibling fields into one FlatRow.
//
// Sibling fields keep their names. A detail field whose name collides with
// a sibling is qualified as "<detailKey>_<field>" so nothing is overwritten.
func (e *Extractor) mergeRow(entry map[string]any, detail map[string]any) FlatRow {
	row := make(FlatRow, len(entry)+len(detail))

	for k, v := range entry {
		if k == e.opts.DetailKey {
			continue
		}
		e.put(row, k, v)
	}

	for k, v := range detail {
		name := k
		if _, taken := row[name]; taken {
			name = e.opts.DetailKey + "_" + k
		}
		e.put(row, name, v)
	}
	return row
}

func (e *Extractor) put(row FlatRow, name string, raw any) {
	v := FromJSON(raw)
	if !v.IsScalar() && !e.opts.KeepStructured {
		return
	}
	row[name] = v
}
