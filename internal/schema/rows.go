package schema

import (
	"tariffload/internal/record"
)

// RowValues materializes one FlatRow into insert arguments aligned with the
// table's declared column order. Missing fields and unconvertible values
// become nil (SQL NULL); materialization never fails.
func RowValues(row record.FlatRow, t Table) []any {
	out := make([]any, len(t.Columns))
	for i, col := range t.Columns {
		if col.DerivedNumeric {
			out[i] = derivedValue(row, col.SourceField)
			continue
		}
		v, ok := row[col.Name]
		if !ok {
			out[i] = nil
			continue
		}
		out[i] = columnValue(v, col.Type)
	}
	return out
}

// derivedValue extracts the companion integer from the source field's text.
// Non-text sources pass native integers through; everything else is null.
func derivedValue(row record.FlatRow, source string) any {
	v, ok := row[source]
	if !ok {
		return nil
	}
	switch v.Kind() {
	case record.KindInt:
		return v.IntVal()
	case record.KindText:
		if n, ok := ExtractInt(v.TextVal()); ok {
			return n
		}
		return nil
	default:
		return nil
	}
}

func columnValue(v record.Value, t StorageType) any {
	if v.IsNull() {
		return nil
	}
	switch t {
	case TypeInteger:
		if n, ok := v.IntegerParsable(); ok {
			return n
		}
		return nil
	case TypeJSONB:
		if v.Kind() == record.KindStructured {
			if s, err := v.StructuredJSON(); err == nil {
				return s
			}
		}
		return nil
	default: // TEXT
		if v.Kind() == record.KindText {
			return v.TextVal()
		}
		// Scalars and structured values landing in a TEXT column (mixed
		// observations) are stored in canonical text form.
		return v.Canonical()
	}
}
