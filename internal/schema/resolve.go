package schema

import (
	"tariffload/internal/record"
)

// Resolve assigns one storage type per field by scanning every row's value
// for that field. An absent field is not a vote; an explicit null is not a
// vote either (null fits any column type and must not demote one).
//
// The lattice has TEXT as the sink:
//   - every voting value integer-parsable  -> INTEGER
//   - every voting value structured        -> JSONB
//   - anything else, or any mix            -> TEXT
//
// The result is order-independent: votes are commutative flags, so any
// permutation of rows resolves identically. A field with no votes at all
// resolves TEXT, the correctness floor.
func Resolve(fields []string, rows []record.FlatRow) map[string]StorageType {
	out := make(map[string]StorageType, len(fields))
	for _, f := range fields {
		out[f] = resolveField(f, rows)
	}
	return out
}

func resolveField(field string, rows []record.FlatRow) StorageType {
	var sawInteger, sawStructured, sawOther bool

	for _, row := range rows {
		v, ok := row[field]
		if !ok || v.IsNull() {
			continue
		}
		switch {
		case v.Kind() == record.KindStructured:
			sawStructured = true
		default:
			if _, ok := v.IntegerParsable(); ok {
				sawInteger = true
			} else {
				sawOther = true
			}
		}
	}

	switch {
	case sawOther:
		return TypeText
	case sawStructured && sawInteger:
		// A scalar alongside structured values demotes to TEXT.
		return TypeText
	case sawStructured:
		return TypeJSONB
	case sawInteger:
		return TypeInteger
	default:
		return TypeText
	}
}
