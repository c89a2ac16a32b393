package schema

import (
	"sort"
)

// OrderPolicy carries the deployment-specific field lists. None of these
// are hard-coded here: the deny-list and the numeric allow-list were
// observed empirically from sample data and live in configuration.
type OrderPolicy struct {
	// Priority fields are emitted first, in declared order, each text field
	// immediately followed by its numeric companion when one is derived.
	Priority []string

	// Numeric is the allow-list of text fields that get an INTEGER
	// companion column named "<field>_numeric".
	Numeric []string

	// Deny lists fields excluded from the schema entirely.
	Deny []string
}

// BuildColumns produces the ordered column sequence for DDL emission:
//
//  1. priority fields present in the union, in declared order, each
//     followed adjacently by its numeric companion;
//  2. remaining union fields alphabetically, likewise paired with their
//     companions when allow-listed;
//  3. deny-listed fields (and, implicitly, their companions) never appear.
//
// A companion is only created when its source field exists in the union.
func BuildColumns(fields []string, types map[string]StorageType, pol OrderPolicy) []Column {
	deny := toSet(pol.Deny)
	numeric := toSet(pol.Numeric)

	present := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if _, drop := deny[f]; drop {
			continue
		}
		present[f] = struct{}{}
	}

	cols := make([]Column, 0, len(present)+len(numeric))
	emitted := make(map[string]struct{}, len(present))

	emit := func(name string) {
		cols = append(cols, Column{Name: name, Type: resolvedType(types, name)})
		emitted[name] = struct{}{}
		if _, ok := numeric[name]; ok {
			cols = append(cols, Column{
				Name:           name + NumericSuffix,
				Type:           TypeInteger,
				DerivedNumeric: true,
				SourceField:    name,
			})
		}
	}

	for _, name := range pol.Priority {
		if _, ok := present[name]; !ok {
			continue
		}
		if _, dup := emitted[name]; dup {
			continue
		}
		emit(name)
	}

	rest := make([]string, 0, len(present))
	for name := range present {
		if _, dup := emitted[name]; dup {
			continue
		}
		rest = append(rest, name)
	}
	sort.Strings(rest)
	for _, name := range rest {
		emit(name)
	}

	return cols
}

// resolvedType falls back to TEXT for a field the resolver never saw;
// with a monotonic union that cannot happen, but TEXT is the safe floor.
func resolvedType(types map[string]StorageType, name string) StorageType {
	if t, ok := types[name]; ok {
		return t
	}
	return TypeText
}

func toSet(names []string) map[string]struct{} {
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out
}
