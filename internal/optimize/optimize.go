// Package optimize prunes columns that carry no information after a load.
//
// Two rules, applied to a full-table census:
//
//  1. empty: every value in the column is NULL or a configured placeholder
//     token once canonicalized (trimmed; NULL folds to "").
//  2. duplicate: every value in the column is identical. Vacuous uniformity
//     is excluded: tables below MinRowsForDuplicate rows keep their
//     columns, since a single row makes every column trivially uniform.
//
// The empty rule wins when both apply, so reports stay stable across runs.
// Running the optimizer twice is a no-op: the columns the first pass drops
// no longer appear in the second census.
package optimize

import (
	"context"

	"tariffload/internal/storage"
)

// Options carries the pruning policy.
type Options struct {
	// Placeholders are tokens equivalent to "no data" after
	// canonicalization. The empty string covers NULL and whitespace-only
	// text.
	Placeholders []string

	// MinRowsForDuplicate is the smallest row count at which the duplicate
	// rule applies.
	MinRowsForDuplicate int
}

// Report classifies every column of a census.
type Report struct {
	// Empty columns hold only NULL/placeholder values, in census order.
	Empty []string

	// Duplicate columns hold one repeated value, in census order.
	Duplicate []string

	// Retained columns survive, in census order.
	Retained []string
}

// Dropped returns the columns to remove, empty before duplicate.
func (r Report) Dropped() []string {
	out := make([]string, 0, len(r.Empty)+len(r.Duplicate))
	out = append(out, r.Empty...)
	out = append(out, r.Duplicate...)
	return out
}

// Analyze classifies the census columns under the given policy. It never
// touches the database; Apply does.
func Analyze(census storage.Census, opts Options) Report {
	placeholder := make(map[string]bool, len(opts.Placeholders))
	for _, p := range opts.Placeholders {
		placeholder[p] = true
	}

	var r Report
	for _, col := range census.Columns {
		vals := census.Values[col]

		if allPlaceholder(vals, placeholder) {
			r.Empty = append(r.Empty, col)
			continue
		}
		if census.RowCount >= opts.MinRowsForDuplicate && opts.MinRowsForDuplicate > 0 && allEqual(vals) {
			r.Duplicate = append(r.Duplicate, col)
			continue
		}
		r.Retained = append(r.Retained, col)
	}
	return r
}

// Apply drops the report's condemned columns from the table. A report with
// nothing to drop is a no-op.
func Apply(ctx context.Context, store storage.Store, table string, r Report) error {
	dropped := r.Dropped()
	if len(dropped) == 0 {
		return nil
	}
	return store.DropColumns(ctx, table, dropped)
}

// allPlaceholder reports whether every value canonicalizes into the
// placeholder set. An empty column (zero rows) counts as empty.
func allPlaceholder(vals []any, placeholder map[string]bool) bool {
	for _, v := range vals {
		if !placeholder[storage.CanonicalValue(v)] {
			return false
		}
	}
	return true
}

func allEqual(vals []any) bool {
	if len(vals) < 2 {
		return true
	}
	first := storage.CanonicalValue(vals[0])
	for _, v := range vals[1:] {
		if storage.CanonicalValue(v) != first {
			return false
		}
	}
	return true
}
