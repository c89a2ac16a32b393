// Package schema implements the schema-inference and column-optimization
// core: field union collection across sparse rows, storage type resolution
// with a fixed promotion lattice, numeric companion derivation from text
// fields, and the priority-first column ordering used for DDL emission.
//
// Everything in this package is pure and I/O free; the storage backends
// consume the resulting Table.
package schema

// StorageType is the resolved relational type for a column.
type StorageType string

const (
	TypeText    StorageType = "TEXT"
	TypeInteger StorageType = "INTEGER"
	TypeJSONB   StorageType = "JSONB"
)

// Column is one resolved output column.
//
// A derived numeric column references the text field it was extracted from
// via SourceField; exactly one source per derived column, and at most one
// derived companion per source.
type Column struct {
	Name           string
	Type           StorageType
	DerivedNumeric bool
	SourceField    string
}

// Table is the ordered column sequence emitted as DDL. Ordering is a
// first-class attribute: priority fields (with their numeric companions
// adjacent) come first, the remainder alphabetically.
type Table struct {
	Name    string
	Columns []Column
}

// ColumnNames returns the column names in declared order.
func (t Table) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// Column returns the column with the given name, if declared.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}
