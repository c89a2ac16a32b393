package schema

import (
	"tariffload/internal/record"
)

// Collector accumulates every FlatRow produced in a run and builds the
// global field union. Rows are retained because type resolution needs a
// second pass without re-reading source files.
//
// The union grows monotonically while rows are added and is frozen by the
// caller once resolution begins (the collector itself never removes a
// field). First-seen insertion order is tracked; the column orderer's
// alphabetical fallback is total over unique names, so first-seen order is
// kept for reporting, never relied on for correctness.
type Collector struct {
	rows      []record.FlatRow
	firstSeen []string
	seen      map[string]struct{}
	occurs    map[string]int
	samples   map[string]record.Value
}

func NewCollector() *Collector {
	return &Collector{
		seen:    make(map[string]struct{}),
		occurs:  make(map[string]int),
		samples: make(map[string]record.Value),
	}
}

// Add appends rows and folds their field names into the union. No row is
// ever dropped here regardless of sparsity.
func (c *Collector) Add(rows ...record.FlatRow) {
	for _, row := range rows {
		c.rows = append(c.rows, row)
		for name, v := range row {
			if _, ok := c.seen[name]; !ok {
				c.seen[name] = struct{}{}
				c.firstSeen = append(c.firstSeen, name)
			}
			c.occurs[name]++
			if _, ok := c.samples[name]; !ok && !v.IsNull() {
				c.samples[name] = v
			}
		}
	}
}

// Fields returns the union in first-seen order.
func (c *Collector) Fields() []string {
	return append([]string(nil), c.firstSeen...)
}

// Rows returns the accumulated rows.
func (c *Collector) Rows() []record.FlatRow {
	return c.rows
}

// RowCount returns how many rows were collected.
func (c *Collector) RowCount() int {
	return len(c.rows)
}

// Occurrences returns how many rows carried the field.
func (c *Collector) Occurrences(name string) int {
	return c.occurs[name]
}

// Sample returns the first non-null value observed for the field.
func (c *Collector) Sample(name string) (record.Value, bool) {
	v, ok := c.samples[name]
	return v, ok
}
