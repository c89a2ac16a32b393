// Package sqlite implements storage.Store for SQLite via modernc.org/sqlite.
//
// Dialect notes vs Postgres:
//   - There is no separate database object; EnsureDatabase is a no-op
//     (opening the DSN creates the file).
//   - JSONB columns map to TEXT affinity; the JSON is stored as its
//     serialized form, which round-trips fine for census comparisons.
//   - DROP COLUMN requires SQLite >= 3.35; modernc tracks that.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"tariffload/internal/schema"
	"tariffload/internal/storage"
)

func init() {
	storage.Register("sqlite", New)
}

// SQLite's default bind parameter cap.
const maxParams = 999

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() { _ = s.db.Close() }

func (s *Store) EnsureDatabase(ctx context.Context) error { return nil }

func (s *Store) ClearDatabase(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("list tables: %w", err)
	}

	for _, name := range tables {
		if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+sqlIdent(name)); err != nil {
			return fmt.Errorf("drop table %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) CreateTable(ctx context.Context, t schema.Table) error {
	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+sqlIdent(t.Name)); err != nil {
		return fmt.Errorf("drop table %s: %w", t.Name, err)
	}
	ddl, err := buildCreateSQL(t)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", t.Name, err)
	}
	return nil
}

func (s *Store) InsertRows(ctx context.Context, t schema.Table, rows [][]any, onBatch func(int)) (int64, error) {
	if len(rows) == 0 || len(t.Columns) == 0 {
		return 0, nil
	}

	chunk := chunkSize(len(t.Columns))
	var total int64
	for start := 0; start < len(rows); start += chunk {
		end := start + chunk
		if end > len(rows) {
			end = len(rows)
		}
		part := rows[start:end]

		sqlText, args := buildInsertSQL(t.Name, t.ColumnNames(), part)
		res, err := s.db.ExecContext(ctx, sqlText, args...)
		if err != nil {
			return total, fmt.Errorf("insert into %s: %w", t.Name, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		} else {
			total += int64(len(part))
		}
		if onBatch != nil {
			onBatch(len(part))
		}
	}
	return total, nil
}

func (s *Store) DropColumns(ctx context.Context, table string, columns []string) error {
	for _, c := range columns {
		stmt := "ALTER TABLE " + sqlIdent(table) + " DROP COLUMN " + sqlIdent(c)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("drop column %s.%s: %w", table, c, err)
		}
	}
	return nil
}

func (s *Store) ColumnCensus(ctx context.Context, table string) (storage.Census, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT * FROM "+sqlIdent(table))
	if err != nil {
		return storage.Census{}, fmt.Errorf("census query %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return storage.Census{}, fmt.Errorf("census columns %s: %w", table, err)
	}

	census := storage.Census{
		Columns: cols,
		Values:  make(map[string][]any, len(cols)),
	}
	for rows.Next() {
		vals := make([]any, len(cols))
		dests := make([]any, len(cols))
		for i := range vals {
			dests[i] = &vals[i]
		}
		if err := rows.Scan(dests...); err != nil {
			return storage.Census{}, fmt.Errorf("census scan %s: %w", table, err)
		}
		census.RowCount++
		for i, c := range cols {
			census.Values[c] = append(census.Values[c], vals[i])
		}
	}
	if err := rows.Err(); err != nil {
		return storage.Census{}, fmt.Errorf("census rows %s: %w", table, err)
	}
	return census, nil
}

/* ---------- pure SQL builders ---------- */

func chunkSize(columns int) int {
	if columns <= 0 {
		return 1
	}
	n := maxParams / columns
	if n < 1 {
		return 1
	}
	return n
}

func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqlIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString("?")
			args = append(args, row[j])
		}
		b.WriteString(")")
	}
	return b.String(), args
}

func buildCreateSQL(t schema.Table) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("table name is empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("table %s has no columns", t.Name)
	}

	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(sqlIdent(t.Name))
	b.WriteString(" (")
	for i, c := range t.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(c.Name))
		b.WriteString(" ")
		b.WriteString(columnType(c.Type))
	}
	b.WriteString(")")
	return b.String(), nil
}

func columnType(t schema.StorageType) string {
	switch t {
	case schema.TypeInteger:
		return "INTEGER"
	case schema.TypeJSONB:
		// TEXT affinity; JSON stored serialized.
		return "TEXT"
	default:
		return "TEXT"
	}
}

func sqlIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
