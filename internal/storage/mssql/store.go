// Package mssql implements storage.Store for SQL Server via go-mssqldb.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"tariffload/internal/schema"
	"tariffload/internal/storage"
)

func init() {
	storage.Register("mssql", New)
}

// SQL Server caps bind parameters per statement at 2100; stay under it.
const maxParams = 2000

type Store struct {
	db             *sql.DB
	maintenanceDSN string
	database       string
}

func New(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mssql open: %w", err)
	}
	// No ping here: the target database may not exist until EnsureDatabase
	// runs against the maintenance DSN.
	return &Store{
		db:             db,
		maintenanceDSN: cfg.MaintenanceDSN,
		database:       cfg.Database,
	}, nil
}

func (s *Store) Close() { _ = s.db.Close() }

// EnsureDatabase creates the target database via the maintenance (master)
// connection when DB_ID reports it absent.
func (s *Store) EnsureDatabase(ctx context.Context) error {
	if s.maintenanceDSN == "" || s.database == "" {
		return nil
	}
	admin, err := sql.Open("sqlserver", s.maintenanceDSN)
	if err != nil {
		return fmt.Errorf("open maintenance db: %w", err)
	}
	defer admin.Close()

	stmt := "IF DB_ID(@p1) IS NULL CREATE DATABASE " + msIdent(s.database)
	if _, err := admin.ExecContext(ctx, stmt, s.database); err != nil {
		return fmt.Errorf("create database %s: %w", s.database, err)
	}
	return nil
}

func (s *Store) ClearDatabase(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM sys.tables`)
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
		if _, err := s.db.ExecContext(ctx, "DROP TABLE "+msIdent(name)); err != nil {
			return fmt.Errorf("drop table %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) CreateTable(ctx context.Context, t schema.Table) error {
	drop := "IF OBJECT_ID(@p1, 'U') IS NOT NULL DROP TABLE " + msIdent(t.Name)
	if _, err := s.db.ExecContext(ctx, drop, t.Name); err != nil {
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

		stmt, args := buildInsertSQL(t.Name, t.ColumnNames(), part)
		res, err := s.db.ExecContext(ctx, stmt, args...)
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
		stmt := "ALTER TABLE " + msIdent(table) + " DROP COLUMN " + msIdent(c)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("drop column %s.%s: %w", table, c, err)
		}
	}
	return nil
}

func (s *Store) ColumnCensus(ctx context.Context, table string) (storage.Census, error) {
	cols, err := s.tableColumns(ctx, table)
	if err != nil {
		return storage.Census{}, err
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(msIdent(c))
	}
	b.WriteString(" FROM ")
	b.WriteString(msIdent(table))

	rows, err := s.db.QueryContext(ctx, b.String())
	if err != nil {
		return storage.Census{}, fmt.Errorf("census query %s: %w", table, err)
	}
	defer rows.Close()

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

func (s *Store) tableColumns(ctx context.Context, table string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT COLUMN_NAME
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_NAME = @p1
		ORDER BY ORDINAL_POSITION`, table)
	if err != nil {
		return nil, fmt.Errorf("list columns %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column name: %w", err)
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list columns %s: %w", table, err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s has no columns (does it exist?)", table)
	}
	return cols, nil
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

// buildInsertSQL constructs one multi-row INSERT with @pN placeholders,
// numbered row-major from @p1.
func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(msIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(msIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "@p%d", p)
			args = append(args, row[j])
			p++
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
	b.WriteString(msIdent(t.Name))
	b.WriteString(" (")
	for i, c := range t.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(msIdent(c.Name))
		b.WriteString(" ")
		b.WriteString(columnType(c.Type))
	}
	b.WriteString(")")
	return b.String(), nil
}

func columnType(t schema.StorageType) string {
	switch t {
	case schema.TypeInteger:
		return "BIGINT"
	case schema.TypeJSONB:
		// SQL Server has no native JSON column type before 2025.
		return "NVARCHAR(MAX)"
	default:
		return "NVARCHAR(MAX)"
	}
}

// msIdent bracket-quotes an identifier, escaping closing brackets.
func msIdent(id string) string {
	return "[" + strings.ReplaceAll(id, "]", "]]") + "]"
}
