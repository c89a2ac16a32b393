// Package postgres implements storage.Store for PostgreSQL using pgx.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tariffload/internal/schema"
	"tariffload/internal/storage"
)

func init() {
	storage.Register("postgres", New)
}

// Store holds a lazy pgx pool against the target database plus the
// maintenance DSN used for database creation. The pool does not dial until
// first use, so constructing it before the database exists is safe.
type Store struct {
	pool           *pgxpool.Pool
	maintenanceDSN string
	database       string
}

func New(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	return &Store{
		pool:           pool,
		maintenanceDSN: cfg.MaintenanceDSN,
		database:       cfg.Database,
	}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// EnsureDatabase connects to the maintenance database and creates the
// target database if pg_database has no row for it. CREATE DATABASE cannot
// run inside a transaction, so this uses a plain single connection.
func (s *Store) EnsureDatabase(ctx context.Context) error {
	if s.maintenanceDSN == "" || s.database == "" {
		return nil
	}
	conn, err := pgx.Connect(ctx, s.maintenanceDSN)
	if err != nil {
		return fmt.Errorf("connect maintenance db: %w", err)
	}
	defer conn.Close(ctx)

	var one int
	err = conn.QueryRow(ctx, `SELECT 1 FROM pg_database WHERE datname = $1`, s.database).Scan(&one)
	if err == nil {
		return nil
	}
	if err != pgx.ErrNoRows {
		return fmt.Errorf("check database %s: %w", s.database, err)
	}

	if _, err := conn.Exec(ctx, "CREATE DATABASE "+pgIdent(s.database)); err != nil {
		return fmt.Errorf("create database %s: %w", s.database, err)
	}
	return nil
}

// ClearDatabase drops every table in the public schema.
func (s *Store) ClearDatabase(ctx context.Context) error {
	rows, err := s.pool.Query(ctx, `SELECT tablename FROM pg_tables WHERE schemaname = 'public'`)
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
		if _, err := s.pool.Exec(ctx, "DROP TABLE IF EXISTS "+pgIdent(name)+" CASCADE"); err != nil {
			return fmt.Errorf("drop table %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) CreateTable(ctx context.Context, t schema.Table) error {
	if _, err := s.pool.Exec(ctx, "DROP TABLE IF EXISTS "+pgIdent(t.Name)); err != nil {
		return fmt.Errorf("drop table %s: %w", t.Name, err)
	}
	ddl, err := buildCreateSQL(t)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", t.Name, err)
	}
	return nil
}

// Postgres caps bind parameters per statement at 65535.
const maxParams = 65535

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

		sql, args := buildInsertSQL(t.Name, t.ColumnNames(), part)
		cmd, err := s.pool.Exec(ctx, sql, args...)
		if err != nil {
			return total, fmt.Errorf("insert into %s: %w", t.Name, err)
		}
		total += cmd.RowsAffected()
		if onBatch != nil {
			onBatch(len(part))
		}
	}
	return total, nil
}

func (s *Store) DropColumns(ctx context.Context, table string, columns []string) error {
	for _, c := range columns {
		sql := "ALTER TABLE " + pgIdent(table) + " DROP COLUMN " + pgIdent(c)
		if _, err := s.pool.Exec(ctx, sql); err != nil {
			return fmt.Errorf("drop column %s.%s: %w", table, c, err)
		}
	}
	return nil
}

// ColumnCensus reads the whole table once and buckets values per column in
// ordinal order. The optimizer's inputs are whole-table by definition, so
// no sampling happens here.
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
		b.WriteString(pgIdent(c))
	}
	b.WriteString(" FROM ")
	b.WriteString(pgIdent(table))

	rows, err := s.pool.Query(ctx, b.String())
	if err != nil {
		return storage.Census{}, fmt.Errorf("census query %s: %w", table, err)
	}
	defer rows.Close()

	census := storage.Census{
		Columns: cols,
		Values:  make(map[string][]any, len(cols)),
	}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
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
	rows, err := s.pool.Query(ctx, `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_name = $1
		ORDER BY ordinal_position`, table)
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

/* ---------- pure SQL builders (unit tested without a database) ---------- */

// chunkSize returns how many rows fit in one INSERT under the parameter cap.
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

// buildInsertSQL constructs one multi-row INSERT and its args. Placeholder
// numbering is row-major starting at $1.
func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pgIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
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
			fmt.Fprintf(&b, "$%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}
	return b.String(), args
}

// buildCreateSQL renders CREATE TABLE DDL from the resolved schema. All
// columns are nullable: the source rows are sparse by design.
func buildCreateSQL(t schema.Table) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("table name is empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("table %s has no columns", t.Name)
	}

	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(pgIdent(t.Name))
	b.WriteString(" (")
	for i, c := range t.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c.Name))
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
		return "JSONB"
	default:
		return "TEXT"
	}
}

func pgIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
