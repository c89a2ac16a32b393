// Package storage defines the backend-agnostic store gateway and its
// factory registry. Backends register themselves from init() in their own
// packages; importing tariffload/internal/storage/all pulls them all in.
package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"tariffload/internal/schema"
)

// Config is the minimal configuration needed to construct a Store.
type Config struct {
	// Kind selects a registered backend ("postgres", "sqlite", "mssql").
	Kind string

	// DSN addresses the target database.
	DSN string

	// MaintenanceDSN addresses the server-level maintenance database used
	// by EnsureDatabase. Backends without a server (sqlite) ignore it.
	MaintenanceDSN string

	// Database is the target database name for EnsureDatabase.
	Database string
}

// Store is the narrow gateway the pipeline talks to. Implementations own
// all SQL; the core never sees a connection.
//
// Transactional discipline expected by the pipeline: CreateTable completes
// before InsertRows is called, and all inserts complete before ColumnCensus
// is consulted.
type Store interface {
	// Close releases backend resources. Call once at shutdown.
	Close()

	// EnsureDatabase creates the target database when absent.
	EnsureDatabase(ctx context.Context) error

	// ClearDatabase drops every user table in the target database.
	ClearDatabase(ctx context.Context) error

	// CreateTable drops any existing table of the same name and creates it
	// from the resolved schema.
	CreateTable(ctx context.Context, t schema.Table) error

	// InsertRows bulk-inserts rows aligned with t's column order, chunked
	// below the backend's parameter limit. onBatch, when non-nil, is called
	// with each chunk's row count after it lands.
	InsertRows(ctx context.Context, t schema.Table, rows [][]any, onBatch func(int)) (int64, error)

	// DropColumns physically removes columns from the table.
	DropColumns(ctx context.Context, table string, columns []string) error

	// ColumnCensus returns the per-column value multiset of the fully
	// populated table, in declared column order.
	ColumnCensus(ctx context.Context, table string) (Census, error)
}

// Census is the per-column value multiset used by the optimizer. Values
// appear in backend scan representation; CanonicalValue folds them to a
// comparable string form.
type Census struct {
	RowCount int
	Columns  []string
	Values   map[string][]any
}

// CanonicalValue converts a scanned cell to a canonical string, keeping
// comparisons consistent across backends (pgx may scan TEXT as string or
// []byte; database/sql drivers differ again). NULL canonicalizes to "".
func CanonicalValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	case int64:
		return fmt.Sprintf("%d", t)
	case int:
		return fmt.Sprintf("%d", t)
	case bool:
		return fmt.Sprintf("%t", t)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

/* ---------- factory registry ---------- */

type factory func(ctx context.Context, cfg Config) (Store, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind. Registering the same kind
// twice panics so ambiguous backend selection fails fast at init time.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New constructs a Store for the configured backend kind.
func New(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing Kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
