// Package pipeline orchestrates one load run end to end:
//
//	read captures -> flatten records -> union fields -> resolve types ->
//	order columns -> create table -> insert -> optimize
//
// The run is deliberately single-pass and single-threaded. Capture corpora
// are small (thousands of documents) and the two-phase schema inference
// needs every row in memory before the table can be created, so pipelining
// stages buys nothing and would complicate the error accounting.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"tariffload/internal/capture"
	"tariffload/internal/config"
	"tariffload/internal/metrics"
	"tariffload/internal/optimize"
	"tariffload/internal/progress"
	"tariffload/internal/record"
	"tariffload/internal/schema"
	"tariffload/internal/storage"
)

// Summary is the final accounting of one run.
type Summary struct {
	RunID string

	// Documents parsed and flattened; DocumentsFailed covers unreadable
	// files, undecodable JSON, and missing/malformed record arrays.
	Documents       int
	DocumentsFailed int

	// RowsExtracted counts flattened rows; RowsSkipped counts record
	// entries dropped by row-level extraction errors.
	RowsExtracted int
	RowsSkipped   int

	Inserted       int64
	ColumnsCreated int

	DroppedEmpty     int
	DroppedDuplicate int
	Retained         int

	Duration time.Duration
}

// Pipeline runs loads. Construct with New; the zero value is not usable.
type Pipeline struct {
	cfg config.Config
	log *log.Logger

	// ClearDB drops every table in the target database before loading.
	ClearDB bool

	// newStore is a construction seam so tests can inject a fake gateway.
	newStore func(ctx context.Context, cfg storage.Config) (storage.Store, error)

	// newTracker is a seam so tests run without terminal output.
	newTracker func() rowTracker
}

// rowTracker is the slice of progress.Tracker the pipeline uses.
type rowTracker interface {
	SetTotal(total int64)
	Add(n int64)
	Finish()
}

func New(cfg config.Config, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.Default()
	}
	return &Pipeline{
		cfg:      cfg,
		log:      logger,
		newStore: storage.New,
		newTracker: func() rowTracker {
			return progress.New()
		},
	}
}

// Run executes one load over the capture corpus under inputDir.
//
// Per-document and per-row failures are logged, counted, and skipped; the
// run keeps going. Any storage failure is fatal and aborts the run with a
// wrapped error, leaving whatever state the database reached.
func (p *Pipeline) Run(ctx context.Context, inputDir string) (Summary, error) {
	start := time.Now()
	sum := Summary{RunID: uuid.NewString()}
	p.log.Printf("run %s: loading captures from %s", sum.RunID, inputDir)

	// Phase 1: read and flatten everything.
	extractStart := time.Now()
	docs, readErrs, err := capture.ReadDir(inputDir, p.cfg.Extract.FileName)
	if err != nil {
		return sum, err
	}
	for _, re := range readErrs {
		p.log.Printf("skip document: %v", re)
	}
	sum.DocumentsFailed += len(readErrs)

	extractor := record.NewExtractor(record.Options{
		ListKey:        p.cfg.Extract.ListKey,
		DetailKey:      p.cfg.Extract.DetailKey,
		KeepStructured: p.cfg.Extract.KeepStructured,
	})
	collector := schema.NewCollector()

	for i, doc := range docs {
		rows, errs := extractor.Extract(doc.ID, doc.Root)
		docFailed := false
		for _, e := range errs {
			p.log.Printf("skip: %v", e)
			if _, ok := e.(*record.ParseError); ok {
				docFailed = true
			} else {
				sum.RowsSkipped++
			}
		}
		if docFailed {
			sum.DocumentsFailed++
			continue
		}

		sum.Documents++
		sum.RowsExtracted += len(rows)
		collector.Add(rows...)

		if (i+1)%5 == 0 || i+1 == len(docs) {
			p.log.Printf("processed %d/%d documents, %d rows", i+1, len(docs), sum.RowsExtracted)
		}
	}
	metrics.IncCounter("load_documents_total", float64(sum.Documents), metrics.Labels{"kind": "parsed"})
	metrics.IncCounter("load_documents_total", float64(sum.DocumentsFailed), metrics.Labels{"kind": "failed"})
	metrics.IncCounter("load_records_total", float64(sum.RowsExtracted), metrics.Labels{"kind": "extracted"})
	metrics.IncCounter("load_records_total", float64(sum.RowsSkipped), metrics.Labels{"kind": "skipped"})
	metrics.ObserveHistogram("load_step_duration_seconds", time.Since(extractStart).Seconds(), metrics.Labels{"step": "extract"})

	if collector.RowCount() == 0 {
		return sum, fmt.Errorf("no usable rows in %s", inputDir)
	}

	// Phase 2: resolve the schema from the full row set.
	resolveStart := time.Now()
	fields := collector.Fields()
	types := schema.Resolve(fields, collector.Rows())
	table := schema.Table{
		Name: p.cfg.DB.Table,
		Columns: schema.BuildColumns(fields, types, schema.OrderPolicy{
			Priority: p.cfg.Schema.Priority,
			Numeric:  p.cfg.Schema.Numeric,
			Deny:     p.cfg.Schema.Deny,
		}),
	}
	sum.ColumnsCreated = len(table.Columns)
	p.logFieldReport(fields, types, collector)
	metrics.IncCounter("load_columns_total", float64(sum.ColumnsCreated), metrics.Labels{"kind": "created"})
	metrics.ObserveHistogram("load_step_duration_seconds", time.Since(resolveStart).Seconds(), metrics.Labels{"step": "resolve"})

	// Phase 3: storage.
	store, err := p.newStore(ctx, storage.Config{
		Kind:           p.cfg.DB.Kind,
		DSN:            p.cfg.DB.DSN,
		MaintenanceDSN: p.cfg.DB.MaintenanceDSN,
		Database:       p.cfg.DB.Database,
	})
	if err != nil {
		return sum, fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	if err := store.EnsureDatabase(ctx); err != nil {
		return sum, fmt.Errorf("ensure database: %w", err)
	}
	if p.ClearDB {
		p.log.Printf("clearing database before load")
		if err := store.ClearDatabase(ctx); err != nil {
			return sum, fmt.Errorf("clear database: %w", err)
		}
	}
	if err := store.CreateTable(ctx, table); err != nil {
		return sum, fmt.Errorf("create table: %w", err)
	}
	p.log.Printf("created table %s with %d columns", table.Name, len(table.Columns))

	insertStart := time.Now()
	values := make([][]any, 0, collector.RowCount())
	for _, row := range collector.Rows() {
		values = append(values, schema.RowValues(row, table))
	}

	tracker := p.newTracker()
	tracker.SetTotal(int64(len(values)))
	inserted, err := store.InsertRows(ctx, table, values, func(n int) {
		tracker.Add(int64(n))
		metrics.IncCounter("load_batches_total", 1, nil)
	})
	tracker.Finish()
	if err != nil {
		return sum, fmt.Errorf("insert rows: %w", err)
	}
	sum.Inserted = inserted
	metrics.IncCounter("load_records_total", float64(inserted), metrics.Labels{"kind": "inserted"})
	metrics.ObserveHistogram("load_step_duration_seconds", time.Since(insertStart).Seconds(), metrics.Labels{"step": "insert"})

	// Phase 4: optimize.
	if p.cfg.Optimize.Enabled {
		optimizeStart := time.Now()
		census, err := store.ColumnCensus(ctx, table.Name)
		if err != nil {
			return sum, fmt.Errorf("column census: %w", err)
		}
		report := optimize.Analyze(census, optimize.Options{
			Placeholders:        p.cfg.Optimize.Placeholders,
			MinRowsForDuplicate: p.cfg.Optimize.MinRowsForDuplicate,
		})
		if err := optimize.Apply(ctx, store, table.Name, report); err != nil {
			return sum, fmt.Errorf("drop columns: %w", err)
		}
		sum.DroppedEmpty = len(report.Empty)
		sum.DroppedDuplicate = len(report.Duplicate)
		sum.Retained = len(report.Retained)
		for _, c := range report.Empty {
			p.log.Printf("dropped empty column %s", c)
		}
		for _, c := range report.Duplicate {
			p.log.Printf("dropped duplicate column %s", c)
		}
		metrics.IncCounter("load_columns_total", float64(sum.DroppedEmpty), metrics.Labels{"kind": "dropped_empty"})
		metrics.IncCounter("load_columns_total", float64(sum.DroppedDuplicate), metrics.Labels{"kind": "dropped_duplicate"})
		metrics.ObserveHistogram("load_step_duration_seconds", time.Since(optimizeStart).Seconds(), metrics.Labels{"step": "optimize"})
	} else {
		sum.Retained = len(table.Columns)
	}

	sum.Duration = time.Since(start)
	p.log.Printf("run %s: %d documents (%d failed), %d rows inserted (%d skipped), %d columns kept, took %s",
		sum.RunID, sum.Documents, sum.DocumentsFailed, sum.Inserted, sum.RowsSkipped, sum.Retained, sum.Duration.Round(time.Millisecond))
	return sum, nil
}

// logFieldReport prints one line per discovered field: resolved type,
// occurrence count, and a truncated sample value. It is the operator's main
// window into what the inference decided before the table lands.
func (p *Pipeline) logFieldReport(fields []string, types map[string]schema.StorageType, c *schema.Collector) {
	p.log.Printf("discovered %d fields across %d rows:", len(fields), c.RowCount())
	for _, f := range fields {
		sample := ""
		if v, ok := c.Sample(f); ok {
			sample = truncate(v.Canonical(), 50)
		}
		p.log.Printf("  %-30s %-8s seen=%d sample=%q", f, types[f], c.Occurrences(f), sample)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
