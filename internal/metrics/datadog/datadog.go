// Package datadog implements a Datadog backend for the internal/metrics
// package.
//
// The backend buffers observations in memory, submits them on a ticker
// (default once per minute), and flushes one final time on Close. Loader
// runs are usually short, so most submissions happen in that tail flush;
// the ticker matters for large corpora.
//
// Concurrency model:
//   - the pipeline calls IncCounter/ObserveHistogram at any time
//   - Flush snapshots and resets buffers under a mutex, then submits
//     out-of-lock
//   - the flush loop calls Flush periodically; Close stops the loop
package datadog

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"tariffload/internal/metrics"
)

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric. Defaults to
	// "tariffload".
	JobName string

	// Tags are extra Datadog tags (e.g. []string{"env:prod"}).
	Tags []string

	// FlushEvery controls how often buffered metrics are submitted.
	// If <= 0, defaults to 60 seconds.
	FlushEvery time.Duration

	// Unexported test seams. Production code never sets these; unit tests
	// use them to avoid real network submission and nondeterministic
	// clocks/tickers.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the minimal slice of the Datadog SDK the backend
// needs. The SDK exposes a concrete *datadogV2.MetricsApi, which cannot be
// stubbed without real HTTP; depending on this interface instead enables
// deterministic tests with a fake submitter.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}

	baseTags []string

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu sync.Mutex

	docCounts       map[string]float64 // kind -> count
	recordCounts    map[string]float64 // kind -> count
	columnCounts    map[string]float64 // kind -> count
	batchCount      float64
	durationSamples map[string][]float64 // step -> samples
}

// NewBackend constructs a Datadog backend using the official client.
// Credentials come from the standard DD_API_KEY / DD_APP_KEY environment;
// network errors surface from Flush, not from construction.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	job := opts.JobName
	if job == "" {
		job = "tariffload"
	}

	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	baseTags := make([]string, 0, 1+len(opts.Tags))
	baseTags = append(baseTags, "job:"+job)
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	newTicker := opts.newTicker
	if newTicker == nil {
		newTicker = time.NewTicker
	}

	submitter := opts.submitter
	if submitter == nil {
		cfg := dd.NewConfiguration()
		client := dd.NewAPIClient(cfg)
		submitter = datadogV2.NewMetricsApi(client)
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),

		baseTags: baseTags,

		now:       nowFn,
		newTicker: newTicker,

		docCounts:       make(map[string]float64),
		recordCounts:    make(map[string]float64),
		columnCounts:    make(map[string]float64),
		durationSamples: make(map[string][]float64),
	}

	go b.loop()
	return b, nil
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.newTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the background flush loop and performs one final Flush.
// Close must be called at most once.
func (b *Backend) Close() error {
	close(b.stopCh)
	<-b.doneCh
	return b.Flush()
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case "load_documents_total":
		if kind := labels["kind"]; kind != "" {
			b.docCounts[kind] += delta
		}
	case "load_records_total":
		if kind := labels["kind"]; kind != "" {
			b.recordCounts[kind] += delta
		}
	case "load_columns_total":
		if kind := labels["kind"]; kind != "" {
			b.columnCounts[kind] += delta
		}
	case "load_batches_total":
		b.batchCount += delta
	default:
		// Unknown metrics are ignored.
	}
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case "load_step_duration_seconds":
		step := labels["step"]
		if step == "" {
			step = "unknown"
		}
		b.durationSamples[step] = append(b.durationSamples[step], value)
	default:
		// Unknown histograms are ignored.
	}
}

// snapshot is the detached buffered state a single Flush submits.
type snapshot struct {
	docCounts       map[string]float64
	recordCounts    map[string]float64
	columnCounts    map[string]float64
	batchCount      float64
	durationSamples map[string][]float64
}

// snapshotAndReset grabs current buffers and resets them. Must be called
// with no lock held.
func (b *Backend) snapshotAndReset() snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := snapshot{
		docCounts:       b.docCounts,
		recordCounts:    b.recordCounts,
		columnCounts:    b.columnCounts,
		batchCount:      b.batchCount,
		durationSamples: b.durationSamples,
	}

	b.docCounts = make(map[string]float64)
	b.recordCounts = make(map[string]float64)
	b.columnCounts = make(map[string]float64)
	b.batchCount = 0
	b.durationSamples = make(map[string][]float64)

	return s
}

func (s snapshot) isEmpty() bool {
	return len(s.docCounts) == 0 &&
		len(s.recordCounts) == 0 &&
		len(s.columnCounts) == 0 &&
		s.batchCount == 0 &&
		len(s.durationSamples) == 0
}

// Flush submits buffered metrics and resets local buffers. Buffers reset
// even when submission fails, so a flaky Datadog endpoint cannot stall the
// loader.
func (b *Backend) Flush() error {
	snap := b.snapshotAndReset()
	if snap.isEmpty() {
		return nil
	}

	series := b.buildSeries(snap, b.now().Unix())
	payload := datadogV2.MetricPayload{Series: series}

	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	return err
}

// buildSeries constructs Datadog series for a snapshot at a fixed
// timestamp. Pure (no locks, no network, no clocks), so it is unit tested
// directly.
func (b *Backend) buildSeries(s snapshot, nowUnix int64) []datadogV2.MetricSeries {
	series := make([]datadogV2.MetricSeries, 0, 16)

	countSeries := func(metric string, value float64, tags []string) datadogV2.MetricSeries {
		return datadogV2.MetricSeries{
			Metric: metric,
			Type:   datadogV2.METRICINTAKETYPE_COUNT.Ptr(),
			Points: []datadogV2.MetricPoint{
				{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
			},
			Tags: tags,
		}
	}

	for kind, v := range s.docCounts {
		if v == 0 {
			continue
		}
		series = append(series, countSeries("tariffload.documents.total", v, withTags(b.baseTags, "kind:"+kind)))
	}
	for kind, v := range s.recordCounts {
		if v == 0 {
			continue
		}
		series = append(series, countSeries("tariffload.records.total", v, withTags(b.baseTags, "kind:"+kind)))
	}
	for kind, v := range s.columnCounts {
		if v == 0 {
			continue
		}
		series = append(series, countSeries("tariffload.columns.total", v, withTags(b.baseTags, "kind:"+kind)))
	}
	if s.batchCount != 0 {
		series = append(series, countSeries("tariffload.batches.total", s.batchCount, b.baseTags))
	}

	for step, samples := range s.durationSamples {
		if len(samples) == 0 {
			continue
		}
		cp := append([]float64(nil), samples...)
		sort.Float64s(cp)
		tags := withTags(b.baseTags, "step:"+step)
		series = append(series,
			gaugeSeries("tariffload.step.duration_seconds.p50", percentileNearestRank(cp, 0.50), tags, nowUnix),
			gaugeSeries("tariffload.step.duration_seconds.p95", percentileNearestRank(cp, 0.95), tags, nowUnix),
			gaugeSeries("tariffload.step.duration_seconds.max", cp[len(cp)-1], tags, nowUnix),
			gaugeSeries("tariffload.step.duration_seconds.samples", float64(len(cp)), tags, nowUnix),
		)
	}

	return series
}

func gaugeSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_GAUGE.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func withTags(base []string, extras ...string) []string {
	out := make([]string, 0, len(base)+len(extras))
	out = append(out, base...)
	out = append(out, extras...)
	return out
}

func percentileNearestRank(s []float64, p float64) float64 {
	n := len(s)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return s[0]
	}
	if p >= 1 {
		return s[n-1]
	}
	idx := int(p*float64(n-1) + 0.5)
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return s[idx]
}

var _ metrics.Backend = (*Backend)(nil)

// ParseTagsCSV parses comma-separated tags like "env:prod,service:loader".
func ParseTagsCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
