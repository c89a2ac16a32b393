package datadog

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"tariffload/internal/metrics"
)

// fakeSubmitter records submitted payloads instead of doing HTTP.
type fakeSubmitter struct {
	mu       sync.Mutex
	payloads []datadogV2.MetricPayload
}

func (f *fakeSubmitter) SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, body)
	return datadogV2.IntakePayloadAccepted{}, nil, nil
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

// newTestBackend builds a backend with a fake submitter, a frozen clock,
// and a ticker that never fires, so tests control every flush.
func newTestBackend(t *testing.T) (*Backend, *fakeSubmitter) {
	t.Helper()
	sub := &fakeSubmitter{}
	b, err := NewBackend(context.Background(), Options{
		JobName: "test",
		now:     func() time.Time { return time.Unix(1700000000, 0) },
		newTicker: func(d time.Duration) *time.Ticker {
			return time.NewTicker(24 * time.Hour)
		},
		submitter: sub,
	})
	if err != nil {
		t.Fatalf("NewBackend() err=%v", err)
	}
	return b, sub
}

func seriesByMetric(p datadogV2.MetricPayload) map[string]datadogV2.MetricSeries {
	out := make(map[string]datadogV2.MetricSeries, len(p.Series))
	for _, s := range p.Series {
		out[s.Metric] = s
	}
	return out
}

func TestFlush_SubmitsBufferedCounters(t *testing.T) {
	b, sub := newTestBackend(t)

	b.IncCounter("load_documents_total", 3, metrics.Labels{"kind": "parsed"})
	b.IncCounter("load_records_total", 10, metrics.Labels{"kind": "inserted"})
	b.IncCounter("load_batches_total", 2, nil)
	b.ObserveHistogram("load_step_duration_seconds", 0.5, metrics.Labels{"step": "insert"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() err=%v", err)
	}
	if sub.count() != 1 {
		t.Fatalf("payloads=%d, want 1", sub.count())
	}

	got := seriesByMetric(sub.payloads[0])
	doc, ok := got["tariffload.documents.total"]
	if !ok {
		t.Fatal("documents series missing")
	}
	if v := *doc.Points[0].Value; v != 3 {
		t.Errorf("documents value=%v, want 3", v)
	}
	if ts := *doc.Points[0].Timestamp; ts != 1700000000 {
		t.Errorf("timestamp=%d, want frozen clock", ts)
	}
	if _, ok := got["tariffload.batches.total"]; !ok {
		t.Error("batches series missing")
	}
	if _, ok := got["tariffload.step.duration_seconds.p50"]; !ok {
		t.Error("duration percentile series missing")
	}

	if err := b.Close(); err != nil {
		t.Fatalf("Close() err=%v", err)
	}
}

func TestFlush_EmptyBufferSubmitsNothing(t *testing.T) {
	b, sub := newTestBackend(t)
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() err=%v", err)
	}
	if sub.count() != 0 {
		t.Errorf("payloads=%d, want 0 for empty buffer", sub.count())
	}
	_ = b.Close()
}

func TestFlush_ResetsBuffers(t *testing.T) {
	b, sub := newTestBackend(t)
	b.IncCounter("load_batches_total", 1, nil)

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() err=%v", err)
	}
	if err := b.Flush(); err != nil {
		t.Fatalf("second Flush() err=%v", err)
	}
	if sub.count() != 1 {
		t.Errorf("payloads=%d, want 1 (second flush had nothing)", sub.count())
	}
	_ = b.Close()
}

func TestIncCounter_IgnoresNonPositiveAndUnknown(t *testing.T) {
	b, sub := newTestBackend(t)
	b.IncCounter("load_batches_total", 0, nil)
	b.IncCounter("load_batches_total", -1, nil)
	b.IncCounter("something_else_total", 5, nil)
	b.IncCounter("load_documents_total", 1, nil) // missing kind label

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() err=%v", err)
	}
	if sub.count() != 0 {
		t.Errorf("payloads=%d, want 0", sub.count())
	}
	_ = b.Close()
}

func TestClose_FlushesTail(t *testing.T) {
	b, sub := newTestBackend(t)
	b.IncCounter("load_batches_total", 4, nil)

	if err := b.Close(); err != nil {
		t.Fatalf("Close() err=%v", err)
	}
	if sub.count() != 1 {
		t.Errorf("payloads=%d, want final tail flush", sub.count())
	}
}

func TestBaseTags(t *testing.T) {
	b, sub := newTestBackend(t)
	b.baseTags = append(b.baseTags, "env:test")
	b.IncCounter("load_batches_total", 1, nil)

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() err=%v", err)
	}
	s := sub.payloads[0].Series[0]
	var haveJob, haveEnv bool
	for _, tag := range s.Tags {
		switch tag {
		case "job:test":
			haveJob = true
		case "env:test":
			haveEnv = true
		}
	}
	if !haveJob || !haveEnv {
		t.Errorf("tags=%v, want job:test and env:test", s.Tags)
	}
	_ = b.Close()
}

func TestParseTagsCSV(t *testing.T) {
	got := ParseTagsCSV(" env:prod , service:loader ,, ")
	if len(got) != 2 || got[0] != "env:prod" || got[1] != "service:loader" {
		t.Errorf("ParseTagsCSV()=%v, want [env:prod service:loader]", got)
	}
	if got := ParseTagsCSV(""); got != nil {
		t.Errorf("ParseTagsCSV(\"\")=%v, want nil", got)
	}
}

func TestPercentileNearestRank(t *testing.T) {
	s := []float64{1, 2, 3, 4, 5}
	if got := percentileNearestRank(s, 0.5); got != 3 {
		t.Errorf("p50=%v, want 3", got)
	}
	if got := percentileNearestRank(s, 1.0); got != 5 {
		t.Errorf("p100=%v, want 5", got)
	}
	if got := percentileNearestRank(nil, 0.5); got != 0 {
		t.Errorf("empty=%v, want 0", got)
	}
}
