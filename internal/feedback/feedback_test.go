package feedback

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Simplici0/fieldquote/internal/reconcile"
)

type memSource struct {
	records  []reconcile.PerformanceRecord
	exported map[string]time.Time
	lists    int
}

func newMemSource(n int) *memSource {
	s := &memSource{exported: map[string]time.Time{}}
	for i := 0; i < n; i++ {
		s.records = append(s.records, reconcile.PerformanceRecord{
			ID:                      fmt.Sprintf("pr-%d", i),
			JobID:                   fmt.Sprintf("job-%d", i),
			IncludeInTemplateRecalc: true,
		})
	}
	return s
}

func (s *memSource) ListExportable(_ context.Context, limit int) ([]reconcile.PerformanceRecord, error) {
	s.lists++
	var out []reconcile.PerformanceRecord
	for _, r := range s.records {
		if _, done := s.exported[r.ID]; done || !r.EligibleForRecalc() {
			continue
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memSource) MarkExported(_ context.Context, ids []string, at time.Time) error {
	for _, id := range ids {
		s.exported[id] = at
	}
	return nil
}

type memSink struct {
	published []string
	fail      bool
}

func (s *memSink) Publish(_ context.Context, records []reconcile.PerformanceRecord) error {
	if s.fail {
		return errors.New("sink unavailable")
	}
	for _, r := range records {
		s.published = append(s.published, r.ID)
	}
	return nil
}

func TestRunOnceExportsAllEligibleInBatches(t *testing.T) {
	source := newMemSource(5)
	source.records[2].Outlier = true
	sink := &memSink{}

	d := NewDispatcher(source, sink, 2, nil, nil)
	n, err := d.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 4 || len(sink.published) != 4 {
		t.Fatalf("exported %d, published %v", n, sink.published)
	}
	if _, ok := source.exported["pr-2"]; ok {
		t.Fatalf("outlier must not be exported")
	}

	n, err = d.RunOnce(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("second run exported %d, %v", n, err)
	}
}

func TestRunOnceLeavesFailedBatchUnmarked(t *testing.T) {
	source := newMemSource(3)
	sink := &memSink{fail: true}

	d := NewDispatcher(source, sink, 10, nil, nil)
	if _, err := d.RunOnce(context.Background()); err == nil {
		t.Fatal("expected publish error")
	}
	if len(source.exported) != 0 {
		t.Fatalf("records marked despite failure: %v", source.exported)
	}

	sink.fail = false
	n, err := d.RunOnce(context.Background())
	if err != nil || n != 3 {
		t.Fatalf("retry exported %d, %v", n, err)
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	d := NewDispatcher(newMemSource(0), &memSink{}, 10, nil, nil)
	if err := d.Start("not a cron"); err == nil {
		t.Fatal("expected schedule error")
	}
	d.Stop()

	if err := d.Start("0 2 * * *"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	d.Stop()
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := LogSink{Logger: zap.New(core)}

	records := []reconcile.PerformanceRecord{{ID: "pr-1", JobID: "job-1"}, {ID: "pr-2", JobID: "job-2"}}
	if err := sink.Publish(context.Background(), records); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if logs.Len() != 2 {
		t.Fatalf("log entries = %d, want 2", logs.Len())
	}
}

func TestToDocumentKeepsIdentity(t *testing.T) {
	created := time.Date(2026, 5, 3, 0, 0, 0, 0, time.UTC)
	doc := toDocument(reconcile.PerformanceRecord{ID: "pr-1", JobID: "job-1", ServiceType: "mulching", CreatedAt: created})
	if doc.ID != "pr-1" || doc.JobID != "job-1" || doc.ServiceType != "mulching" || !doc.CreatedAt.Equal(created) {
		t.Fatalf("doc = %+v", doc)
	}
}
