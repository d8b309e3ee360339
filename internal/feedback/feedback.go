// Package feedback exports finished performance records to the external
// batch that recalculates service templates. It never averages or rewrites
// templates itself.
package feedback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/Simplici0/fieldquote/internal/observability"
	"github.com/Simplici0/fieldquote/internal/reconcile"
)

// Source yields records eligible for export and remembers what was sent.
type Source interface {
	ListExportable(ctx context.Context, limit int) ([]reconcile.PerformanceRecord, error)
	MarkExported(ctx context.Context, ids []string, at time.Time) error
}

// Sink receives exported records. Publishing the same record twice must be harmless.
type Sink interface {
	Publish(ctx context.Context, records []reconcile.PerformanceRecord) error
}

// Dispatcher moves eligible records from Source to Sink, on demand or on a
// cron schedule.
type Dispatcher struct {
	source    Source
	sink      Sink
	batchSize int
	now       func() time.Time
	logger    *zap.Logger
	metrics   *observability.Metrics

	mu   sync.Mutex
	cron *cron.Cron
}

// NewDispatcher returns a Dispatcher. metrics may be nil.
func NewDispatcher(source Source, sink Sink, batchSize int, logger *zap.Logger, metrics *observability.Metrics) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Dispatcher{
		source:    source,
		sink:      sink,
		batchSize: batchSize,
		now:       time.Now,
		logger:    logger,
		metrics:   metrics,
	}
}

// RunOnce exports every eligible record in batches and returns how many were sent.
// A failed publish leaves the batch unmarked so the next run retries it.
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	total := 0
	for {
		records, err := d.source.ListExportable(ctx, d.batchSize)
		if err != nil {
			return total, fmt.Errorf("list exportable records: %w", err)
		}
		if len(records) == 0 {
			return total, nil
		}

		if err := d.sink.Publish(ctx, records); err != nil {
			return total, fmt.Errorf("publish %d records: %w", len(records), err)
		}

		ids := make([]string, len(records))
		for i, r := range records {
			ids[i] = r.ID
		}
		if err := d.source.MarkExported(ctx, ids, d.now()); err != nil {
			return total, fmt.Errorf("mark records exported: %w", err)
		}

		total += len(records)
		d.metrics.RecordsExported(ctx, len(records))

		if len(records) < d.batchSize {
			return total, nil
		}
	}
}

// Start schedules RunOnce with a standard five-field cron expression.
func (d *Dispatcher) Start(schedule string) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, d.run); err != nil {
		return fmt.Errorf("schedule feedback export %q: %w", schedule, err)
	}

	d.logger.Info("starting feedback export", zap.String("schedule", schedule))
	d.cron = c
	c.Start()
	return nil
}

// Stop stops the schedule and waits for a running export to finish.
func (d *Dispatcher) Stop() {
	if d.cron == nil {
		return
	}
	d.logger.Info("stopping feedback export")
	<-d.cron.Stop().Done()
}

func (d *Dispatcher) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	n, err := d.RunOnce(ctx)
	if err != nil {
		d.logger.Error("feedback export failed", zap.Int("exported", n), zap.Error(err))
		return
	}
	d.logger.Info("feedback export finished", zap.Int("exported", n))
}
