// Package costing is the public face of the costing core: scoring, complexity
// multipliers, loadout cost, estimate assembly, quote locking, time tracking
// and job reconciliation over a storage Repository.
package costing

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Simplici0/fieldquote/internal/complexity"
	"github.com/Simplici0/fieldquote/internal/costrate"
	"github.com/Simplici0/fieldquote/internal/loadout"
	"github.com/Simplici0/fieldquote/internal/observability"
	"github.com/Simplici0/fieldquote/internal/pricing"
	"github.com/Simplici0/fieldquote/internal/quote"
	"github.com/Simplici0/fieldquote/internal/reconcile"
	"github.com/Simplici0/fieldquote/internal/standards"
	"github.com/Simplici0/fieldquote/internal/timetrack"
)

// DefaultLoadoutMargin prices a loadout line when no template supplies a target margin.
const DefaultLoadoutMargin = 0.40

// Repository is the storage the service reads and writes.
type Repository interface {
	standards.Store
	timetrack.Store

	GetEquipment(ctx context.Context, ids []string) ([]costrate.Equipment, error)
	GetEmployees(ctx context.Context, ids []string) ([]costrate.Employee, error)

	GetLoadout(ctx context.Context, id string) (*loadout.Loadout, error)
	SaveLoadout(ctx context.Context, l *loadout.Loadout) error

	Catalog(ctx context.Context, orgID string) (*complexity.Catalog, error)

	GetJob(ctx context.Context, id string) (quote.Job, error)
	ListWorkItems(ctx context.Context, jobID string) ([]quote.WorkItem, error)
	LockEstimate(ctx context.Context, locked pricing.LockedEstimate) (pricing.LockedEstimate, bool, error)
	GetLockedEstimate(ctx context.Context, jobID string) (pricing.LockedEstimate, error)
	CompleteJob(ctx context.Context, rec reconcile.PerformanceRecord) error
}

// Settings are the deployment-wide pricing choices.
type Settings struct {
	Strategy            complexity.Strategy
	BurdenMultiplier    float64
	BufferFraction      float64
	TransportRateFactor float64
	HoursPerDay         float64
	SwitchMaxAttempts   int
}

// Service implements the costing operations.
type Service struct {
	repo     Repository
	settings Settings
	calc     *costrate.Calculator
	switcher *timetrack.Switcher
	metrics  *observability.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides time.Now for locking, switching and reconciling.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService builds a Service. settings.Strategy is required.
func NewService(repo Repository, settings Settings, opts ...Option) *Service {
	if settings.HoursPerDay <= 0 {
		settings.HoursPerDay = pricing.DefaultHoursPerDay
	}
	s := &Service{
		repo:     repo,
		settings: settings,
		calc:     costrate.NewCalculator(settings.BurdenMultiplier),
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.switcher = timetrack.NewSwitcher(repo, s,
		timetrack.WithMaxAttempts(settings.SwitchMaxAttempts),
		timetrack.WithClock(func() time.Time { return s.now() }),
		timetrack.WithLogger(s.logger.Named("timetrack")),
		timetrack.WithConflictHook(func() { s.metrics.SwitchConflict(context.Background()) }),
	)
	return s
}

// StrategyName reports the configured multiplier strategy.
func (s *Service) StrategyName() string {
	if s.settings.Strategy == nil {
		return ""
	}
	return s.settings.Strategy.Name()
}
