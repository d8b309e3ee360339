package timetrack

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Simplici0/fieldquote/internal/apperr"
)

// DefaultMaxAttempts bounds the compare-and-swap retries of Switch.
const DefaultMaxAttempts = 3

// Store is the storage collaborator for time records.
type Store interface {
	// OpenRecord returns the employee's open record on the job, or nil.
	OpenRecord(ctx context.Context, jobID, employeeID string) (*Record, error)
	// SwapOpen closes prev (nil when none was open) by writing closed, and
	// inserts next (nil to only close). It returns an apperr.ErrConflict when
	// the open record is no longer prev.
	SwapOpen(ctx context.Context, prev *Record, closed *Record, next *Record) error
	// ListRecords returns every record of a job ordered by start time.
	ListRecords(ctx context.Context, jobID string) ([]Record, error)
}

// RecordRate is the hourly cost stamped on a new record.
type RecordRate struct {
	Labor     float64 `json:"labor"`
	Equipment float64 `json:"equipment"`
	// EquipmentMissing is set when equipment cost applies but is unknown.
	EquipmentMissing bool `json:"equipment_missing,omitempty"`
}

// Rates resolves an employee's cost rates at the time a record is opened.
type Rates interface {
	RecordRates(ctx context.Context, jobID, employeeID string) (RecordRate, error)
}

// SwitchRequest names the task an employee is switching to.
type SwitchRequest struct {
	JobID        string   `json:"job_id"`
	EmployeeID   string   `json:"employee_id"`
	Category     Category `json:"task_category"`
	Billable     bool     `json:"billable"`
	CountsForPPH bool     `json:"counts_for_pph"`
}

// Validate checks the request fields.
func (r SwitchRequest) Validate() error {
	if r.JobID == "" {
		return apperr.Validation("job_id", "is required")
	}
	if r.EmployeeID == "" {
		return apperr.Validation("employee_id", "is required")
	}
	if _, err := ParseCategory(string(r.Category)); err != nil {
		return err
	}
	if r.CountsForPPH && r.Category != Production {
		return apperr.Validation("counts_for_pph", "only production time counts toward PPH")
	}
	return nil
}

// SwitchResult is the outcome of a task switch.
type SwitchResult struct {
	Closed   *Record `json:"closed"`
	Opened   *Record `json:"opened"`
	Attempts int     `json:"attempts"`
}

// Switcher performs task switches.
type Switcher struct {
	store       Store
	rates       Rates
	maxAttempts int
	now         func() time.Time
	newID       func() string
	logger      *zap.Logger
	onConflict  func()
}

// Option configures a Switcher.
type Option func(*Switcher)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Switcher) { s.now = now }
}

// WithMaxAttempts sets the retry bound; values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(s *Switcher) {
		if n >= 1 {
			s.maxAttempts = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Switcher) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithConflictHook is called once per lost compare-and-swap.
func WithConflictHook(fn func()) Option {
	return func(s *Switcher) { s.onConflict = fn }
}

// NewSwitcher returns a Switcher over store. rates may be nil, in which case
// opened records carry zero rates.
func NewSwitcher(store Store, rates Rates, opts ...Option) *Switcher {
	s := &Switcher{
		store:       store,
		rates:       rates,
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
		newID:       func() string { return uuid.NewString() },
		logger:      zap.NewNop(),
		onConflict:  func() {},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Switch closes the employee's open record on the job, if any, and opens a
// new one for req. Both happen in one storage swap.
func (s *Switcher) Switch(ctx context.Context, req SwitchRequest) (SwitchResult, error) {
	if err := req.Validate(); err != nil {
		return SwitchResult{}, err
	}

	var rate RecordRate
	if s.rates != nil {
		var err error
		rate, err = s.rates.RecordRates(ctx, req.JobID, req.EmployeeID)
		if err != nil {
			return SwitchResult{}, fmt.Errorf("resolve rates: %w", err)
		}
	}

	return s.swap(ctx, req.JobID, req.EmployeeID, func(at time.Time) *Record {
		return &Record{
			ID:                   s.newID(),
			JobID:                req.JobID,
			EmployeeID:           req.EmployeeID,
			Category:             req.Category,
			Billable:             req.Billable,
			CountsForPPH:         req.CountsForPPH,
			StartTime:            at,
			LaborRatePerHour:     rate.Labor,
			EquipmentRatePerHour: rate.Equipment,
			EquipmentRateMissing: rate.EquipmentMissing,
		}
	})
}

// Stop closes the employee's open record without opening another.
func (s *Switcher) Stop(ctx context.Context, jobID, employeeID string) (SwitchResult, error) {
	if jobID == "" {
		return SwitchResult{}, apperr.Validation("job_id", "is required")
	}
	if employeeID == "" {
		return SwitchResult{}, apperr.Validation("employee_id", "is required")
	}
	res, err := s.swap(ctx, jobID, employeeID, nil)
	if err != nil {
		return res, err
	}
	if res.Closed == nil {
		return res, apperr.NotFound("open time record", employeeID)
	}
	return res, nil
}

func (s *Switcher) swap(ctx context.Context, jobID, employeeID string, open func(time.Time) *Record) (SwitchResult, error) {
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return SwitchResult{}, err
		}

		prev, err := s.store.OpenRecord(ctx, jobID, employeeID)
		if err != nil {
			return SwitchResult{}, fmt.Errorf("read open record: %w", err)
		}

		at := s.now().UTC()
		var closed *Record
		if prev != nil {
			c, err := prev.Closed(at)
			if err != nil {
				return SwitchResult{}, err
			}
			closed = &c
		}
		if closed == nil && open == nil {
			return SwitchResult{Attempts: attempt}, nil
		}

		var next *Record
		if open != nil {
			next = open(at)
		}

		err = s.store.SwapOpen(ctx, prev, closed, next)
		if err == nil {
			return SwitchResult{Closed: closed, Opened: next, Attempts: attempt}, nil
		}
		if !errors.Is(err, apperr.ErrConflict) {
			return SwitchResult{}, fmt.Errorf("swap open record: %w", err)
		}

		lastErr = err
		s.onConflict()
		s.logger.Warn("task switch conflict",
			zap.String("job_id", jobID),
			zap.String("employee_id", employeeID),
			zap.Int("attempt", attempt),
		)
	}
	return SwitchResult{}, fmt.Errorf("task switch gave up after %d attempts: %w", s.maxAttempts, lastErr)
}
