package timetrack

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/Simplici0/fieldquote/internal/apperr"
)

type memStore struct {
	mu        sync.Mutex
	records   []Record
	conflicts int // SwapOpen fails this many times before succeeding
	swaps     int
}

func (m *memStore) OpenRecord(_ context.Context, jobID, employeeID string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.JobID == jobID && r.EmployeeID == employeeID && r.Open() {
			rc := r
			return &rc, nil
		}
	}
	return nil, nil
}

func (m *memStore) SwapOpen(_ context.Context, prev, closed, next *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.swaps++
	if m.conflicts > 0 {
		m.conflicts--
		return apperr.Conflict("open record changed")
	}
	if prev == nil {
		for _, r := range m.records {
			if next != nil && r.JobID == next.JobID && r.EmployeeID == next.EmployeeID && r.Open() {
				return apperr.Conflict("employee already has an open record")
			}
		}
	}
	if prev != nil {
		for i, r := range m.records {
			if r.ID == prev.ID {
				if !r.Open() {
					return apperr.Conflict("record %s already closed", r.ID)
				}
				m.records[i] = *closed
			}
		}
	}
	if next != nil {
		m.records = append(m.records, *next)
	}
	return nil
}

func (m *memStore) ListRecords(_ context.Context, jobID string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, r := range m.records {
		if r.JobID == jobID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) openCount(jobID, employeeID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.records {
		if r.JobID == jobID && r.EmployeeID == employeeID && r.Open() {
			n++
		}
	}
	return n
}

type fixedRates RecordRate

func (f fixedRates) RecordRates(context.Context, string, string) (RecordRate, error) {
	return RecordRate(f), nil
}

type stepClock struct {
	t    time.Time
	step time.Duration
}

func (c *stepClock) now() time.Time {
	t := c.t
	c.t = c.t.Add(c.step)
	return t
}

func newTestSwitcher(store Store, clock *stepClock, opts ...Option) *Switcher {
	n := 0
	s := NewSwitcher(store, fixedRates{Labor: 100, Equipment: 50}, append([]Option{WithClock(clock.now)}, opts...)...)
	s.newID = func() string {
		n++
		return fmt.Sprintf("tr-%d", n)
	}
	return s
}

func TestSwitch_ClosesPreviousAndOpensNext(t *testing.T) {
	store := &memStore{}
	clock := &stepClock{t: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC), step: 90 * time.Minute}
	sw := newTestSwitcher(store, clock)
	ctx := context.Background()

	first, err := sw.Switch(ctx, SwitchRequest{JobID: "job-1", EmployeeID: "emp-1", Category: Production, Billable: true, CountsForPPH: true})
	if err != nil {
		t.Fatalf("first switch: %v", err)
	}
	if first.Closed != nil || first.Opened == nil {
		t.Fatalf("first switch result = %+v", first)
	}

	second, err := sw.Switch(ctx, SwitchRequest{JobID: "job-1", EmployeeID: "emp-1", Category: SiteSupport})
	if err != nil {
		t.Fatalf("second switch: %v", err)
	}
	if second.Closed == nil || second.Closed.ID != first.Opened.ID {
		t.Fatalf("second switch closed %+v, want %s", second.Closed, first.Opened.ID)
	}
	if math.Abs(second.Closed.DurationHours-1.5) > 1e-9 {
		t.Fatalf("duration = %v, want 1.5", second.Closed.DurationHours)
	}
	if math.Abs(second.Closed.LaborCost-150) > 1e-9 || math.Abs(second.Closed.EquipmentCost-75) > 1e-9 {
		t.Fatalf("costs = %v / %v", second.Closed.LaborCost, second.Closed.EquipmentCost)
	}
	if n := store.openCount("job-1", "emp-1"); n != 1 {
		t.Fatalf("open records = %d, want 1", n)
	}
}

func TestSwitch_RetriesOnConflict(t *testing.T) {
	store := &memStore{conflicts: 2}
	clock := &stepClock{t: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC), step: time.Minute}
	conflicts := 0
	sw := newTestSwitcher(store, clock, WithMaxAttempts(3), WithConflictHook(func() { conflicts++ }))

	res, err := sw.Switch(context.Background(), SwitchRequest{JobID: "job-1", EmployeeID: "emp-1", Category: Production})
	if err != nil {
		t.Fatalf("Switch: %v", err)
	}
	if res.Attempts != 3 || conflicts != 2 {
		t.Fatalf("attempts = %d, conflicts = %d", res.Attempts, conflicts)
	}
}

func TestSwitch_SurfacesConflictAfterBound(t *testing.T) {
	store := &memStore{conflicts: 5}
	clock := &stepClock{t: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC), step: time.Minute}
	sw := newTestSwitcher(store, clock, WithMaxAttempts(2))

	_, err := sw.Switch(context.Background(), SwitchRequest{JobID: "job-1", EmployeeID: "emp-1", Category: Production})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("got %v, want conflict", err)
	}
	if store.swaps != 2 {
		t.Fatalf("swaps = %d, want 2", store.swaps)
	}
}

func TestSwitch_ConcurrentSwitchesKeepOneOpenRecord(t *testing.T) {
	store := &memStore{}
	sw := NewSwitcher(store, nil, WithMaxAttempts(50))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = sw.Switch(context.Background(), SwitchRequest{JobID: "job-1", EmployeeID: "emp-1", Category: GeneralSupport})
		}()
	}
	wg.Wait()

	if n := store.openCount("job-1", "emp-1"); n != 1 {
		t.Fatalf("open records = %d, want 1", n)
	}
}

func TestSwitch_RejectsBadRequests(t *testing.T) {
	sw := NewSwitcher(&memStore{}, nil)
	cases := []SwitchRequest{
		{EmployeeID: "e", Category: Production},
		{JobID: "j", Category: Production},
		{JobID: "j", EmployeeID: "e", Category: "lunch"},
		{JobID: "j", EmployeeID: "e", Category: SiteSupport, CountsForPPH: true},
	}
	for _, req := range cases {
		if _, err := sw.Switch(context.Background(), req); !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("Switch(%+v) = %v, want validation error", req, err)
		}
	}
}

func TestStop(t *testing.T) {
	store := &memStore{}
	clock := &stepClock{t: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC), step: time.Hour}
	sw := newTestSwitcher(store, clock)
	ctx := context.Background()

	if _, err := sw.Stop(ctx, "job-1", "emp-1"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("stop without open record: %v", err)
	}

	if _, err := sw.Switch(ctx, SwitchRequest{JobID: "job-1", EmployeeID: "emp-1", Category: Production}); err != nil {
		t.Fatalf("Switch: %v", err)
	}
	res, err := sw.Stop(ctx, "job-1", "emp-1")
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if res.Opened != nil || res.Closed == nil || res.Closed.DurationHours != 1 {
		t.Fatalf("Stop result = %+v", res)
	}
	if n := store.openCount("job-1", "emp-1"); n != 0 {
		t.Fatalf("open records = %d, want 0", n)
	}
}

func TestSumHours(t *testing.T) {
	records := []Record{
		{Category: Production, CountsForPPH: true, DurationHours: 4},
		{Category: Production, DurationHours: 1},
		{Category: SiteSupport, DurationHours: 2},
		{Category: GeneralSupport, DurationHours: 0.5},
	}
	h := SumHours(records)
	if h.Production != 5 || h.PPH != 4 || h.SiteSupport != 2 || h.GeneralSupport != 0.5 {
		t.Fatalf("hours = %+v", h)
	}
	if h.Total() != 7.5 {
		t.Fatalf("total = %v", h.Total())
	}
}

func TestClosed_RejectsEndBeforeStart(t *testing.T) {
	start := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	r := Record{ID: "r", StartTime: start}
	if _, err := r.Closed(start.Add(-time.Minute)); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("got %v", err)
	}
}
