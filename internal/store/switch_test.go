package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Simplici0/fieldquote/internal/apperr"
	"github.com/Simplici0/fieldquote/internal/timetrack"
)

// tickClock hands out strictly increasing times across goroutines.
type tickClock struct {
	base time.Time
	n    atomic.Int64
}

func (c *tickClock) now() time.Time {
	return c.base.Add(time.Duration(c.n.Add(1)) * time.Second)
}

func countOpen(t *testing.T, s *Store, jobID, employeeID string) int {
	t.Helper()
	var n int
	if err := s.db.QueryRow(`
		SELECT COUNT(*) FROM time_records
		WHERE job_id = ? AND employee_id = ? AND end_time IS NULL
	`, jobID, employeeID).Scan(&n); err != nil {
		t.Fatalf("count open records: %v", err)
	}
	return n
}

func TestSwitch_ConcurrentFirstSwitchOnFileDatabase(t *testing.T) {
	s := newTestStore(t)
	seedJob(t, s, "job-1")
	clock := &tickClock{base: time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)}
	sw := timetrack.NewSwitcher(s, nil, timetrack.WithClock(clock.now))

	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = sw.Switch(context.Background(), timetrack.SwitchRequest{
				JobID:      "job-1",
				EmployeeID: "emp-1",
				Category:   timetrack.GeneralSupport,
			})
		}(i)
	}
	wg.Wait()

	ok := 0
	for i, err := range errs {
		switch {
		case err == nil:
			ok++
		case !errors.Is(err, apperr.ErrConflict):
			t.Fatalf("switch %d: %v, want success or conflict", i, err)
		}
	}
	if ok == 0 {
		t.Fatalf("no switch succeeded")
	}
	if n := countOpen(t, s, "job-1", "emp-1"); n != 1 {
		t.Fatalf("open records = %d, want 1", n)
	}
}

func TestSwitch_DistinctEmployeesDoNotContend(t *testing.T) {
	s := newTestStore(t)
	seedJob(t, s, "job-1")
	clock := &tickClock{base: time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)}
	sw := timetrack.NewSwitcher(s, nil, timetrack.WithClock(clock.now))

	const (
		employees = 16
		switches  = 5
	)
	errs := make(chan error, employees*switches)
	var wg sync.WaitGroup
	for e := 0; e < employees; e++ {
		wg.Add(1)
		go func(emp string) {
			defer wg.Done()
			for i := 0; i < switches; i++ {
				category := timetrack.SiteSupport
				if i%2 == 0 {
					category = timetrack.Production
				}
				if _, err := sw.Switch(context.Background(), timetrack.SwitchRequest{
					JobID:      "job-1",
					EmployeeID: emp,
					Category:   category,
				}); err != nil {
					errs <- fmt.Errorf("%s switch %d: %w", emp, i, err)
				}
			}
		}(fmt.Sprintf("emp-%d", e))
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("%v", err)
	}

	records, err := s.ListRecords(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(records) != employees*switches {
		t.Fatalf("records = %d, want %d", len(records), employees*switches)
	}
	for e := 0; e < employees; e++ {
		if n := countOpen(t, s, "job-1", fmt.Sprintf("emp-%d", e)); n != 1 {
			t.Fatalf("emp-%d open records = %d, want 1", e, n)
		}
	}
}
