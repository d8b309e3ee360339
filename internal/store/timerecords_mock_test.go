package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/Simplici0/fieldquote/internal/apperr"
	"github.com/Simplici0/fieldquote/internal/timetrack"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return &Store{db: db}, mock
}

func mockRecords() (*timetrack.Record, *timetrack.Record, *timetrack.Record) {
	start := time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	prev := &timetrack.Record{ID: "tr-1", JobID: "job-1", EmployeeID: "emp-1", Category: timetrack.Production, StartTime: start}
	closed := *prev
	closed.EndTime = &end
	closed.DurationHours = 1
	next := &timetrack.Record{ID: "tr-2", JobID: "job-1", EmployeeID: "emp-1", Category: timetrack.SiteSupport, StartTime: end}
	return prev, &closed, next
}

func TestSwapOpen_LostCloseIsConflict(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.db.Close()
	prev, closed, next := mockRecords()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE time_records`).
		WithArgs(sqlmock.AnyArg(), 1.0, 0.0, 0.0, "tr-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.SwapOpen(context.Background(), prev, closed, next)
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("got %v, want conflict", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestSwapOpen_ClosesAndOpensInOneTransaction(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.db.Close()
	prev, closed, next := mockRecords()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE time_records`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO time_records`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := store.SwapOpen(context.Background(), prev, closed, next); err != nil {
		t.Fatalf("SwapOpen: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestSwapOpen_ExistingOpenRecordIsConflict(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.db.Close()
	_, _, next := mockRecords()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM time_records`).
		WithArgs("job-1", "emp-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	if err := store.SwapOpen(context.Background(), nil, nil, next); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("got %v, want conflict", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestSwapOpen_UniqueIndexRaceIsConflict(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.db.Close()
	_, _, next := mockRecords()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM time_records`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`INSERT INTO time_records`).
		WillReturnError(errors.New("constraint failed: UNIQUE constraint failed: time_records.job_id, time_records.employee_id (2067)"))
	mock.ExpectRollback()

	if err := store.SwapOpen(context.Background(), nil, nil, next); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("got %v, want conflict", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestSwapOpen_DriverErrorIsNotConflict(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.db.Close()
	prev, closed, next := mockRecords()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE time_records`).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err := store.SwapOpen(context.Background(), prev, closed, next)
	if err == nil || errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("got %v, want plain error", err)
	}
}

func TestSwapOpen_BusyWriterIsConflict(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.db.Close()
	_, _, next := mockRecords()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM time_records`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`INSERT INTO time_records`).
		WillReturnError(errors.New("database is locked (5) (SQLITE_BUSY)"))
	mock.ExpectRollback()

	if err := store.SwapOpen(context.Background(), nil, nil, next); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("got %v, want conflict", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestSwapOpen_BusyBeginIsConflict(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.db.Close()
	_, _, next := mockRecords()

	mock.ExpectBegin().WillReturnError(errors.New("database is locked (517) (SQLITE_BUSY_SNAPSHOT)"))

	if err := store.SwapOpen(context.Background(), nil, nil, next); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("got %v, want conflict", err)
	}
}
