package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
)

func newMockBackend(t *testing.T) (*SQLiteBackend, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock.New failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return newSQLiteBackend(db, DriverModernc), mock
}

func TestSQLiteBackend_IncrementSpendDriverError(t *testing.T) {
	backend, mock := newMockBackend(t)
	at := time.Unix(0, 1000).UTC()

	mock.ExpectQuery(incrementSpend).
		WithArgs(int64(1_250_000), at.UnixNano(), "b-1").
		WillReturnError(errors.New("database is locked"))

	_, err := backend.IncrementSpend(context.Background(), "b-1", decimal.RequireFromString("1.25"), at)
	if err == nil {
		t.Fatal("Expected error, got nil")
	}

	var storageErr *Error
	if !errors.As(err, &storageErr) {
		t.Fatalf("Expected *Error, got %T", err)
	}
	if storageErr.Op != "increment_spend" || storageErr.Backend != "sqlite" {
		t.Errorf("Unexpected error fields: %+v", storageErr)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestSQLiteBackend_IncrementSpendReturnsTotal(t *testing.T) {
	backend, mock := newMockBackend(t)
	at := time.Unix(0, 2000).UTC()

	mock.ExpectQuery(incrementSpend).
		WithArgs(int64(500_000), at.UnixNano(), "b-1").
		WillReturnRows(sqlmock.NewRows([]string{"current_spend_micros"}).AddRow(int64(9_500_000)))

	total, err := backend.IncrementSpend(context.Background(), "b-1", decimal.RequireFromString("0.5"), at)
	if err != nil {
		t.Fatalf("IncrementSpend failed: %v", err)
	}
	if !total.Equal(decimal.RequireFromString("9.5")) {
		t.Errorf("Expected total 9.5, got %s", total)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestSQLiteBackend_ResetSpendLostRace(t *testing.T) {
	backend, mock := newMockBackend(t)
	expected := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	next := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	at := expected.Add(time.Minute)

	mock.ExpectExec(resetSpend).
		WithArgs(next.UnixNano(), at.UnixNano(), "b-1", expected.UnixNano()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(budgetExists).
		WithArgs("b-1").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	ok, err := backend.ResetSpend(context.Background(), "b-1", expected, next, at)
	if err != nil {
		t.Fatalf("ResetSpend failed: %v", err)
	}
	if ok {
		t.Error("Expected reset to report not applied")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestSQLiteBackend_ClaimBucketFromNoBand(t *testing.T) {
	backend, mock := newMockBackend(t)
	at := time.Unix(0, 4000).UTC()

	mock.ExpectExec(claimBucket).
		WithArgs(19, at.UnixNano(), "b-1", nil).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(budgetExists).
		WithArgs("b-1").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	ok, err := backend.ClaimBucket(context.Background(), "b-1", nil, 19, at)
	if err != nil {
		t.Fatalf("ClaimBucket failed: %v", err)
	}
	if ok {
		t.Error("Expected claim to report lost")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestSQLiteBackend_DeactivateMissing(t *testing.T) {
	backend, mock := newMockBackend(t)
	at := time.Unix(0, 3000).UTC()

	mock.ExpectExec(deactivateBudget).
		WithArgs(at.UnixNano(), "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := backend.Deactivate(context.Background(), "missing", at)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestSQLiteBackend_PingError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New failed: %v", err)
	}
	defer db.Close()
	backend := newSQLiteBackend(db, DriverCGO)

	mock.ExpectPing().WillReturnError(errors.New("disk I/O error"))

	if err := backend.Ping(context.Background()); err == nil {
		t.Error("Expected ping error, got nil")
	}
}
