package buffer

import (
	"context"
	"errors"
	"testing"
	"time"

	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestPostgresStoreClaimIsConditional(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()
	store := newPostgresStoreWithQuerier(mock)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE message_buffers").
		WithArgs("buf-1", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	ok, err := store.Claim(context.Background(), "buf-1", now)
	if err != nil || !ok {
		t.Fatalf("expected claim to succeed, got %v %v", ok, err)
	}

	mock.ExpectExec("UPDATE message_buffers").
		WithArgs("buf-1", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	ok, err = store.Claim(context.Background(), "buf-1", now)
	if err != nil || ok {
		t.Fatalf("expected second claim to lose, got %v %v", ok, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresStoreClaimError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()
	store := newPostgresStoreWithQuerier(mock)

	mock.ExpectExec("UPDATE message_buffers").WillReturnError(errors.New("connection reset"))
	if _, err := store.Claim(context.Background(), "buf-1", time.Now()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestPostgresStoreFindOpenNone(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()
	store := newPostgresStoreWithQuerier(mock)

	mock.ExpectQuery("FROM message_buffers").WithArgs("conv-1").WillReturnError(pgx.ErrNoRows)
	if _, err := store.FindOpen(context.Background(), "conv-1"); !errors.Is(err, ErrBufferNotFound) {
		t.Fatalf("expected ErrBufferNotFound, got %v", err)
	}
}

func TestPostgresStoreMarkProcessed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()
	store := newPostgresStoreWithQuerier(mock)
	at := time.Date(2025, 6, 1, 12, 1, 0, 0, time.UTC)

	mock.ExpectExec("SET processed = true").
		WithArgs("buf-1", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	if err := store.MarkProcessed(context.Background(), "buf-1", at); err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
