package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/arklim/social-platform-sessions/internal/core/domain"
	"github.com/arklim/social-platform-sessions/internal/repository"
)

func TestAccountRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)

	createdAt := time.Now().UTC()
	account := domain.Account{
		ID:           "account-1",
		Email:        "user@example.com",
		PasswordHash: "salt:hash",
		Role:         domain.RoleUser,
		CreatedAt:    createdAt,
	}

	mock.ExpectExec(`INSERT INTO sessions\.accounts`).
		WithArgs(account.ID, account.Email, account.PasswordHash, account.Role, account.CreatedAt, (*time.Time)(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Create(context.Background(), account); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_CreateDuplicateEmail(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)

	mock.ExpectExec(`INSERT INTO sessions\.accounts`).
		WithArgs("account-1", "user@example.com", "salt:hash", domain.RoleUser, pgxmock.AnyArg(), (*time.Time)(nil)).
		WillReturnError(&pgconn.PgError{Code: uniqueViolationCode})

	account := domain.Account{
		ID:           "account-1",
		Email:        "user@example.com",
		PasswordHash: "salt:hash",
		Role:         domain.RoleUser,
		CreatedAt:    time.Now().UTC(),
	}

	if err := repo.Create(context.Background(), account); !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestAccountRepository_GetByEmailNormalizes(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)

	createdAt := time.Now().UTC()
	rows := pgxmock.NewRows([]string{
		"id", "email", "password_hash", "role", "created_at", "deleted_at",
	}).AddRow("account-1", "user@example.com", "salt:hash", domain.RoleUser, createdAt, nil)

	mock.ExpectQuery(`SELECT .*FROM sessions\.accounts`).
		WithArgs("user@example.com").
		WillReturnRows(rows)

	account, err := repo.GetByEmail(context.Background(), "  User@Example.COM ")
	if err != nil {
		t.Fatalf("GetByEmail returned error: %v", err)
	}
	if account.ID != "account-1" {
		t.Fatalf("expected account-1, got %s", account.ID)
	}
	if account.DeletedAt != nil {
		t.Fatalf("expected live account")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_GetByIDNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)

	rows := pgxmock.NewRows([]string{
		"id", "email", "password_hash", "role", "created_at", "deleted_at",
	})
	mock.ExpectQuery(`SELECT .*FROM sessions\.accounts`).WithArgs("missing").WillReturnRows(rows)

	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAccountRepository_SoftDeleteAlreadyDeleted(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)
	at := time.Now().UTC()

	mock.ExpectExec(`UPDATE sessions\.accounts`).
		WithArgs(at, "account-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := repo.SoftDelete(context.Background(), "account-1", at); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for already deleted account, got %v", err)
	}
}
