package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/social-platform-sessions/internal/core/domain"
	"github.com/arklim/social-platform-sessions/internal/core/port"
	"github.com/arklim/social-platform-sessions/internal/repository"
)

// RefreshTokenRepository implements port.RefreshTokenRepository using PostgreSQL.
type RefreshTokenRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewRefreshTokenRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewRefreshTokenRepository(exec pgExecutor) *RefreshTokenRepository {
	return &RefreshTokenRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance executing within the provided transaction.
func (r *RefreshTokenRepository) WithTx(tx pgx.Tx) *RefreshTokenRepository {
	if tx == nil {
		return r
	}
	return &RefreshTokenRepository{exec: tx, builder: r.builder}
}

// Create inserts a new refresh token row.
func (r *RefreshTokenRepository) Create(ctx context.Context, token domain.RefreshToken) error {
	stmt, args, err := r.builder.Insert("sessions.refresh_tokens").
		Columns(
			"id",
			"owner_id",
			"family_id",
			"revoked",
			"revoked_at",
			"replaced_by_id",
			"created_at",
			"expires_at",
		).
		Values(
			token.ID,
			token.OwnerID,
			token.FamilyID,
			token.Revoked,
			token.RevokedAt,
			token.ReplacedByID,
			token.CreatedAt,
			token.ExpiresAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert refresh token sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}

	return nil
}

// GetByID retrieves a refresh token row by its identifier.
func (r *RefreshTokenRepository) GetByID(ctx context.Context, id string) (*domain.RefreshToken, error) {
	stmt, args, err := r.builder.Select(
		"id",
		"owner_id",
		"family_id",
		"revoked",
		"revoked_at",
		"replaced_by_id",
		"created_at",
		"expires_at",
	).
		From("sessions.refresh_tokens").
		Where(squirrel.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select refresh token sql: %w", err)
	}

	var (
		token        domain.RefreshToken
		revokedAt    sql.NullTime
		replacedByID sql.NullString
	)

	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&token.ID,
		&token.OwnerID,
		&token.FamilyID,
		&token.Revoked,
		&revokedAt,
		&replacedByID,
		&token.CreatedAt,
		&token.ExpiresAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan refresh token: %w", err)
	}

	if revokedAt.Valid {
		t := revokedAt.Time
		token.RevokedAt = &t
	}
	if replacedByID.Valid {
		v := replacedByID.String
		token.ReplacedByID = &v
	}

	return &token, nil
}

// FindLatestInFamily returns the newest live row of a family.
func (r *RefreshTokenRepository) FindLatestInFamily(ctx context.Context, familyID string, now time.Time) (*domain.RefreshToken, error) {
	stmt, args, err := r.builder.Select(
		"id",
		"owner_id",
		"family_id",
		"revoked",
		"revoked_at",
		"replaced_by_id",
		"created_at",
		"expires_at",
	).
		From("sessions.refresh_tokens").
		Where(squirrel.Eq{"family_id": familyID, "revoked": false}).
		Where(squirrel.Gt{"expires_at": now.UTC()}).
		OrderBy("created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select latest family token sql: %w", err)
	}

	var (
		token        domain.RefreshToken
		revokedAt    sql.NullTime
		replacedByID sql.NullString
	)

	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&token.ID,
		&token.OwnerID,
		&token.FamilyID,
		&token.Revoked,
		&revokedAt,
		&replacedByID,
		&token.CreatedAt,
		&token.ExpiresAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan latest family token: %w", err)
	}

	if revokedAt.Valid {
		t := revokedAt.Time
		token.RevokedAt = &t
	}
	if replacedByID.Valid {
		v := replacedByID.String
		token.ReplacedByID = &v
	}

	return &token, nil
}

// MarkReplaced revokes a live token and records its successor. Only rows that
// are still live match, so the loser of a concurrent rotation gets ErrNotFound.
func (r *RefreshTokenRepository) MarkReplaced(ctx context.Context, tokenID, replacementID string, at time.Time) error {
	stmt, args, err := r.builder.Update("sessions.refresh_tokens").
		Set("revoked", true).
		Set("revoked_at", at.UTC()).
		Set("replaced_by_id", replacementID).
		Where(squirrel.Eq{"id": tokenID, "revoked": false}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark replaced sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("mark refresh token replaced: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// RevokeMany revokes every live token matched by the filter. A revocation
// timestamp already present is preserved so repeated kills stay idempotent.
func (r *RefreshTokenRepository) RevokeMany(ctx context.Context, filter port.RefreshTokenFilter, at time.Time) (int64, error) {
	if filter.Empty() {
		return 0, repository.ErrEmptyFilter
	}

	update := r.builder.Update("sessions.refresh_tokens").
		Set("revoked", true).
		Set("revoked_at", squirrel.Expr("COALESCE(revoked_at, ?)", at.UTC())).
		Where(squirrel.Eq{"revoked": false})

	if len(filter.IDs) > 0 {
		update = update.Where(squirrel.Eq{"id": filter.IDs})
	}
	if filter.OwnerID != "" {
		update = update.Where(squirrel.Eq{"owner_id": filter.OwnerID})
	}
	if filter.FamilyID != "" {
		update = update.Where(squirrel.Eq{"family_id": filter.FamilyID})
	}

	stmt, args, err := update.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build revoke many sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("revoke refresh tokens: %w", err)
	}

	return ct.RowsAffected(), nil
}

// DeleteStale removes rows that expired or were revoked before the cutoffs.
func (r *RefreshTokenRepository) DeleteStale(ctx context.Context, expiredBefore, revokedBefore time.Time) (int64, error) {
	stmt, args, err := r.builder.Delete("sessions.refresh_tokens").
		Where(squirrel.Or{
			squirrel.Lt{"expires_at": expiredBefore.UTC()},
			squirrel.And{
				squirrel.Eq{"revoked": true},
				squirrel.Lt{"revoked_at": revokedBefore.UTC()},
			},
		}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete stale sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("delete stale refresh tokens: %w", err)
	}

	return ct.RowsAffected(), nil
}

var _ port.RefreshTokenRepository = (*RefreshTokenRepository)(nil)
