package postgres

import (
	"context"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/filograficos/identity-service/internal/core/domain"
	"github.com/filograficos/identity-service/internal/core/port"
	"github.com/filograficos/identity-service/internal/repository"
)

// VerificationRepository implements port.VerificationRepository using
// PostgreSQL.
type VerificationRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

func NewVerificationRepository(exec pgExecutor) *VerificationRepository {
	return &VerificationRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var verificationColumns = []string{
	"id",
	"identity_id",
	"token_hash",
	"created_at",
	"expires_at",
	"used_at",
}

// Create inserts a verification token record.
func (r *VerificationRepository) Create(ctx context.Context, token domain.VerificationToken) error {
	stmt, args, err := r.builder.Insert("auth.verification_tokens").
		Columns(verificationColumns...).
		Values(
			token.ID,
			token.IdentityID,
			token.TokenHash,
			token.CreatedAt,
			token.ExpiresAt,
			token.UsedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert verification token sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert verification token: %w", err)
	}
	return nil
}

// GetByHash retrieves a token by its stored hash.
func (r *VerificationRepository) GetByHash(ctx context.Context, tokenHash string) (*domain.VerificationToken, error) {
	stmt, args, err := r.builder.Select(verificationColumns...).
		From("auth.verification_tokens").
		Where(squirrel.Eq{"token_hash": tokenHash}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select verification token sql: %w", err)
	}

	var token domain.VerificationToken
	err = r.exec.QueryRow(ctx, stmt, args...).Scan(
		&token.ID,
		&token.IdentityID,
		&token.TokenHash,
		&token.CreatedAt,
		&token.ExpiresAt,
		&token.UsedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan verification token: %w", err)
	}
	return &token, nil
}

// Consume marks the token used. The used_at guard makes a second consume of
// the same token report ErrNotFound.
func (r *VerificationRepository) Consume(ctx context.Context, id string, at time.Time) error {
	stmt, args, err := r.builder.Update("auth.verification_tokens").
		Set("used_at", at).
		Where(squirrel.Eq{"id": id, "used_at": nil}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build consume verification token sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("consume verification token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteByIdentity removes all tokens issued for the identity.
func (r *VerificationRepository) DeleteByIdentity(ctx context.Context, identityID string) error {
	stmt, args, err := r.builder.Delete("auth.verification_tokens").
		Where(squirrel.Eq{"identity_id": identityID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete verification tokens sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("delete verification tokens: %w", err)
	}
	return nil
}

var _ port.VerificationRepository = (*VerificationRepository)(nil)
