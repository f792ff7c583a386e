package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/filograficos/identity-service/internal/core/domain"
	"github.com/filograficos/identity-service/internal/core/port"
	"github.com/filograficos/identity-service/internal/repository"
)

// CredentialRepository implements port.CredentialRepository using PostgreSQL.
type CredentialRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewCredentialRepository constructs a repository backed by any executor that
// satisfies pgExecutor.
func NewCredentialRepository(exec pgExecutor) *CredentialRepository {
	return &CredentialRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a credential row.
func (r *CredentialRepository) Create(ctx context.Context, credential domain.Credential) error {
	stmt, args, err := r.builder.Insert("auth.credentials").
		Columns(
			"id",
			"identity_id",
			"password_hash",
			"require_change",
			"last_password_change",
			"mfa_kind",
			"mfa_secret",
			"max_failed_attempts",
			"created_at",
			"updated_at",
		).
		Values(
			credential.ID,
			credential.IdentityID,
			credential.PasswordHash,
			credential.RequireChange,
			credential.LastPasswordChange,
			credential.MFAKind,
			credential.MFASecret,
			credential.MaxFailedAttempts,
			credential.CreatedAt,
			credential.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert credential sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

// GetByIdentity retrieves the credential for an identity.
func (r *CredentialRepository) GetByIdentity(ctx context.Context, identityID string) (*domain.Credential, error) {
	stmt, args, err := r.builder.Select(
		"id",
		"identity_id",
		"password_hash",
		"require_change",
		"last_password_change",
		"mfa_kind",
		"mfa_secret",
		"max_failed_attempts",
		"created_at",
		"updated_at",
	).
		From("auth.credentials").
		Where(squirrel.Eq{"identity_id": identityID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select credential sql: %w", err)
	}

	var (
		credential domain.Credential
		mfaSecret  sql.NullString
	)

	row := r.exec.QueryRow(ctx, stmt, args...)
	if err := row.Scan(
		&credential.ID,
		&credential.IdentityID,
		&credential.PasswordHash,
		&credential.RequireChange,
		&credential.LastPasswordChange,
		&credential.MFAKind,
		&mfaSecret,
		&credential.MaxFailedAttempts,
		&credential.CreatedAt,
		&credential.UpdatedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan credential: %w", err)
	}

	if mfaSecret.Valid {
		credential.MFASecret = &mfaSecret.String
	}
	return &credential, nil
}

// UpdatePassword replaces the current hash and stamps the change time.
func (r *CredentialRepository) UpdatePassword(ctx context.Context, identityID, passwordHash string, changedAt time.Time) error {
	stmt, args, err := r.builder.Update("auth.credentials").
		Set("password_hash", passwordHash).
		Set("last_password_change", changedAt).
		Set("updated_at", changedAt).
		Where(squirrel.Eq{"identity_id": identityID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update password sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// SetRequireChange flags or clears the forced-change requirement.
func (r *CredentialRepository) SetRequireChange(ctx context.Context, identityID string, require bool, at time.Time) error {
	stmt, args, err := r.builder.Update("auth.credentials").
		Set("require_change", require).
		Set("updated_at", at).
		Where(squirrel.Eq{"identity_id": identityID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update require change sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update require change: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListHistory returns the most recent history entries, newest first.
func (r *CredentialRepository) ListHistory(ctx context.Context, identityID string, limit int) ([]domain.PasswordHistoryEntry, error) {
	query := r.builder.Select(
		"h.id",
		"h.credential_id",
		"h.password_hash",
		"h.set_at",
	).
		From("auth.password_history h").
		Join("auth.credentials c ON c.id = h.credential_id").
		Where(squirrel.Eq{"c.identity_id": identityID}).
		OrderBy("h.set_at DESC")

	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list history sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list password history: %w", err)
	}
	defer rows.Close()

	var entries []domain.PasswordHistoryEntry
	for rows.Next() {
		var entry domain.PasswordHistoryEntry
		if err := rows.Scan(&entry.ID, &entry.CredentialID, &entry.PasswordHash, &entry.SetAt); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate password history: %w", err)
	}
	return entries, nil
}

// AddHistory appends one entry.
func (r *CredentialRepository) AddHistory(ctx context.Context, entry domain.PasswordHistoryEntry) error {
	stmt, args, err := r.builder.Insert("auth.password_history").
		Columns("id", "credential_id", "password_hash", "set_at").
		Values(entry.ID, entry.CredentialID, entry.PasswordHash, entry.SetAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert history sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

// TrimHistory deletes all but the most recent keep entries for the identity.
func (r *CredentialRepository) TrimHistory(ctx context.Context, identityID string, keep int) error {
	if keep <= 0 {
		return nil
	}

	const stmt = `
		DELETE FROM auth.password_history
		WHERE credential_id IN (SELECT id FROM auth.credentials WHERE identity_id = $1)
		  AND id NOT IN (
			SELECT h.id FROM auth.password_history h
			JOIN auth.credentials c ON c.id = h.credential_id
			WHERE c.identity_id = $1
			ORDER BY h.set_at DESC
			LIMIT $2
		  )`

	if _, err := r.exec.Exec(ctx, stmt, identityID, keep); err != nil {
		return fmt.Errorf("trim password history: %w", err)
	}
	return nil
}

// DeleteByIdentity removes the credential and its history.
func (r *CredentialRepository) DeleteByIdentity(ctx context.Context, identityID string) error {
	const historyStmt = `
		DELETE FROM auth.password_history
		WHERE credential_id IN (SELECT id FROM auth.credentials WHERE identity_id = $1)`

	if _, err := r.exec.Exec(ctx, historyStmt, identityID); err != nil {
		return fmt.Errorf("delete password history: %w", err)
	}

	stmt, args, err := r.builder.Delete("auth.credentials").
		Where(squirrel.Eq{"identity_id": identityID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete credential sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

var _ port.CredentialRepository = (*CredentialRepository)(nil)
