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

// IdentityRepository implements port.IdentityRepository using PostgreSQL.
type IdentityRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewIdentityRepository constructs a repository backed by any executor that
// satisfies pgExecutor.
func NewIdentityRepository(exec pgExecutor) *IdentityRepository {
	return &IdentityRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var identityColumns = []string{
	"id",
	"name",
	"email",
	"phone",
	"street",
	"city",
	"state",
	"postal_code",
	"role",
	"status",
	"mfa_enabled",
	"registered_at",
	"updated_at",
	"last_login",
}

// Create inserts a new identity row.
func (r *IdentityRepository) Create(ctx context.Context, identity domain.Identity) error {
	var street, city, state, postalCode any
	if identity.Address != nil {
		street = identity.Address.Street
		city = identity.Address.City
		state = identity.Address.State
		postalCode = identity.Address.PostalCode
	}

	stmt, args, err := r.builder.Insert("auth.identities").
		Columns(identityColumns...).
		Values(
			identity.ID,
			identity.Name,
			identity.Email,
			identity.Phone,
			street,
			city,
			state,
			postalCode,
			identity.Role,
			identity.Status,
			identity.MFAEnabled,
			identity.RegisteredAt,
			identity.UpdatedAt,
			identity.LastLogin,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert identity sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

// GetByID retrieves an identity by identifier.
func (r *IdentityRepository) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	return r.getBy(ctx, squirrel.Eq{"id": id})
}

// GetByEmail retrieves an identity by email.
func (r *IdentityRepository) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	return r.getBy(ctx, squirrel.Eq{"email": email})
}

func (r *IdentityRepository) getBy(ctx context.Context, where squirrel.Eq) (*domain.Identity, error) {
	stmt, args, err := r.builder.Select(identityColumns...).
		From("auth.identities").
		Where(where).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select identity sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)
	identity, err := scanIdentity(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan identity: %w", err)
	}
	return identity, nil
}

// UpdateStatus changes the lifecycle state.
func (r *IdentityRepository) UpdateStatus(ctx context.Context, id string, status domain.IdentityStatus, at time.Time) error {
	stmt, args, err := r.builder.Update("auth.identities").
		Set("status", status).
		Set("updated_at", at).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update status sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update identity status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpdateProfile rewrites the mutable profile fields.
func (r *IdentityRepository) UpdateProfile(ctx context.Context, identity domain.Identity) error {
	var street, city, state, postalCode any
	if identity.Address != nil {
		street = identity.Address.Street
		city = identity.Address.City
		state = identity.Address.State
		postalCode = identity.Address.PostalCode
	}

	stmt, args, err := r.builder.Update("auth.identities").
		Set("name", identity.Name).
		Set("phone", identity.Phone).
		Set("street", street).
		Set("city", city).
		Set("state", state).
		Set("postal_code", postalCode).
		Set("mfa_enabled", identity.MFAEnabled).
		Set("updated_at", identity.UpdatedAt).
		Where(squirrel.Eq{"id": identity.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update profile sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update identity profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpdateLastLogin stamps the most recent successful login.
func (r *IdentityRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	stmt, args, err := r.builder.Update("auth.identities").
		Set("last_login", at).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update last login sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// List returns identities matching the filter ordered by registration time.
func (r *IdentityRepository) List(ctx context.Context, filter port.IdentityFilter) ([]domain.Identity, error) {
	query := r.builder.Select(identityColumns...).
		From("auth.identities").
		OrderBy("registered_at DESC")

	if filter.Role != nil {
		query = query.Where(squirrel.Eq{"role": *filter.Role})
	}
	if filter.Status != nil {
		query = query.Where(squirrel.Eq{"status": *filter.Status})
	}
	if filter.Limit > 0 {
		query = query.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		query = query.Offset(uint64(filter.Offset))
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list identities sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var identities []domain.Identity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		identities = append(identities, *identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return identities, nil
}

// ListWithLatestSession joins each matching identity with its most recent
// active session, if one exists.
func (r *IdentityRepository) ListWithLatestSession(ctx context.Context, filter port.IdentityFilter, at time.Time) ([]domain.IdentityWithSession, error) {
	identities, err := r.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(identities) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(identities))
	for _, identity := range identities {
		ids = append(ids, identity.ID)
	}

	stmt, args, err := r.builder.Select(
		"DISTINCT ON (identity_id) identity_id",
		"id",
		"role",
		"ip",
		"client",
		"created_at",
		"last_activity",
		"expires_at",
	).
		From("auth.sessions").
		Where(squirrel.Eq{"identity_id": ids}).
		Where(squirrel.Eq{"revoked_at": nil}).
		Where(squirrel.Gt{"expires_at": at}).
		OrderBy("identity_id", "last_activity DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build latest sessions sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query latest sessions: %w", err)
	}
	defer rows.Close()

	latest := make(map[string]*domain.Session, len(ids))
	for rows.Next() {
		var (
			identityID string
			session    domain.Session
			ip         sql.NullString
			client     sql.NullString
		)
		if err := rows.Scan(
			&identityID,
			&session.ID,
			&session.Role,
			&ip,
			&client,
			&session.CreatedAt,
			&session.LastActivity,
			&session.ExpiresAt,
		); err != nil {
			return nil, fmt.Errorf("scan latest session: %w", err)
		}
		session.IdentityID = identityID
		if ip.Valid {
			session.IP = &ip.String
		}
		if client.Valid {
			session.Client = &client.String
		}
		latest[identityID] = &session
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate latest sessions: %w", err)
	}

	result := make([]domain.IdentityWithSession, 0, len(identities))
	for _, identity := range identities {
		result = append(result, domain.IdentityWithSession{
			Identity:      identity,
			LatestSession: latest[identity.ID],
		})
	}
	return result, nil
}

// Delete removes the identity row.
func (r *IdentityRepository) Delete(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Delete("auth.identities").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete identity sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanIdentity(row pgx.Row) (*domain.Identity, error) {
	var (
		identity   domain.Identity
		phone      sql.NullString
		street     sql.NullString
		city       sql.NullString
		state      sql.NullString
		postalCode sql.NullString
		lastLogin  *time.Time
	)

	if err := row.Scan(
		&identity.ID,
		&identity.Name,
		&identity.Email,
		&phone,
		&street,
		&city,
		&state,
		&postalCode,
		&identity.Role,
		&identity.Status,
		&identity.MFAEnabled,
		&identity.RegisteredAt,
		&identity.UpdatedAt,
		&lastLogin,
	); err != nil {
		return nil, err
	}

	if phone.Valid {
		identity.Phone = &phone.String
	}
	if street.Valid || city.Valid || state.Valid || postalCode.Valid {
		identity.Address = &domain.Address{
			Street:     street.String,
			City:       city.String,
			State:      state.String,
			PostalCode: postalCode.String,
		}
	}
	identity.LastLogin = lastLogin

	return &identity, nil
}

var _ port.IdentityRepository = (*IdentityRepository)(nil)
