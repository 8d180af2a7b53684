// internal/repository/postgres/auth_repo.go
package postgres

import (
	"context"
	"time"

	"loadboard-service/internal/domain/auth"

	"github.com/jackc/pgx/v5/pgxpool"
)

type AuthRepository struct {
	db *pgxpool.Pool
}

func NewAuthRepository(db *pgxpool.Pool) *AuthRepository {
	return &AuthRepository{db: db}
}

// ========== Identity Methods ==========

// FindIdentityByEmail retrieves an identity by email, case-insensitively
func (r *AuthRepository) FindIdentityByEmail(ctx context.Context, email string) (*auth.Identity, error) {
	query := `
		SELECT id, email, password_hash, full_name, created_at, updated_at
		FROM auth_identities
		WHERE LOWER(email) = LOWER($1)
	`

	var identity auth.Identity
	err := r.db.QueryRow(ctx, query, email).Scan(
		&identity.ID, &identity.Email, &identity.PasswordHash, &identity.FullName,
		&identity.CreatedAt, &identity.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err, "find identity by email")
	}

	return &identity, nil
}

// FindIdentityByID retrieves an identity by ID
func (r *AuthRepository) FindIdentityByID(ctx context.Context, id string) (*auth.Identity, error) {
	query := `
		SELECT id, email, password_hash, full_name, created_at, updated_at
		FROM auth_identities
		WHERE id = $1
	`

	var identity auth.Identity
	err := r.db.QueryRow(ctx, query, id).Scan(
		&identity.ID, &identity.Email, &identity.PasswordHash, &identity.FullName,
		&identity.CreatedAt, &identity.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err, "find identity by id")
	}

	return &identity, nil
}

// ExistsByEmail checks whether an identity already uses the email
func (r *AuthRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM auth_identities WHERE LOWER(email) = LOWER($1))`

	var exists bool
	if err := r.db.QueryRow(ctx, query, email).Scan(&exists); err != nil {
		return false, mapError(err, "check identity email")
	}
	return exists, nil
}

// CreateIdentity inserts a new identity. identity.ID must be set by the caller.
func (r *AuthRepository) CreateIdentity(ctx context.Context, identity *auth.Identity) error {
	query := `
		INSERT INTO auth_identities (id, email, password_hash, full_name)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		identity.ID, identity.Email, identity.PasswordHash, identity.FullName,
	).Scan(&identity.CreatedAt, &identity.UpdatedAt)

	return mapError(err, "create identity")
}

// UpdateIdentityLastLogin records a successful sign-in
func (r *AuthRepository) UpdateIdentityLastLogin(ctx context.Context, id string) error {
	query := `UPDATE auth_identities SET last_login = $1 WHERE id = $2`
	_, err := r.db.Exec(ctx, query, time.Now(), id)
	return mapError(err, "update last login")
}
