// internal/repository/postgres/profile_repo.go
package postgres

import (
	"context"

	"loadboard-service/internal/domain/auth"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ProfileRepository stores user profiles. Entitlement columns are written
// only by the billing webhook, never from here.
type ProfileRepository struct {
	db *pgxpool.Pool
}

func NewProfileRepository(db *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{db: db}
}

const profileColumns = `
	user_id, email, full_name, phone, is_plus_member, plus_expires_at,
	avatar_url, created_at, updated_at
`

// GetProfile retrieves the profile for userID
func (r *ProfileRepository) GetProfile(ctx context.Context, userID string) (*auth.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE user_id = $1`

	var p auth.Profile
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&p.UserID, &p.Email, &p.FullName, &p.Phone, &p.IsPlusMember, &p.PlusExpiresAt,
		&p.AvatarURL, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err, "get profile")
	}

	return &p, nil
}

// UpsertProfile inserts the profile or updates its contact fields. A new
// row starts without PLUS; an existing row keeps its entitlement.
func (r *ProfileRepository) UpsertProfile(ctx context.Context, p *auth.Profile) error {
	query := `
		INSERT INTO profiles (user_id, email, full_name, phone, avatar_url, is_plus_member)
		VALUES ($1, $2, $3, $4, $5, FALSE)
		ON CONFLICT (user_id) DO UPDATE SET
			email      = EXCLUDED.email,
			full_name  = EXCLUDED.full_name,
			phone      = COALESCE(EXCLUDED.phone, profiles.phone),
			avatar_url = COALESCE(EXCLUDED.avatar_url, profiles.avatar_url),
			updated_at = NOW()
		RETURNING is_plus_member, plus_expires_at, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query, p.UserID, p.Email, p.FullName, p.Phone, p.AvatarURL).
		Scan(&p.IsPlusMember, &p.PlusExpiresAt, &p.CreatedAt, &p.UpdatedAt)

	return mapError(err, "upsert profile")
}

// CreateProfile inserts the profile and fails with ErrConstraintViolation
// if one already exists.
func (r *ProfileRepository) CreateProfile(ctx context.Context, p *auth.Profile) error {
	query := `
		INSERT INTO profiles (user_id, email, full_name, phone, avatar_url, is_plus_member)
		VALUES ($1, $2, $3, $4, $5, FALSE)
		RETURNING is_plus_member, plus_expires_at, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query, p.UserID, p.Email, p.FullName, p.Phone, p.AvatarURL).
		Scan(&p.IsPlusMember, &p.PlusExpiresAt, &p.CreatedAt, &p.UpdatedAt)

	return mapError(err, "create profile")
}
