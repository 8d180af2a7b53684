package postgres

import (
	"context"
	"errors"
	"testing"

	xerrors "loadboard-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", pgx.ErrNoRows, xerrors.ErrNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505", ConstraintName: "profiles_pkey"}, xerrors.ErrConstraintViolation},
		{"check violation", &pgconn.PgError{Code: "23514"}, xerrors.ErrConstraintViolation},
		{"deadline", context.DeadlineExceeded, xerrors.ErrTimeout},
		{"dial failure", errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), xerrors.ErrNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, mapError(tt.err, "op"), tt.want)
		})
	}
}

func TestMapErrorPassesThroughOtherServerErrors(t *testing.T) {
	err := mapError(&pgconn.PgError{Code: "42P01", Message: "relation does not exist"}, "get profile")

	assert.Error(t, err)
	assert.NotErrorIs(t, err, xerrors.ErrNetwork)
	assert.NotErrorIs(t, err, xerrors.ErrConstraintViolation)
	assert.Nil(t, mapError(nil, "op"))
}
