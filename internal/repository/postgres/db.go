// internal/repository/postgres/db.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	xerrors "loadboard-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// mapError translates driver errors into the xerrors taxonomy. Integrity
// violations (class 23) become ErrConstraintViolation; anything that never
// reached the server is a network failure.
func mapError(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return xerrors.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if strings.HasPrefix(pgErr.Code, "23") {
			return fmt.Errorf("%w: %s: %s", xerrors.ErrConstraintViolation, op, pgErr.ConstraintName)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", xerrors.ErrTimeout, op, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %v", xerrors.ErrNetwork, op, err)
}
