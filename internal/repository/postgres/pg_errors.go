package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kirinyoku/tix-nights/internal/repository"
)

// wrapDBErr maps driver errors onto repository errors.
func wrapDBErr(op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	var pge *pgconn.PgError
	if errors.As(err, &pge) {
		// data_exception class: the row exists but does not decode
		if len(pge.Code) == 5 && pge.Code[:2] == "22" {
			return fmt.Errorf("%s: %w: %v", op, repository.ErrCorrupt, err)
		}
	}

	return fmt.Errorf("%s: %w: %w", op, repository.ErrUnavailable, err)
}
