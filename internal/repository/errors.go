package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	apperrors "github.com/spec-kit/guestpass-service/pkg/util/errorutil"
)

// classify maps driver errors onto the domain taxonomy. Server-side SQL errors are
// internal; anything that never reached the server is treated as the store being down.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFound("registration", nil)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "22P02" {
			// invalid_text_representation: a non-uuid id can never match a row
			return apperrors.NewNotFound("registration", nil)
		}
		return apperrors.NewInternalError(err)
	}
	return apperrors.NewStoreUnavailable(err)
}
