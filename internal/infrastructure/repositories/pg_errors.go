package repositories

import (
	"errors"

	"github.com/lib/pq"
)

const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
)

func isPgError(err error, code string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == code
	}
	return false
}
