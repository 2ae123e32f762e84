package postgres

import (
	"errors"

	"github.com/lib/pq"
)

const pqUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a PostgreSQL unique violation.
// An empty constraint matches any unique constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || string(pqErr.Code) != pqUniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
