package service

import (
	"strings"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

var (
	ErrBookmarkNotFound = errors.New("bookmark not found")
	ErrCategoryNotFound = errors.New("category not found")
	ErrLinkNotFound     = errors.New("bookmark is not in category")
	ErrForbidden        = errors.New("row belongs to another user")
)

// IsUniqueViolation reports whether err is a uniqueness-constraint
// violation. Two concurrent creators race on the constraint; the loser
// sees this error and converts it into the same "already exists"
// outcome as the winner.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.UniqueViolation
	}
	// sqlite (tests) has no structured error codes to match on
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
