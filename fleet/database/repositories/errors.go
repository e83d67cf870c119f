package repositories

import (
	"errors"

	"github.com/uptrace/bun/driver/pgdriver"
)

// isIntegrityViolation reports whether err is a unique/foreign-key
// violation from the driver, used to map raw pg errors onto the
// package sentinels.
func isIntegrityViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.IntegrityViolation()
	}
	return false
}
