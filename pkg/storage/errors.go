package storage

import (
	"errors"
	"fmt"
	"time"
)

type storageError string

const (
	ErrNotFound         = storageError("not found")
	ErrPermissionDenied = storageError("permission denied")
)

func (e storageError) Error() string {
	return string(e)
}

// QuotaError is returned when the store rejects a call because the per-minute
// call quota is exhausted. It is the only storage error kind that is safe to
// retry.
type QuotaError struct {
	Table      string
	RetryAfter time.Duration
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("storage: quota exceeded for table '%s'", e.Table)
}

// IsQuotaError reports whether err is, or wraps, a quota rejection.
func IsQuotaError(err error) bool {
	var qe *QuotaError
	return errors.As(err, &qe)
}
