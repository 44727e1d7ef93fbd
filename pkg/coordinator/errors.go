package coordinator

type coordinatorError string

const (
	// ErrLimitExceeded is returned when a (unit, period) has already used up
	// its lifetime allowance of sessions.
	ErrLimitExceeded = coordinatorError("session limit exceeded")

	// ErrSessionCompleted is returned by RecordScan when the only resolvable
	// session for the period is already completed.
	ErrSessionCompleted = coordinatorError("session is completed")

	// ErrDuplicateItem is returned when the scanned identifier already exists
	// in the open window.
	ErrDuplicateItem = coordinatorError("duplicate item")

	// ErrStoreInconsistent is returned when a created session row never became
	// visible within the verification attempts. The caller must not assume the
	// session exists.
	ErrStoreInconsistent = coordinatorError("store inconsistent")

	// ErrNotFound is returned when no session row exists for the period.
	ErrNotFound = coordinatorError("session not found")

	// ErrAlreadyCompleted is returned by CompleteSession on a session that was
	// completed before; the call performs no mutation.
	ErrAlreadyCompleted = coordinatorError("session already completed")
)

func (e coordinatorError) Error() string {
	return string(e)
}
