package model

import (
	"fmt"
	"time"
)

// SessionStatus is the lifecycle state of a counting session. Completed is
// terminal, a completed session is never reopened.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "ACTIVE"
	SessionStatusCompleted SessionStatus = "COMPLETED"
)

// Period identifies one calendar counting period.
type Period struct {
	Month int
	Year  int
}

func (p Period) String() string {
	return fmt.Sprintf("%02d/%d", p.Month, p.Year)
}

// Valid reports whether the period denotes a real calendar month.
func (p Period) Valid() bool {
	return p.Month >= 1 && p.Month <= 12 && p.Year >= 2000
}

// Session is a model of the persistency layer. One session is one counting
// pass for an organizational unit and period.
type Session struct {
	Unit       string
	Period     Period
	Status     SessionStatus
	CreatedAt  time.Time
	CreatedBy  string
	TotalScans int
	SessionID  string

	CompletedAt *time.Time
	CompletedBy string

	// RowIndex is the position of the session row in the backing sheet. It is
	// set on read and required for row updates; it is not part of the row
	// payload itself.
	RowIndex int
}

// Completed reports whether the session reached its terminal state.
func (s *Session) Completed() bool {
	return s.Status == SessionStatusCompleted
}
