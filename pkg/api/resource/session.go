package resource

import (
	"time"

	"github.com/countkeeper/countkeeper/pkg/model"
)

type SessionResource struct {
	Unit        string     `json:"unit"`
	Month       int        `json:"month"`
	Year        int        `json:"year"`
	Status      string     `json:"status"`
	SessionID   string     `json:"sessionId"`
	CreatedAt   time.Time  `json:"createdAt"`
	CreatedBy   string     `json:"createdBy"`
	TotalScans  int        `json:"totalScans"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CompletedBy string     `json:"completedBy,omitempty"`
}

type SessionStatusResource struct {
	Active  bool             `json:"active"`
	Session *SessionResource `json:"session,omitempty"`
}

type ScanResource struct {
	Date     time.Time `json:"date"`
	ItemID   string    `json:"itemId"`
	User     string    `json:"user"`
	Metadata string    `json:"metadata,omitempty"`
}

type ScanCountResource struct {
	Unit       string `json:"unit"`
	Month      int    `json:"month"`
	Year       int    `json:"year"`
	TotalScans int    `json:"totalScans"`
}

func NewSession(m *model.Session) (out *SessionResource) {
	out = &SessionResource{
		Unit:        m.Unit,
		Month:       m.Period.Month,
		Year:        m.Period.Year,
		Status:      string(m.Status),
		SessionID:   m.SessionID,
		CreatedAt:   m.CreatedAt,
		CreatedBy:   m.CreatedBy,
		TotalScans:  m.TotalScans,
		CompletedAt: m.CompletedAt,
		CompletedBy: m.CompletedBy,
	}

	return // out
}

func NewSessionStatus(m *model.Session) (out *SessionStatusResource) {
	out = &SessionStatusResource{}
	if m != nil {
		out.Active = m.Status == model.SessionStatusActive
		out.Session = NewSession(m)
	}

	return // out
}

func NewScan(m *model.ScanRecord) (out *ScanResource) {
	out = &ScanResource{
		Date:     m.Date,
		ItemID:   m.ItemID,
		User:     m.User,
		Metadata: m.Metadata,
	}

	return // out
}

func NewScanCount(unit string, period model.Period, count int) (out *ScanCountResource) {
	out = &ScanCountResource{
		Unit:       unit,
		Month:      period.Month,
		Year:       period.Year,
		TotalScans: count,
	}

	return // out
}
