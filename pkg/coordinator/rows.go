package coordinator

import (
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/countkeeper/countkeeper/pkg/model"
	"github.com/countkeeper/countkeeper/pkg/storage"
)

// sessionsTable holds one row per session across all units and periods.
const sessionsTable = "inventory_sessions"

// scansTableFor returns the per-(unit, period) detail table. Scan rows carry
// no session id; the open window is simply the rows currently present, the
// backup collaborator clears them at completion.
func scansTableFor(unit string, period model.Period) string {
	return fmt.Sprintf("inventory_scans/%s/%02d-%d", unit, period.Month, period.Year)
}

const rowTimeFormat = time.RFC3339

// Session row layout:
// unit, month, year, status, created_at, created_by, total_scans, session_id,
// completed_at, completed_by
const sessionRowWidth = 10

func sessionToRow(s *model.Session) storage.Row {
	completedAt := ""
	if s.CompletedAt != nil {
		completedAt = s.CompletedAt.Format(rowTimeFormat)
	}

	return storage.Row{
		s.Unit,
		strconv.Itoa(s.Period.Month),
		strconv.Itoa(s.Period.Year),
		string(s.Status),
		s.CreatedAt.Format(rowTimeFormat),
		s.CreatedBy,
		strconv.Itoa(s.TotalScans),
		s.SessionID,
		completedAt,
		s.CompletedBy,
	}
}

func sessionFromRow(rowIndex int, row storage.Row) (*model.Session, error) {
	if len(row) < sessionRowWidth {
		return nil, errors.Errorf("coordinator: session row %d has %d cells, want %d",
			rowIndex, len(row), sessionRowWidth)
	}

	month, err := strconv.Atoi(row[1])
	if err != nil {
		return nil, errors.Wrapf(err, "coordinator: session row %d has invalid month", rowIndex)
	}
	year, err := strconv.Atoi(row[2])
	if err != nil {
		return nil, errors.Wrapf(err, "coordinator: session row %d has invalid year", rowIndex)
	}
	createdAt, err := time.Parse(rowTimeFormat, row[4])
	if err != nil {
		return nil, errors.Wrapf(err, "coordinator: session row %d has invalid created_at", rowIndex)
	}
	totalScans, err := strconv.Atoi(row[6])
	if err != nil {
		return nil, errors.Wrapf(err, "coordinator: session row %d has invalid total_scans", rowIndex)
	}

	s := &model.Session{
		Unit:        row[0],
		Period:      model.Period{Month: month, Year: year},
		Status:      model.SessionStatus(row[3]),
		CreatedAt:   createdAt,
		CreatedBy:   row[5],
		TotalScans:  totalScans,
		SessionID:   row[7],
		CompletedBy: row[9],
		RowIndex:    rowIndex,
	}

	if row[8] != "" {
		completedAt, err := time.Parse(rowTimeFormat, row[8])
		if err != nil {
			return nil, errors.Wrapf(err, "coordinator: session row %d has invalid completed_at", rowIndex)
		}
		s.CompletedAt = &completedAt
	}

	return s, nil
}

// Scan row layout: date, item_id, user, metadata
const scanRowWidth = 4

func scanToRow(rec *model.ScanRecord) storage.Row {
	return storage.Row{
		rec.Date.Format(rowTimeFormat),
		rec.ItemID,
		rec.User,
		rec.Metadata,
	}
}

func scanFromRow(rowIndex int, row storage.Row) (*model.ScanRecord, error) {
	if len(row) < scanRowWidth {
		return nil, errors.Errorf("coordinator: scan row %d has %d cells, want %d",
			rowIndex, len(row), scanRowWidth)
	}

	date, err := time.Parse(rowTimeFormat, row[0])
	if err != nil {
		return nil, errors.Wrapf(err, "coordinator: scan row %d has invalid date", rowIndex)
	}

	return &model.ScanRecord{
		Date:     date,
		ItemID:   row[1],
		User:     row[2],
		Metadata: row[3],
	}, nil
}
