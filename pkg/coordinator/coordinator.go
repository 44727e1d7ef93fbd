// Package coordinator owns the lifecycle of counting sessions over the
// backing sheet store. The store offers no transactions and no row locking,
// so every invariant here is approximated with optimistic
// create→verify→reconcile sequences rather than enforced by the store.
//
// Known residual risk: the duplicate-identifier check is read-then-append.
// Two concurrent scans of the same identifier can both read "not found" and
// both append; the same window exists for concurrent session creation. Drift
// is bounded by ValidateAndReconcile, which runs before every mutating
// operation, it is not prevented.
package coordinator

import (
	"context"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/countkeeper/countkeeper/pkg/model"
	"github.com/countkeeper/countkeeper/pkg/storage"
)

// lifetimeSessionCap is the hard allowance of session rows per (unit, period).
const lifetimeSessionCap = 2

// Notifier receives coordinator-side mutations that must reach the
// collaboration room of the same (unit, period). Implemented by the
// session/room bridge.
type Notifier interface {
	ScanRecorded(unit string, period model.Period, userName string, rec model.ScanRecord)
	SessionCompleted(unit string, period model.Period, sess model.Session)
}

// Archiver is the backup-and-clear collaborator boundary. Completion calls it
// fire-and-forget: a failure is logged and leaves the detail rows in place for
// manual recovery, it never fails the completion.
type Archiver interface {
	ArchiveAndClear(ctx context.Context, unit string, period model.Period, sessionID string) error
}

type nopNotifier struct{}

func (nopNotifier) ScanRecorded(string, model.Period, string, model.ScanRecord) {}
func (nopNotifier) SessionCompleted(string, model.Period, model.Session)        {}

type nopArchiver struct{}

func (nopArchiver) ArchiveAndClear(context.Context, string, model.Period, string) error {
	return nil
}

// Config carries the coordinator collaborators and tuning knobs.
type Config struct {
	Notifier Notifier
	Archiver Archiver
	// VerifyAttempts bounds the re-reads after a session append; the store
	// does not guarantee immediate read-after-write visibility.
	VerifyAttempts int
	// VerifyDelay is the base of the linearly increasing wait between
	// verification attempts.
	VerifyDelay time.Duration
}

type Coordinator struct {
	store          storage.Interface
	notifier       Notifier
	archiver       Archiver
	verifyAttempts int
	verifyDelay    time.Duration
}

func New(store storage.Interface, cfg Config) *Coordinator {
	if cfg.Notifier == nil {
		cfg.Notifier = nopNotifier{}
	}
	if cfg.Archiver == nil {
		cfg.Archiver = nopArchiver{}
	}
	if cfg.VerifyAttempts <= 0 {
		cfg.VerifyAttempts = 3
	}
	if cfg.VerifyDelay <= 0 {
		cfg.VerifyDelay = 500 * time.Millisecond
	}

	return &Coordinator{
		store:          store,
		notifier:       cfg.Notifier,
		archiver:       cfg.Archiver,
		verifyAttempts: cfg.VerifyAttempts,
		verifyDelay:    cfg.VerifyDelay,
	}
}

// FindOrCreateSession returns the active session for (unit, period), creating
// one lazily if the lifetime cap allows it. A freshly appended row is verified
// by bounded re-reads before it is returned; if it never becomes visible the
// call fails with ErrStoreInconsistent and the caller must not assume the
// session exists.
func (c *Coordinator) FindOrCreateSession(ctx context.Context, unit string, period model.Period, user, userName string) (*model.Session, error) {
	if _, _, err := c.ValidateAndReconcile(ctx, unit, period); err != nil {
		return nil, err
	}

	sessions, err := c.sessionsFor(ctx, unit, period)
	if err != nil {
		return nil, err
	}

	if active := activeSession(sessions); active != nil {
		return active, nil
	}

	if len(sessions) >= lifetimeSessionCap {
		return nil, ErrLimitExceeded
	}

	sess := &model.Session{
		Unit:      unit,
		Period:    period,
		Status:    model.SessionStatusActive,
		CreatedAt: time.Now().Round(time.Second).UTC(),
		CreatedBy: user,
		SessionID: uuid.NewString(),
	}

	if err := c.store.AppendRow(ctx, sessionsTable, sessionToRow(sess)); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"unit":       unit,
		"period":     period.String(),
		"session_id": sess.SessionID,
		"created_by": user,
	}).Info("coordinator created a new counting session")

	return c.verifyCreated(ctx, unit, period, sess.SessionID)
}

// verifyCreated re-reads the sessions table with linearly increasing delays
// until the appended row shows up.
func (c *Coordinator) verifyCreated(ctx context.Context, unit string, period model.Period, sessionID string) (*model.Session, error) {
	for attempt := 1; attempt <= c.verifyAttempts; attempt++ {
		c.invalidate(sessionsTable)

		sessions, err := c.sessionsFor(ctx, unit, period)
		if err != nil {
			return nil, err
		}
		for _, sess := range sessions {
			if sess.SessionID == sessionID {
				return sess, nil
			}
		}

		if attempt == c.verifyAttempts {
			break
		}

		delay := time.Duration(attempt) * c.verifyDelay
		log.Warnf("coordinator could not verify session '%s' yet, re-reading in %s (attempt %d/%d)",
			sessionID, delay, attempt, c.verifyAttempts)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}

	log.Errorf("coordinator gave up verifying session '%s' for %s %s",
		sessionID, unit, period.String())
	return nil, ErrStoreInconsistent
}

// RecordScan accepts one item scan into the open window of (unit, period),
// creating the session lazily if needed. The duplicate check and the counter
// increment are both optimistic read-modify-write sequences, see the package
// doc for the residual race.
func (c *Coordinator) RecordScan(ctx context.Context, unit string, period model.Period, itemID, user, userName, metadata string) (*model.ScanRecord, error) {
	sess, err := c.FindOrCreateSession(ctx, unit, period, user, userName)
	if err != nil {
		return nil, err
	}
	if sess.Completed() {
		return nil, ErrSessionCompleted
	}

	scansTable := scansTableFor(unit, period)

	records, err := c.scansFor(ctx, unit, period)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if rec.ItemID == itemID {
			return nil, ErrDuplicateItem
		}
	}

	rec := &model.ScanRecord{
		Date:     time.Now().Round(time.Second).UTC(),
		ItemID:   itemID,
		User:     user,
		Metadata: metadata,
	}

	if err := c.store.AppendRow(ctx, scansTable, scanToRow(rec)); err != nil {
		return nil, err
	}

	if err := c.incrementScanCount(ctx, sess); err != nil {
		// The scan row is already in place; the counter drifts behind until
		// completion recounts the window authoritatively.
		log.Errorf("coordinator failed to bump scan count for %s %s: %s",
			unit, period.String(), err.Error())
	}

	c.notifier.ScanRecorded(unit, period, userName, *rec)

	return rec, nil
}

// incrementScanCount performs the non-atomic read-modify-write on the session
// row's total_scans cell. Concurrent scans can race on the counter; the final
// count written by CompleteSession is authoritative.
func (c *Coordinator) incrementScanCount(ctx context.Context, sess *model.Session) error {
	c.invalidate(sessionsTable)

	rows, err := c.store.GetRows(ctx, sessionsTable)
	if err != nil {
		return err
	}
	if sess.RowIndex < 0 || sess.RowIndex >= len(rows) {
		return storage.ErrNotFound
	}

	current, err := sessionFromRow(sess.RowIndex, rows[sess.RowIndex])
	if err != nil {
		return err
	}
	current.TotalScans++

	if err := c.store.UpdateRow(ctx, sessionsTable, current.RowIndex, sessionToRow(current)); err != nil {
		return err
	}

	sess.TotalScans = current.TotalScans
	return nil
}

// CompleteSession moves the active session of (unit, period) to its terminal
// state in one full-row update and triggers the backup collaborator and the
// room notification pair.
func (c *Coordinator) CompleteSession(ctx context.Context, unit string, period model.Period, user string) (*model.Session, error) {
	c.invalidate(sessionsTable)

	sessions, err := c.sessionsFor(ctx, unit, period)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, ErrNotFound
	}

	sess := activeSession(sessions)
	if sess == nil {
		return nil, ErrAlreadyCompleted
	}

	// The window itself is authoritative for the final count, not the
	// incrementally bumped counter.
	count, err := c.ScanCount(ctx, unit, period)
	if err != nil {
		return nil, err
	}

	completedAt := time.Now().Round(time.Second).UTC()
	sess.Status = model.SessionStatusCompleted
	sess.CompletedAt = &completedAt
	sess.CompletedBy = user
	sess.TotalScans = count

	// One full-row update, not a cell-by-cell patch, so a concurrent reader
	// never observes a half-completed row.
	if err := c.store.UpdateRow(ctx, sessionsTable, sess.RowIndex, sessionToRow(sess)); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"unit":         unit,
		"period":       period.String(),
		"session_id":   sess.SessionID,
		"completed_by": user,
		"total_scans":  count,
	}).Info("coordinator completed counting session")

	go func(sessionID string) {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		if err := c.archiver.ArchiveAndClear(ctx, unit, period, sessionID); err != nil {
			log.Errorf("coordinator backup trigger failed for %s %s, detail rows stay in place: %s",
				unit, period.String(), err.Error())
		}
	}(sess.SessionID)

	c.notifier.SessionCompleted(unit, period, *sess)

	return sess, nil
}

// ValidateAndReconcile detects duplicate active session rows for
// (unit, period), the symptom of concurrent create-verify races, and repairs
// them: a completed row wins outright, otherwise the active row with the
// highest scan count survives and the rest are cleared. It reports whether the
// period was already consistent and the rows that remain.
func (c *Coordinator) ValidateAndReconcile(ctx context.Context, unit string, period model.Period) (bool, []*model.Session, error) {
	sessions, err := c.sessionsFor(ctx, unit, period)
	if err != nil {
		return false, nil, err
	}

	actives := make([]*model.Session, 0, len(sessions))
	var completed *model.Session
	for _, sess := range sessions {
		if sess.Completed() {
			if completed == nil {
				completed = sess
			}
			continue
		}
		actives = append(actives, sess)
	}

	if len(actives) <= 1 {
		return true, sessions, nil
	}

	keeper := completed
	if keeper == nil {
		for _, sess := range actives {
			if keeper == nil || sess.TotalScans > keeper.TotalScans {
				keeper = sess
			}
		}
	}

	kept := make([]*model.Session, 0, len(sessions))
	for _, sess := range sessions {
		if sess == keeper || sess.Completed() {
			kept = append(kept, sess)
			continue
		}

		log.Warnf("coordinator reconciles duplicate session row %d for %s %s (kept '%s')",
			sess.RowIndex, unit, period.String(), keeper.SessionID)
		if err := c.store.ClearRow(ctx, sessionsTable, sess.RowIndex); err != nil {
			return false, nil, err
		}
	}

	c.invalidate(sessionsTable)

	return false, kept, nil
}

// SessionStatus resolves the current session for (unit, period): the active
// one if present, otherwise the most recent completed one.
func (c *Coordinator) SessionStatus(ctx context.Context, unit string, period model.Period) (*model.Session, error) {
	sessions, err := c.sessionsFor(ctx, unit, period)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, ErrNotFound
	}

	if active := activeSession(sessions); active != nil {
		return active, nil
	}
	return sessions[len(sessions)-1], nil
}

// ScanCount returns the authoritative number of scan rows in the open window.
func (c *Coordinator) ScanCount(ctx context.Context, unit string, period model.Period) (int, error) {
	records, err := c.scansFor(ctx, unit, period)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

func (c *Coordinator) sessionsFor(ctx context.Context, unit string, period model.Period) ([]*model.Session, error) {
	rows, err := c.store.GetRows(ctx, sessionsTable)
	if err != nil {
		return nil, err
	}

	sessions := make([]*model.Session, 0)
	for i, row := range rows {
		if row.Empty() {
			continue
		}
		sess, err := sessionFromRow(i, row)
		if err != nil {
			log.Warnf("coordinator skips malformed session row: %s", err.Error())
			continue
		}
		if sess.Unit == unit && sess.Period == period {
			sessions = append(sessions, sess)
		}
	}

	return sessions, nil
}

func (c *Coordinator) scansFor(ctx context.Context, unit string, period model.Period) ([]*model.ScanRecord, error) {
	rows, err := c.store.GetRows(ctx, scansTableFor(unit, period))
	if err != nil {
		return nil, err
	}

	records := make([]*model.ScanRecord, 0, len(rows))
	for i, row := range rows {
		if row.Empty() {
			continue
		}
		rec, err := scanFromRow(i, row)
		if err != nil {
			log.Warnf("coordinator skips malformed scan row: %s", err.Error())
			continue
		}
		records = append(records, rec)
	}

	return records, nil
}

// invalidate drops the read cache entry for table if the store carries one,
// so the next read is guaranteed to hit the store.
func (c *Coordinator) invalidate(table string) {
	if inv, ok := c.store.(storage.Invalidator); ok {
		inv.InvalidateTable(table)
	}
}

func activeSession(sessions []*model.Session) *model.Session {
	for _, sess := range sessions {
		if sess.Status == model.SessionStatusActive {
			return sess
		}
	}
	return nil
}
