package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/countkeeper/countkeeper/pkg/model"
	"github.com/countkeeper/countkeeper/pkg/storage"
	"github.com/countkeeper/countkeeper/pkg/storage/memory"
)

var testPeriod = model.Period{Month: 10, Year: 2025}

// recordingNotifier captures bridge notifications for assertions.
type recordingNotifier struct {
	sync.Mutex
	scans     []model.ScanRecord
	completed []model.Session
}

func (n *recordingNotifier) ScanRecorded(_ string, _ model.Period, _ string, rec model.ScanRecord) {
	n.Lock()
	defer n.Unlock()
	n.scans = append(n.scans, rec)
}

func (n *recordingNotifier) SessionCompleted(_ string, _ model.Period, sess model.Session) {
	n.Lock()
	defer n.Unlock()
	n.completed = append(n.completed, sess)
}

// blindStore accepts appends but never returns the appended session rows,
// simulating a store whose reads lag behind writes for good.
type blindStore struct {
	*memory.Store
}

func (s *blindStore) AppendRow(ctx context.Context, table string, row storage.Row) error {
	if table == sessionsTable {
		return nil
	}
	return s.Store.AppendRow(ctx, table, row)
}

func newTestCoordinator(store storage.Interface, notifier Notifier) *Coordinator {
	return New(store, Config{
		Notifier:       notifier,
		VerifyAttempts: 2,
		VerifyDelay:    time.Millisecond,
	})
}

func TestFindOrCreateSession(t *testing.T) {
	ctx := context.Background()

	t.Run("creates lazily and verifies", func(t *testing.T) {
		c := newTestCoordinator(memory.NewStore(), nil)

		sess, err := c.FindOrCreateSession(ctx, "warehouse-a", testPeriod, "u1", "Ana")
		require.NoError(t, err)
		assert.Equal(t, model.SessionStatusActive, sess.Status)
		assert.Equal(t, 0, sess.TotalScans)
		assert.NotEmpty(t, sess.SessionID)
	})

	t.Run("returns the existing active session", func(t *testing.T) {
		c := newTestCoordinator(memory.NewStore(), nil)

		first, err := c.FindOrCreateSession(ctx, "warehouse-a", testPeriod, "u1", "Ana")
		require.NoError(t, err)
		second, err := c.FindOrCreateSession(ctx, "warehouse-a", testPeriod, "u2", "Ben")
		require.NoError(t, err)
		assert.Equal(t, first.SessionID, second.SessionID)
	})

	t.Run("fails with StoreInconsistent when the row never shows up", func(t *testing.T) {
		c := newTestCoordinator(&blindStore{Store: memory.NewStore()}, nil)

		_, err := c.FindOrCreateSession(ctx, "warehouse-a", testPeriod, "u1", "Ana")
		assert.Equal(t, ErrStoreInconsistent, err)
	})

	t.Run("enforces the lifetime cap", func(t *testing.T) {
		c := newTestCoordinator(memory.NewStore(), nil)

		for i := 0; i < lifetimeSessionCap; i++ {
			_, err := c.FindOrCreateSession(ctx, "warehouse-a", testPeriod, "u1", "Ana")
			require.NoError(t, err)
			_, err = c.CompleteSession(ctx, "warehouse-a", testPeriod, "u1")
			require.NoError(t, err)
		}

		_, err := c.FindOrCreateSession(ctx, "warehouse-a", testPeriod, "u1", "Ana")
		assert.Equal(t, ErrLimitExceeded, err)
	})
}

func TestRecordScan(t *testing.T) {
	ctx := context.Background()

	t.Run("accepts a scan and bumps the counter", func(t *testing.T) {
		notifier := &recordingNotifier{}
		c := newTestCoordinator(memory.NewStore(), notifier)

		rec, err := c.RecordScan(ctx, "warehouse-a", testPeriod, "X1", "u1", "Ana", "")
		require.NoError(t, err)
		assert.Equal(t, "X1", rec.ItemID)

		sess, err := c.SessionStatus(ctx, "warehouse-a", testPeriod)
		require.NoError(t, err)
		assert.Equal(t, 1, sess.TotalScans)
		assert.Len(t, notifier.scans, 1)
	})

	t.Run("rejects a duplicate identifier in the open window", func(t *testing.T) {
		c := newTestCoordinator(memory.NewStore(), nil)

		_, err := c.RecordScan(ctx, "warehouse-a", testPeriod, "X1", "u1", "Ana", "")
		require.NoError(t, err)

		_, err = c.RecordScan(ctx, "warehouse-a", testPeriod, "X1", "u2", "Ben", "")
		assert.Equal(t, ErrDuplicateItem, err)

		count, err := c.ScanCount(ctx, "warehouse-a", testPeriod)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("allows the same identifier again in the next session", func(t *testing.T) {
		c := newTestCoordinator(memory.NewStore(), nil)

		_, err := c.RecordScan(ctx, "warehouse-a", testPeriod, "X1", "u1", "Ana", "")
		require.NoError(t, err)

		sess, err := c.CompleteSession(ctx, "warehouse-a", testPeriod, "u1")
		require.NoError(t, err)

		// The backup collaborator purges the window; simulate that here.
		require.NoError(t, c.store.ClearTable(ctx, scansTableFor("warehouse-a", testPeriod)))

		rec, err := c.RecordScan(ctx, "warehouse-a", testPeriod, "X1", "u1", "Ana", "")
		require.NoError(t, err)
		assert.Equal(t, "X1", rec.ItemID)

		next, err := c.SessionStatus(ctx, "warehouse-a", testPeriod)
		require.NoError(t, err)
		assert.NotEqual(t, sess.SessionID, next.SessionID)
	})
}

func TestCompleteSession(t *testing.T) {
	ctx := context.Background()

	t.Run("writes the authoritative count and terminal state", func(t *testing.T) {
		notifier := &recordingNotifier{}
		c := newTestCoordinator(memory.NewStore(), notifier)

		for _, item := range []string{"X1", "X2", "X3"} {
			_, err := c.RecordScan(ctx, "warehouse-a", testPeriod, item, "u1", "Ana", "")
			require.NoError(t, err)
		}

		sess, err := c.CompleteSession(ctx, "warehouse-a", testPeriod, "u2")
		require.NoError(t, err)
		assert.Equal(t, model.SessionStatusCompleted, sess.Status)
		assert.Equal(t, 3, sess.TotalScans)
		assert.Equal(t, "u2", sess.CompletedBy)
		require.NotNil(t, sess.CompletedAt)

		require.Len(t, notifier.completed, 1)
		assert.Equal(t, 3, notifier.completed[0].TotalScans)
	})

	t.Run("is rejected on an already completed session", func(t *testing.T) {
		c := newTestCoordinator(memory.NewStore(), nil)

		_, err := c.RecordScan(ctx, "warehouse-a", testPeriod, "X1", "u1", "Ana", "")
		require.NoError(t, err)
		_, err = c.CompleteSession(ctx, "warehouse-a", testPeriod, "u1")
		require.NoError(t, err)

		before, err := c.SessionStatus(ctx, "warehouse-a", testPeriod)
		require.NoError(t, err)

		_, err = c.CompleteSession(ctx, "warehouse-a", testPeriod, "u2")
		assert.Equal(t, ErrAlreadyCompleted, err)

		// No mutation happened on the second call.
		after, err := c.SessionStatus(ctx, "warehouse-a", testPeriod)
		require.NoError(t, err)
		assert.Equal(t, before.CompletedBy, after.CompletedBy)
		assert.Equal(t, before.TotalScans, after.TotalScans)
	})

	t.Run("fails with NotFound without any session row", func(t *testing.T) {
		c := newTestCoordinator(memory.NewStore(), nil)

		_, err := c.CompleteSession(ctx, "warehouse-a", testPeriod, "u1")
		assert.Equal(t, ErrNotFound, err)
	})

	t.Run("scans into a completed period are rejected at the cap", func(t *testing.T) {
		c := newTestCoordinator(memory.NewStore(), nil)

		for i := 0; i < lifetimeSessionCap; i++ {
			_, err := c.FindOrCreateSession(ctx, "warehouse-a", testPeriod, "u1", "Ana")
			require.NoError(t, err)
			_, err = c.CompleteSession(ctx, "warehouse-a", testPeriod, "u1")
			require.NoError(t, err)
		}

		_, err := c.RecordScan(ctx, "warehouse-a", testPeriod, "X1", "u1", "Ana", "")
		assert.Equal(t, ErrLimitExceeded, err)
	})
}

func TestValidateAndReconcile(t *testing.T) {
	ctx := context.Background()

	appendSession := func(t *testing.T, store storage.Interface, sess *model.Session) {
		t.Helper()
		require.NoError(t, store.AppendRow(ctx, sessionsTable, sessionToRow(sess)))
	}

	t.Run("single active row is already consistent", func(t *testing.T) {
		store := memory.NewStore()
		c := newTestCoordinator(store, nil)
		appendSession(t, store, &model.Session{
			Unit: "warehouse-a", Period: testPeriod,
			Status: model.SessionStatusActive, CreatedAt: time.Now().UTC(), SessionID: "s1",
		})

		valid, kept, err := c.ValidateAndReconcile(ctx, "warehouse-a", testPeriod)
		require.NoError(t, err)
		assert.True(t, valid)
		assert.Len(t, kept, 1)
	})

	t.Run("highest scan count wins among duplicate actives", func(t *testing.T) {
		store := memory.NewStore()
		c := newTestCoordinator(store, nil)
		appendSession(t, store, &model.Session{
			Unit: "warehouse-a", Period: testPeriod,
			Status: model.SessionStatusActive, CreatedAt: time.Now().UTC(),
			SessionID: "loser", TotalScans: 2,
		})
		appendSession(t, store, &model.Session{
			Unit: "warehouse-a", Period: testPeriod,
			Status: model.SessionStatusActive, CreatedAt: time.Now().UTC(),
			SessionID: "winner", TotalScans: 5,
		})

		valid, kept, err := c.ValidateAndReconcile(ctx, "warehouse-a", testPeriod)
		require.NoError(t, err)
		assert.False(t, valid)
		require.Len(t, kept, 1)
		assert.Equal(t, "winner", kept[0].SessionID)

		sessions, err := c.sessionsFor(ctx, "warehouse-a", testPeriod)
		require.NoError(t, err)
		require.Len(t, sessions, 1)
		assert.Equal(t, "winner", sessions[0].SessionID)
	})

	t.Run("a completed row is authoritative", func(t *testing.T) {
		store := memory.NewStore()
		c := newTestCoordinator(store, nil)
		completedAt := time.Now().UTC()
		appendSession(t, store, &model.Session{
			Unit: "warehouse-a", Period: testPeriod,
			Status: model.SessionStatusActive, CreatedAt: time.Now().UTC(),
			SessionID: "racer-1", TotalScans: 9,
		})
		appendSession(t, store, &model.Session{
			Unit: "warehouse-a", Period: testPeriod,
			Status: model.SessionStatusCompleted, CreatedAt: time.Now().UTC(),
			SessionID: "done", TotalScans: 4, CompletedAt: &completedAt, CompletedBy: "u1",
		})
		appendSession(t, store, &model.Session{
			Unit: "warehouse-a", Period: testPeriod,
			Status: model.SessionStatusActive, CreatedAt: time.Now().UTC(),
			SessionID: "racer-2", TotalScans: 1,
		})

		valid, kept, err := c.ValidateAndReconcile(ctx, "warehouse-a", testPeriod)
		require.NoError(t, err)
		assert.False(t, valid)
		require.Len(t, kept, 1)
		assert.Equal(t, "done", kept[0].SessionID)
	})
}

func TestConcurrentScansOnFreshPeriod(t *testing.T) {
	ctx := context.Background()
	c := newTestCoordinator(memory.NewStore(), nil)

	var wg sync.WaitGroup
	items := []string{"X1", "X2"}
	for _, item := range items {
		wg.Add(1)
		go func(item string) {
			defer wg.Done()
			_, err := c.RecordScan(ctx, "warehouse-a", testPeriod, item, "u1", "Ana", "")
			assert.NoError(t, err)
		}(item)
	}
	wg.Wait()

	_, _, err := c.ValidateAndReconcile(ctx, "warehouse-a", testPeriod)
	require.NoError(t, err)

	// Exactly one active session row survives reconciliation.
	sessions, err := c.sessionsFor(ctx, "warehouse-a", testPeriod)
	require.NoError(t, err)
	actives := 0
	for _, sess := range sessions {
		if sess.Status == model.SessionStatusActive {
			actives++
		}
	}
	assert.Equal(t, 1, actives)
	assert.LessOrEqual(t, len(sessions), lifetimeSessionCap)

	count, err := c.ScanCount(ctx, "warehouse-a", testPeriod)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Completion writes the authoritative count regardless of increment races.
	sess, err := c.CompleteSession(ctx, "warehouse-a", testPeriod, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, sess.TotalScans)
}

func TestSessionRowCodecRoundTrip(t *testing.T) {
	completedAt := time.Date(2025, 10, 31, 17, 0, 0, 0, time.UTC)
	in := &model.Session{
		Unit:        "warehouse-a",
		Period:      testPeriod,
		Status:      model.SessionStatusCompleted,
		CreatedAt:   time.Date(2025, 10, 1, 8, 0, 0, 0, time.UTC),
		CreatedBy:   "u1",
		TotalScans:  7,
		SessionID:   "abc",
		CompletedAt: &completedAt,
		CompletedBy: "u2",
		RowIndex:    3,
	}

	out, err := sessionFromRow(3, sessionToRow(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
