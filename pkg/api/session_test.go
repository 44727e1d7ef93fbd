package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/countkeeper/countkeeper/pkg/api/resource"
	"github.com/countkeeper/countkeeper/pkg/coordinator"
	"github.com/countkeeper/countkeeper/pkg/storage/memory"
)

func newTestServer() *echo.Echo {
	coord := coordinator.New(memory.NewStore(), coordinator.Config{
		VerifyAttempts: 2,
		VerifyDelay:    time.Millisecond,
	})

	e := echo.New()
	NewHandler(coord).RegisterRoutes(e)
	return e
}

func doJSON(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

const scanBody = `{"unit":"warehouse-a","month":10,"year":2025,"itemId":"X1","user":"u1","userName":"Ana"}`

func TestSaveScan(t *testing.T) {
	t.Run("accepts a scan", func(t *testing.T) {
		e := newTestServer()

		rec := doJSON(e, http.MethodPost, "/api/v1/scans", scanBody)
		require.Equal(t, http.StatusCreated, rec.Code)

		var out resource.ScanResource
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		assert.Equal(t, "X1", out.ItemID)
		assert.Equal(t, "u1", out.User)
	})

	t.Run("rejects a duplicate with 409", func(t *testing.T) {
		e := newTestServer()

		rec := doJSON(e, http.MethodPost, "/api/v1/scans", scanBody)
		require.Equal(t, http.StatusCreated, rec.Code)

		rec = doJSON(e, http.MethodPost, "/api/v1/scans", scanBody)
		require.Equal(t, http.StatusConflict, rec.Code)

		var out struct {
			Reason string `json:"reason"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		assert.Equal(t, "duplicate_item", out.Reason)
	})

	t.Run("rejects an invalid period with 400", func(t *testing.T) {
		e := newTestServer()

		rec := doJSON(e, http.MethodPost, "/api/v1/scans",
			`{"unit":"warehouse-a","month":13,"year":2025,"itemId":"X1","user":"u1"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestFinishSession(t *testing.T) {
	const finishBody = `{"unit":"warehouse-a","month":10,"year":2025,"user":"u2"}`

	t.Run("completes the active session", func(t *testing.T) {
		e := newTestServer()

		rec := doJSON(e, http.MethodPost, "/api/v1/scans", scanBody)
		require.Equal(t, http.StatusCreated, rec.Code)

		rec = doJSON(e, http.MethodPost, "/api/v1/sessions/complete", finishBody)
		require.Equal(t, http.StatusOK, rec.Code)

		var out resource.SessionResource
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		assert.Equal(t, "COMPLETED", out.Status)
		assert.Equal(t, 1, out.TotalScans)
		assert.Equal(t, "u2", out.CompletedBy)
		assert.NotNil(t, out.CompletedAt)
	})

	t.Run("is 409 when already completed", func(t *testing.T) {
		e := newTestServer()

		doJSON(e, http.MethodPost, "/api/v1/scans", scanBody)
		doJSON(e, http.MethodPost, "/api/v1/sessions/complete", finishBody)

		rec := doJSON(e, http.MethodPost, "/api/v1/sessions/complete", finishBody)
		require.Equal(t, http.StatusConflict, rec.Code)

		var out struct {
			Reason string `json:"reason"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		assert.Equal(t, "already_completed", out.Reason)
	})

	t.Run("is 404 without any session", func(t *testing.T) {
		e := newTestServer()

		rec := doJSON(e, http.MethodPost, "/api/v1/sessions/complete", finishBody)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestSessionStatus(t *testing.T) {
	t.Run("reports the active session", func(t *testing.T) {
		e := newTestServer()

		doJSON(e, http.MethodPost, "/api/v1/scans", scanBody)

		rec := doJSON(e, http.MethodGet, "/api/v1/sessions/status?unit=warehouse-a&month=10&year=2025", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var out resource.SessionStatusResource
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		assert.True(t, out.Active)
		require.NotNil(t, out.Session)
		assert.Equal(t, 1, out.Session.TotalScans)
	})

	t.Run("is 404 for an unknown period", func(t *testing.T) {
		e := newTestServer()

		rec := doJSON(e, http.MethodGet, "/api/v1/sessions/status?unit=warehouse-a&month=10&year=2025", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("is 400 without query parameters", func(t *testing.T) {
		e := newTestServer()

		rec := doJSON(e, http.MethodGet, "/api/v1/sessions/status", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestScanCount(t *testing.T) {
	e := newTestServer()

	doJSON(e, http.MethodPost, "/api/v1/scans", scanBody)
	doJSON(e, http.MethodPost, "/api/v1/scans",
		`{"unit":"warehouse-a","month":10,"year":2025,"itemId":"X2","user":"u1"}`)

	rec := doJSON(e, http.MethodGet, "/api/v1/sessions/count?unit=warehouse-a&month=10&year=2025", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var out resource.ScanCountResource
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "warehouse-a", out.Unit)
	assert.Equal(t, 2, out.TotalScans)
}
