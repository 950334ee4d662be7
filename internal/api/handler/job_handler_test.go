package handler_test

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platefull/jobqueue/internal/api/dto"
	"github.com/platefull/jobqueue/internal/api/handler"
	"github.com/platefull/jobqueue/internal/api/router"
	"github.com/platefull/jobqueue/internal/archive"
	"github.com/platefull/jobqueue/internal/queue"
	"github.com/platefull/jobqueue/internal/queue/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// setupTestRouter builds the full route tree backed by an unstarted manager,
// so submitted jobs stay PENDING and responses are deterministic.
func setupTestRouter(t *testing.T) (*gin.Engine, *queue.Manager) {
	t.Helper()

	m := queue.NewManager(queue.Config{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	engine := router.SetupRouter(&handler.Dependencies{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Manager: m,
	})
	return engine, m
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestEnqueueJob(t *testing.T) {
	engine, _ := setupTestRouter(t)

	t.Run("accepts a valid job", func(t *testing.T) {
		w := doJSON(t, engine, http.MethodPost, "/api/v1/jobs", gin.H{
			"job_type": "email",
			"priority": "high",
			"owner_id": "user-1",
			"payload":  gin.H{"template": "welcome", "to": "a@example.com"},
		})

		require.Equal(t, http.StatusAccepted, w.Code)

		var resp dto.EnqueueJobResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.JobID)
		assert.Equal(t, domain.JobStatusPending, resp.Status)
	})

	t.Run("rejects missing owner_id", func(t *testing.T) {
		w := doJSON(t, engine, http.MethodPost, "/api/v1/jobs", gin.H{
			"job_type": "email",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects unknown job type", func(t *testing.T) {
		w := doJSON(t, engine, http.MethodPost, "/api/v1/jobs", gin.H{
			"job_type": "pdf_render",
			"owner_id": "user-1",
		})
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "unknown job type")
	})

	t.Run("rejects invalid priority", func(t *testing.T) {
		w := doJSON(t, engine, http.MethodPost, "/api/v1/jobs", gin.H{
			"job_type": "email",
			"owner_id": "user-1",
			"priority": "urgent",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects after shutdown", func(t *testing.T) {
		engine, m := setupTestRouter(t)
		m.Stop()

		w := doJSON(t, engine, http.MethodPost, "/api/v1/jobs", gin.H{
			"job_type": "email",
			"owner_id": "user-1",
		})
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestGetJob(t *testing.T) {
	engine, m := setupTestRouter(t)

	id, err := m.Enqueue(domain.JobTypeCleanup, domain.PriorityLow, "user-7", nil, 5)
	require.NoError(t, err)

	t.Run("returns the job snapshot", func(t *testing.T) {
		w := doJSON(t, engine, http.MethodGet, "/api/v1/jobs/"+id, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var status queue.JobStatus
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
		assert.Equal(t, id, status.JobID)
		assert.Equal(t, domain.JobTypeCleanup, status.Type)
		assert.Equal(t, "user-7", status.OwnerID)
		assert.Equal(t, domain.JobStatusPending, status.Status)
		assert.Equal(t, 5, status.MaxAttempts)
	})

	t.Run("unknown id is 404", func(t *testing.T) {
		w := doJSON(t, engine, http.MethodGet, "/api/v1/jobs/does-not-exist", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestGetQueueStats(t *testing.T) {
	engine, m := setupTestRouter(t)

	_, err := m.Enqueue(domain.JobTypeCleanup, domain.PriorityHigh, "user-1", nil, 0)
	require.NoError(t, err)

	w := doJSON(t, engine, http.MethodGet, "/api/v1/stats/queues", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats map[string]queue.TypeStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))

	// Every known type is reported, including idle ones.
	for _, jt := range domain.KnownJobTypes() {
		assert.Contains(t, stats, string(jt))
	}
	assert.Equal(t, 1, stats["cleanup"].Pending)
}

func TestGetBatchStats(t *testing.T) {
	engine, _ := setupTestRouter(t)

	w := doJSON(t, engine, http.MethodGet, "/api/v1/stats/batches", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats queue.BatchStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 0, stats.Total)
}

func TestListEvents_NoArchive(t *testing.T) {
	engine, _ := setupTestRouter(t)

	w := doJSON(t, engine, http.MethodGet, "/api/v1/events", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealthEndpoint(t *testing.T) {
	engine, _ := setupTestRouter(t)

	w := doJSON(t, engine, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestEventCursorRoundTrip(t *testing.T) {
	orig := &archive.EventCursor{
		CreatedAt: time.Unix(0, 1756600000123456789),
		EventID:   "evt-42",
	}

	encoded := handler.EncodeEventCursor(orig)
	require.NotEmpty(t, encoded)

	decoded, err := handler.DecodeEventCursor(encoded)
	require.NoError(t, err)
	require.NotNil(t, decoded)
	assert.True(t, orig.CreatedAt.Equal(decoded.CreatedAt))
	assert.Equal(t, orig.EventID, decoded.EventID)
}

func TestDecodeEventCursor_Invalid(t *testing.T) {
	t.Run("empty means first page", func(t *testing.T) {
		cursor, err := handler.DecodeEventCursor("")
		require.NoError(t, err)
		assert.Nil(t, cursor)
	})

	t.Run("not base64", func(t *testing.T) {
		_, err := handler.DecodeEventCursor("%%%")
		assert.Error(t, err)
	})

	t.Run("wrong field count", func(t *testing.T) {
		_, err := handler.DecodeEventCursor(base64.StdEncoding.EncodeToString([]byte("justonefield")))
		assert.Error(t, err)
	})

	t.Run("non-numeric timestamp", func(t *testing.T) {
		_, err := handler.DecodeEventCursor(base64.StdEncoding.EncodeToString([]byte("abc|evt-1")))
		assert.Error(t, err)
	})
}
