package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khanhnd/jobengine/internal/api/storage"
	"github.com/khanhnd/jobengine/internal/ledger"
)

type fakeJobStore struct {
	statuses map[string]string

	reopenCalls int
	abortCalls  int
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{statuses: make(map[string]string)}
}

func (f *fakeJobStore) GetLedgerEntry(_ context.Context, jobID string) (*ledger.Entry, error) {
	status, ok := f.statuses[jobID]
	if !ok {
		return nil, ledger.ErrEntryNotFound
	}
	return &ledger.Entry{JobID: jobID, Status: status}, nil
}

func (f *fakeJobStore) ListLedgerEntries(_ context.Context, _ storage.LedgerFilter) ([]ledger.Entry, error) {
	return nil, nil
}

func (f *fakeJobStore) ReopenFailedJob(_ context.Context, jobID string) error {
	f.reopenCalls++
	if f.statuses[jobID] != ledger.StatusFailed {
		return storage.ErrNotRequeueable
	}
	f.statuses[jobID] = ledger.StatusRetryScheduled
	return nil
}

func (f *fakeJobStore) AbortRequeue(_ context.Context, jobID string) error {
	f.abortCalls++
	if f.statuses[jobID] == ledger.StatusRetryScheduled {
		f.statuses[jobID] = ledger.StatusFailed
	}
	return nil
}

type fakeJobPublisher struct {
	published [][]byte
	err       error
}

func (f *fakeJobPublisher) PublishJob(_ context.Context, body []byte) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, body)
	return nil
}

func newTestJobHandler(store JobStore, publisher JobPublisher) *JobHandler {
	return &JobHandler{
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		storage:   store,
		publisher: publisher,
	}
}

func performRequeue(handler *JobHandler, jobID, body string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/v1/jobs/:job_id/requeue", handler.RequeueJob)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs/"+jobID+"/requeue", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

const testRequeueJobID = "7b1e9c2a-5f3d-4e8b-9a6c-1d2e3f4a5b6c"

func TestJobHandler_RequeueJob(t *testing.T) {
	requeueBody := `{"type":"email.send","payload":{"to":"user@example.com"}}`

	t.Run("requeues a failed job", func(t *testing.T) {
		store := newFakeJobStore()
		store.statuses[testRequeueJobID] = ledger.StatusFailed
		publisher := &fakeJobPublisher{}
		handler := newTestJobHandler(store, publisher)

		w := performRequeue(handler, testRequeueJobID, requeueBody)

		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Equal(t, ledger.StatusRetryScheduled, store.statuses[testRequeueJobID])
		require.Len(t, publisher.published, 1)
		assert.Contains(t, string(publisher.published[0]), testRequeueJobID)
	})

	t.Run("rejects a job that is not failed", func(t *testing.T) {
		store := newFakeJobStore()
		store.statuses[testRequeueJobID] = ledger.StatusCompleted
		publisher := &fakeJobPublisher{}
		handler := newTestJobHandler(store, publisher)

		w := performRequeue(handler, testRequeueJobID, requeueBody)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Empty(t, publisher.published)
		assert.Equal(t, ledger.StatusCompleted, store.statuses[testRequeueJobID])
	})

	t.Run("publish failure compensates the reopened row", func(t *testing.T) {
		store := newFakeJobStore()
		store.statuses[testRequeueJobID] = ledger.StatusFailed
		publisher := &fakeJobPublisher{err: errors.New("broker unavailable")}
		handler := newTestJobHandler(store, publisher)

		w := performRequeue(handler, testRequeueJobID, requeueBody)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, 1, store.abortCalls)

		// The row is back to FAILED, not stranded RETRY_SCHEDULED with no
		// message in flight; a later requeue can still succeed
		assert.Equal(t, ledger.StatusFailed, store.statuses[testRequeueJobID])

		publisher.err = nil
		w = performRequeue(handler, testRequeueJobID, requeueBody)
		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Equal(t, ledger.StatusRetryScheduled, store.statuses[testRequeueJobID])
	})

	t.Run("rejects a non-uuid job id", func(t *testing.T) {
		store := newFakeJobStore()
		publisher := &fakeJobPublisher{}
		handler := newTestJobHandler(store, publisher)

		w := performRequeue(handler, "not-a-uuid", requeueBody)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Zero(t, store.reopenCalls)
	})

	t.Run("rejects a body without type or payload", func(t *testing.T) {
		store := newFakeJobStore()
		store.statuses[testRequeueJobID] = ledger.StatusFailed
		publisher := &fakeJobPublisher{}
		handler := newTestJobHandler(store, publisher)

		w := performRequeue(handler, testRequeueJobID, `{}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Zero(t, store.reopenCalls)
	})
}

func TestJobHandler_GetJob(t *testing.T) {
	gin.SetMode(gin.TestMode)

	store := newFakeJobStore()
	store.statuses[testRequeueJobID] = ledger.StatusCompleted
	handler := newTestJobHandler(store, &fakeJobPublisher{})

	r := gin.New()
	r.GET("/api/v1/jobs/:job_id", handler.GetJob)

	t.Run("returns an existing entry", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+testRequeueJobID, nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), ledger.StatusCompleted)
	})

	t.Run("unknown job is 404", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/0d1f7a3e-9a4d-4f8e-8c7b-2e6f5a1b3c4d", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
