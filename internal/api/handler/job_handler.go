package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/khanhnd/jobengine/internal/api/dto"
	"github.com/khanhnd/jobengine/internal/api/storage"
	"github.com/khanhnd/jobengine/internal/engine/domain"
	"github.com/khanhnd/jobengine/internal/ledger"
)

// GetJob handles GET /api/v1/jobs/:job_id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")

	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	entry, err := h.storage.GetLedgerEntry(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, ledger.ErrEntryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "job not found",
			})
			return
		}
		h.logger.Error("Failed to get ledger entry",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to get job",
		})
		return
	}

	c.JSON(http.StatusOK, toLedgerDTO(entry))
}

// ListJobs handles GET /api/v1/jobs with optional status filter and keyset
// pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeLedgerCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid cursor",
		})
		return
	}

	entries, err := h.storage.ListLedgerEntries(c.Request.Context(), storage.LedgerFilter{
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list ledger entries",
			slog.Any("error", err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to list jobs",
		})
		return
	}

	hasMore := len(entries) > req.PageSize
	if hasMore {
		entries = entries[:req.PageSize]
	}

	jobs := make([]dto.LedgerEntryDTO, len(entries))
	for i := range entries {
		jobs[i] = toLedgerDTO(&entries[i])
	}

	var nextCursor string
	if hasMore {
		last := entries[len(entries)-1]
		nextCursor = EncodeLedgerCursor(&storage.LedgerCursor{
			ClaimedAt: last.ClaimedAt,
			JobID:     last.JobID,
		})
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       jobs,
		NextCursor: nextCursor,
	})
}

// RequeueJob handles POST /api/v1/jobs/:job_id/requeue. It reopens a
// terminally FAILED ledger row and republishes the job to the primary
// queue as a fresh submission; a publish failure compensates the reopen so
// the row never sits RETRY_SCHEDULED with no message in flight. The route
// composes an authorization check before reaching this handler.
func (h *JobHandler) RequeueJob(c *gin.Context) {
	jobID := c.Param("job_id")

	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	var req dto.RequeueJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid request body",
		})
		return
	}

	msg := domain.JobMessage{
		JobID:      jobID,
		Type:       req.Type,
		Payload:    req.Payload,
		Attempt:    1,
		EnqueuedAt: time.Now().UTC(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to marshal requeue message",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to requeue job",
		})
		return
	}

	if err := h.storage.ReopenFailedJob(c.Request.Context(), jobID); err != nil {
		if errors.Is(err, storage.ErrNotRequeueable) {
			c.JSON(http.StatusConflict, gin.H{
				"error": "job is not in FAILED status",
			})
			return
		}
		h.logger.Error("Failed to reopen job",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to requeue job",
		})
		return
	}

	if err := h.publisher.PublishJob(c.Request.Context(), body); err != nil {
		h.logger.Error("Failed to publish requeued job",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
		if abortErr := h.storage.AbortRequeue(c.Request.Context(), jobID); abortErr != nil {
			h.logger.Error("Failed to abort requeue after publish failure",
				slog.String("job_id", jobID),
				slog.Any("error", abortErr),
			)
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to publish job",
		})
		return
	}

	h.logger.Info("Job requeued",
		slog.String("job_id", jobID),
		slog.String("job_type", req.Type),
	)

	c.JSON(http.StatusAccepted, gin.H{
		"job_id": jobID,
		"status": ledger.StatusRetryScheduled,
	})
}

func toLedgerDTO(entry *ledger.Entry) dto.LedgerEntryDTO {
	out := dto.LedgerEntryDTO{
		JobID:     entry.JobID,
		Status:    entry.Status,
		LastError: entry.LastError,
		ClaimedAt: entry.ClaimedAt.Format(time.RFC3339),
		UpdatedAt: entry.UpdatedAt.Format(time.RFC3339),
	}
	if entry.CompletedAt != nil {
		out.CompletedAt = entry.CompletedAt.Format(time.RFC3339)
	}
	return out
}
