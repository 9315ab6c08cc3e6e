package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/khanhnd/jobengine/internal/api/dto"
)

// ListFailedOutbox handles GET /api/v1/outbox/failed. It surfaces rows
// that exhausted their relay attempts.
func (h *AdminHandler) ListFailedOutbox(c *gin.Context) {
	entries, err := h.outbox.ListFailed(c.Request.Context(), 100)
	if err != nil {
		h.logger.Error("Failed to list failed outbox events",
			slog.Any("error", err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to list outbox events",
		})
		return
	}

	out := make([]dto.OutboxEntryDTO, len(entries))
	for i, entry := range entries {
		out[i] = dto.OutboxEntryDTO{
			ID:          entry.ID,
			AggregateID: entry.AggregateID,
			EventType:   entry.EventType,
			Payload:     entry.Payload,
			Status:      entry.Status,
			Attempts:    entry.Attempts,
			LastError:   entry.LastError,
			CreatedAt:   entry.CreatedAt.Format(time.RFC3339),
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"events": out,
	})
}

// RetryOutboxEvent handles POST /api/v1/outbox/:id/retry. It resets a
// FAILED row to PENDING so the relay picks it up on its next cycle.
func (h *AdminHandler) RetryOutboxEvent(c *gin.Context) {
	id := c.Param("id")

	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "id must be a valid UUID",
		})
		return
	}

	if err := h.outbox.ResetFailed(c.Request.Context(), id); err != nil {
		h.logger.Error("Failed to reset outbox event",
			slog.String("outbox_id", id),
			slog.Any("error", err),
		)
		c.JSON(http.StatusConflict, gin.H{
			"error": "outbox event is not in FAILED status",
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"id":     id,
		"status": "PENDING",
	})
}

// InvalidateCacheKey handles DELETE /api/v1/cache/:key. It calls the
// cache-invalidation collaborator, e.g. to drop a derived-configuration
// key after a configuration change.
func (h *AdminHandler) InvalidateCacheKey(c *gin.Context) {
	key := c.Param("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "key is required",
		})
		return
	}

	if err := h.cache.RemoveFromCache(c.Request.Context(), key); err != nil {
		h.logger.Error("Failed to invalidate cache key",
			slog.String("key", key),
			slog.Any("error", err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to invalidate cache key",
		})
		return
	}

	c.Status(http.StatusNoContent)
}
