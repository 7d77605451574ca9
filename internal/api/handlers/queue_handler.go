package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/vibematch/internal/models"
	"github.com/yoockh/vibematch/internal/services"
	"github.com/yoockh/vibematch/internal/utils"
	"github.com/yoockh/vibematch/internal/workers"
)

// BatchRunner is the part of the embedding worker the admin API drives.
type BatchRunner interface {
	RunOnce(ctx context.Context) (int, error)
	State() workers.State
}

type QueueHandler struct {
	queue   services.QueueService
	journal services.JournalService
	worker  BatchRunner
}

// NewQueueHandler accepts a nil worker when processing is disabled.
func NewQueueHandler(queue services.QueueService, journal services.JournalService, worker BatchRunner) *QueueHandler {
	return &QueueHandler{queue: queue, journal: journal, worker: worker}
}

func (h *QueueHandler) Status(c *gin.Context) {
	st, err := h.queue.Status(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	st.WorkerState = "disabled"
	if h.worker != nil {
		st.WorkerState = h.worker.State().String()
	}
	c.JSON(http.StatusOK, st)
}

func (h *QueueHandler) Clear(c *gin.Context) {
	n, err := h.queue.Clear(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": n})
}

func (h *QueueHandler) RetryDead(c *gin.Context) {
	n, err := h.queue.RetryDead(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"revived": n})
}

func (h *QueueHandler) PurgeDead(c *gin.Context) {
	n, err := h.queue.PurgeDead(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"purged": n})
}

func (h *QueueHandler) RunOnce(c *gin.Context) {
	if h.worker == nil {
		writeError(c, utils.E(utils.CodeUnavailable, "QueueHandler.RunOnce", "embedding worker is disabled", nil))
		return
	}
	n, err := h.worker.RunOnce(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"processed": n, "worker_state": h.worker.State().String()})
}

// Journal lists attempts for ?profile_id=, or recent failures without it.
func (h *QueueHandler) Journal(c *gin.Context) {
	const op = "QueueHandler.Journal"

	limit, ok := queryInt(c, op, "limit", 100)
	if !ok {
		return
	}
	profileID, ok := queryInt(c, op, "profile_id", 0)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	var (
		rows []models.ProcessingRecord
		err  error
	)
	if profileID != 0 {
		rows, err = h.journal.ListByProfile(ctx, profileID, int64(limit))
	} else {
		rows, err = h.journal.ListFailures(ctx, int64(limit))
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": rows})
}
