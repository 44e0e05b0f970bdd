package jobs

import (
	"github.com/gin-gonic/gin"

	"github.com/shareloom/core/internal/pkg/response"
	"github.com/shareloom/core/internal/pkg/taskqueue"
)

type HTTPHandler struct {
	queue *taskqueue.Queue
}

func NewHTTPHandler(queue *taskqueue.Queue) *HTTPHandler {
	return &HTTPHandler{queue: queue}
}

func (h *HTTPHandler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/jobs")

	g.GET("/stats", h.stats)
	g.GET("/:id", h.status)
}

func (h *HTTPHandler) status(c *gin.Context) {
	job, found, err := h.queue.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if !found {
		response.OK(c, gin.H{"found": false})
		return
	}
	response.OK(c, gin.H{
		"found":          true,
		"id":             job.ID,
		"type":           job.Type,
		"state":          job.State,
		"attempts_made":  job.AttemptsMade,
		"max_attempts":   job.MaxAttempts,
		"failure_reason": job.FailureReason,
		"result":         job.Result,
		"created_at":     job.CreatedAt,
		"updated_at":     job.UpdatedAt,
	})
}

func (h *HTTPHandler) stats(c *gin.Context) {
	stats, err := h.queue.QueueStats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, stats)
}
