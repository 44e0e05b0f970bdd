package interaction

import (
	"github.com/gin-gonic/gin"

	"github.com/shareloom/core/internal/modules/identity"
	"github.com/shareloom/core/internal/pkg/apperr"
	"github.com/shareloom/core/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/contents/:id")

	g.POST("/like", h.like)
	g.POST("/view", h.view)
	g.GET("/stats", h.stats)
}

func (h *Handler) like(c *gin.Context) {
	ident := identity.Resolve(c)

	result, err := h.svc.RecordLike(c.Request.Context(), c.Param("id"), ident)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !result.Accepted {
		response.Error(c, apperr.RateLimited(result.RetryAfter))
		return
	}
	response.OK(c, result)
}

func (h *Handler) view(c *gin.Context) {
	ident := identity.Resolve(c)

	result, err := h.svc.RecordView(c.Request.Context(), c.Param("id"), ident)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

func (h *Handler) stats(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	likes, err := h.svc.CountLikes(ctx, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	views, err := h.svc.CountViews(ctx, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	unique, err := h.svc.CountUniqueViewers(ctx, id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{
		"likes":          likes,
		"views":          views,
		"unique_viewers": unique,
	})
}
