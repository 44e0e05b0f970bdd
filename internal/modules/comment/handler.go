package comment

import (
	"github.com/gin-gonic/gin"

	"github.com/shareloom/core/internal/middleware"
	"github.com/shareloom/core/internal/modules/identity"
	"github.com/shareloom/core/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/contents/:id/comments")

	g.GET("", h.list)
	g.POST("", h.create)
	g.DELETE("/:commentId", authMW, h.delete)
}

func (h *Handler) list(c *gin.Context) {
	comments, err := h.svc.ListThreaded(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, comments)
}

func (h *Handler) create(c *gin.Context) {
	var dto CreateDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	comment, err := h.svc.Create(c.Request.Context(), c.Param("id"), identity.Resolve(c), dto)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, comment)
}

func (h *Handler) delete(c *gin.Context) {
	err := h.svc.Delete(c.Request.Context(), c.Param("id"), c.Param("commentId"),
		middleware.CurrentUserID(c), middleware.IsAdmin(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
