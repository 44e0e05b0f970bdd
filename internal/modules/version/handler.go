package version

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/shareloom/core/internal/middleware"
	"github.com/shareloom/core/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/contents/:id/versions")

	g.GET("", h.list)
	g.DELETE("/:number", authMW, h.delete)
}

func (h *Handler) list(c *gin.Context) {
	var versionNumber *int
	if raw := c.Query("version"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.BadRequest(c, "version must be a positive integer")
			return
		}
		versionNumber = &n
	}

	versions, err := h.svc.ListByContent(c.Request.Context(), c.Param("id"), versionNumber)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, versions)
}

func (h *Handler) delete(c *gin.Context) {
	n, err := strconv.Atoi(c.Param("number"))
	if err != nil || n < 1 {
		response.BadRequest(c, "version must be a positive integer")
		return
	}

	err = h.svc.Delete(c.Request.Context(), c.Param("id"), n,
		middleware.CurrentUserID(c), middleware.IsAdmin(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
