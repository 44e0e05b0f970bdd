package content

import (
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/shareloom/core/internal/middleware"
	"github.com/shareloom/core/internal/pkg/apperr"
	"github.com/shareloom/core/internal/pkg/pagination"
	"github.com/shareloom/core/internal/pkg/response"
)

const maxUploadBytes = 64 << 20

type Handler struct {
	svc        *Service
	uploadsDir string
}

func NewHandler(svc *Service, uploadsDir string) *Handler {
	return &Handler{svc: svc, uploadsDir: uploadsDir}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/contents")

	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.GET("/:id/render", h.render)

	g.POST("", authMW, h.create)
	g.PATCH("/:id", authMW, h.update)
	g.DELETE("/:id", authMW, h.delete)
	g.POST("/:id/files", authMW, h.attachFile)

	rg.GET("/stats", h.stats)
}

func (h *Handler) list(c *gin.Context) {
	page, err := h.svc.List(c.Request.Context(), pagination.FromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paged(c, page.Items, page.Pagination)
}

func (h *Handler) get(c *gin.Context) {
	record, err := h.svc.Get(c.Request.Context(), c.Param("id"),
		middleware.CurrentUserID(c), middleware.IsAdmin(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, record)
}

func (h *Handler) render(c *gin.Context) {
	html, err := h.svc.Render(c.Request.Context(), c.Param("id"),
		middleware.CurrentUserID(c), middleware.IsAdmin(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"html": html})
}

func (h *Handler) stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, stats)
}

// create accepts either a JSON body or a multipart form with an optional
// staged file part named "file".
func (h *Handler) create(c *gin.Context) {
	var dto CreateDTO

	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		dto.Title = c.PostForm("title")
		dto.Text = c.PostForm("text")
		dto.Visibility = c.PostForm("visibility")
		if tags := c.PostForm("tags"); tags != "" {
			for _, t := range strings.Split(tags, ",") {
				if t = strings.TrimSpace(t); t != "" {
					dto.Tags = append(dto.Tags, t)
				}
			}
		}
		if dto.Title == "" {
			response.BadRequest(c, "title is required")
			return
		}

		file, err := c.FormFile("file")
		if err == nil {
			path, kind, err := h.stageUpload(c, file)
			if err != nil {
				response.Error(c, err)
				return
			}
			dto.FilePath = path
			dto.FileKind = kind
		}
	} else if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.svc.Create(c.Request.Context(), middleware.CurrentUserID(c), dto)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

func (h *Handler) update(c *gin.Context) {
	var dto UpdateDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	record, err := h.svc.Update(c.Request.Context(), c.Param("id"),
		middleware.CurrentUserID(c), dto)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, record)
}

func (h *Handler) delete(c *gin.Context) {
	err := h.svc.Delete(c.Request.Context(), c.Param("id"),
		middleware.CurrentUserID(c), middleware.IsAdmin(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) attachFile(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "multipart file part \"file\" is required")
		return
	}

	path, kind, err := h.stageUpload(c, file)
	if err != nil {
		response.Error(c, err)
		return
	}

	jobID, err := h.svc.AttachFile(c.Request.Context(), c.Param("id"),
		middleware.CurrentUserID(c), kind, path)
	if err != nil {
		os.Remove(path)
		response.Error(c, err)
		return
	}
	response.Accepted(c, gin.H{"job_id": jobID})
}

// stageUpload saves the multipart part into the staging directory and
// classifies it as image or pdf from its filename.
func (h *Handler) stageUpload(c *gin.Context, file *multipart.FileHeader) (path, kind string, err error) {
	if file.Size > maxUploadBytes {
		return "", "", apperr.Validation("file exceeds the %d byte limit", maxUploadBytes)
	}

	kind = classifyUpload(file.Filename)
	if kind == "" {
		return "", "", apperr.Validation("unsupported file type %q", filepath.Ext(file.Filename))
	}

	if err := os.MkdirAll(h.uploadsDir, 0o755); err != nil {
		return "", "", err
	}
	path = filepath.Join(h.uploadsDir, uuid.New().String()+filepath.Ext(file.Filename))
	if err := c.SaveUploadedFile(file, path); err != nil {
		return "", "", err
	}
	return path, kind, nil
}

func classifyUpload(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg", ".png", ".gif":
		return "image"
	case ".pdf":
		return "pdf"
	}
	return ""
}
