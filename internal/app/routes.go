package app

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shareloom/core/internal/middleware"
	"github.com/shareloom/core/internal/modules/comment"
	"github.com/shareloom/core/internal/modules/content"
	"github.com/shareloom/core/internal/modules/interaction"
	"github.com/shareloom/core/internal/modules/jobs"
	"github.com/shareloom/core/internal/modules/version"
	"github.com/shareloom/core/internal/pkg/cachekit"
	"github.com/shareloom/core/internal/pkg/response"
	"github.com/shareloom/core/internal/pkg/taskqueue"
)

func (a *App) registerRoutes(queue *taskqueue.Queue, imageHandler *jobs.ImageHandler, pdfHandler *jobs.PDFHandler) {
	r := a.router
	db := a.db
	authMW := middleware.Auth(db)

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c, "route")
	})
	r.NoMethod(func(c *gin.Context) {
		response.MethodNotAllowed(c)
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Rate limiting and idempotence run on every API route.
	api := r.Group("/api/v1")
	api.Use(middleware.OptionalAuth(db))
	api.Use(middleware.RateLimit(a.rc.Raw()))
	api.Use(middleware.Idempotence(a.rc.Raw()))

	api.GET("/ping", func(c *gin.Context) {
		response.OK(c, gin.H{"pong": time.Now().UTC()})
	})

	cache := cachekit.New(a.rc, a.logger)

	var materializer jobs.Materializer
	if a.cfg.Jobs.SyncUploads {
		materializer = jobs.NewSyncMaterializer(map[string]jobs.Handler{
			jobs.TypeImage: imageHandler,
			jobs.TypePDF:   pdfHandler,
		})
	} else {
		materializer = jobs.NewQueuedMaterializer(queue)
	}

	versionSvc := version.NewService(db)
	contentSvc := content.NewService(db, versionSvc, cache, materializer, a.logger)

	content.NewHandler(contentSvc, a.cfg.UploadsDir).RegisterRoutes(api, authMW)
	version.NewHandler(versionSvc).RegisterRoutes(api, authMW)
	interaction.NewHandler(interaction.NewService(db)).RegisterRoutes(api)
	comment.NewHandler(comment.NewService(db)).RegisterRoutes(api, authMW)
	jobs.NewHTTPHandler(queue).RegisterRoutes(api)

	r.GET("/", func(c *gin.Context) {
		c.PureJSON(http.StatusOK, gin.H{
			"name":    "shareloom-core",
			"version": "1.0.0",
		})
	})
}
