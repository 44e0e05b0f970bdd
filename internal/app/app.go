// Package app assembles the service: config, database, Redis, the job
// worker pool, the scheduler, and the HTTP router.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/shareloom/core/internal/config"
	"github.com/shareloom/core/internal/database"
	"github.com/shareloom/core/internal/middleware"
	"github.com/shareloom/core/internal/modules/jobs"
	pkgcron "github.com/shareloom/core/internal/pkg/cron"
	"github.com/shareloom/core/internal/pkg/jwt"
	"github.com/shareloom/core/internal/pkg/objectstore"
	pkgredis "github.com/shareloom/core/internal/pkg/redis"
	"github.com/shareloom/core/internal/pkg/taskqueue"
)

// App holds all application dependencies.
type App struct {
	cfg    *config.AppConfig
	router *gin.Engine
	db     *gorm.DB
	rc     *pkgredis.Client
	logger *zap.Logger
	cancel context.CancelFunc
	sched  *pkgcron.Scheduler
	pool   *jobs.Pool
}

// New initializes the application: config → DB → Redis → workers → routes.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	jwt.SetSecret(cfg.JWTSecret)

	db, err := database.Connect(cfg, true)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	rc, err := pkgredis.Connect(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	store, err := objectstore.NewS3(cfg.S3)
	if err != nil {
		return nil, fmt.Errorf("object store: %w", err)
	}

	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(cors.New(corsConfig(cfg)))

	queue := taskqueue.New(rc)
	imageHandler := jobs.NewImageHandler(db, store)
	pdfHandler := jobs.NewPDFHandler(db, store)

	pool := jobs.NewPool(queue, logger, cfg.Jobs.PollInterval)
	pool.Register(jobs.TypeImage, imageHandler, cfg.Jobs.ImageWorkers)
	pool.Register(jobs.TypePDF, pdfHandler, cfg.Jobs.PDFWorkers)

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	sched := pkgcron.New(logger)
	registerCronJobs(sched, db, queue, logger)
	go sched.Start(ctx)

	app := &App{
		cfg:    cfg,
		router: router,
		db:     db,
		rc:     rc,
		logger: logger,
		cancel: cancel,
		sched:  sched,
		pool:   pool,
	}
	app.registerRoutes(queue, imageHandler, pdfHandler)
	return app, nil
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown stops workers and the scheduler and closes connections.
func (a *App) Shutdown() {
	a.cancel()
	if err := a.rc.Close(); err != nil {
		a.logger.Warn("redis close", zap.Error(err))
	}
	if err := database.Close(a.db); err != nil {
		a.logger.Warn("database close", zap.Error(err))
	}
}
