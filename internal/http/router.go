package http

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/shelfscan/internal/database"
)

// RouterConfig holds the dependencies of the companion API.
type RouterConfig struct {
	Service  Service
	Database *database.Database
	Sync     SyncStatus
	Covers   CoverStore // nil disables GET /books/:key/cover
	Version  string
	Logger   *slog.Logger
}

// NewRouter creates and configures the HTTP router with all endpoints.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	router := gin.New()
	router.Use(requestLogger(cfg.Logger))
	router.Use(gin.Recovery())

	health := NewHealthController(cfg.Database, cfg.Service, cfg.Version)
	session := NewSessionController(cfg.Service)
	scans := NewScanController(cfg.Service)
	books := NewBooksController(cfg.Service)
	tags := NewTagsController(cfg.Service)
	prefs := NewPreferencesController(cfg.Service)
	lookup := NewLookupController(cfg.Service)
	sync := NewSyncController(cfg.Service, cfg.Sync)
	events := NewEventsController(cfg.Service, cfg.Logger)

	router.GET("/health", health.Status)

	router.GET("/session", session.Profile)
	router.POST("/session", session.SignIn)
	router.DELETE("/session", session.SignOut)

	router.POST("/scan", scans.Scan)
	router.POST("/scan/reset", scans.Reset)
	router.GET("/scans", scans.History)

	router.GET("/books", books.List)
	router.POST("/books", books.Add)
	router.DELETE("/books/:key", books.Remove)
	router.POST("/books/tags", tags.TagBooks)
	router.GET("/books/tags/common", tags.Common)
	if cfg.Covers != nil {
		router.GET("/books/:key/cover", NewCoversController(cfg.Service, cfg.Covers).Cover)
	}

	router.GET("/tags", tags.List)

	router.GET("/prefs", prefs.Get)
	router.PUT("/prefs", prefs.Update)

	router.GET("/lookup/:isbn", lookup.Lookup)

	router.GET("/sync", sync.Status)
	router.POST("/sync", sync.Resync)

	router.GET("/events", events.Stream)

	return router
}

// requestLogger logs one line per request.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelDebug
		if c.Writer.Status() >= 500 {
			level = slog.LevelWarn
		}
		logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start).Round(time.Microsecond))
	}
}
