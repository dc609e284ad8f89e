package controlplane

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Server hosts the control-plane HTTP surface.
type Server struct {
	controller *Controller
	logger     *zap.Logger
	httpServer *http.Server
}

// NewServer builds a Server; jwtSecret empty disables auth (local/dev use).
func NewServer(addr string, controller *Controller, jwtSecret string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggingMiddleware(logger))
	if jwtSecret != "" {
		router.Use(AuthMiddleware(jwtSecret, logger))
	}

	s := &Server{controller: controller, logger: logger}
	s.registerRoutes(router)
	s.httpServer = &http.Server{Addr: addr, Handler: router}
	return s
}

func (s *Server) registerRoutes(router *gin.Engine) {
	router.POST("/scrapeNow/:accountId", s.handleScrapeNow)
	router.POST("/start", s.handleStart)
	router.POST("/stop", s.handleStop)
	router.POST("/pause", s.handlePause)
	router.POST("/resume", s.handleResume)
	router.GET("/status", s.handleStatus)
	router.GET("/config", s.handleGetConfig)
	router.PUT("/config", s.handlePutConfig)
}

// Start runs the HTTP listener in the background; it returns immediately.
func (s *Server) Start() {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("control plane server stopped unexpectedly", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts the HTTP listener down.
func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) handleScrapeNow(c *gin.Context) {
	status, err := s.controller.ScrapeNow(c.Param("accountId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

func (s *Server) handleStart(c *gin.Context) {
	if err := s.controller.Start(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "started"})
}

func (s *Server) handleStop(c *gin.Context) {
	s.controller.Stop()
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

func (s *Server) handlePause(c *gin.Context) {
	s.controller.Pause()
	c.JSON(http.StatusOK, gin.H{"status": "paused"})
}

func (s *Server) handleResume(c *gin.Context) {
	s.controller.Resume()
	c.JSON(http.StatusOK, gin.H{"status": "resumed"})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.controller.Status())
}

func (s *Server) handleGetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.controller.GetConfig())
}

func (s *Server) handlePutConfig(c *gin.Context) {
	var update ConfigView
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.controller.PutConfig(update))
}
