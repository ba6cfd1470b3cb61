// Package server is the development research backend: it streams the
// research pipeline over HTTP in the format the console consumes.
package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mikeboe/research-console/pkg/models"
	"github.com/mikeboe/research-console/pkg/stream"
)

const (
	ServiceName = "Deep Research Agent API"
	Version     = "2.0.0"
)

// DefaultOrigins are the local UI origins allowed by CORS.
var DefaultOrigins = []string{"http://localhost:5173", "http://localhost:3000"}

type Handler struct {
	Service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{Service: s}
}

// NewRouter builds the gin engine with CORS and all routes.
func NewRouter(h *Handler, origins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	if len(origins) == 0 {
		origins = DefaultOrigins
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length", "X-Research-Job"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	h.RegisterRoutes(r)
	return r
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/", h.root)
	r.GET("/health", h.health)
	r.POST("/research", h.research)

	api := r.Group("/api")
	{
		api.GET("/research", h.listJobs)
		api.GET("/research/:id", h.getJob)
		api.GET("/research/:id/logs", h.getJobLogs)
	}
}

func (h *Handler) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": ServiceName,
		"version": Version,
		"endpoints": gin.H{
			"health":   "/health",
			"research": "/research (POST)",
			"jobs":     "/api/research",
		},
	})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": ServiceName,
		"version": Version,
	})
}

func (h *Handler) research(c *gin.Context) {
	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	req.Topic = strings.TrimSpace(req.Topic)
	if req.Topic == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Topic cannot be empty"})
		return
	}
	if req.Model == "" {
		req.Model = models.DefaultID
	}

	job := h.Service.CreateJob(req)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Research-Job", job.ID.String())
	c.Status(http.StatusOK)

	_ = h.Service.RunJob(c.Request.Context(), job.ID, func(ev stream.Event) error {
		if err := stream.Encode(c.Writer, ev); err != nil {
			return err
		}
		c.Writer.Flush()
		return nil
	})
}

func (h *Handler) listJobs(c *gin.Context) {
	c.JSON(http.StatusOK, h.Service.ListJobs())
}

func (h *Handler) getJob(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	job, err := h.Service.GetJob(id)
	if err != nil {
		writeLookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *Handler) getJobLogs(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	logs, err := h.Service.GetJobLogs(id)
	if err != nil {
		writeLookupError(c, err)
		return
	}
	if logs == nil {
		logs = []LogEntry{}
	}
	c.JSON(http.StatusOK, logs)
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uuid"})
		return uuid.Nil, false
	}
	return id, true
}

func writeLookupError(c *gin.Context, err error) {
	if errors.Is(err, ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
