package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mikeboe/deep-search/pkg/archive"
	"github.com/mikeboe/deep-search/pkg/research"
	"github.com/mikeboe/deep-search/pkg/vectorstore"
)

type Handler struct {
	Jobs    JobService
	Engine  *research.Engine
	Archive *archive.Archive
	MCP     *mcp.Server
}

func NewHandler(jobs JobService, engine *research.Engine, arch *archive.Archive, mcpServer *mcp.Server) *Handler {
	return &Handler{Jobs: jobs, Engine: engine, Archive: arch, MCP: mcpServer}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	if h.MCP != nil {
		mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
			return h.MCP
		}, nil)
		r.Any("/mcp", gin.WrapH(mcpHandler))
	}
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.GET("/status", h.getStatus)

		api.POST("/research", h.createJob)
		api.GET("/research", h.listJobs)
		api.GET("/research/:id", h.getJob)
		api.GET("/research/:id/logs", h.getJobLogs)

		api.POST("/archive/search", h.searchArchive)
		api.GET("/archive/source", h.archiveBySource)
		api.POST("/archive/filter", h.archiveByMetadata)
	}
}

func (h *Handler) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.Engine.Status())
}

func (h *Handler) createJob(c *gin.Context) {
	if h.Jobs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "research jobs require DATABASE_URL"})
		return
	}
	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Same bounds as the MCP tools.
	req.MaxIterations = clamp(req.MaxIterations, maxToolIterations)
	req.MaxQueries = clamp(req.MaxQueries, maxToolQueries)

	job, err := h.Jobs.CreateJob(c.Request.Context(), req)
	if errors.Is(err, research.ErrEmptyQuery) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, job)
}

func (h *Handler) listJobs(c *gin.Context) {
	if h.Jobs == nil {
		c.JSON(http.StatusOK, []Job{})
		return
	}
	jobs, err := h.Jobs.ListJobs(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	// Return empty list instead of null
	if jobs == nil {
		jobs = []Job{}
	}
	c.JSON(http.StatusOK, jobs)
}

func (h *Handler) getJob(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}
	if h.Jobs == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": ErrJobNotFound.Error()})
		return
	}

	job, err := h.Jobs.GetJob(c.Request.Context(), id)
	if errors.Is(err, ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *Handler) getJobLogs(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}
	var logs []LogEntry
	if h.Jobs != nil {
		var err error
		logs, err = h.Jobs.GetJobLogs(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	if logs == nil {
		logs = []LogEntry{}
	}
	c.JSON(http.StatusOK, logs)
}

func jobID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uuid"})
		return uuid.Nil, false
	}
	return id, true
}

type archiveSearchRequest struct {
	Query  string `json:"query" binding:"required"`
	TopK   int    `json:"top_k"`
	Source string `json:"source"`
}

type archiveSearchResponse struct {
	Results []vectorstore.Match `json:"results"`
	Text    string              `json:"text"`
}

type archiveDocumentsResponse struct {
	Results []vectorstore.Document `json:"results"`
	Text    string                 `json:"text"`
}

func (h *Handler) searchArchive(c *gin.Context) {
	if !h.archiveEnabled(c) {
		return
	}
	var req archiveSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	matches, err := h.Archive.Search(c.Request.Context(), req.Query, req.TopK, req.Source)
	if errors.Is(err, research.ErrEmptyQuery) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if matches == nil {
		matches = []vectorstore.Match{}
	}
	c.JSON(http.StatusOK, archiveSearchResponse{Results: matches, Text: archive.FormatMatches(matches)})
}

func (h *Handler) archiveBySource(c *gin.Context) {
	if !h.archiveEnabled(c) {
		return
	}
	source := strings.TrimSpace(c.Query("url"))
	if source == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url query parameter is required"})
		return
	}
	docs, err := h.Archive.BySource(c.Request.Context(), source)
	h.writeDocuments(c, docs, err)
}

func (h *Handler) archiveByMetadata(c *gin.Context) {
	if !h.archiveEnabled(c) {
		return
	}
	var req struct {
		Filter map[string]any `json:"filter" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	docs, err := h.Archive.ByMetadata(c.Request.Context(), req.Filter)
	h.writeDocuments(c, docs, err)
}

func (h *Handler) writeDocuments(c *gin.Context, docs []vectorstore.Document, err error) {
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if docs == nil {
		docs = []vectorstore.Document{}
	}
	c.JSON(http.StatusOK, archiveDocumentsResponse{Results: docs, Text: archive.FormatDocuments(docs)})
}

func (h *Handler) archiveEnabled(c *gin.Context) bool {
	if h.Archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": archive.ErrDisabled.Error()})
		return false
	}
	return true
}
