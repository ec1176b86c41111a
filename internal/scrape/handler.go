package scrape

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"barker/internal/agents"
	"barker/internal/scraper"
)

// AgentChecker verifies the target agent exists before a job is queued.
type AgentChecker interface {
	GetAgent(ctx context.Context, kbID string) (*agents.Agent, error)
}

type Handler struct {
	runner   *Runner
	statuses *StatusStore
	agents   AgentChecker
	logger   *logrus.Logger
}

func NewHandler(runner *Runner, statuses *StatusStore, checker AgentChecker, logger *logrus.Logger) *Handler {
	return &Handler{runner: runner, statuses: statuses, agents: checker, logger: logger}
}

func RegisterRoutes(router gin.IRoutes, h *Handler) {
	router.POST("/agents/:kb_id/scrape-url", h.HandleScrapeURL)
	router.GET("/agents/:kb_id/scrape-status", h.HandleScrapeStatus)
}

type scrapeRequest struct {
	URL      string `json:"url" binding:"required"`
	MaxPages int    `json:"max_pages"`
}

// HandleScrapeURL validates the seed URL, records an initial status row and
// starts the crawl in the background. Returns 202 immediately.
func (h *Handler) HandleScrapeURL(c *gin.Context) {
	kbID := c.Param("kb_id")

	var req scrapeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	if _, err := h.agents.GetAgent(c.Request.Context(), kbID); err != nil {
		if errors.Is(err, agents.ErrAgentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
			return
		}
		h.logger.WithError(err).WithField("kb_id", kbID).Error("Failed to look up agent")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to look up agent"})
		return
	}

	if err := scraper.ValidateSeedURL(req.URL); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	initial := Status{
		KBID:         kbID,
		Status:       StatusProcessing,
		SubmittedURL: req.URL,
		Progress:     map[string]any{"stage": StageInitialized},
	}
	if err := h.statuses.Set(c.Request.Context(), initial); err != nil {
		h.logger.WithError(err).WithField("kb_id", kbID).Error("Failed to initialize scrape status")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start scrape"})
		return
	}

	// The job outlives the request; it runs against a fresh context.
	go h.runner.Run(context.Background(), kbID, req.URL, req.MaxPages)

	h.logger.WithFields(logrus.Fields{"kb_id": kbID, "url": req.URL}).Info("Scrape job queued")
	c.JSON(http.StatusAccepted, gin.H{
		"kb_id":  kbID,
		"status": StatusProcessing,
		"url":    req.URL,
	})
}

func (h *Handler) HandleScrapeStatus(c *gin.Context) {
	kbID := c.Param("kb_id")

	status, err := h.statuses.Get(c.Request.Context(), kbID)
	if errors.Is(err, ErrStatusNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no scrape recorded for this agent"})
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("kb_id", kbID).Error("Failed to read scrape status")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read scrape status"})
		return
	}

	c.JSON(http.StatusOK, status)
}
