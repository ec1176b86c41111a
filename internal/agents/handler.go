package agents

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"barker/internal/knowledge"
)

type Handler struct {
	registry *Registry
	store    *knowledge.Store
	ingestor *knowledge.Ingestor
	logger   *logrus.Logger
}

func NewHandler(registry *Registry, store *knowledge.Store, ingestor *knowledge.Ingestor, logger *logrus.Logger) *Handler {
	return &Handler{registry: registry, store: store, ingestor: ingestor, logger: logger}
}

func RegisterRoutes(router gin.IRoutes, h *Handler) {
	router.POST("/agents", h.HandleCreateAgent)
	router.GET("/agents", h.HandleListAgents)
	router.DELETE("/agents/:kb_id", h.HandleDeleteAgent)
	router.POST("/agents/:kb_id/populate-json", h.HandlePopulateJSON)
	router.GET("/agents/:kb_id/json", h.HandleGetPayloads)
	router.GET("/agents/:kb_id/content", h.HandleGetContent)
	router.GET("/agents/:kb_id/config", h.HandleGetConfig)
	router.PUT("/agents/:kb_id/config", h.HandleUpdateConfig)
	router.POST("/agents/:kb_id/cleanup-duplicates", h.HandleCleanupDuplicates)
}

type createAgentRequest struct {
	Name string `json:"name"`
}

func (h *Handler) HandleCreateAgent(c *gin.Context) {
	var req createAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	agent, err := h.registry.CreateAgent(c.Request.Context(), req.Name)
	if err != nil {
		h.logger.WithError(err).Error("Failed to create agent")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create agent"})
		return
	}
	c.JSON(http.StatusCreated, agent)
}

func (h *Handler) HandleListAgents(c *gin.Context) {
	agents, err := h.registry.ListAgents(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list agents")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list agents"})
		return
	}
	if agents == nil {
		agents = []Agent{}
	}
	c.JSON(http.StatusOK, gin.H{"agents": agents})
}

func (h *Handler) HandleDeleteAgent(c *gin.Context) {
	kbID := c.Param("kb_id")

	if err := h.store.DeleteKB(c.Request.Context(), kbID); err != nil {
		h.logger.WithError(err).WithField("kb_id", kbID).Error("Failed to delete kb chunks")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete agent"})
		return
	}
	if err := h.registry.DeleteAgent(c.Request.Context(), kbID); err != nil {
		if errors.Is(err, ErrAgentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
			return
		}
		h.logger.WithError(err).WithField("kb_id", kbID).Error("Failed to delete agent")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete agent"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": kbID})
}

func (h *Handler) HandlePopulateJSON(c *gin.Context) {
	kbID := c.Param("kb_id")

	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json payload"})
		return
	}
	if len(payload) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payload is required"})
		return
	}
	if _, err := h.registry.GetAgent(c.Request.Context(), kbID); err != nil {
		if errors.Is(err, ErrAgentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load agent"})
		return
	}

	if err := h.registry.SavePayload(c.Request.Context(), kbID, payload); err != nil {
		h.logger.WithError(err).WithField("kb_id", kbID).Error("Failed to save payload")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store payload"})
		return
	}

	chunks, err := h.ingestor.AddJSON(c.Request.Context(), kbID, "payload://json", "JSON payload", payload)
	if err != nil {
		h.logger.WithError(err).WithField("kb_id", kbID).Error("Failed to ingest payload")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to ingest payload"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"kb_id": kbID, "chunks_added": chunks})
}

func (h *Handler) HandleGetPayloads(c *gin.Context) {
	kbID := c.Param("kb_id")
	payloads, err := h.registry.Payloads(c.Request.Context(), kbID)
	if err != nil {
		h.logger.WithError(err).WithField("kb_id", kbID).Error("Failed to list payloads")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list payloads"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"kb_id": kbID, "payloads": payloads})
}

func (h *Handler) HandleGetContent(c *gin.Context) {
	kbID := c.Param("kb_id")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	chunks, err := h.store.Content(c.Request.Context(), kbID, limit, offset)
	if err != nil {
		h.logger.WithError(err).WithField("kb_id", kbID).Error("Failed to list kb content")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list content"})
		return
	}

	items := make([]gin.H, 0, len(chunks))
	for _, chunk := range chunks {
		items = append(items, gin.H{
			"source":      chunk.Source,
			"title":       chunk.Title,
			"chunk_index": chunk.Index,
			"text":        chunk.Text,
		})
	}
	c.JSON(http.StatusOK, gin.H{"kb_id": kbID, "content": items})
}

func (h *Handler) HandleGetConfig(c *gin.Context) {
	kbID := c.Param("kb_id")
	cfg, err := h.registry.GetConfig(c.Request.Context(), kbID)
	if err != nil {
		if errors.Is(err, ErrAgentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
			return
		}
		h.logger.WithError(err).WithField("kb_id", kbID).Error("Failed to get config")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get config"})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *Handler) HandleUpdateConfig(c *gin.Context) {
	kbID := c.Param("kb_id")

	var cfg Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	cfg.KBID = kbID

	if err := h.registry.UpdateConfig(c.Request.Context(), cfg); err != nil {
		if errors.Is(err, ErrAgentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
			return
		}
		h.logger.WithError(err).WithField("kb_id", kbID).Error("Failed to update config")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update config"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"kb_id": kbID, "updated": true})
}

func (h *Handler) HandleCleanupDuplicates(c *gin.Context) {
	kbID := c.Param("kb_id")
	removed, err := h.store.CleanupDuplicates(c.Request.Context(), kbID)
	if err != nil {
		h.logger.WithError(err).WithField("kb_id", kbID).Error("Failed to cleanup duplicates")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to cleanup duplicates"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"kb_id": kbID, "removed": removed})
}
