package chat

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"barker/internal/agents"
	"barker/internal/knowledge"
)

const maxMessageRunes = 10000

type Handler struct {
	orchestrator *Orchestrator
	history      *ConversationStore
	ingestor     *knowledge.Ingestor
	logger       *logrus.Logger
}

func NewHandler(orchestrator *Orchestrator, history *ConversationStore, ingestor *knowledge.Ingestor, logger *logrus.Logger) *Handler {
	return &Handler{orchestrator: orchestrator, history: history, ingestor: ingestor, logger: logger}
}

func RegisterRoutes(router gin.IRoutes, h *Handler) {
	router.POST("/agents/:kb_id/chat", h.HandleChat)
	router.GET("/agents/:kb_id/history", h.HandleGetHistory)
	router.DELETE("/agents/:kb_id/history", h.HandleDeleteHistory)
	router.POST("/agents/:kb_id/human-knowledge", h.HandleHumanKnowledge)
	router.GET("/conversations", h.HandleListConversations)
}

type chatRequest struct {
	Message string `json:"message"`
}

func (h *Handler) HandleChat(c *gin.Context) {
	kbID := c.Param("kb_id")

	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}
	if len([]rune(req.Message)) > maxMessageRunes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message too long"})
		return
	}

	reply, err := h.orchestrator.Chat(c.Request.Context(), kbID, req.Message)
	if err != nil {
		if errors.Is(err, agents.ErrAgentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
			return
		}
		h.logger.WithError(err).WithField("kb_id", kbID).Error("Chat failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "chat failed"})
		return
	}
	c.JSON(http.StatusOK, reply)
}

func (h *Handler) HandleGetHistory(c *gin.Context) {
	kbID := c.Param("kb_id")
	messages, err := h.history.History(c.Request.Context(), kbID, 0)
	if err != nil {
		h.logger.WithError(err).WithField("kb_id", kbID).Error("Failed to load history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	if messages == nil {
		messages = []Message{}
	}
	c.JSON(http.StatusOK, gin.H{"kb_id": kbID, "history": messages})
}

func (h *Handler) HandleDeleteHistory(c *gin.Context) {
	kbID := c.Param("kb_id")
	if err := h.history.DeleteHistory(c.Request.Context(), kbID); err != nil {
		h.logger.WithError(err).WithField("kb_id", kbID).Error("Failed to delete history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"kb_id": kbID, "deleted": true})
}

// HandleListConversations serves the human desk: every KB with history,
// summarized by its latest message and handoff state.
func (h *Handler) HandleListConversations(c *gin.Context) {
	previews, err := h.history.Conversations(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list conversations")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list conversations"})
		return
	}
	if previews == nil {
		previews = []ConversationPreview{}
	}
	c.JSON(http.StatusOK, gin.H{"conversations": previews})
}

type humanKnowledgeRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// HandleHumanKnowledge records a human operator's answer: it is appended to
// the conversation as an AI turn and ingested into the KB so the agent can
// answer the same question itself next time.
func (h *Handler) HandleHumanKnowledge(c *gin.Context) {
	kbID := c.Param("kb_id")

	var req humanKnowledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	req.Answer = strings.TrimSpace(req.Answer)
	if req.Question == "" || req.Answer == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "question and answer are required"})
		return
	}

	// Unique source per answer: the store replaces chunks per source, and
	// human answers must accumulate rather than overwrite each other.
	source := "human://answers/" + uuid.NewString()
	text := "Q: " + req.Question + "\nA: " + req.Answer
	chunks, err := h.ingestor.AddText(c.Request.Context(), kbID, source, "Human-provided answer", text)
	if err != nil {
		h.logger.WithError(err).WithField("kb_id", kbID).Error("Failed to ingest human answer")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store answer"})
		return
	}

	if err := h.history.AddMessage(c.Request.Context(), kbID, RoleAI, req.Answer); err != nil {
		h.logger.WithError(err).WithField("kb_id", kbID).Warn("Failed to append human answer to history")
	}

	c.JSON(http.StatusOK, gin.H{"kb_id": kbID, "chunks_added": chunks})
}
