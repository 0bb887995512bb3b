package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/url-relay-go/internal/app"
	"github.com/yourusername/url-relay-go/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

// UpdaterFactory builds a status updater for a chat message. It returns nil when
// no chat transport is configured.
type UpdaterFactory func(chatID int64, messageID int) domain.StatusUpdater

// AcquisitionHandler handles acquisition-related HTTP requests
type AcquisitionHandler struct {
	relay    *app.RelayService
	updaters UpdaterFactory
	// baseCtx outlives requests; acquisitions are bound to it, not to the request.
	baseCtx context.Context
	logger  *zap.Logger
}

// NewAcquisitionHandler creates a new acquisition handler. updaters may be nil.
func NewAcquisitionHandler(baseCtx context.Context, relay *app.RelayService, updaters UpdaterFactory, logger *zap.Logger) *AcquisitionHandler {
	return &AcquisitionHandler{
		relay:    relay,
		updaters: updaters,
		baseCtx:  baseCtx,
		logger:   logger,
	}
}

// StartAcquisitionRequest represents a request to start an acquisition
type StartAcquisitionRequest struct {
	UserID   int64  `json:"user_id" binding:"required"`
	Locator  string `json:"locator" binding:"required"`
	Filename string `json:"filename,omitempty"`
	// ChatID and MessageID name the chat message that shows progress.
	ChatID    int64 `json:"chat_id,omitempty"`
	MessageID int   `json:"message_id,omitempty"`
}

// ClassifyRequest represents a request to classify a locator
type ClassifyRequest struct {
	Locator string `json:"locator" binding:"required"`
}

// StartAcquisition handles POST /api/v1/acquisitions
func (h *AcquisitionHandler) StartAcquisition(c *gin.Context) {
	var req StartAcquisitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	start := app.StartRequest{
		UserID:   req.UserID,
		Locator:  req.Locator,
		Filename: req.Filename,
	}
	if h.updaters != nil && req.ChatID != 0 && req.MessageID != 0 {
		start.Updater = h.updaters(req.ChatID, req.MessageID)
	}

	task, err := h.relay.Start(h.baseCtx, start)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, task)
}

// GetAcquisition handles GET /api/v1/acquisitions/:id
func (h *AcquisitionHandler) GetAcquisition(c *gin.Context) {
	status, err := h.relay.Status(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// ListActive handles GET /api/v1/acquisitions
func (h *AcquisitionHandler) ListActive(c *gin.Context) {
	tasks := h.relay.ActiveTasks()
	c.JSON(http.StatusOK, gin.H{
		"count": len(tasks),
		"tasks": tasks,
	})
}

// GetActive handles GET /api/v1/users/:user_id/active
func (h *AcquisitionHandler) GetActive(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	task, found := h.relay.Active(userID)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active acquisition"})
		return
	}

	c.JSON(http.StatusOK, task)
}

// Cancel handles POST /api/v1/users/:user_id/cancel
func (h *AcquisitionHandler) Cancel(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	if !h.relay.Cancel(userID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active acquisition"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "cancellation requested"})
}

// History handles GET /api/v1/users/:user_id/history
func (h *AcquisitionHandler) History(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultHistoryLimit)))
	if err != nil || limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	records, err := h.relay.History(userID, limit)
	if err != nil {
		h.logger.Error("Failed to read history", zap.Int64("user_id", userID), zap.Error(err))
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, records)
}

// GetStats handles GET /api/v1/stats
func (h *AcquisitionHandler) GetStats(c *gin.Context) {
	var userID int64
	if raw := c.Query("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
			return
		}
		userID = id
	}

	stats, err := h.relay.Stats(userID)
	if err != nil {
		h.logger.Error("Failed to get stats", zap.Error(err))
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// Classify handles POST /api/v1/classify
func (h *AcquisitionHandler) Classify(c *gin.Context) {
	var req ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, h.relay.Classify(req.Locator))
}

func (h *AcquisitionHandler) writeError(c *gin.Context, err error) {
	ae := domain.AsAcquisitionError(err)
	status := StatusForKind(ae.Kind)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}

	c.JSON(status, gin.H{
		"error":   ae.UserMessage(),
		"kind":    ae.Kind,
		"details": ae.Error(),
	})
}

// StatusForKind maps an error kind to an HTTP status code
func StatusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindInvalidLocator:
		return http.StatusBadRequest
	case domain.KindAlreadyActive, domain.KindCoolingDown:
		return http.StatusConflict
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindTooLarge, domain.KindRemoteRejected, domain.KindNetwork,
		domain.KindTimeout, domain.KindEngineFailure, domain.KindSwarmError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func userIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
		return 0, false
	}
	return id, true
}
