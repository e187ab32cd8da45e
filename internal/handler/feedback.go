package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"orgfinder/internal/model"
	"orgfinder/internal/repository"
	"orgfinder/internal/service"
)

// FeedbackHandler handles feedback-related HTTP requests
type FeedbackHandler struct {
	queries *service.QueryService
}

// NewFeedbackHandler creates a new feedback handler
func NewFeedbackHandler(queries *service.QueryService) *FeedbackHandler {
	return &FeedbackHandler{queries: queries}
}

// Submit handles POST /api/v1/feedback
func (h *FeedbackHandler) Submit(c *gin.Context) {
	var req model.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	validActions := map[string]bool{
		"click":      true,
		"call":       true,
		"directions": true,
	}
	if !validActions[req.Action] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid action. Must be one of: click, call, directions"})
		return
	}

	err := h.queries.LogFeedback(c.Request.Context(), req.QueryID, req.Organization, req.Action)
	switch {
	case errors.Is(err, service.ErrLoggingDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Feedback logging is disabled"})
		return
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Query not found"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to log feedback"})
		return
	}

	c.JSON(http.StatusOK, model.FeedbackResponse{
		Success: true,
		Message: "Feedback logged successfully",
	})
}
