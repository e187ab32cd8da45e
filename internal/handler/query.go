package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"orgfinder/internal/model"
	"orgfinder/internal/repository"
	"orgfinder/internal/service"
)

// QueryHandler handles query-related HTTP requests
type QueryHandler struct {
	queries *service.QueryService
}

// NewQueryHandler creates a new query handler
func NewQueryHandler(queries *service.QueryService) *QueryHandler {
	return &QueryHandler{queries: queries}
}

// Query handles POST /api/v1/query
func (h *QueryHandler) Query(c *gin.Context) {
	var req model.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if err := validateQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	outcome, err := h.queries.Process(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Query failed"})
		return
	}

	c.JSON(statusFor(outcome), outcome)
}

// validateQuery checks what the binding tags cannot express
func validateQuery(req *model.QueryRequest) error {
	if strings.TrimSpace(req.Query) == "" {
		return errors.New("query must not be blank")
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		return errors.New("latitude and longitude must be sent together")
	}
	return nil
}

// Log handles GET /api/v1/queries/:id
func (h *QueryHandler) Log(c *gin.Context) {
	entry, err := h.queries.GetQueryLog(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, service.ErrLoggingDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Query logging is disabled"})
		return
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Query not found"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read query log"})
		return
	}
	c.JSON(http.StatusOK, entry)
}

// QueryStream handles POST /api/v1/query/stream - SSE streaming query
func (h *QueryHandler) QueryStream(c *gin.Context) {
	var req model.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if err := validateQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if req.SessionID != "" {
		if _, err := h.queries.Sessions().Get(req.SessionID); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
	}

	// Set SSE headers
	c.Header("Content-Type", "text/event-stream; charset=utf-8")
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Streaming not supported"})
		return
	}

	sendSSE(c, "start", map[string]any{"query": req.Query})
	flusher.Flush()

	outcome, err := h.queries.ProcessStream(c.Request.Context(), &req, func(event string, data any) error {
		if err := c.Request.Context().Err(); err != nil {
			return err
		}
		sendSSE(c, event, data)
		flusher.Flush()
		return nil
	})
	if err != nil {
		sendSSE(c, "error", map[string]any{"error": "stream aborted"})
		flusher.Flush()
		return
	}

	sendSSE(c, "results", outcome)
	flusher.Flush()

	sendSSE(c, "done", map[string]any{
		"query_id":       outcome.QueryID,
		"session_id":     outcome.SessionID,
		"failure_reason": outcome.FailureReason,
		"took_ms":        outcome.Took,
	})
	flusher.Flush()
}

// statusFor maps an outcome to its HTTP status. Only a backend failure is an
// upstream error; an empty result is a normal answer.
func statusFor(outcome *model.RetrievalOutcome) int {
	if outcome.FailureReason == model.FailureBackend {
		return http.StatusBadGateway
	}
	return http.StatusOK
}

// sendSSE sends a Server-Sent Event
func sendSSE(c *gin.Context, event string, data any) {
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			fmt.Fprintf(c.Writer, "event: error\ndata: {\"error\": \"JSON marshal failed\"}\n\n")
			return
		}
		fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, string(jsonData))
	} else {
		fmt.Fprintf(c.Writer, "event: %s\ndata: {}\n\n", event)
	}
}
