package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"orgfinder/internal/model"
	"orgfinder/internal/service"
)

// SessionHandler handles session and memory HTTP requests
type SessionHandler struct {
	sessions *service.SessionManager
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions *service.SessionManager) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// Create handles POST /api/v1/sessions
func (h *SessionHandler) Create(c *gin.Context) {
	s := h.sessions.Create()
	c.JSON(http.StatusCreated, model.SessionResponse{SessionID: s.ID, CreatedAt: s.CreatedAt})
}

// Memory handles GET /api/v1/sessions/:id/memory
func (h *SessionHandler) Memory(c *gin.Context) {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}
	resp := model.MemoryResponse{MemoryStats: s.Memory.Stats(), Turns: []model.MemoryTurn{}}
	for _, turn := range s.Memory.History() {
		resp.Turns = append(resp.Turns, model.MemoryTurn{
			Query:         turn.Query,
			Organizations: turn.OrgNames,
			Spatial:       turn.Spatial != nil,
			Timestamp:     turn.Timestamp,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// ClearMemory handles DELETE /api/v1/sessions/:id/memory
func (h *SessionHandler) ClearMemory(c *gin.Context) {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}
	s.Memory.Clear()
	c.Status(http.StatusNoContent)
}
