package model

import "time"

// QueryRequest represents one user question sent to a session
type QueryRequest struct {
	SessionID string   `json:"session_id,omitempty"`
	Query     string   `json:"query" binding:"required"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Category  string   `json:"category,omitempty"`
}

// CallerCoordinates returns the caller-supplied location, if both parts are set
func (r *QueryRequest) CallerCoordinates() *Coordinates {
	if r.Latitude == nil || r.Longitude == nil {
		return nil
	}
	return &Coordinates{Latitude: *r.Latitude, Longitude: *r.Longitude}
}

// SessionResponse is returned when a session is opened
type SessionResponse struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}

// MemoryStats summarizes the conversation memory of a session
type MemoryStats struct {
	InteractionCount  int    `json:"interaction_count"`
	LastResultCount   int    `json:"last_result_count"`
	HasContext        bool   `json:"has_context"`
	HasSpatialContext bool   `json:"has_spatial_context"`
	LastQuery         string `json:"last_query,omitempty"`
}

// MemoryTurn is one remembered query of a session
type MemoryTurn struct {
	Query         string    `json:"query"`
	Organizations []string  `json:"organizations"`
	Spatial       bool      `json:"spatial"`
	Timestamp     time.Time `json:"timestamp"`
}

// MemoryResponse is returned by the session memory endpoint
type MemoryResponse struct {
	MemoryStats
	Turns []MemoryTurn `json:"turns"`
}

// QueryLog is one persisted query row
type QueryLog struct {
	QueryID         string     `json:"query_id" db:"query_id"`
	SessionID       string     `json:"session_id" db:"session_id"`
	Query           string     `json:"query" db:"query"`
	NormalizedQuery string     `json:"normalized_query,omitempty" db:"normalized_query"`
	PrimaryService  string     `json:"primary_service,omitempty" db:"primary_service"`
	LocationText    string     `json:"location_text,omitempty" db:"location_text"`
	UsedMemory      bool       `json:"used_memory" db:"used_memory"`
	ExpandedRadius  bool       `json:"expanded_radius" db:"expanded_radius"`
	ClosestFallback bool       `json:"closest_fallback" db:"closest_fallback"`
	ResultCount     int        `json:"result_count" db:"result_count"`
	Organizations   StringList `json:"organizations" db:"organizations"`
	FailureReason   string     `json:"failure_reason,omitempty" db:"failure_reason"`
	TotalTokens     int        `json:"total_tokens" db:"total_tokens"`
	ResponseTimeMs  int64      `json:"response_time_ms" db:"response_time_ms"`
}

// FeedbackRequest represents a user action on one returned organization
type FeedbackRequest struct {
	QueryID      string `json:"query_id" binding:"required"`
	Organization string `json:"organization" binding:"required"`
	Action       string `json:"action" binding:"required"` // click, call, directions
}

// FeedbackResponse represents feedback response
type FeedbackResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
