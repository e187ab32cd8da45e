package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgfinder/internal/model"
	"orgfinder/internal/repository"
	"orgfinder/internal/service"
	"orgfinder/internal/spatial"
)

type stubExecutor struct {
	records []model.Record
	err     error
}

func (s *stubExecutor) Execute(ctx context.Context, query string, params map[string]interface{}) ([]model.Record, error) {
	return s.records, s.err
}

type stubLogs struct {
	feedbackErr error
	entry       *model.QueryLog
	getErr      error
}

func (s *stubLogs) LogQuery(ctx context.Context, entry *model.QueryLog) error { return nil }

func (s *stubLogs) LogFeedback(ctx context.Context, queryID, organization, action string) error {
	return s.feedbackErr
}

func (s *stubLogs) GetQueryLog(ctx context.Context, queryID string) (*model.QueryLog, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.entry, nil
}

func setupRouter(exec *stubExecutor, logs service.QueryLogger) (*gin.Engine, *service.QueryService) {
	gin.SetMode(gin.TestMode)

	sessions := service.NewSessionManager(service.SessionOptions{
		Spatial: spatial.Options{DefaultLocation: &model.Coordinates{Latitude: 39.952335, Longitude: -75.163789}},
	}, nil)
	queries := service.NewQueryService(service.Components{
		Orchestrator: service.NewOrchestrator(nil, exec, 1.25, nil),
		Sessions:     sessions,
		Logs:         logs,
	}, 5, 10, nil)

	queryHandler := NewQueryHandler(queries)
	sessionHandler := NewSessionHandler(sessions)
	feedbackHandler := NewFeedbackHandler(queries)

	router := gin.New()
	api := router.Group("/api/v1")
	api.POST("/sessions", sessionHandler.Create)
	api.GET("/sessions/:id/memory", sessionHandler.Memory)
	api.DELETE("/sessions/:id/memory", sessionHandler.ClearMemory)
	api.POST("/query", queryHandler.Query)
	api.POST("/query/stream", queryHandler.QueryStream)
	api.GET("/queries/:id", queryHandler.Log)
	api.POST("/feedback", feedbackHandler.Submit)
	return router, queries
}

func doJSON(router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func libraries() []model.Record {
	return []model.Record{{"name": "Widener Library"}, {"name": "Free Library"}}
}

func TestCreateSession(t *testing.T) {
	router, _ := setupRouter(&stubExecutor{}, nil)

	w := doJSON(router, http.MethodPost, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp model.SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.SessionID)
}

func TestQuery(t *testing.T) {
	router, _ := setupRouter(&stubExecutor{records: libraries()}, nil)

	w := doJSON(router, http.MethodPost, "/api/v1/query", map[string]any{"query": "free wifi near City Hall"})
	require.Equal(t, http.StatusOK, w.Code)

	var out model.RetrievalOutcome
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Len(t, out.Records, 2)
	assert.True(t, out.IsSpatial)
	assert.Equal(t, "wi-fi", out.Services.Primary)
	assert.NotEmpty(t, out.SessionID)
}

func TestQueryValidation(t *testing.T) {
	router, _ := setupRouter(&stubExecutor{}, nil)

	w := doJSON(router, http.MethodPost, "/api/v1/query", map[string]any{"session_id": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodPost, "/api/v1/query", map[string]any{"query": "food near me", "latitude": 40.0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	for _, path := range []string{"/api/v1/query", "/api/v1/query/stream"} {
		w = doJSON(router, http.MethodPost, path, map[string]any{"query": "  \t "})
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
		assert.Contains(t, w.Body.String(), "query must not be blank", path)
	}

	w = doJSON(router, http.MethodPost, "/api/v1/query", map[string]any{"query": "printer", "session_id": "unknown"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestQueryNoResultsIsOK(t *testing.T) {
	router, _ := setupRouter(&stubExecutor{}, nil)

	w := doJSON(router, http.MethodPost, "/api/v1/query", map[string]any{"query": "printer"})
	require.Equal(t, http.StatusOK, w.Code)

	var out model.RetrievalOutcome
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, model.FailureNoResults, out.FailureReason)
	assert.NotNil(t, out.Records)
}

func TestQueryBackendFailure(t *testing.T) {
	router, _ := setupRouter(&stubExecutor{err: errors.New("connection refused")}, nil)

	w := doJSON(router, http.MethodPost, "/api/v1/query", map[string]any{"query": "printer"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), string(model.FailureBackend))
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestMemoryEndpoints(t *testing.T) {
	router, _ := setupRouter(&stubExecutor{records: libraries()}, nil)

	w := doJSON(router, http.MethodPost, "/api/v1/query", map[string]any{"query": "free wifi near City Hall"})
	require.Equal(t, http.StatusOK, w.Code)
	var out model.RetrievalOutcome
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))

	w = doJSON(router, http.MethodGet, "/api/v1/sessions/"+out.SessionID+"/memory", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats model.MemoryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.InteractionCount)
	assert.Equal(t, 2, stats.LastResultCount)
	assert.True(t, stats.HasSpatialContext)
	require.Len(t, stats.Turns, 1)
	assert.Equal(t, "free wifi near City Hall", stats.Turns[0].Query)
	assert.Equal(t, []string{"Widener Library", "Free Library"}, stats.Turns[0].Organizations)
	assert.True(t, stats.Turns[0].Spatial)

	w = doJSON(router, http.MethodDelete, "/api/v1/sessions/"+out.SessionID+"/memory", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(router, http.MethodGet, "/api/v1/sessions/"+out.SessionID+"/memory", nil)
	stats = model.MemoryResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 0, stats.InteractionCount)
	assert.NotNil(t, stats.Turns)
	assert.Empty(t, stats.Turns)

	w = doJSON(router, http.MethodGet, "/api/v1/sessions/unknown/memory", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestQueryStream(t *testing.T) {
	router, _ := setupRouter(&stubExecutor{records: libraries()}, nil)

	w := doJSON(router, http.MethodPost, "/api/v1/query/stream", map[string]any{"query": "free wifi near City Hall"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream; charset=utf-8", w.Header().Get("Content-Type"))

	body := w.Body.String()
	order := []string{"start", "normalized", "memory", "spatial", "filters", "attempt", "response", "results", "done"}
	last := -1
	for _, event := range order {
		idx := strings.Index(body, "event: "+event+"\n")
		require.GreaterOrEqual(t, idx, 0, event)
		assert.Greater(t, idx, last, event)
		last = idx
	}
}

func TestQueryStreamUnknownSession(t *testing.T) {
	router, _ := setupRouter(&stubExecutor{}, nil)

	w := doJSON(router, http.MethodPost, "/api/v1/query/stream", map[string]any{"query": "printer", "session_id": "unknown"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFeedback(t *testing.T) {
	tests := []struct {
		name   string
		logs   service.QueryLogger
		action string
		want   int
	}{
		{"ok", &stubLogs{}, "call", http.StatusOK},
		{"invalid action", &stubLogs{}, "like", http.StatusBadRequest},
		{"unknown query", &stubLogs{feedbackErr: repository.ErrNotFound}, "click", http.StatusNotFound},
		{"store down", &stubLogs{feedbackErr: errors.New("timeout")}, "click", http.StatusInternalServerError},
		{"disabled", nil, "directions", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := setupRouter(&stubExecutor{}, tt.logs)
			w := doJSON(router, http.MethodPost, "/api/v1/feedback", map[string]any{
				"query_id":     "q1",
				"organization": "Free Library",
				"action":       tt.action,
			})
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestQueryLog(t *testing.T) {
	entry := &model.QueryLog{QueryID: "q1", SessionID: "s1", Query: "printer", ResultCount: 2, Organizations: model.StringList{"Free Library"}}

	tests := []struct {
		name string
		logs service.QueryLogger
		want int
	}{
		{"found", &stubLogs{entry: entry}, http.StatusOK},
		{"unknown query", &stubLogs{getErr: repository.ErrNotFound}, http.StatusNotFound},
		{"store down", &stubLogs{getErr: errors.New("timeout")}, http.StatusInternalServerError},
		{"disabled", nil, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := setupRouter(&stubExecutor{}, tt.logs)
			w := doJSON(router, http.MethodGet, "/api/v1/queries/q1", nil)
			require.Equal(t, tt.want, w.Code)
			if tt.want != http.StatusOK {
				return
			}
			var got model.QueryLog
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
			assert.Equal(t, *entry, got)
		})
	}
}
