package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"orgfinder/internal/llm"
	"orgfinder/internal/memory"
	"orgfinder/internal/model"
	"orgfinder/internal/response"
	"orgfinder/internal/spatial"
)

var cityHall = model.Coordinates{Latitude: 39.952335, Longitude: -75.163789}

type recordingLogger struct {
	mu       sync.Mutex
	entries  []*model.QueryLog
	feedback []string
}

func (l *recordingLogger) LogQuery(ctx context.Context, entry *model.QueryLog) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

func (l *recordingLogger) LogFeedback(ctx context.Context, queryID, organization, action string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.feedback = append(l.feedback, queryID+"/"+organization+"/"+action)
	return nil
}

func (l *recordingLogger) GetQueryLog(ctx context.Context, queryID string) (*model.QueryLog, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.QueryID == queryID {
			return e, nil
		}
	}
	return nil, errors.New("not found")
}

type promptRecorder struct {
	mu      sync.Mutex
	prompts []string
}

func (g *promptRecorder) Generate(ctx context.Context, prompt string, jsonMode bool) (*llm.Generation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	return &llm.Generation{Text: "Here are the libraries.\n* Widener Library", Usage: model.TokenUsage{TotalTokens: 10}}, nil
}

func (g *promptRecorder) IsEnabled() bool { return true }

func (g *promptRecorder) last() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.prompts[len(g.prompts)-1]
}

func newTestService(t *testing.T, exec *fakeExecutor, logs QueryLogger) *QueryService {
	logger := zaptest.NewLogger(t)
	sessions := NewSessionManager(SessionOptions{
		HistorySize: 5,
		Spatial: spatial.Options{
			DefaultThreshold:  0.8,
			ExpandedThreshold: 1.25,
			DefaultLocation:   &cityHall,
		},
	}, logger)
	return NewQueryService(Components{
		Orchestrator: NewOrchestrator(nil, exec, 1.25, logger),
		Sessions:     sessions,
		Logs:         logs,
	}, 5, 10, logger)
}

func TestProcessWifiNearCityHall(t *testing.T) {
	exec := &fakeExecutor{results: [][]model.Record{libraryRecords("Widener Library", "Free Library")}}
	svc := newTestService(t, exec, nil)

	out, err := svc.Process(context.Background(), &model.QueryRequest{Query: "free wifi near City Hall"})
	require.NoError(t, err)

	assert.True(t, out.Succeeded())
	assert.NotEmpty(t, out.SessionID)
	assert.NotEmpty(t, out.QueryID)
	assert.Equal(t, "free wi-fi near City Hall", out.NormalizedQuery)
	assert.True(t, out.IsSpatial)
	require.True(t, out.Spatial.HasCoordinates())
	assert.Equal(t, cityHall, *out.Spatial.Coordinates)
	assert.Equal(t, 0.8, out.Spatial.DistanceThresholdMiles)
	assert.Equal(t, "wi-fi", out.Services.Primary)
	assert.Equal(t, "Library", out.Category)

	require.Len(t, exec.calls, 1)
	params := exec.calls[0].params
	assert.Equal(t, cityHall.Latitude, params["lat"])
	assert.Equal(t, cityHall.Longitude, params["lon"])
	assert.Equal(t, 0.8, params["threshold"])
	assert.Equal(t, "library", params["category"])
	assert.NotContains(t, exec.calls[0].text, "streetAddress) CONTAINS")

	require.NotNil(t, out.Response)
	assert.Equal(t, model.AnswerSpatial, out.Response.Mode)
	assert.Len(t, out.Response.Organizations, 2)
	assert.Empty(t, out.Legs)
}

func TestProcessPrinter(t *testing.T) {
	exec := &fakeExecutor{results: [][]model.Record{libraryRecords("Free Library")}}
	svc := newTestService(t, exec, nil)

	out, err := svc.Process(context.Background(), &model.QueryRequest{Query: "printer"})
	require.NoError(t, err)

	assert.False(t, out.IsSpatial)
	assert.Nil(t, out.Spatial)
	assert.False(t, out.AppliedFilters.ApplyLocation)
	assert.False(t, out.AppliedFilters.ApplyTime)
	assert.True(t, out.AppliedFilters.ApplyService)
	assert.Equal(t, "print", out.Services.Primary)
	assert.Equal(t, []string{"Library"}, out.Categories.Categories())

	require.Len(t, exec.calls, 1)
	assert.NotContains(t, exec.calls[0].params, "lat")
	assert.Equal(t, "print", exec.calls[0].params["service_0"])
}

func TestProcessExpansionFallback(t *testing.T) {
	exec := &fakeExecutor{results: [][]model.Record{nil, nil, libraryRecords("Free Library")}}
	svc := newTestService(t, exec, nil)

	out, err := svc.Process(context.Background(), &model.QueryRequest{Query: "free wifi near City Hall"})
	require.NoError(t, err)

	assert.True(t, out.ClosestFallback)
	assert.False(t, out.ExpandedRadius)
	assert.Equal(t, []model.RetrievalStage{model.StageDefault, model.StageExpanded, model.StageClosest}, stages(out.Attempts))
	assert.True(t, out.Spatial.Unbounded)

	stats := svc.Sessions().mustGet(t, out.SessionID).Memory.Stats()
	assert.Equal(t, 1, stats.InteractionCount)
	assert.True(t, stats.HasSpatialContext)
}

func TestProcessExpandedRadiusUpdatesContext(t *testing.T) {
	exec := &fakeExecutor{results: [][]model.Record{nil, libraryRecords("Free Library")}}
	svc := newTestService(t, exec, nil)

	out, err := svc.Process(context.Background(), &model.QueryRequest{Query: "free wifi near City Hall"})
	require.NoError(t, err)
	assert.True(t, out.ExpandedRadius)
	assert.Equal(t, 1.25, out.Spatial.DistanceThresholdMiles)
}

func TestProcessFollowupUsesMemory(t *testing.T) {
	exec := &fakeExecutor{results: [][]model.Record{libraryRecords("Widener Library", "Free Library")}}
	svc := newTestService(t, exec, nil)
	ctx := context.Background()

	first, err := svc.Process(ctx, &model.QueryRequest{Query: "free wifi near City Hall"})
	require.NoError(t, err)
	require.True(t, first.Succeeded())
	require.Equal(t, 1, exec.callCount())

	out, err := svc.Process(ctx, &model.QueryRequest{SessionID: first.SessionID, Query: "what are their hours?"})
	require.NoError(t, err)

	assert.True(t, out.UsedMemory)
	assert.Equal(t, 1, exec.callCount())
	assert.Empty(t, out.Attempts)
	assert.Equal(t, []string{"Widener Library", "Free Library"}, names(out.Records))

	out, err = svc.Process(ctx, &model.QueryRequest{SessionID: first.SessionID, Query: "are they open on sunday"})
	require.NoError(t, err)
	assert.True(t, out.UsedMemory)
	assert.True(t, out.Focused)
	assert.Equal(t, "are Widener Library, Free Library open on sunday", out.ProcessedQuery)
	assert.Equal(t, 1, exec.callCount())

	stats := svc.Sessions().mustGet(t, first.SessionID).Memory.Stats()
	assert.Equal(t, 1, stats.InteractionCount)
}

func TestProcessMemoryAnswers(t *testing.T) {
	exec := &fakeExecutor{results: [][]model.Record{libraryRecords("Widener Library", "Free Library")}}
	svc := newTestService(t, exec, nil)
	gen := &promptRecorder{}
	svc.responder = response.NewResponder(gen, zaptest.NewLogger(t))
	ctx := context.Background()

	first, err := svc.Process(ctx, &model.QueryRequest{Query: "free wifi near City Hall"})
	require.NoError(t, err)
	require.NotNil(t, first.Response)
	assert.True(t, first.Response.Generated)
	assert.Equal(t, "the libraries:", first.Response.Intro)
	assert.Equal(t, 10, first.Metrics.Tokens.TotalTokens)

	simple, err := svc.Process(ctx, &model.QueryRequest{SessionID: first.SessionID, Query: "what are their hours?"})
	require.NoError(t, err)
	assert.True(t, simple.UsedMemory)
	assert.True(t, simple.SimpleFollowup)
	require.NotNil(t, simple.Response)
	assert.Equal(t, model.AnswerSpatial, simple.Response.Mode)
	assert.NotContains(t, gen.last(), "MEMORY CONTEXT")

	focused, err := svc.Process(ctx, &model.QueryRequest{SessionID: first.SessionID, Query: "are they open on sunday"})
	require.NoError(t, err)
	assert.True(t, focused.UsedMemory)
	assert.False(t, focused.SimpleFollowup)
	require.NotNil(t, focused.Response)
	assert.Equal(t, model.AnswerFocused, focused.Response.Mode)
	assert.Equal(t, "Here are the libraries.\n* Widener Library", focused.Response.Text)
	assert.Contains(t, gen.last(), "MEMORY CONTEXT")
	assert.Contains(t, gen.last(), "Previous Query: free wifi near City Hall")
	assert.Contains(t, gen.last(), "Question: are Widener Library, Free Library open on sunday")

	assert.Equal(t, 1, exec.callCount())
	assert.Len(t, gen.prompts, 3)
	assert.Equal(t, memory.IsSimpleFollowup("what are their hours?"), simple.SimpleFollowup)
}

func TestProcessMultipleCategories(t *testing.T) {
	food := []model.Record{{"name": "Broad Street Ministry", "latitude": 39.9481, "longitude": -75.1652}}
	exec := &fakeExecutor{results: [][]model.Record{food, libraryRecords("Parkway Central Library")}}
	svc := newTestService(t, exec, nil)

	var events []string
	out, err := svc.ProcessStream(context.Background(), &model.QueryRequest{Query: "free wifi and food near City Hall"}, func(event string, data any) error {
		events = append(events, event)
		return nil
	})
	require.NoError(t, err)

	assert.True(t, out.Succeeded())
	assert.Equal(t, []string{"Food Bank", "Library"}, out.Categories.Categories())
	assert.Empty(t, out.Category)
	assert.Equal(t, []string{"Broad Street Ministry", "Parkway Central Library"}, names(out.Records))

	require.Len(t, exec.calls, 2)
	assert.Equal(t, "food bank", exec.calls[0].params["category"])
	assert.Equal(t, cityHall.Latitude, exec.calls[0].params["lat"])
	assert.Equal(t, cityHall.Longitude, exec.calls[0].params["lon"])
	assert.Equal(t, "library", exec.calls[1].params["category"])
	assert.Equal(t, 39.9481, exec.calls[1].params["lat"])
	assert.Equal(t, -75.1652, exec.calls[1].params["lon"])

	require.Len(t, out.Legs, 2)
	assert.Equal(t, "Food Bank", out.Legs[0].Category)
	assert.Contains(t, out.Legs[0].Services, "food")
	assert.Equal(t, cityHall, *out.Legs[0].Origin)
	assert.Equal(t, []string{"Broad Street Ministry"}, names(out.Legs[0].Records))
	assert.Equal(t, "Library", out.Legs[1].Category)
	assert.Contains(t, out.Legs[1].Services, "wi-fi")
	assert.Equal(t, model.Coordinates{Latitude: 39.9481, Longitude: -75.1652}, *out.Legs[1].Origin)
	for _, leg := range out.Legs {
		require.NotNil(t, leg.Response)
		assert.Equal(t, model.AnswerSpatial, leg.Response.Mode)
	}

	require.Len(t, out.Attempts, 2)
	assert.Equal(t, "Food Bank", out.Attempts[0].Category)
	assert.Equal(t, "Library", out.Attempts[1].Category)

	require.NotNil(t, out.Response)
	assert.Len(t, out.Response.Organizations, 2)
	assert.Equal(t, 2, out.Response.Organizations[1].Number)
	assert.Equal(t, []string{"normalized", "memory", "spatial", "filters", "attempt", "category", "attempt", "category", "response"}, events)

	stats := svc.Sessions().mustGet(t, out.SessionID).Memory.Stats()
	assert.Equal(t, 1, stats.InteractionCount)
	assert.Equal(t, 2, stats.LastResultCount)
}

func TestProcessMultipleCategoriesSkipsEmptyLeg(t *testing.T) {
	exec := &fakeExecutor{results: [][]model.Record{nil, nil, nil, libraryRecords("Parkway Central Library")}}
	svc := newTestService(t, exec, nil)

	out, err := svc.Process(context.Background(), &model.QueryRequest{Query: "free wifi and food near City Hall"})
	require.NoError(t, err)

	assert.True(t, out.Succeeded())
	require.Len(t, exec.calls, 4)
	assert.Equal(t, "library", exec.calls[3].params["category"])
	assert.Equal(t, cityHall.Latitude, exec.calls[3].params["lat"])

	require.Len(t, out.Legs, 2)
	assert.Equal(t, model.FailureNoResults, out.Legs[0].FailureReason)
	assert.Equal(t, model.AnswerNone, out.Legs[0].Response.Mode)
	assert.Contains(t, out.Notices, "Food Bank: "+model.FailureNoResults.Message())
	assert.Equal(t, []string{"Parkway Central Library"}, names(out.Records))
}

func TestProcessMultipleCategoriesAllEmpty(t *testing.T) {
	exec := &fakeExecutor{}
	svc := newTestService(t, exec, nil)

	out, err := svc.Process(context.Background(), &model.QueryRequest{Query: "free wifi and food near City Hall"})
	require.NoError(t, err)

	assert.Equal(t, model.FailureNoResults, out.FailureReason)
	assert.Len(t, out.Legs, 2)
	assert.Equal(t, 6, exec.callCount())
	assert.Empty(t, out.Records)
}

func TestProcessFailureClearsMemory(t *testing.T) {
	exec := &fakeExecutor{results: [][]model.Record{libraryRecords("Widener Library", "Free Library")}}
	svc := newTestService(t, exec, nil)
	ctx := context.Background()

	first, err := svc.Process(ctx, &model.QueryRequest{Query: "free wifi near City Hall"})
	require.NoError(t, err)
	sess := svc.Sessions().mustGet(t, first.SessionID)
	require.Equal(t, 1, sess.Memory.Len())

	out, err := svc.Process(ctx, &model.QueryRequest{SessionID: first.SessionID, Query: "food pantry near Fishtown"})
	require.NoError(t, err)

	assert.False(t, out.UsedMemory)
	assert.Equal(t, model.FailureNoResults, out.FailureReason)
	assert.Equal(t, model.FailureNoResults.Message(), out.Failure)
	assert.Len(t, out.Attempts, 3)
	assert.Equal(t, 4, exec.callCount())
	assert.Equal(t, 0, sess.Memory.Len())
	require.NotNil(t, out.Response)
	assert.Equal(t, model.AnswerNone, out.Response.Mode)
	assert.Equal(t, response.NoResults, out.Response.Text)
}

func TestProcessWithoutBackendClearsMemory(t *testing.T) {
	exec := &fakeExecutor{results: [][]model.Record{libraryRecords("Widener Library")}}
	svc := newTestService(t, exec, nil)
	ctx := context.Background()

	first, err := svc.Process(ctx, &model.QueryRequest{Query: "free wifi near City Hall"})
	require.NoError(t, err)
	sess := svc.Sessions().mustGet(t, first.SessionID)
	require.Equal(t, 1, sess.Memory.Len())

	offline := NewQueryService(Components{Sessions: svc.Sessions()}, 5, 10, zaptest.NewLogger(t))
	out, err := offline.Process(ctx, &model.QueryRequest{SessionID: first.SessionID, Query: "food pantry near Fishtown"})
	require.NoError(t, err)

	assert.Equal(t, model.FailureBackend, out.FailureReason)
	assert.Empty(t, out.Records)
	assert.Equal(t, 0, sess.Memory.Len())
}

func TestProcessBackendFailure(t *testing.T) {
	exec := &fakeExecutor{errs: []error{errors.New("connection refused")}}
	svc := newTestService(t, exec, nil)

	out, err := svc.Process(context.Background(), &model.QueryRequest{Query: "free wifi near City Hall"})
	require.NoError(t, err)
	assert.Equal(t, model.FailureBackend, out.FailureReason)
	assert.Len(t, out.Attempts, 1)
	assert.Empty(t, out.Records)
	assert.NotContains(t, out.Failure, "connection refused")
}

func TestProcessCancelledKeepsMemory(t *testing.T) {
	exec := &fakeExecutor{results: [][]model.Record{libraryRecords("Free Library")}}
	svc := newTestService(t, exec, nil)

	first, err := svc.Process(context.Background(), &model.QueryRequest{Query: "free wifi near City Hall"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := svc.Process(ctx, &model.QueryRequest{SessionID: first.SessionID, Query: "food pantry near Fishtown"})
	require.NoError(t, err)
	assert.Equal(t, model.FailureCancelled, out.FailureReason)
	assert.Equal(t, 1, svc.Sessions().mustGet(t, first.SessionID).Memory.Len())
}

func TestProcessTruncatesResults(t *testing.T) {
	many := make([]string, 15)
	for i := range many {
		many[i] = fmt.Sprintf("Library %02d", i)
	}
	exec := &fakeExecutor{results: [][]model.Record{libraryRecords(many...)}}
	svc := newTestService(t, exec, nil)

	out, err := svc.Process(context.Background(), &model.QueryRequest{Query: "printer"})
	require.NoError(t, err)
	assert.Len(t, out.Records, 10)
}

func TestProcessCallerCoordinates(t *testing.T) {
	exec := &fakeExecutor{results: [][]model.Record{libraryRecords("Free Library")}}
	svc := newTestService(t, exec, nil)

	lat, lon := 40.0, -75.1
	out, err := svc.Process(context.Background(), &model.QueryRequest{Query: "food near me", Latitude: &lat, Longitude: &lon})
	require.NoError(t, err)
	assert.True(t, out.Spatial.Personal)
	assert.Equal(t, lat, exec.calls[0].params["lat"])
	assert.Equal(t, "Food Bank", out.Category)
}

func TestProcessRequestedCategory(t *testing.T) {
	exec := &fakeExecutor{results: [][]model.Record{libraryRecords("Free Library")}}
	svc := newTestService(t, exec, nil)

	out, err := svc.Process(context.Background(), &model.QueryRequest{Query: "food and printer", Category: "library"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Food Bank", "Library"}, out.Categories.Categories())
	assert.Equal(t, "Library", out.Category)
	assert.Equal(t, "library", exec.calls[0].params["category"])
}

func TestProcessUnknownSession(t *testing.T) {
	svc := newTestService(t, &fakeExecutor{}, nil)

	_, err := svc.Process(context.Background(), &model.QueryRequest{SessionID: "nope", Query: "printer"})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestProcessLogsQuery(t *testing.T) {
	logs := &recordingLogger{}
	exec := &fakeExecutor{results: [][]model.Record{libraryRecords("Widener Library", "Free Library")}}
	svc := newTestService(t, exec, logs)

	out, err := svc.Process(context.Background(), &model.QueryRequest{Query: "free wifi near City Hall"})
	require.NoError(t, err)
	svc.Wait()

	require.Len(t, logs.entries, 1)
	entry := logs.entries[0]
	assert.Equal(t, out.QueryID, entry.QueryID)
	assert.Equal(t, "wi-fi", entry.PrimaryService)
	assert.Equal(t, "city hall", entry.LocationText)
	assert.Equal(t, 2, entry.ResultCount)
	assert.Equal(t, model.StringList{"Widener Library", "Free Library"}, entry.Organizations)

	require.NoError(t, svc.LogFeedback(context.Background(), out.QueryID, "Free Library", "call"))
	assert.Equal(t, []string{out.QueryID + "/Free Library/call"}, logs.feedback)
}

func TestLogFeedbackDisabled(t *testing.T) {
	svc := newTestService(t, &fakeExecutor{}, nil)
	assert.ErrorIs(t, svc.LogFeedback(context.Background(), "q", "org", "click"), ErrLoggingDisabled)

	_, err := svc.GetQueryLog(context.Background(), "q")
	assert.ErrorIs(t, err, ErrLoggingDisabled)
}

func TestGetQueryLog(t *testing.T) {
	logs := &recordingLogger{}
	svc := newTestService(t, &fakeExecutor{results: [][]model.Record{libraryRecords("Free Library")}}, logs)

	out, err := svc.Process(context.Background(), &model.QueryRequest{Query: "printer"})
	require.NoError(t, err)
	svc.Wait()

	entry, err := svc.GetQueryLog(context.Background(), out.QueryID)
	require.NoError(t, err)
	assert.Equal(t, "printer", entry.Query)
	assert.Equal(t, 1, entry.ResultCount)
}

func TestProcessStreamEvents(t *testing.T) {
	exec := &fakeExecutor{results: [][]model.Record{nil, libraryRecords("Free Library")}}
	svc := newTestService(t, exec, nil)

	var events []string
	out, err := svc.ProcessStream(context.Background(), &model.QueryRequest{Query: "free wifi near City Hall"}, func(event string, data any) error {
		events = append(events, event)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, out.ExpandedRadius)
	assert.Equal(t, []string{"normalized", "memory", "spatial", "filters", "attempt", "attempt", "response"}, events)
}

func TestProcessStreamCallbackError(t *testing.T) {
	exec := &fakeExecutor{}
	svc := newTestService(t, exec, nil)

	gone := errors.New("client gone")
	_, err := svc.ProcessStream(context.Background(), &model.QueryRequest{Query: "printer"}, func(event string, data any) error {
		if event == "filters" {
			return gone
		}
		return nil
	})
	assert.ErrorIs(t, err, gone)
	assert.Zero(t, exec.callCount())
}

func names(records []model.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		n, _ := r.String("name")
		out = append(out, n)
	}
	return out
}

func (m *SessionManager) mustGet(t *testing.T, id string) *Session {
	t.Helper()
	s, err := m.Get(id)
	require.NoError(t, err)
	return s
}
