package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"orgfinder/internal/classifier"
	"orgfinder/internal/cypher"
	"orgfinder/internal/filter"
	"orgfinder/internal/memory"
	"orgfinder/internal/metrics"
	"orgfinder/internal/model"
	"orgfinder/internal/normalizer"
	"orgfinder/internal/reference"
	"orgfinder/internal/response"
	"orgfinder/internal/spatial"
	"orgfinder/internal/vocabulary"
)

// EventCallback is called for streaming pipeline events
type EventCallback func(event string, data any) error

// QueryLogger persists processed queries and feedback
type QueryLogger interface {
	LogQuery(ctx context.Context, entry *model.QueryLog) error
	LogFeedback(ctx context.Context, queryID, organization, action string) error
	GetQueryLog(ctx context.Context, queryID string) (*model.QueryLog, error)
}

// ErrLoggingDisabled is returned for feedback when no query log is configured
var ErrLoggingDisabled = errors.New("query logging is disabled")

// Components are the collaborators of the query pipeline
type Components struct {
	Normalizer   *normalizer.Normalizer
	Vocabulary   *vocabulary.Resolver
	Classifier   classifier.Classifier
	Finder       *reference.Finder
	Orchestrator *Orchestrator
	Responder    *response.Responder
	Sessions     *SessionManager
	Logs         QueryLogger
}

// QueryService runs the query pipeline for session requests
type QueryService struct {
	normalizer   *normalizer.Normalizer
	vocabulary   *vocabulary.Resolver
	classifier   classifier.Classifier
	finder       *reference.Finder
	orchestrator *Orchestrator
	responder    *response.Responder
	sessions     *SessionManager
	logs         QueryLogger

	specificityLimit int
	maxResults       int
	logger           *zap.Logger
	pending          sync.WaitGroup
}

// NewQueryService creates a new query service
func NewQueryService(c Components, specificityLimit, maxResults int, logger *zap.Logger) *QueryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if c.Normalizer == nil {
		c.Normalizer = normalizer.Default()
	}
	if c.Vocabulary == nil {
		c.Vocabulary = vocabulary.Default()
	}
	if c.Classifier == nil {
		c.Classifier = classifier.NewHeuristic(nil)
	}
	if c.Finder == nil {
		c.Finder = reference.NewFinder(nil)
	}
	if c.Responder == nil {
		c.Responder = response.NewResponder(nil, logger)
	}
	if c.Sessions == nil {
		c.Sessions = NewSessionManager(SessionOptions{}, logger)
	}
	if specificityLimit <= 0 {
		specificityLimit = filter.DefaultSpecificityLimit
	}
	return &QueryService{
		normalizer:       c.Normalizer,
		vocabulary:       c.Vocabulary,
		classifier:       c.Classifier,
		finder:           c.Finder,
		orchestrator:     c.Orchestrator,
		responder:        c.Responder,
		sessions:         c.Sessions,
		logs:             c.Logs,
		specificityLimit: specificityLimit,
		maxResults:       maxResults,
		logger:           logger.With(zap.String("component", "query")),
	}
}

// Sessions returns the session manager
func (s *QueryService) Sessions() *SessionManager {
	return s.sessions
}

// Process answers one query. Failures are reported on the outcome; the error
// is only set for an unknown session.
func (s *QueryService) Process(ctx context.Context, req *model.QueryRequest) (*model.RetrievalOutcome, error) {
	return s.run(ctx, req, nil)
}

// ProcessStream answers one query and reports each pipeline stage through
// callback. An error from callback aborts the pipeline.
func (s *QueryService) ProcessStream(ctx context.Context, req *model.QueryRequest, callback EventCallback) (*model.RetrievalOutcome, error) {
	return s.run(ctx, req, callback)
}

// Wait blocks until queued query logs are written
func (s *QueryService) Wait() {
	s.pending.Wait()
}

// LogFeedback records a user action on a returned organization
func (s *QueryService) LogFeedback(ctx context.Context, queryID, organization, action string) error {
	if s.logs == nil {
		return ErrLoggingDisabled
	}
	return s.logs.LogFeedback(ctx, queryID, organization, action)
}

// GetQueryLog returns the logged row of one processed query
func (s *QueryService) GetQueryLog(ctx context.Context, queryID string) (*model.QueryLog, error) {
	if s.logs == nil {
		return nil, ErrLoggingDisabled
	}
	return s.logs.GetQueryLog(ctx, queryID)
}

type pipeline struct {
	session  *Session
	request  *model.QueryRequest
	outcome  *model.RetrievalOutcome
	callback EventCallback
	start    time.Time
}

func (p *pipeline) emit(event string, data any) error {
	if p.callback == nil {
		return nil
	}
	return p.callback(event, data)
}

func (s *QueryService) run(ctx context.Context, req *model.QueryRequest, callback EventCallback) (*model.RetrievalOutcome, error) {
	sess, err := s.sessions.Resolve(req.SessionID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	unlock := sess.lock(start)
	defer unlock()

	p := &pipeline{
		session:  sess,
		request:  req,
		callback: callback,
		start:    start,
		outcome: &model.RetrievalOutcome{
			QueryID:   uuid.NewString(),
			SessionID: sess.ID,
			Query:     req.Query,
			Records:   []model.Record{},
		},
	}

	err = s.execute(ctx, p)
	s.finish(p)
	if err != nil {
		return p.outcome, err
	}
	return p.outcome, nil
}

// execute runs the pipeline stages. It returns only callback errors.
func (s *QueryService) execute(ctx context.Context, p *pipeline) error {
	out := p.outcome
	query := strings.TrimSpace(p.request.Query)

	normalized := s.normalizer.Normalize(query)
	out.NormalizedQuery = normalized
	if err := p.emit("normalized", map[string]any{"query": query, "normalized": normalized}); err != nil {
		return err
	}

	decision := p.session.Memory.Decide(query)
	if decision.Use {
		metrics.MemoryDecisions.WithLabelValues(string(decision.Kind)).Inc()
		return s.answerFromMemory(ctx, p, query, decision)
	}
	metrics.MemoryDecisions.WithLabelValues("none").Inc()
	if err := p.emit("memory", map[string]any{"used": false}); err != nil {
		return err
	}

	var (
		services   model.CanonicalServiceSet
		resolution spatial.Resolution
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		services = s.vocabulary.Resolve(normalized)
		return nil
	})
	g.Go(func() error {
		resolution = p.session.Spatial.Resolve(gctx, normalized, p.request.CallerCoordinates())
		return nil
	})
	_ = g.Wait()

	if ctx.Err() != nil {
		s.cancelled(p)
		return nil
	}

	out.Services = services
	out.IsSpatial = resolution.IsSpatial
	out.Spatial = resolution.Context
	out.Metrics.SpatialMs = float64(resolution.Duration.Microseconds()) / 1000
	metrics.StageDuration.WithLabelValues("spatial").Observe(resolution.Duration.Seconds())
	if resolution.IsSpatial {
		metrics.GeocodeLookups.WithLabelValues(string(resolution.Source)).Inc()
	}
	if resolution.GeocodeFailed {
		out.Notice(model.FailureGeocoding.Message() + ": " + resolution.Phrase)
	}
	if err := p.emit("spatial", map[string]any{
		"is_spatial":     resolution.IsSpatial,
		"rule":           resolution.Rule,
		"phrase":         resolution.Phrase,
		"source":         resolution.Source,
		"context":        resolution.Context,
		"geocode_failed": resolution.GeocodeFailed,
		"services":       services,
	}); err != nil {
		return err
	}

	extraction, err := s.classifier.Extract(ctx, normalized)
	if err != nil {
		s.cancelled(p)
		return nil
	}
	out.Intent = extraction.Intent
	out.Metrics = model.CombineMetrics(out.Metrics, extraction.Metrics)
	if extraction.Degraded || extraction.Intent.IsEmpty() {
		out.Notice(model.FailureClassification.Message())
	}

	categorization, err := s.classifier.Categorize(ctx, categoryInput(services, extraction.Intent))
	if err != nil {
		s.cancelled(p)
		return nil
	}
	out.Metrics = model.CombineMetrics(out.Metrics, categorization.Metrics)
	out.Categories = categorization.Plan
	if len(out.Categories) <= 1 || p.request.Category != "" {
		out.Category = selectCategory(out.Categories, p.request.Category).Category
	}

	candidates := s.finder.Match(extraction.Intent, services)
	out.Candidates = candidates.Counts()
	out.AppliedFilters = filter.Decide(extraction.Intent, out.Candidates, s.specificityLimit)
	if err := p.emit("filters", map[string]any{
		"intent":     out.Intent,
		"services":   services,
		"categories": out.Categories,
		"category":   out.Category,
		"candidates": out.Candidates,
		"applied":    out.AppliedFilters,
	}); err != nil {
		return err
	}

	if s.orchestrator == nil {
		out.Fail(model.FailureBackend)
		p.session.Memory.Clear()
		return nil
	}

	base := cypher.Request{
		Question: normalized,
		Decision: out.AppliedFilters,
		Filters: cypher.Filters{
			TimePhrase:         extraction.Intent.TimePhrase,
			TimeCandidates:     candidates.Times,
			LocationPhrase:     extraction.Intent.LocationPhrase,
			LocationCandidates: candidates.Locations,
			ServicePhrase:      extraction.Intent.ServicePhrase,
			ServiceCandidates:  candidates.Services,
		},
	}

	if len(out.Categories) > 1 && p.request.Category == "" {
		return s.retrieveLegs(ctx, p, query, base, resolution)
	}

	selected := selectCategory(out.Categories, p.request.Category)
	request := base
	request.Category = selected.Category
	request.Filters.ServiceKeywords = services.All
	if len(selected.Services) > 0 {
		request.Filters.ServiceKeywords = selected.Services
	}
	if sc := resolution.Context; sc.HasCoordinates() {
		origin := *sc.Coordinates
		threshold := sc.DistanceThresholdMiles
		request.Origin = &origin
		request.ThresholdMiles = &threshold
	}

	retrieval := s.orchestrator.Run(ctx, request, func(a model.RetrievalAttempt) error {
		return p.emit("attempt", a)
	})
	out.Attempts = retrieval.Attempts
	out.Metrics = model.CombineMetrics(out.Metrics, retrieval.Metrics)

	switch retrieval.Failure {
	case model.FailureNone:
		out.Records = s.truncate(retrieval.Records)
		out.ExpandedRadius = retrieval.ExpandedRadius
		out.ClosestFallback = retrieval.ClosestFallback
		out.Spatial = appliedSpatial(resolution.Context, retrieval)
		p.session.Memory.AddInteraction(query, out.Records, out.Spatial)
	case model.FailureCancelled:
		s.cancelled(p)
		if ctx.Err() == nil && retrieval.Err != nil {
			return retrieval.Err
		}
		return nil
	default:
		s.failed(p, retrieval.Failure)
		if retrieval.Failure != model.FailureNoResults {
			return nil
		}
	}

	out.Response = s.respond(ctx, p, response.Request{
		Question: query,
		Records:  out.Records,
		Spatial:  out.IsSpatial,
	})
	if out.Response == nil {
		return nil
	}
	return p.emit("response", out.Response)
}

// retrieveLegs searches each planned category in plan order. Every leg after
// the first starts from the first organization the previous successful leg found.
func (s *QueryService) retrieveLegs(ctx context.Context, p *pipeline, query string, base cypher.Request, resolution spatial.Resolution) error {
	out := p.outcome

	origin, threshold := legOrigin(p, resolution)
	failure := model.FailureNoResults
	var records []model.Record

	for _, leg := range out.Categories {
		request := base
		request.Category = leg.Category
		request.Filters.ServiceKeywords = leg.Services
		if origin != nil {
			o, t := *origin, threshold
			request.Origin = &o
			request.ThresholdMiles = &t
		}

		retrieval := s.orchestrator.Run(ctx, request, func(a model.RetrievalAttempt) error {
			a.Category = leg.Category
			return p.emit("attempt", a)
		})
		attempts := make([]model.RetrievalAttempt, 0, len(retrieval.Attempts))
		for _, a := range retrieval.Attempts {
			a.Category = leg.Category
			attempts = append(attempts, a)
		}
		out.Attempts = append(out.Attempts, attempts...)
		out.Metrics = model.CombineMetrics(out.Metrics, retrieval.Metrics)

		if retrieval.Failure == model.FailureCancelled {
			s.cancelled(p)
			if ctx.Err() == nil && retrieval.Err != nil {
				return retrieval.Err
			}
			return nil
		}

		result := model.CategoryResult{
			Category:        leg.Category,
			Services:        leg.Services,
			Origin:          request.Origin,
			Records:         s.truncate(retrieval.Records),
			Attempts:        attempts,
			ExpandedRadius:  retrieval.ExpandedRadius,
			ClosestFallback: retrieval.ClosestFallback,
			FailureReason:   retrieval.Failure,
		}

		if retrieval.Failure == model.FailureNone && len(result.Records) > 0 {
			records = append(records, result.Records...)
			out.ExpandedRadius = out.ExpandedRadius || retrieval.ExpandedRadius
			out.ClosestFallback = out.ClosestFallback || retrieval.ClosestFallback
			if next := result.Records[0].Coordinates(); next != nil {
				origin = next
			}
		} else {
			out.Notice(leg.Category + ": " + retrieval.Failure.Message())
			if retrieval.Failure == model.FailureBackend {
				failure = model.FailureBackend
			}
		}

		result.Response = s.respond(ctx, p, response.Request{
			Question: query,
			Records:  result.Records,
			Spatial:  result.Origin != nil,
		})
		out.Legs = append(out.Legs, result)
		if err := p.emit("category", result); err != nil {
			return err
		}
	}

	if len(records) == 0 {
		s.failed(p, failure)
		return nil
	}
	out.Records = s.truncate(records)
	p.session.Memory.AddInteraction(query, out.Records, out.Spatial)
	out.Response = combineAnswers(out.Legs)
	return p.emit("response", out.Response)
}

// legOrigin is where the first leg searches from: the resolved location,
// otherwise the caller or default location
func legOrigin(p *pipeline, resolution spatial.Resolution) (*model.Coordinates, float64) {
	threshold := p.session.Spatial.DefaultThreshold()
	if sc := resolution.Context; sc.HasCoordinates() {
		origin := *sc.Coordinates
		if sc.DistanceThresholdMiles > 0 {
			threshold = sc.DistanceThresholdMiles
		}
		return &origin, threshold
	}
	return p.session.Spatial.Origin(p.request.CallerCoordinates()), threshold
}

// combineAnswers joins the answers of every leg under its category name
func combineAnswers(legs []model.CategoryResult) *model.Answer {
	combined := &model.Answer{Mode: model.AnswerSpatial}
	var parts []string
	for _, leg := range legs {
		if leg.Response == nil || len(leg.Records) == 0 {
			continue
		}
		parts = append(parts, leg.Category+"\n"+leg.Response.Text)
		combined.Generated = combined.Generated || leg.Response.Generated
		for _, org := range leg.Response.Organizations {
			org.Number = len(combined.Organizations) + 1
			combined.Organizations = append(combined.Organizations, org)
		}
	}
	combined.Text = strings.Join(parts, "\n\n")
	return combined
}

// respond writes the answer for records. It returns nil when ctx ended
// while the answer was generated.
func (s *QueryService) respond(ctx context.Context, p *pipeline, req response.Request) *model.Answer {
	answer, m, err := s.responder.Respond(ctx, req)
	if err != nil {
		s.logger.Debug("Response aborted", zap.String("session_id", p.session.ID), zap.Error(err))
		return nil
	}
	p.outcome.Metrics = model.CombineMetrics(p.outcome.Metrics, m)
	metrics.ResponseModes.WithLabelValues(string(answer.Mode)).Inc()
	return &answer
}

// failed marks a terminal retrieval failure and clears the session memory
func (s *QueryService) failed(p *pipeline, reason model.FailureReason) {
	p.outcome.Fail(reason)
	p.session.Memory.Clear()
	s.logger.Info("Query failed, memory cleared",
		zap.String("session_id", p.session.ID),
		zap.String("reason", string(reason)),
	)
}

func (s *QueryService) answerFromMemory(ctx context.Context, p *pipeline, query string, decision memory.Decision) error {
	out := p.outcome
	mem := p.session.Memory

	out.UsedMemory = true
	out.ProcessedQuery = mem.SubstitutePronouns(query)
	out.Focused = memory.IsFocusedFollowup(query)
	out.SimpleFollowup = memory.IsSimpleFollowup(query)
	out.Records = s.truncate(mem.LastRecords())
	out.Spatial = mem.LastSpatial()
	out.IsSpatial = out.Spatial != nil

	// A simple follow-up is answered from the cached records alone; any
	// other reuse carries the previous turn into the prompt.
	memoryContext := mem.Context()
	promptContext := memoryContext
	if out.SimpleFollowup {
		promptContext = ""
	}

	s.logger.Debug("Answering from memory",
		zap.String("session_id", p.session.ID),
		zap.String("rule", decision.Rule),
		zap.Bool("focused", out.Focused),
		zap.Bool("simple", out.SimpleFollowup),
	)
	if err := p.emit("memory", map[string]any{
		"used":            true,
		"kind":            decision.Kind,
		"rule":            decision.Rule,
		"processed_query": out.ProcessedQuery,
		"focused":         out.Focused,
		"simple":          out.SimpleFollowup,
		"context":         memoryContext,
	}); err != nil {
		return err
	}

	out.Response = s.respond(ctx, p, response.Request{
		Question:      out.ProcessedQuery,
		Records:       out.Records,
		Spatial:       out.IsSpatial,
		Focused:       out.Focused,
		MemoryContext: promptContext,
	})
	if out.Response == nil {
		return nil
	}
	return p.emit("response", out.Response)
}

// cancelled marks the outcome cancelled. Memory is left untouched.
func (s *QueryService) cancelled(p *pipeline) {
	p.outcome.Records = []model.Record{}
	p.outcome.Fail(model.FailureCancelled)
}

func (s *QueryService) truncate(records []model.Record) []model.Record {
	if records == nil {
		return []model.Record{}
	}
	if s.maxResults > 0 && len(records) > s.maxResults {
		return records[:s.maxResults]
	}
	return records
}

// finish records metrics and queues the query log
func (s *QueryService) finish(p *pipeline) {
	out := p.outcome
	out.Took = time.Since(p.start).Milliseconds()

	result := "success"
	switch {
	case out.FailureReason != model.FailureNone:
		result = string(out.FailureReason)
	case out.UsedMemory:
		result = "memory"
	}
	metrics.QueriesTotal.WithLabelValues(result).Inc()
	metrics.StageDuration.WithLabelValues("total").Observe(time.Since(p.start).Seconds())
	if t := out.Metrics.Tokens; t.TotalTokens > 0 {
		metrics.LLMTokens.WithLabelValues("input").Add(float64(t.InputTokens))
		metrics.LLMTokens.WithLabelValues("output").Add(float64(t.OutputTokens))
	}

	s.logger.Info("Query processed",
		zap.String("query_id", out.QueryID),
		zap.String("session_id", out.SessionID),
		zap.String("result", result),
		zap.Int("records", len(out.Records)),
		zap.Int("attempts", len(out.Attempts)),
		zap.Int64("took_ms", out.Took),
	)

	if s.logs == nil {
		return
	}
	entry := queryLog(out)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.logs.LogQuery(ctx, entry); err != nil {
			s.logger.Warn("Failed to log query", zap.String("query_id", entry.QueryID), zap.Error(err))
		}
	}()
}

func queryLog(out *model.RetrievalOutcome) *model.QueryLog {
	entry := &model.QueryLog{
		QueryID:         out.QueryID,
		SessionID:       out.SessionID,
		Query:           out.Query,
		NormalizedQuery: out.NormalizedQuery,
		PrimaryService:  out.Services.Primary,
		LocationText:    out.Intent.LocationPhrase,
		UsedMemory:      out.UsedMemory,
		ExpandedRadius:  out.ExpandedRadius,
		ClosestFallback: out.ClosestFallback,
		ResultCount:     len(out.Records),
		Organizations:   model.StringList(memory.OrganizationNames(out.Records)),
		FailureReason:   string(out.FailureReason),
		TotalTokens:     out.Metrics.Tokens.TotalTokens,
		ResponseTimeMs:  out.Took,
	}
	if entry.LocationText == "" && out.Spatial != nil {
		entry.LocationText = out.Spatial.SourceText
	}
	return entry
}

// appliedSpatial returns the spatial context with the radius the winning attempt used
func appliedSpatial(sc *model.SpatialContext, r Retrieval) *model.SpatialContext {
	if sc == nil || len(r.Attempts) == 0 {
		return sc
	}
	out := sc.Clone()
	last := r.Attempts[len(r.Attempts)-1]
	switch {
	case r.ClosestFallback:
		out.Unbounded = true
	case r.ExpandedRadius && last.ThresholdMiles != nil:
		out.DistanceThresholdMiles = *last.ThresholdMiles
	}
	return out
}

// categoryInput lists the services to categorize: canonical tokens when any
// matched, otherwise the extracted service phrase
func categoryInput(services model.CanonicalServiceSet, intent model.ExtractedIntent) []string {
	if !services.IsEmpty() {
		return services.All
	}
	if phrase := strings.TrimSpace(intent.ServicePhrase); phrase != "" {
		return []string{phrase}
	}
	return nil
}

// selectCategory returns the requested category when the plan has it,
// otherwise the first planned category
func selectCategory(plan model.CategoryPlan, requested string) model.CategoryServices {
	if requested != "" {
		if c, ok := plan.Find(requested); ok {
			return c
		}
	}
	if len(plan) > 0 {
		return plan[0]
	}
	return model.CategoryServices{}
}
