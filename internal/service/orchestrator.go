package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"orgfinder/internal/cypher"
	"orgfinder/internal/graph"
	"orgfinder/internal/metrics"
	"orgfinder/internal/model"
)

// MaxAttempts bounds the retrieval state machine: default, expanded, closest
const MaxAttempts = 3

// AttemptCallback observes each finished retrieval attempt
type AttemptCallback func(attempt model.RetrievalAttempt) error

// Retrieval is the result of one orchestrator run
type Retrieval struct {
	Records         []model.Record
	Attempts        []model.RetrievalAttempt
	ExpandedRadius  bool
	ClosestFallback bool
	Metrics         model.Metrics
	Failure         model.FailureReason
	Err             error
}

// Orchestrator drives the default → expanded → closest retrieval sequence.
// Only an empty result moves it forward; a backend error ends the run.
type Orchestrator struct {
	builder           cypher.Builder
	executor          graph.Executor
	expandedThreshold float64
	logger            *zap.Logger
}

// NewOrchestrator creates a new retrieval orchestrator
func NewOrchestrator(builder cypher.Builder, executor graph.Executor, expandedThreshold float64, logger *zap.Logger) *Orchestrator {
	if builder == nil {
		builder = cypher.Template{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		builder:           builder,
		executor:          executor,
		expandedThreshold: expandedThreshold,
		logger:            logger.With(zap.String("component", "orchestrator")),
	}
}

// next returns the stage after an empty attempt at stage
func (o *Orchestrator) next(stage model.RetrievalStage, req cypher.Request) model.RetrievalStage {
	switch stage {
	case model.StageDefault:
		if !req.Spatial() {
			return model.StageDone
		}
		if req.ThresholdMiles != nil && *req.ThresholdMiles < o.expandedThreshold {
			return model.StageExpanded
		}
		return model.StageClosest
	case model.StageExpanded:
		return model.StageClosest
	}
	return model.StageDone
}

// request derives the attempt request for stage from the base request
func (o *Orchestrator) request(stage model.RetrievalStage, base cypher.Request) cypher.Request {
	req := base
	switch stage {
	case model.StageExpanded:
		t := o.expandedThreshold
		req.ThresholdMiles = &t
	case model.StageClosest:
		req.ThresholdMiles = nil
		req.Limit = 1
	}
	return req
}

// Run executes the state machine for base. The callback may abort the run
// by returning an error.
func (o *Orchestrator) Run(ctx context.Context, base cypher.Request, onAttempt AttemptCallback) Retrieval {
	var out Retrieval

	stage := model.StageDefault
	for stage != model.StageDone && len(out.Attempts) < MaxAttempts {
		if err := ctx.Err(); err != nil {
			out.Failure = model.FailureCancelled
			out.Err = err
			return out
		}

		attempt, err := o.attempt(ctx, stage, o.request(stage, base))
		out.Attempts = append(out.Attempts, attempt)
		out.Metrics = model.CombineMetrics(out.Metrics, attempt.Metrics)

		if onAttempt != nil {
			if cbErr := onAttempt(attempt); cbErr != nil {
				out.Failure = model.FailureCancelled
				out.Err = cbErr
				return out
			}
		}

		if err != nil {
			if ctx.Err() != nil {
				out.Failure = model.FailureCancelled
			} else {
				out.Failure = model.FailureBackend
			}
			out.Err = err
			return out
		}

		if len(attempt.Records) > 0 {
			out.Records = attempt.Records
			out.ExpandedRadius = stage == model.StageExpanded
			out.ClosestFallback = stage == model.StageClosest
			return out
		}

		o.logger.Debug("Attempt returned no records", zap.String("stage", string(stage)))
		stage = o.next(stage, base)
	}

	out.Failure = model.FailureNoResults
	return out
}

func (o *Orchestrator) attempt(ctx context.Context, stage model.RetrievalStage, req cypher.Request) (model.RetrievalAttempt, error) {
	start := time.Now()
	attempt := model.RetrievalAttempt{Stage: stage}
	if req.ThresholdMiles != nil {
		t := *req.ThresholdMiles
		attempt.ThresholdMiles = &t
	}

	query, buildMetrics, err := o.builder.Build(ctx, req)
	attempt.Metrics = buildMetrics
	if err != nil {
		return o.finish(attempt, start, err), err
	}
	attempt.StructuredQuery = query.Text
	attempt.Params = query.Params

	if o.executor == nil {
		err := errors.New("no graph executor configured")
		return o.finish(attempt, start, err), err
	}

	execStart := time.Now()
	records, err := o.executor.Execute(ctx, query.Text, query.Params)
	attempt.Metrics.GraphMs += msSince(execStart)
	if err != nil {
		o.logger.Error("Retrieval attempt failed",
			zap.String("stage", string(stage)),
			zap.String("query", query.Text),
			zap.Error(err),
		)
		return o.finish(attempt, start, err), err
	}

	attempt.Records = records
	attempt.RecordCount = len(records)
	return o.finish(attempt, start, nil), nil
}

func (o *Orchestrator) finish(attempt model.RetrievalAttempt, start time.Time, err error) model.RetrievalAttempt {
	attempt.DurationMs = msSince(start)
	result := "empty"
	switch {
	case err != nil:
		attempt.Failed = true
		attempt.Error = err.Error()
		result = "error"
	case attempt.RecordCount > 0:
		result = "hit"
	}
	metrics.RetrievalAttempts.WithLabelValues(string(attempt.Stage), result).Inc()
	metrics.StageDuration.WithLabelValues(string(attempt.Stage)).Observe(attempt.DurationMs / 1000)
	return attempt
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}
