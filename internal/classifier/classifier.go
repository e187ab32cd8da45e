// Package classifier splits a query into time, location and service phrases
// and maps detected services to organization categories.
package classifier

import (
	"context"

	"orgfinder/internal/model"
)

// Source names the implementation that produced a result
type Source string

const (
	SourceHeuristic Source = "heuristic"
	SourceLLM       Source = "llm"
)

// Extraction is the intent split of one query
type Extraction struct {
	Intent  model.ExtractedIntent
	Metrics model.Metrics
	Source  Source
	// Degraded is set when the preferred implementation failed and the
	// heuristic answered instead.
	Degraded bool
}

// Categorization is the category plan of one query
type Categorization struct {
	Plan     model.CategoryPlan
	Metrics  model.Metrics
	Source   Source
	Degraded bool
}

// Classifier is the pluggable intent capability. Implementations fail soft:
// an error is only returned when ctx is done.
type Classifier interface {
	Extract(ctx context.Context, query string) (Extraction, error)
	Categorize(ctx context.Context, services []string) (Categorization, error)
}
