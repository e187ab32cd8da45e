// Package filter decides which extracted phrases become hard constraints in
// the structured query.
package filter

import (
	"strings"

	"orgfinder/internal/model"
)

// DefaultSpecificityLimit is the largest candidate count still considered specific
const DefaultSpecificityLimit = 5

// Specific reports whether a candidate count narrows the search: at least one
// match and no more than limit.
func Specific(count, limit int) bool {
	return count > 0 && count <= limit
}

// Decide applies the specificity rules to one query.
//
// A phrase that was not extracted never applies. When at least one phrase is
// specific, only specific phrases apply. When none is specific every extracted
// phrase applies, except when all three counts are above the limit, in which
// case nothing is enforced.
func Decide(intent model.ExtractedIntent, counts model.CandidateCounts, limit int) model.FilterDecision {
	if limit <= 0 {
		limit = DefaultSpecificityLimit
	}

	hasTime := strings.TrimSpace(intent.TimePhrase) != ""
	hasLocation := strings.TrimSpace(intent.LocationPhrase) != ""
	hasService := strings.TrimSpace(intent.ServicePhrase) != ""

	if !hasTime {
		counts.Time = 0
	}
	if !hasLocation {
		counts.Location = 0
	}
	if !hasService {
		counts.Service = 0
	}

	timeSpecific := Specific(counts.Time, limit)
	locationSpecific := Specific(counts.Location, limit)
	serviceSpecific := Specific(counts.Service, limit)
	anySpecific := timeSpecific || locationSpecific || serviceSpecific

	if !anySpecific && counts.Time > limit && counts.Location > limit && counts.Service > limit {
		return model.FilterDecision{}
	}

	return model.FilterDecision{
		ApplyTime:     hasTime && (!anySpecific || timeSpecific),
		ApplyLocation: hasLocation && (!anySpecific || locationSpecific),
		ApplyService:  hasService && (!anySpecific || serviceSpecific),
	}
}
